package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/kmunyaka/shule/apps/api/echo"
	"github.com/kmunyaka/shule/core"
	"github.com/kmunyaka/shule/core/access"
	"github.com/kmunyaka/shule/core/identifier"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	conf      *core.Config
	db        *sqlx.DB // nil when running against the in-memory store
	idSvc     *identifier.Service
	accessSvc *access.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  token -subject EMAIL                        - mint an admin API token")
	fmt.Println("  initconfigs                                 - seed the stock identifier configurations")
	fmt.Println("  resetcounter -type ID_TYPE -value N         - reset an identifier counter")
	fmt.Println("  issue -role ROLE [-student ID] [-days N]    - issue an access code")
	fmt.Println("  revoke -code CODE -reason REASON            - revoke an access code")
	fmt.Println("  sweep                                       - expire all codes past their validity window")
	fmt.Println("  migrate COMMAND [args]                      - run database migrations")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	tokenCmd := flag.NewFlagSet("token", flag.ExitOnError)
	tokenSubject := tokenCmd.String("subject", "", "The admin's email address, recorded as the token subject.")

	resetCmd := flag.NewFlagSet("resetcounter", flag.ExitOnError)
	resetType := resetCmd.String("type", "", "The identifier type, e.g. STUDENT_ID.")
	resetValue := resetCmd.Int("value", 0, "The new counter value.")

	issueCmd := flag.NewFlagSet("issue", flag.ExitOnError)
	issueRole := issueCmd.String("role", "", "STUDENT, TEACHER or PARENT.")
	issueStudent := issueCmd.String("student", "", "The bound student ID; required for PARENT codes.")
	issueDays := issueCmd.Int("days", 0, "Validity in days; 0 uses the configured default.")

	revokeCmd := flag.NewFlagSet("revoke", flag.ExitOnError)
	revokeCode := revokeCmd.String("code", "", "The access code to revoke.")
	revokeReason := revokeCmd.String("reason", "", "The reason, stored for audit.")

	ctx := context.Background()

	switch args[1] {
	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *tokenSubject == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(*tokenSubject)
	case "initconfigs":
		return cli.idSvc.EnsureDefaults(ctx)
	case "resetcounter":
		if err := resetCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetType == "" {
			resetCmd.Usage()
			return errHelp
		}
		return cli.resetCounter(ctx, *resetType, *resetValue)
	case "issue":
		if err := issueCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *issueRole == "" {
			issueCmd.Usage()
			return errHelp
		}
		return cli.issue(ctx, *issueRole, *issueStudent, *issueDays)
	case "revoke":
		if err := revokeCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *revokeCode == "" || *revokeReason == "" {
			revokeCmd.Usage()
			return errHelp
		}
		return cli.revoke(ctx, *revokeCode, *revokeReason)
	case "sweep":
		return cli.sweep(ctx)
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) token(subject string) error {
	claims := echoapi.NewAdminClaims(cli.conf, core.CleanString(subject, true /* lower */))
	token, err := echoapi.GenerateToken(cli.conf, claims)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func (cli *commandLine) resetCounter(ctx context.Context, idType string, value int) error {
	cfg, err := cli.idSvc.ResetCounter(ctx, idType, value)
	if err != nil {
		return err
	}
	fmt.Printf("%s counter reset to %d\n", cfg.IDType, cfg.CurrentCounter)
	return nil
}

func (cli *commandLine) issue(ctx context.Context, role, studentID string, days int) error {
	c, err := cli.accessSvc.Issue(ctx, access.Role(core.CleanCode(role)), access.IssueOptions{
		BoundStudentID: studentID,
		ValidityDays:   days,
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s (%s) valid until %s\n", c.Code, c.Role, c.ValidUntil.Format(time.RFC3339))
	return nil
}

func (cli *commandLine) revoke(ctx context.Context, code, reason string) error {
	c, err := cli.accessSvc.Revoke(ctx, code, reason)
	if err != nil {
		return err
	}
	fmt.Printf("%s revoked\n", c.Code)
	return nil
}

func (cli *commandLine) sweep(ctx context.Context) error {
	count, err := cli.accessSvc.SweepExpired(ctx, time.Now())
	if err != nil {
		return err
	}
	fmt.Printf("expired %d code(s)\n", count)
	return nil
}
