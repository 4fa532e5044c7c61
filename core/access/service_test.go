package access_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kmunyaka/shule/core"
	"github.com/kmunyaka/shule/core/access"
	"github.com/kmunyaka/shule/core/student"
	appfs "github.com/kmunyaka/shule/fs"
	emailsvc "github.com/kmunyaka/shule/services/email"
	inmemdb "github.com/kmunyaka/shule/storage/database/inmem"
	testutil "github.com/kmunyaka/shule/tests"
)

func setup(t *testing.T) (*access.Service, access.Repository, student.Repository) {
	t.Helper()
	conf := testutil.NewConfig()
	db := inmemdb.NewDB()
	accessRepo := inmemdb.NewAccessRepository(db)
	stdRepo := inmemdb.NewStudentRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	svc := access.NewService(accessRepo, stdRepo, mailSvc, testutil.NewLogger(), conf)
	return svc, accessRepo, stdRepo
}

func TestService_Issue(t *testing.T) {
	svc, _, stdRepo := setup(t)
	ctx := context.Background()

	testutil.CreateStudent(t, stdRepo, "CHD000001", "Awe", true)
	testutil.CreateStudent(t, stdRepo, "CHD000002", "Mdr", false)

	t.Run("student code with defaults", func(t *testing.T) {
		c, err := svc.Issue(ctx, access.RoleStudent, access.IssueOptions{})
		if err != nil {
			t.Fatalf("Issue() failed: %v", err)
		}
		if !access.CodeRegex.MatchString(c.Code) || !strings.HasPrefix(c.Code, "STU-") {
			t.Errorf("Issue() code = %q, want STU-XXXX-XXXX-XXXX", c.Code)
		}
		if c.Status != access.StatusActive {
			t.Errorf("Issue() status = %s, want ACTIVE", c.Status)
		}
		if got, want := c.ValidUntil.Sub(c.IssuedAt), 30*24*time.Hour; got != want {
			t.Errorf("Issue() validity = %v, want %v", got, want)
		}
	})

	t.Run("custom validity", func(t *testing.T) {
		c, err := svc.Issue(ctx, access.RoleTeacher, access.IssueOptions{ValidityDays: 7})
		if err != nil {
			t.Fatalf("Issue() failed: %v", err)
		}
		if got, want := c.ValidUntil.Sub(c.IssuedAt), 7*24*time.Hour; got != want {
			t.Errorf("Issue() validity = %v, want %v", got, want)
		}
	})

	t.Run("unknown role", func(t *testing.T) {
		var vErr *core.ValidationError
		if _, err := svc.Issue(ctx, "JANITOR", access.IssueOptions{}); !errors.As(err, &vErr) {
			t.Errorf("Issue() = %v, want validation error", err)
		}
	})

	t.Run("parent requires bound student", func(t *testing.T) {
		var vErr *core.ValidationError
		if _, err := svc.Issue(ctx, access.RoleParent, access.IssueOptions{}); !errors.As(err, &vErr) {
			t.Errorf("Issue() = %v, want validation error", err)
		}
	})

	t.Run("parent bound to unknown student", func(t *testing.T) {
		if _, err := svc.Issue(ctx, access.RoleParent, access.IssueOptions{BoundStudentID: "CHD999999"}); !errors.Is(err, access.ErrUnknownStudent) {
			t.Errorf("Issue() = %v, want ErrUnknownStudent", err)
		}
	})

	t.Run("parent bound to inactive student", func(t *testing.T) {
		if _, err := svc.Issue(ctx, access.RoleParent, access.IssueOptions{BoundStudentID: "CHD000002"}); !errors.Is(err, access.ErrUnknownStudent) {
			t.Errorf("Issue() = %v, want ErrUnknownStudent", err)
		}
	})

	t.Run("parent bound to active student", func(t *testing.T) {
		c, err := svc.Issue(ctx, access.RoleParent, access.IssueOptions{BoundStudentID: "chd000001"})
		if err != nil {
			t.Fatalf("Issue() failed: %v", err)
		}
		if c.BoundStudentID != "CHD000001" {
			t.Errorf("Issue() bound student = %q, want CHD000001", c.BoundStudentID)
		}
	})
}

func TestService_Issue_CollisionRetriesExhausted(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	// a constant random source always draws the same code value
	restore := access.SetRandReader(bytes.NewReader(bytes.Repeat([]byte{0}, 1024)))
	defer restore()

	if _, err := svc.Issue(ctx, access.RoleStudent, access.IssueOptions{}); err != nil {
		t.Fatalf("Issue() failed: %v", err)
	}
	_, err := svc.Issue(ctx, access.RoleStudent, access.IssueOptions{})
	if err == nil {
		t.Fatal("Issue() with colliding source succeeded")
	}
	if !core.IsShutdown(err) {
		t.Errorf("Issue() = %v, want shutdown error", err)
	}
}

func TestService_Validate(t *testing.T) {
	svc, accessRepo, _ := setup(t)
	ctx := context.Background()

	testutil.CreateCode(t, accessRepo, "STU-GOOD-GOOD-GOOD", access.RoleStudent, access.StatusActive, time.Hour, "")
	testutil.CreateCode(t, accessRepo, "TCH-USED-USED-USED", access.RoleTeacher, access.StatusUsed, time.Hour, "")
	testutil.CreateCode(t, accessRepo, "TCH-RVKD-RVKD-RVKD", access.RoleTeacher, access.StatusRevoked, time.Hour, "")
	testutil.CreateCode(t, accessRepo, "TCH-EXPD-EXPD-EXPD", access.RoleTeacher, access.StatusExpired, time.Hour, "")
	testutil.CreateCode(t, accessRepo, "STU-LATE-LATE-LATE", access.RoleStudent, access.StatusActive, -time.Minute, "")

	tests := []struct {
		name    string
		code    string
		role    access.Role
		wantErr error
	}{
		{name: "valid", code: "STU-GOOD-GOOD-GOOD", role: access.RoleStudent},
		{name: "role check skipped when empty", code: "STU-GOOD-GOOD-GOOD"},
		{name: "cleaned input", code: "  stu-good-good-good "},
		{name: "role mismatch", code: "STU-GOOD-GOOD-GOOD", role: access.RoleParent, wantErr: access.ErrRoleMismatch},
		{name: "malformed", code: "not-a-code", wantErr: access.ErrNotFound},
		{name: "unknown", code: "STU-ZZZZ-ZZZZ-ZZZZ", wantErr: access.ErrNotFound},
		{name: "used", code: "TCH-USED-USED-USED", wantErr: access.ErrAlreadyUsed},
		{name: "revoked", code: "TCH-RVKD-RVKD-RVKD", wantErr: access.ErrRevoked},
		{name: "expired status", code: "TCH-EXPD-EXPD-EXPD", wantErr: access.ErrExpired},
		{name: "past validity window", code: "STU-LATE-LATE-LATE", wantErr: access.ErrExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Validate(ctx, tt.code, tt.role)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// lazy expiry settled the stale record
	c, err := accessRepo.GetCode(ctx, "STU-LATE-LATE-LATE")
	if err != nil {
		t.Fatalf("GetCode() failed: %v", err)
	}
	if c.Status != access.StatusExpired {
		t.Errorf("lazy expiry: status = %s, want EXPIRED", c.Status)
	}
}

func TestService_Consume(t *testing.T) {
	svc, accessRepo, _ := setup(t)
	ctx := context.Background()

	testutil.CreateCode(t, accessRepo, "TCH-AAAA-BBBB-CCCC", access.RoleTeacher, access.StatusActive, time.Hour, "")

	c, err := svc.Consume(ctx, "TCH-AAAA-BBBB-CCCC", "teacher@test.cd")
	if err != nil {
		t.Fatalf("Consume() failed: %v", err)
	}
	if c.Status != access.StatusUsed || c.UsedAt == nil || c.UsedBy != "teacher@test.cd" {
		t.Errorf("Consume() = %+v, want USED with consumer recorded", c)
	}

	if _, err = svc.Consume(ctx, "TCH-AAAA-BBBB-CCCC", "other@test.cd"); !errors.Is(err, access.ErrAlreadyUsed) {
		t.Errorf("Consume() second call = %v, want ErrAlreadyUsed", err)
	}
}

func TestService_Consume_AtMostOnce(t *testing.T) {
	svc, accessRepo, _ := setup(t)
	ctx := context.Background()

	testutil.CreateCode(t, accessRepo, "STU-RACE-RACE-RACE", access.RoleStudent, access.StatusActive, time.Hour, "")

	const n = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Consume(ctx, "STU-RACE-RACE-RACE", "racer@test.cd"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else if !errors.Is(err, access.ErrAlreadyUsed) {
				t.Errorf("Consume() = %v, want nil or ErrAlreadyUsed", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("Consume() succeeded %d times, want exactly 1", successes)
	}
}

func TestService_Consume_ParentMapping(t *testing.T) {
	svc, accessRepo, stdRepo := setup(t)
	ctx := context.Background()

	testutil.CreateStudent(t, stdRepo, "CHD000001", "Awe", true)
	testutil.CreateCode(t, accessRepo, "PAR-AAAA-BBBB-CCCC", access.RoleParent, access.StatusActive, time.Hour, "CHD000001")

	// no active mapping yet; the code must stay ACTIVE
	if _, err := svc.Consume(ctx, "PAR-AAAA-BBBB-CCCC", "parent@test.cd"); !errors.Is(err, access.ErrUnboundChild) {
		t.Fatalf("Consume() = %v, want ErrUnboundChild", err)
	}
	c, err := accessRepo.GetCode(ctx, "PAR-AAAA-BBBB-CCCC")
	if err != nil {
		t.Fatalf("GetCode() failed: %v", err)
	}
	if c.Status != access.StatusActive {
		t.Errorf("code status after unbound consume = %s, want ACTIVE", c.Status)
	}

	testutil.CreateMapping(t, stdRepo, "CHD000001", "parent@test.cd")
	if _, err = svc.Consume(ctx, "PAR-AAAA-BBBB-CCCC", "parent@test.cd"); err != nil {
		t.Errorf("Consume() after mapping created = %v, want nil", err)
	}
}

func TestService_Revoke(t *testing.T) {
	svc, accessRepo, _ := setup(t)
	ctx := context.Background()

	testutil.CreateCode(t, accessRepo, "STU-AAAA-BBBB-CCCC", access.RoleStudent, access.StatusActive, time.Hour, "")
	testutil.CreateCode(t, accessRepo, "STU-DDDD-EEEE-FFFF", access.RoleStudent, access.StatusUsed, time.Hour, "")

	c, err := svc.Revoke(ctx, "STU-AAAA-BBBB-CCCC", "issued in error")
	if err != nil {
		t.Fatalf("Revoke() failed: %v", err)
	}
	if c.Status != access.StatusRevoked || c.RevokeReason != "issued in error" {
		t.Errorf("Revoke() = %+v, want REVOKED with reason", c)
	}

	// terminal codes report their settled state
	if _, err = svc.Revoke(ctx, "STU-AAAA-BBBB-CCCC", "again"); !errors.Is(err, access.ErrRevoked) {
		t.Errorf("Revoke() on revoked = %v, want ErrRevoked", err)
	}
	if _, err = svc.Revoke(ctx, "STU-DDDD-EEEE-FFFF", "too late"); !errors.Is(err, access.ErrAlreadyUsed) {
		t.Errorf("Revoke() on used = %v, want ErrAlreadyUsed", err)
	}
	if _, err = svc.Revoke(ctx, "STU-ZZZZ-ZZZZ-ZZZZ", "ghost"); !errors.Is(err, access.ErrNotFound) {
		t.Errorf("Revoke() on unknown = %v, want ErrNotFound", err)
	}

	// a revoked code can never be consumed
	if _, err = svc.Consume(ctx, "STU-AAAA-BBBB-CCCC", "late@test.cd"); !errors.Is(err, access.ErrRevoked) {
		t.Errorf("Consume() on revoked = %v, want ErrRevoked", err)
	}
}

func TestService_Revoke_ConsumeRace(t *testing.T) {
	svc, accessRepo, _ := setup(t)
	ctx := context.Background()

	testutil.CreateCode(t, accessRepo, "TCH-RACE-RACE-RACE", access.RoleTeacher, access.StatusActive, time.Hour, "")

	const n = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		consumed int
		revoked  int
	)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := svc.Consume(ctx, "TCH-RACE-RACE-RACE", "racer@test.cd"); err == nil {
				mu.Lock()
				consumed++
				mu.Unlock()
			} else if !errors.Is(err, access.ErrAlreadyUsed) && !errors.Is(err, access.ErrRevoked) {
				t.Errorf("Consume() = %v, want nil, ErrAlreadyUsed or ErrRevoked", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := svc.Revoke(ctx, "TCH-RACE-RACE-RACE", "race"); err == nil {
				mu.Lock()
				revoked++
				mu.Unlock()
			} else if !errors.Is(err, access.ErrAlreadyUsed) && !errors.Is(err, access.ErrRevoked) {
				t.Errorf("Revoke() = %v, want nil, ErrAlreadyUsed or ErrRevoked", err)
			}
		}()
	}
	wg.Wait()

	// exactly one transition out of ACTIVE ever happens
	if consumed+revoked != 1 {
		t.Errorf("consumed %d times and revoked %d times, want exactly 1 transition", consumed, revoked)
	}

	c, err := accessRepo.GetCode(ctx, "TCH-RACE-RACE-RACE")
	if err != nil {
		t.Fatalf("GetCode() failed: %v", err)
	}
	switch c.Status {
	case access.StatusUsed:
		if consumed != 1 || c.UsedAt == nil || c.UsedBy != "racer@test.cd" {
			t.Errorf("USED code = %+v, consumed = %d", c, consumed)
		}
	case access.StatusRevoked:
		if revoked != 1 || c.UsedAt != nil || c.UsedBy != "" {
			t.Errorf("REVOKED code = %+v, revoked = %d; consumer fields must stay empty", c, revoked)
		}
	default:
		t.Errorf("final status = %s, want USED or REVOKED", c.Status)
	}
}

func TestService_SweepExpired(t *testing.T) {
	svc, accessRepo, _ := setup(t)
	ctx := context.Background()

	testutil.CreateCode(t, accessRepo, "STU-LIVE-LIVE-LIVE", access.RoleStudent, access.StatusActive, time.Hour, "")
	testutil.CreateCode(t, accessRepo, "STU-OLD1-OLD1-OLD1", access.RoleStudent, access.StatusActive, -time.Minute, "")
	testutil.CreateCode(t, accessRepo, "STU-OLD2-OLD2-OLD2", access.RoleStudent, access.StatusActive, -time.Hour, "")
	testutil.CreateCode(t, accessRepo, "STU-USED-USED-USED", access.RoleStudent, access.StatusUsed, -time.Hour, "")
	testutil.CreateCode(t, accessRepo, "STU-RVKD-RVKD-RVKD", access.RoleStudent, access.StatusRevoked, -time.Hour, "")

	count, err := svc.SweepExpired(ctx, time.Now())
	if err != nil {
		t.Fatalf("SweepExpired() failed: %v", err)
	}
	if count != 2 {
		t.Errorf("SweepExpired() = %d, want 2", count)
	}

	// idempotent
	count, err = svc.SweepExpired(ctx, time.Now())
	if err != nil {
		t.Fatalf("SweepExpired() second run failed: %v", err)
	}
	if count != 0 {
		t.Errorf("SweepExpired() second run = %d, want 0", count)
	}

	// terminal records are untouched
	for code, want := range map[string]access.Status{
		"STU-LIVE-LIVE-LIVE": access.StatusActive,
		"STU-OLD1-OLD1-OLD1": access.StatusExpired,
		"STU-USED-USED-USED": access.StatusUsed,
		"STU-RVKD-RVKD-RVKD": access.StatusRevoked,
	} {
		c, err := accessRepo.GetCode(ctx, code)
		if err != nil {
			t.Fatalf("GetCode(%s) failed: %v", code, err)
		}
		if c.Status != want {
			t.Errorf("after sweep %s status = %s, want %s", code, c.Status, want)
		}
	}

	if _, err = svc.Consume(ctx, "STU-OLD1-OLD1-OLD1", "late@test.cd"); !errors.Is(err, access.ErrExpired) {
		t.Errorf("Consume() on swept code = %v, want ErrExpired", err)
	}
}

func TestService_IssueForStudents(t *testing.T) {
	svc, _, stdRepo := setup(t)
	ctx := context.Background()
	core.ParseEmailTemplates(testutil.NewLogger(), appfs.FS, "assets/templates/email")
	emailsvc.ResetSentMessages()
	defer emailsvc.ResetSentMessages()

	testutil.CreateStudent(t, stdRepo, "CHD000001", "Awe", true)
	testutil.CreateStudent(t, stdRepo, "CHD000002", "Mdr", true)
	testutil.CreateMapping(t, stdRepo, "CHD000002", "mom@test.cd")
	testutil.CreateMapping(t, stdRepo, "CHD000002", "dad@test.cd")

	results := svc.IssueForStudents(ctx, []string{"CHD000001", "CHD000002", "CHD999999"})
	if len(results) != 3 {
		t.Fatalf("IssueForStudents() = %d results, want 3", len(results))
	}

	// no mapping: student code only
	if results[0].StudentCode == nil || len(results[0].ParentCodes) != 0 || results[0].Error != "" {
		t.Errorf("results[0] = %+v, want student code only", results[0])
	}
	// one parent code per active mapping, each emailed to its parent
	if results[1].StudentCode == nil || len(results[1].ParentCodes) != 2 || results[1].Error != "" {
		t.Errorf("results[1] = %+v, want student code and 2 parent codes", results[1])
	}
	// unknown student: recorded failure, run continues
	if results[2].StudentCode != nil || results[2].Error == "" {
		t.Errorf("results[2] = %+v, want recorded failure", results[2])
	}

	if results[0].StudentCode.BoundStudentID != "CHD000001" {
		t.Errorf("student code bound to %q, want CHD000001", results[0].StudentCode.BoundStudentID)
	}
	if len(results[1].ParentCodes) == 2 && results[1].ParentCodes[0].Code == results[1].ParentCodes[1].Code {
		t.Errorf("parent codes are not distinct: %q", results[1].ParentCodes[0].Code)
	}

	if len(emailsvc.SentMessages) != 2 {
		t.Fatalf("sent %d emails, want 2", len(emailsvc.SentMessages))
	}
	recipients := make(map[string]bool, 2)
	for _, msg := range emailsvc.SentMessages {
		recipients[msg.To[0].Address] = true
	}
	if !recipients["mom@test.cd"] || !recipients["dad@test.cd"] {
		t.Errorf("parent codes emailed to %v, want mom@test.cd and dad@test.cd", recipients)
	}
}
