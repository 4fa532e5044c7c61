package testutil

import (
	"context"
	"io/ioutil"
	"net/mail"
	"testing"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/kmunyaka/shule/core"
	"github.com/kmunyaka/shule/core/access"
	"github.com/kmunyaka/shule/core/identifier"
	"github.com/kmunyaka/shule/core/student"
	logsvc "github.com/kmunyaka/shule/services/logger"
)

// NewConfig returns a self-contained configuration for tests; nothing is
// read from the environment.
func NewConfig() *core.Config {
	return &core.Config{
		Env:              "TEST",
		Debug:            true,
		TestMode:         true,
		AppName:          "Shule",
		Build:            "test",
		SecretKey:        "secret",
		DefaultFromEmail: mail.Address{Address: "noreply@test.cd"},
		Server: core.ServerConfig{
			Host:                   "0.0.0.0:8000",
			ShutdownTimeout:        5 * time.Second,
			JWTExpirationDelta:     time.Hour,
			RegistrationGrantDelta: 15 * time.Minute,
		},
		AccessCode: core.AccessCodeConfig{
			DefaultValidityDays: 30,
			IssueMaxRetries:     5,
		},
	}
}

// NewLogger returns a quiet logger.
func NewLogger() core.Logger {
	return logsvc.NewConsoleLogger(ioutil.Discard)
}

func CreateStudent(t *testing.T, repo student.Repository, id, name string, active bool) student.Student {
	t.Helper()
	std, err := repo.CreateStudent(context.Background(), student.Student{
		ID:        id,
		Name:      name,
		Active:    active,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return std
}

func CreateMapping(t *testing.T, repo student.Repository, childID, parentEmail string) student.ParentChildMapping {
	t.Helper()
	m, err := repo.CreateMapping(context.Background(), student.ParentChildMapping{
		ChildID:     childID,
		ParentEmail: parentEmail,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateMapping() failed: %v", err)
	}
	return m
}

func CreateConfig(t *testing.T, repo identifier.Repository, idType, format string, counter int, active bool) identifier.Config {
	t.Helper()
	now := time.Now().UTC()
	cfg, err := repo.CreateConfig(context.Background(), identifier.Config{
		IDType:         idType,
		Format:         format,
		CurrentCounter: counter,
		Active:         active,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		t.Fatalf("CreateConfig() failed: %v", err)
	}
	return cfg
}

// CreateCode stores a code record directly, bypassing issuance. validFor
// may be negative to plant an already-expired code.
func CreateCode(t *testing.T, repo access.Repository, value string, role access.Role, status access.Status, validFor time.Duration, boundStudentID string) access.Code {
	t.Helper()
	now := time.Now().UTC()
	c, err := repo.CreateCode(context.Background(), access.Code{
		Code:           value,
		Role:           role,
		Status:         status,
		IssuedAt:       now.Add(-time.Hour),
		ValidUntil:     now.Add(validFor),
		BoundStudentID: boundStudentID,
	})
	if err != nil {
		t.Fatalf("CreateCode() failed: %v", err)
	}
	return c
}

// Diff renders a unified diff of two strings for test failure messages.
func Diff(t *testing.T, want, got string) string {
	t.Helper()
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(want),
		B:        difflib.SplitLines(got),
		FromFile: "want",
		ToFile:   "got",
		Context:  2,
	})
	if err != nil {
		t.Fatalf("Diff() failed: %v", err)
	}
	return diff
}
