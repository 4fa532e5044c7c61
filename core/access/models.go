package access

import (
	"regexp"
	"time"
)

// Role is the account role an access code registers into.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleTeacher Role = "TEACHER"
	RoleParent  Role = "PARENT"
)

var rolePrefixes = map[Role]string{
	RoleStudent: "STU",
	RoleTeacher: "TCH",
	RoleParent:  "PAR",
}

func (r Role) Valid() bool {
	_, ok := rolePrefixes[r]
	return ok
}

// Prefix is the code prefix derived from the role.
func (r Role) Prefix() string { return rolePrefixes[r] }

// Status is the lifecycle state of a code. A code transitions exactly once
// from ACTIVE to one of the terminal states; terminal states are immutable.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusUsed    Status = "USED"
	StatusExpired Status = "EXPIRED"
	StatusRevoked Status = "REVOKED"
)

// CodeRegex is the stable wire shape of an access code.
var CodeRegex = regexp.MustCompile(`^[A-Z]{1,3}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

// Code is a single-use, time-bounded credential gating self-registration.
// UsedAt/UsedBy are set if and only if Status is USED; ValidUntil is
// always strictly after IssuedAt.
type Code struct {
	Code           string     `json:"code"`
	Role           Role       `json:"role"`
	Status         Status     `json:"status"`
	IssuedAt       time.Time  `json:"issued_at"`    // UTC
	ValidUntil     time.Time  `json:"valid_until"`  // UTC
	UsedAt         *time.Time `json:"used_at,omitempty"`
	UsedBy         string     `json:"used_by,omitempty"`
	BoundStudentID string     `json:"bound_student_id,omitempty"` // set for PARENT codes
	RevokeReason   string     `json:"revoke_reason,omitempty"`
}

// ExpiredAt reports whether the code's validity window has passed at t,
// regardless of its stored status.
func (c Code) ExpiredAt(t time.Time) bool { return t.After(c.ValidUntil) }

// IssueOptions tunes a single issuance. Zero ValidityDays means the
// configured default.
type IssueOptions struct {
	BoundStudentID string
	ValidityDays   int
}

// QueryFilter applies an AND operation on its set fields.
type QueryFilter struct {
	Role           Role   `query:"role"`
	Status         Status `query:"status"`
	BoundStudentID string `query:"bound_student_id"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Role == "" && qf.Status == "" && qf.BoundStudentID == ""
}

// StudentIssueResult is one row of a bulk issuance: bulk runs are
// partial-failure, never all-or-nothing. ParentCodes holds one code per
// active parent-child mapping.
type StudentIssueResult struct {
	StudentID   string `json:"student_id"`
	StudentCode *Code  `json:"student_code,omitempty"`
	ParentCodes []Code `json:"parent_codes,omitempty"`
	Error       string `json:"error,omitempty"`
}
