package student

import (
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kmunyaka/shule/core"
)

// ChildIDRegex is the shape of a child record identifier: "CHD" followed
// by a fixed-length numeric suffix.
var ChildIDRegex = regexp.MustCompile(`^CHD[0-9]{6}$`)

// Student is the engine-facing slice of a student record: just enough to
// anchor PARENT access codes. Full student CRUD lives elsewhere.
type Student struct {
	ID        string    `json:"id"` // CHD + 6 digits
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// ParentChildMapping authorizes a parent account to attach to a specific
// student record. Mappings are deactivated, never hard-deleted, to keep
// the audit trail.
type ParentChildMapping struct {
	ChildID     string    `json:"child_id"`
	ParentEmail string    `json:"parent_email"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

// NewStudent contains information needed to register a student record.
type NewStudent struct {
	ID    string `json:"id" validate:"required"`
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.ID = core.CleanCode(ns.ID)
	ns.Name = core.CleanString(ns.Name)
	ns.Email = core.CleanString(ns.Email, true /* lower */)

	if err := validate.Struct(ns); err != nil {
		return err
	}
	if !ChildIDRegex.MatchString(ns.ID) {
		return core.NewValidationError(nil, core.FieldError{Field: "id", Error: "must match CHD followed by 6 digits"})
	}
	return nil
}

// NewMapping contains information needed to bind a parent email to a child.
type NewMapping struct {
	ChildID     string `json:"child_id" validate:"required"`
	ParentEmail string `json:"parent_email" validate:"required,email"`
}

func (nm *NewMapping) Validate(validate *validator.Validate) error {
	nm.ChildID = core.CleanCode(nm.ChildID)
	nm.ParentEmail = core.CleanString(nm.ParentEmail, true /* lower */)
	return validate.Struct(nm)
}
