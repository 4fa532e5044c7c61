package identifier

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kmunyaka/shule/core"
)

// Identifier types seeded on a fresh install. Admins may add more.
const (
	TypeStudentID       = "STUDENT_ID"
	TypeAdmissionNumber = "ADMISSION_NUMBER"
	TypeRollNumber      = "ROLL_NUMBER"
	TypeEmployeeID      = "EMPLOYEE_ID"
)

// DefaultConfigs returns the stock configurations created by EnsureDefaults.
func DefaultConfigs() []Config {
	return []Config{
		{IDType: TypeStudentID, Format: "STU-{YEAR}-{GRADE}-{SECTION}-{COUNTER:4}", Active: true},
		{IDType: TypeAdmissionNumber, Format: "ADM-{YEAR}-{COUNTER:5}", Active: true},
		{IDType: TypeRollNumber, Format: "{GRADE}{SECTION}-{COUNTER:3}", Active: true},
		{IDType: TypeEmployeeID, Format: "EMP-{YEAR}-{COUNTER:4}", Active: true},
	}
}

// Config is the stored configuration for one identifier type.
// CurrentCounter is monotonically non-decreasing except on an explicit
// admin reset.
type Config struct {
	IDType         string    `json:"id_type"`
	Format         string    `json:"format"`
	CurrentCounter int       `json:"current_counter"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"` // UTC
	UpdatedAt      time.Time `json:"updated_at"` // UTC
}

// Context carries the placeholder values for one render.
// Grade and Section are substituted verbatim, exactly as provided.
type Context struct {
	Year    int    `json:"year" query:"year"`
	Grade   string `json:"grade" query:"grade"`
	Section string `json:"section" query:"section"`
	Counter int    `json:"-" query:"-"`
}

// NewConfig contains information needed to create a new Config.
type NewConfig struct {
	IDType string `json:"id_type" validate:"required,idkey"`
	Format string `json:"format" validate:"required"`
}

func (nc *NewConfig) Validate(validate *validator.Validate) error {
	nc.IDType = core.CleanCode(nc.IDType)
	nc.Format = core.CleanString(nc.Format)

	if err := validate.Struct(nc); err != nil {
		return err
	}
	return ValidateFormat(nc.Format)
}

// UpdateConfig defines what may be modified on an existing Config.
// A nil field is left untouched.
type UpdateConfig struct {
	Format string `json:"format"`
	Active *bool  `json:"active"`
}

func (uc *UpdateConfig) Validate(validate *validator.Validate) error {
	uc.Format = core.CleanString(uc.Format)

	if err := validate.Struct(uc); err != nil {
		return err
	}
	if uc.Format != "" {
		return ValidateFormat(uc.Format)
	}
	return nil
}
