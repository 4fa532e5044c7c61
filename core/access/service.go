package access

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/kmunyaka/shule/core"
	"github.com/kmunyaka/shule/core/student"
)

var (
	// credential errors; the registration flow branches on these kinds.
	ErrNotFound       = errors.New("access code not found")
	ErrRoleMismatch   = errors.New("access code was issued for a different role")
	ErrAlreadyUsed    = errors.New("access code has already been used")
	ErrExpired        = errors.New("access code has expired")
	ErrRevoked        = errors.New("access code has been revoked")
	ErrUnboundChild   = errors.New("no active parent-child mapping for this code")
	ErrUnknownStudent = errors.New("student not found or inactive")

	// repository errors
	ErrExists   = errors.New("an access code with this value already exists")
	ErrConflict = errors.New("access code state changed concurrently")

	nowFunc = time.Now // mockable
)

type (
	Repository interface {
		// CreateCode persists a new code; ErrExists on value collision.
		CreateCode(ctx context.Context, c Code) (Code, error)
		GetCode(ctx context.Context, code string) (Code, error)
		FilterCodes(ctx context.Context, filter QueryFilter) ([]Code, error)
		// MarkUsed performs the single conditional transition
		// ACTIVE -> USED, guarded by at <= ValidUntil. On guard failure it
		// returns ErrConflict without writing anything.
		MarkUsed(ctx context.Context, code, usedBy string, at time.Time) (Code, error)
		// MarkExpired performs the conditional transition ACTIVE -> EXPIRED.
		MarkExpired(ctx context.Context, code string, at time.Time) (Code, error)
		// MarkRevoked performs the conditional transition ACTIVE -> REVOKED.
		MarkRevoked(ctx context.Context, code, reason string, at time.Time) (Code, error)
		// SweepExpired transitions every ACTIVE code with ValidUntil < now
		// to EXPIRED and returns how many it swept.
		SweepExpired(ctx context.Context, now time.Time) (int, error)
	}

	// StudentDirectory is the slice of the student registry the issuer and
	// consumer need; student.Repository satisfies it.
	StudentDirectory interface {
		GetStudent(ctx context.Context, id string) (student.Student, error)
		GetActiveMapping(ctx context.Context, childID string) (student.ParentChildMapping, error)
		QueryActiveMappings(ctx context.Context, childID string) ([]student.ParentChildMapping, error)
	}

	Service struct {
		repo     Repository
		students StudentDirectory
		mailSvc  core.EmailService
		log      core.Logger
		conf     *core.Config
	}
)

func NewService(repo Repository, students StudentDirectory, mailSvc core.EmailService, logger core.Logger, conf *core.Config) *Service {
	return &Service{
		repo:     repo,
		students: students,
		mailSvc:  mailSvc,
		log:      logger,
		conf:     conf,
	}
}

// Issue mints a role-scoped, time-bounded, single-use code. PARENT codes
// must be bound to an existing, active student. Value collisions are
// retried up to a small fixed bound.
func (svc *Service) Issue(ctx context.Context, role Role, opts IssueOptions) (Code, error) {
	if !role.Valid() {
		return Code{}, core.NewValidationError(nil, core.FieldError{Field: "role", Error: "unknown role"})
	}

	opts.BoundStudentID = core.CleanCode(opts.BoundStudentID)
	if role == RoleParent && opts.BoundStudentID == "" {
		return Code{}, core.NewValidationError(nil, core.FieldError{Field: "bound_student_id", Error: "required for PARENT codes"})
	}
	if opts.BoundStudentID != "" {
		std, err := svc.students.GetStudent(ctx, opts.BoundStudentID)
		if err != nil || !std.Active {
			return Code{}, ErrUnknownStudent
		}
	}

	days := opts.ValidityDays
	if days <= 0 {
		days = svc.conf.AccessCode.DefaultValidityDays
	}
	now := nowFunc().UTC()
	c := Code{
		Role:           role,
		Status:         StatusActive,
		IssuedAt:       now,
		ValidUntil:     now.Add(time.Duration(days) * 24 * time.Hour),
		BoundStudentID: opts.BoundStudentID,
	}

	for attempt := 0; attempt < svc.conf.AccessCode.IssueMaxRetries; attempt++ {
		value, err := generateCode(role)
		if err != nil {
			return Code{}, err
		}
		c.Code = value

		created, err := svc.repo.CreateCode(ctx, c)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, ErrExists) {
			return Code{}, err
		}
	}
	return Code{}, core.NewShutdownError("access code generation exhausted retries; random source suspect")
}

// IssueForStudents issues one STUDENT code per student, plus one PARENT
// code per active parent-child mapping. Failures are recorded per student
// and do not stop the run. Each parent code is emailed to its mapped
// parent address when an email service is configured.
func (svc *Service) IssueForStudents(ctx context.Context, studentIDs []string) []StudentIssueResult {
	results := make([]StudentIssueResult, 0, len(studentIDs))
	for _, id := range studentIDs {
		id = core.CleanCode(id)
		res := StudentIssueResult{StudentID: id}

		stdCode, err := svc.Issue(ctx, RoleStudent, IssueOptions{BoundStudentID: id})
		if err != nil {
			res.Error = err.Error()
			results = append(results, res)
			continue
		}
		res.StudentCode = &stdCode

		mappings, err := svc.students.QueryActiveMappings(ctx, id)
		if err != nil {
			res.Error = err.Error()
			results = append(results, res)
			continue
		}
		for _, mapping := range mappings {
			parCode, err := svc.Issue(ctx, RoleParent, IssueOptions{BoundStudentID: id})
			if err != nil {
				res.Error = err.Error()
				break
			}
			res.ParentCodes = append(res.ParentCodes, parCode)
			svc.emailParentCode(mapping, parCode)
		}
		results = append(results, res)
	}
	return results
}

// Validate checks a presented code against expectedRole and its lifecycle
// state. When the validity window has passed on a still-ACTIVE record, the
// record is transitioned to EXPIRED as a side effect (lazy expiry) and
// ErrExpired is returned. An empty expectedRole skips the role check.
func (svc *Service) Validate(ctx context.Context, code string, expectedRole Role) (Code, error) {
	code = core.CleanCode(code)
	if !CodeRegex.MatchString(code) {
		return Code{}, ErrNotFound
	}

	c, err := svc.repo.GetCode(ctx, code)
	if err != nil {
		return Code{}, err
	}
	if expectedRole != "" && c.Role != expectedRole {
		return Code{}, ErrRoleMismatch
	}
	if err = svc.classify(ctx, c, nowFunc().UTC()); err != nil {
		return Code{}, err
	}
	return c, nil
}

// Consume atomically turns a valid code into USED, recording the consumer.
// At most one caller ever observes a successful consumption of a given
// code. For PARENT codes an active parent-child mapping must resolve the
// bound student, otherwise ErrUnboundChild is returned and the code stays
// ACTIVE.
func (svc *Service) Consume(ctx context.Context, code, usedBy string) (Code, error) {
	c, err := svc.Validate(ctx, code, "")
	if err != nil {
		return Code{}, err
	}

	if c.Role == RoleParent {
		if c.BoundStudentID == "" {
			return Code{}, ErrUnboundChild
		}
		if _, err = svc.students.GetActiveMapping(ctx, c.BoundStudentID); err != nil {
			return Code{}, ErrUnboundChild
		}
	}

	now := nowFunc().UTC()
	used, err := svc.repo.MarkUsed(ctx, c.Code, usedBy, now)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			// lost the race; re-read the now-settled record to classify
			if c, gerr := svc.repo.GetCode(ctx, c.Code); gerr == nil {
				if cerr := svc.classify(ctx, c, now); cerr != nil {
					return Code{}, cerr
				}
			}
			return Code{}, ErrAlreadyUsed
		}
		return Code{}, err
	}
	return used, nil
}

// Revoke transitions an ACTIVE code to REVOKED, storing the reason for
// audit. Terminal codes fail with their settled kind.
func (svc *Service) Revoke(ctx context.Context, code, reason string) (Code, error) {
	code = core.CleanCode(code)
	now := nowFunc().UTC()

	revoked, err := svc.repo.MarkRevoked(ctx, code, reason, now)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			if c, gerr := svc.repo.GetCode(ctx, code); gerr == nil {
				if cerr := svc.classify(ctx, c, now); cerr != nil {
					return Code{}, cerr
				}
			}
			return Code{}, ErrConflict
		}
		return Code{}, err
	}

	svc.log.Warn("access code revoked", map[string]interface{}{
		"event_id": uuid.New().String(),
		"code":     revoked.Code,
		"role":     string(revoked.Role),
		"reason":   reason,
	})
	return revoked, nil
}

// SweepExpired expires every ACTIVE code past its validity window. It is
// idempotent and safe to run concurrently with Validate/Consume. On partial
// store failure the count of swept records is returned alongside the error.
func (svc *Service) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	count, err := svc.repo.SweepExpired(ctx, now.UTC())
	if count > 0 {
		svc.log.Info(fmt.Sprintf("expired %d access code(s)", count))
	}
	return count, err
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter) ([]Code, error) {
	return svc.repo.FilterCodes(ctx, filter)
}

// classify maps a code's settled state at time now to its error kind;
// nil means the code is consumable. Lazily expires ACTIVE codes whose
// window has passed.
func (svc *Service) classify(ctx context.Context, c Code, now time.Time) error {
	switch c.Status {
	case StatusUsed:
		return ErrAlreadyUsed
	case StatusRevoked:
		return ErrRevoked
	case StatusExpired:
		return ErrExpired
	}
	if c.ExpiredAt(now) {
		// best effort: a concurrent transition just yields the same answer
		if _, err := svc.repo.MarkExpired(ctx, c.Code, now); err != nil && !errors.Is(err, ErrConflict) {
			svc.log.Error("lazy expiry failed", pkgerrors.Wrap(err, "marking code expired"))
		}
		return ErrExpired
	}
	return nil
}

func (svc *Service) emailParentCode(mapping student.ParentChildMapping, c Code) {
	if svc.mailSvc == nil {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: mapping.ParentEmail}},
		Subject:      "Your parent access code",
		TemplateName: "access_code",
		TemplateData: map[string]interface{}{
			"Code":       c.Code,
			"ChildID":    c.BoundStudentID,
			"ValidUntil": c.ValidUntil.Format("Jan 2, 2006"),
		},
	})
}
