package student

import (
	"context"
	"errors"
	"time"

	"github.com/kmunyaka/shule/core"
)

var (
	// errors
	ErrNotFound        = errors.New("student not found")
	ErrMappingNotFound = errors.New("parent-child mapping not found")
	ErrExists          = errors.New("a student with this id already exists")
	ErrMappingExists   = errors.New("an active mapping for this child and parent already exists")
)

type (
	Repository interface {
		CreateStudent(ctx context.Context, std Student) (Student, error)
		GetStudent(ctx context.Context, id string) (Student, error)
		QueryAllStudents(ctx context.Context) ([]Student, error)
		CreateMapping(ctx context.Context, m ParentChildMapping) (ParentChildMapping, error)
		// GetActiveMapping returns an active mapping for the child, or
		// ErrMappingNotFound.
		GetActiveMapping(ctx context.Context, childID string) (ParentChildMapping, error)
		// QueryActiveMappings returns every active mapping for the child;
		// an empty result is not an error.
		QueryActiveMappings(ctx context.Context, childID string) ([]ParentChildMapping, error)
		DeactivateMapping(ctx context.Context, childID, parentEmail string) error
	}

	Service struct {
		repo Repository
		log  core.Logger
	}
)

func NewService(repo Repository, logger core.Logger) *Service {
	return &Service{repo: repo, log: logger}
}

func (svc *Service) Create(ctx context.Context, ns NewStudent) (Student, error) {
	std := Student{
		ID:        ns.ID,
		Name:      ns.Name,
		Email:     ns.Email,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	return svc.repo.CreateStudent(ctx, std)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudent(ctx, core.CleanCode(id))
}

func (svc *Service) QueryAll(ctx context.Context) ([]Student, error) {
	return svc.repo.QueryAllStudents(ctx)
}

func (svc *Service) CreateMapping(ctx context.Context, nm NewMapping) (ParentChildMapping, error) {
	if _, err := svc.repo.GetStudent(ctx, nm.ChildID); err != nil {
		return ParentChildMapping{}, err
	}
	m := ParentChildMapping{
		ChildID:     nm.ChildID,
		ParentEmail: nm.ParentEmail,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}
	return svc.repo.CreateMapping(ctx, m)
}

func (svc *Service) GetActiveMapping(ctx context.Context, childID string) (ParentChildMapping, error) {
	return svc.repo.GetActiveMapping(ctx, core.CleanCode(childID))
}

func (svc *Service) QueryActiveMappings(ctx context.Context, childID string) ([]ParentChildMapping, error) {
	return svc.repo.QueryActiveMappings(ctx, core.CleanCode(childID))
}

// DeactivateMapping turns a mapping off; the record is kept for audit.
func (svc *Service) DeactivateMapping(ctx context.Context, childID, parentEmail string) error {
	return svc.repo.DeactivateMapping(ctx, core.CleanCode(childID), core.CleanString(parentEmail, true))
}
