package identifier

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kmunyaka/shule/core"
)

var (
	// errors
	ErrNotFound = errors.New("identifier configuration not found")
	ErrInactive = errors.New("identifier configuration is inactive")
	ErrExists   = errors.New("an identifier configuration with this type already exists")
)

type (
	Repository interface {
		CreateConfig(ctx context.Context, cfg Config) (Config, error)
		GetConfig(ctx context.Context, idType string) (Config, error)
		QueryAllConfigs(ctx context.Context) ([]Config, error)
		UpdateConfig(ctx context.Context, cfg Config) (Config, error)
		// ClaimNextCounter atomically checks that the configuration is
		// active, increments its counter by exactly one and persists it.
		// Two concurrent claims never observe the same counter value.
		ClaimNextCounter(ctx context.Context, idType string) (Config, error)
		// ResetCounter sets the counter to value regardless of its current
		// state, atomically with respect to concurrent claims.
		ResetCounter(ctx context.Context, idType string, value int) (Config, error)
	}

	Service struct {
		repo Repository
		log  core.Logger
	}
)

func NewService(repo Repository, logger core.Logger) *Service {
	return &Service{repo: repo, log: logger}
}

// Create saves a new configuration. The format is validated first and an
// invalid configuration is never saved.
func (svc *Service) Create(ctx context.Context, nc NewConfig) (Config, error) {
	if err := ValidateFormat(nc.Format); err != nil {
		return Config{}, err
	}
	now := time.Now().UTC()
	cfg := Config{
		IDType:    nc.IDType,
		Format:    nc.Format,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateConfig(ctx, cfg)
}

// Update modifies format and/or active flag. An invalid format is rejected
// before anything is written.
func (svc *Service) Update(ctx context.Context, idType string, uc UpdateConfig) (Config, error) {
	cfg, err := svc.repo.GetConfig(ctx, idType)
	if err != nil {
		return Config{}, err
	}
	if uc.Format != "" {
		if err = ValidateFormat(uc.Format); err != nil {
			return Config{}, err
		}
		cfg.Format = uc.Format
	}
	if uc.Active != nil {
		cfg.Active = *uc.Active
	}
	cfg.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateConfig(ctx, cfg)
}

func (svc *Service) GetByType(ctx context.Context, idType string) (Config, error) {
	return svc.repo.GetConfig(ctx, core.CleanCode(idType))
}

func (svc *Service) QueryAll(ctx context.Context) ([]Config, error) {
	return svc.repo.QueryAllConfigs(ctx)
}

// EnsureDefaults seeds the stock configurations; existing ones are left alone.
func (svc *Service) EnsureDefaults(ctx context.Context) error {
	now := time.Now().UTC()
	for _, cfg := range DefaultConfigs() {
		cfg.CreatedAt = now
		cfg.UpdatedAt = now
		if _, err := svc.repo.CreateConfig(ctx, cfg); err != nil && !errors.Is(err, ErrExists) {
			return err
		}
	}
	return nil
}

// Preview renders the template with the current counter without claiming
// it; it is a pure read and mutates nothing. Inactive configurations may
// still be previewed.
func (svc *Service) Preview(ctx context.Context, idType string, rctx Context) (string, error) {
	cfg, err := svc.repo.GetConfig(ctx, core.CleanCode(idType))
	if err != nil {
		return "", err
	}
	rctx.Counter = cfg.CurrentCounter
	return Render(cfg.Format, rctx), nil
}

// Generate claims the next counter value and renders the identifier with it.
// The claim and render form one atomic unit per idType: concurrent calls
// never emit the same counter value.
func (svc *Service) Generate(ctx context.Context, idType string, rctx Context) (string, error) {
	cfg, err := svc.repo.ClaimNextCounter(ctx, core.CleanCode(idType))
	if err != nil {
		return "", err
	}
	rctx.Counter = cfg.CurrentCounter
	return Render(cfg.Format, rctx), nil
}

// ResetCounter sets the counter to value. The operation is irreversible and
// collisions with identifiers issued under the old counter are an accepted
// administrative risk; it is audit-logged for that reason.
func (svc *Service) ResetCounter(ctx context.Context, idType string, value int) (Config, error) {
	if value < 0 {
		return Config{}, core.NewValidationError(nil, core.FieldError{Field: "value", Error: "must not be negative"})
	}
	idType = core.CleanCode(idType)

	var oldCounter int
	if old, err := svc.repo.GetConfig(ctx, idType); err == nil {
		oldCounter = old.CurrentCounter
	}

	cfg, err := svc.repo.ResetCounter(ctx, idType, value)
	if err != nil {
		return Config{}, err
	}
	svc.log.Warn("identifier counter reset", map[string]interface{}{
		"event_id":    uuid.New().String(),
		"id_type":     idType,
		"old_counter": oldCounter,
		"new_counter": cfg.CurrentCounter,
	})
	return cfg, nil
}
