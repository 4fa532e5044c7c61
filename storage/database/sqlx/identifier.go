// Package sqlxrepos implements the engine repositories on Postgres.
// Every conditional transition is a single guarded UPDATE: the database
// serializes concurrent claims and consumptions, never a read-then-write.
package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/kmunyaka/shule/core/identifier"
)

// unique_violation
const pqUniqueViolation = "23505"

type identifierRepository struct {
	db *sqlx.DB
}

func NewIdentifierRepository(db *sqlx.DB) identifier.Repository {
	return &identifierRepository{db: db}
}

type configRow struct {
	IDType         string    `db:"id_type"`
	Format         string    `db:"format"`
	CurrentCounter int       `db:"current_counter"`
	Active         bool      `db:"active"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (r configRow) config() identifier.Config {
	return identifier.Config{
		IDType:         r.IDType,
		Format:         r.Format,
		CurrentCounter: r.CurrentCounter,
		Active:         r.Active,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func isUniqueViolation(err error) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return ok && pqErr.Code == pqUniqueViolation
}

func (repo *identifierRepository) CreateConfig(ctx context.Context, cfg identifier.Config) (identifier.Config, error) {
	const q = `
		INSERT INTO identifier_config (id_type, format, current_counter, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := repo.db.ExecContext(ctx, q, cfg.IDType, cfg.Format, cfg.CurrentCounter, cfg.Active, cfg.CreatedAt, cfg.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return identifier.Config{}, identifier.ErrExists
		}
		return identifier.Config{}, errors.Wrap(err, "inserting identifier config")
	}
	return cfg, nil
}

func (repo *identifierRepository) GetConfig(ctx context.Context, idType string) (identifier.Config, error) {
	var row configRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM identifier_config WHERE id_type = $1`, idType)
	if err != nil {
		if err == sql.ErrNoRows {
			return identifier.Config{}, identifier.ErrNotFound
		}
		return identifier.Config{}, errors.Wrap(err, "getting identifier config")
	}
	return row.config(), nil
}

func (repo *identifierRepository) QueryAllConfigs(ctx context.Context) ([]identifier.Config, error) {
	var rows []configRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM identifier_config ORDER BY id_type`); err != nil {
		return nil, errors.Wrap(err, "querying identifier configs")
	}
	cfgs := make([]identifier.Config, 0, len(rows))
	for _, row := range rows {
		cfgs = append(cfgs, row.config())
	}
	return cfgs, nil
}

func (repo *identifierRepository) UpdateConfig(ctx context.Context, cfg identifier.Config) (identifier.Config, error) {
	const q = `
		UPDATE identifier_config
		SET format = $2, active = $3, updated_at = $4
		WHERE id_type = $1
		RETURNING *`
	var row configRow
	err := repo.db.GetContext(ctx, &row, q, cfg.IDType, cfg.Format, cfg.Active, cfg.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return identifier.Config{}, identifier.ErrNotFound
		}
		return identifier.Config{}, errors.Wrap(err, "updating identifier config")
	}
	return row.config(), nil
}

func (repo *identifierRepository) ClaimNextCounter(ctx context.Context, idType string) (identifier.Config, error) {
	const q = `
		UPDATE identifier_config
		SET current_counter = current_counter + 1, updated_at = now()
		WHERE id_type = $1 AND active
		RETURNING *`
	var row configRow
	err := repo.db.GetContext(ctx, &row, q, idType)
	if err == nil {
		return row.config(), nil
	}
	if err != sql.ErrNoRows {
		return identifier.Config{}, errors.Wrap(err, "claiming next counter")
	}

	// guard failed: missing or inactive?
	if _, gerr := repo.GetConfig(ctx, idType); gerr != nil {
		return identifier.Config{}, gerr
	}
	return identifier.Config{}, identifier.ErrInactive
}

func (repo *identifierRepository) ResetCounter(ctx context.Context, idType string, value int) (identifier.Config, error) {
	const q = `
		UPDATE identifier_config
		SET current_counter = $2, updated_at = now()
		WHERE id_type = $1
		RETURNING *`
	var row configRow
	err := repo.db.GetContext(ctx, &row, q, idType, value)
	if err != nil {
		if err == sql.ErrNoRows {
			return identifier.Config{}, identifier.ErrNotFound
		}
		return identifier.Config{}, errors.Wrap(err, "resetting counter")
	}
	return row.config(), nil
}
