package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/kmunyaka/shule/core/access"
)

type accessRepository struct {
	db *sqlx.DB
}

func NewAccessRepository(db *sqlx.DB) access.Repository {
	return &accessRepository{db: db}
}

type codeRow struct {
	Code           string     `db:"code"`
	Role           string     `db:"role"`
	Status         string     `db:"status"`
	IssuedAt       time.Time  `db:"issued_at"`
	ValidUntil     time.Time  `db:"valid_until"`
	UsedAt         *time.Time `db:"used_at"`
	UsedBy         string     `db:"used_by"`
	BoundStudentID string     `db:"bound_student_id"`
	RevokeReason   string     `db:"revoke_reason"`
}

func (r codeRow) code() access.Code {
	return access.Code{
		Code:           r.Code,
		Role:           access.Role(r.Role),
		Status:         access.Status(r.Status),
		IssuedAt:       r.IssuedAt,
		ValidUntil:     r.ValidUntil,
		UsedAt:         r.UsedAt,
		UsedBy:         r.UsedBy,
		BoundStudentID: r.BoundStudentID,
		RevokeReason:   r.RevokeReason,
	}
}

func (repo *accessRepository) CreateCode(ctx context.Context, c access.Code) (access.Code, error) {
	const q = `
		INSERT INTO access_code (code, role, status, issued_at, valid_until, used_by, bound_student_id, revoke_reason)
		VALUES ($1, $2, $3, $4, $5, '', $6, '')`
	_, err := repo.db.ExecContext(ctx, q, c.Code, c.Role, c.Status, c.IssuedAt, c.ValidUntil, c.BoundStudentID)
	if err != nil {
		if isUniqueViolation(err) {
			return access.Code{}, access.ErrExists
		}
		return access.Code{}, errors.Wrap(err, "inserting access code")
	}
	return c, nil
}

func (repo *accessRepository) GetCode(ctx context.Context, code string) (access.Code, error) {
	var row codeRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM access_code WHERE code = $1`, code)
	if err != nil {
		if err == sql.ErrNoRows {
			return access.Code{}, access.ErrNotFound
		}
		return access.Code{}, errors.Wrap(err, "getting access code")
	}
	return row.code(), nil
}

func (repo *accessRepository) FilterCodes(ctx context.Context, filter access.QueryFilter) ([]access.Code, error) {
	q := `SELECT * FROM access_code WHERE true`
	var args []interface{}
	if filter.Role != "" {
		args = append(args, string(filter.Role))
		q += ` AND role = $` + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		q += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filter.BoundStudentID != "" {
		args = append(args, filter.BoundStudentID)
		q += ` AND bound_student_id = $` + strconv.Itoa(len(args))
	}
	q += ` ORDER BY issued_at DESC`

	var rows []codeRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying access codes")
	}
	codes := make([]access.Code, 0, len(rows))
	for _, row := range rows {
		codes = append(codes, row.code())
	}
	return codes, nil
}

// MarkUsed is the at-most-once transition: the WHERE clause is the guard
// and the row lock makes exactly one concurrent caller win.
func (repo *accessRepository) MarkUsed(ctx context.Context, code, usedBy string, at time.Time) (access.Code, error) {
	const q = `
		UPDATE access_code
		SET status = 'USED', used_at = $2, used_by = $3
		WHERE code = $1 AND status = 'ACTIVE' AND valid_until >= $2
		RETURNING *`
	var row codeRow
	err := repo.db.GetContext(ctx, &row, q, code, at, usedBy)
	if err == nil {
		return row.code(), nil
	}
	if err != sql.ErrNoRows {
		return access.Code{}, errors.Wrap(err, "marking code used")
	}
	return access.Code{}, repo.guardFailure(ctx, code)
}

func (repo *accessRepository) MarkExpired(ctx context.Context, code string, _ time.Time) (access.Code, error) {
	const q = `
		UPDATE access_code
		SET status = 'EXPIRED'
		WHERE code = $1 AND status = 'ACTIVE'
		RETURNING *`
	var row codeRow
	err := repo.db.GetContext(ctx, &row, q, code)
	if err == nil {
		return row.code(), nil
	}
	if err != sql.ErrNoRows {
		return access.Code{}, errors.Wrap(err, "marking code expired")
	}
	return access.Code{}, repo.guardFailure(ctx, code)
}

func (repo *accessRepository) MarkRevoked(ctx context.Context, code, reason string, _ time.Time) (access.Code, error) {
	const q = `
		UPDATE access_code
		SET status = 'REVOKED', revoke_reason = $2
		WHERE code = $1 AND status = 'ACTIVE'
		RETURNING *`
	var row codeRow
	err := repo.db.GetContext(ctx, &row, q, code, reason)
	if err == nil {
		return row.code(), nil
	}
	if err != sql.ErrNoRows {
		return access.Code{}, errors.Wrap(err, "marking code revoked")
	}
	return access.Code{}, repo.guardFailure(ctx, code)
}

func (repo *accessRepository) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	const q = `
		UPDATE access_code
		SET status = 'EXPIRED'
		WHERE status = 'ACTIVE' AND valid_until < $1`
	res, err := repo.db.ExecContext(ctx, q, now)
	if err != nil {
		return 0, errors.Wrap(err, "sweeping expired codes")
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "counting swept codes")
	}
	return int(count), nil
}

// guardFailure tells a missing row apart from a failed conditional guard.
func (repo *accessRepository) guardFailure(ctx context.Context, code string) error {
	if _, err := repo.GetCode(ctx, code); err != nil {
		return err
	}
	return access.ErrConflict
}
