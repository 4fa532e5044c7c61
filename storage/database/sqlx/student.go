package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/kmunyaka/shule/core/student"
)

type studentRepository struct {
	db *sqlx.DB
}

func NewStudentRepository(db *sqlx.DB) student.Repository {
	return &studentRepository{db: db}
}

type studentRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
}

func (r studentRow) student() student.Student {
	return student.Student{ID: r.ID, Name: r.Name, Email: r.Email, Active: r.Active, CreatedAt: r.CreatedAt}
}

type mappingRow struct {
	ID          int       `db:"id"`
	ChildID     string    `db:"child_id"`
	ParentEmail string    `db:"parent_email"`
	Active      bool      `db:"active"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r mappingRow) mapping() student.ParentChildMapping {
	return student.ParentChildMapping{ChildID: r.ChildID, ParentEmail: r.ParentEmail, Active: r.Active, CreatedAt: r.CreatedAt}
}

func (repo *studentRepository) CreateStudent(ctx context.Context, std student.Student) (student.Student, error) {
	const q = `INSERT INTO student (id, name, email, active, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := repo.db.ExecContext(ctx, q, std.ID, std.Name, std.Email, std.Active, std.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return student.Student{}, student.ErrExists
		}
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return std, nil
}

func (repo *studentRepository) GetStudent(ctx context.Context, id string) (student.Student, error) {
	var row studentRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM student WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return student.Student{}, student.ErrNotFound
		}
		return student.Student{}, errors.Wrap(err, "getting student")
	}
	return row.student(), nil
}

func (repo *studentRepository) QueryAllStudents(ctx context.Context) ([]student.Student, error) {
	var rows []studentRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM student ORDER BY id`); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	students := make([]student.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, row.student())
	}
	return students, nil
}

func (repo *studentRepository) CreateMapping(ctx context.Context, m student.ParentChildMapping) (student.ParentChildMapping, error) {
	// the partial unique index on (child_id, parent_email) WHERE active
	// makes the insert itself the duplicate guard
	const q = `INSERT INTO parent_child_mapping (child_id, parent_email, active, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := repo.db.ExecContext(ctx, q, m.ChildID, m.ParentEmail, m.Active, m.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return student.ParentChildMapping{}, student.ErrMappingExists
		}
		return student.ParentChildMapping{}, errors.Wrap(err, "inserting mapping")
	}
	return m, nil
}

func (repo *studentRepository) GetActiveMapping(ctx context.Context, childID string) (student.ParentChildMapping, error) {
	const q = `
		SELECT * FROM parent_child_mapping
		WHERE child_id = $1 AND active
		ORDER BY created_at
		LIMIT 1`
	var row mappingRow
	err := repo.db.GetContext(ctx, &row, q, childID)
	if err != nil {
		if err == sql.ErrNoRows {
			return student.ParentChildMapping{}, student.ErrMappingNotFound
		}
		return student.ParentChildMapping{}, errors.Wrap(err, "getting mapping")
	}
	return row.mapping(), nil
}

func (repo *studentRepository) QueryActiveMappings(ctx context.Context, childID string) ([]student.ParentChildMapping, error) {
	const q = `
		SELECT * FROM parent_child_mapping
		WHERE child_id = $1 AND active
		ORDER BY created_at`
	var rows []mappingRow
	if err := repo.db.SelectContext(ctx, &rows, q, childID); err != nil {
		return nil, errors.Wrap(err, "querying mappings")
	}
	mappings := make([]student.ParentChildMapping, 0, len(rows))
	for _, row := range rows {
		mappings = append(mappings, row.mapping())
	}
	return mappings, nil
}

func (repo *studentRepository) DeactivateMapping(ctx context.Context, childID, parentEmail string) error {
	q := `UPDATE parent_child_mapping SET active = false WHERE child_id = $1 AND active`
	args := []interface{}{childID}
	if parentEmail != "" {
		q += ` AND parent_email = $2`
		args = append(args, parentEmail)
	}
	res, err := repo.db.ExecContext(ctx, q, args...)
	if err != nil {
		return errors.Wrap(err, "deactivating mapping")
	}
	count, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting deactivated mappings")
	}
	if count == 0 {
		return student.ErrMappingNotFound
	}
	return nil
}
