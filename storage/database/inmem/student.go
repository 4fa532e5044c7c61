package inmemdb

import (
	"context"

	"github.com/kmunyaka/shule/core/student"
)

type studentRepository struct {
	db *studentTable
}

func NewStudentRepository(db *DB) student.Repository {
	return &studentRepository{db: db.students}
}

func (repo *studentRepository) CreateStudent(_ context.Context, std student.Student) (student.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.students[std.ID]; ok {
		return student.Student{}, student.ErrExists
	}
	repo.db.students[std.ID] = &std
	return std, nil
}

func (repo *studentRepository) GetStudent(_ context.Context, id string) (student.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if std, ok := repo.db.students[id]; ok {
		return *std, nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) QueryAllStudents(_ context.Context) ([]student.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	students := make([]student.Student, 0, len(repo.db.students))
	for _, std := range repo.db.students {
		students = append(students, *std)
	}
	return students, nil
}

func (repo *studentRepository) CreateMapping(_ context.Context, m student.ParentChildMapping) (student.ParentChildMapping, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, existing := range repo.db.mappings {
		if existing.Active && existing.ChildID == m.ChildID && existing.ParentEmail == m.ParentEmail {
			return student.ParentChildMapping{}, student.ErrMappingExists
		}
	}
	repo.db.mappings = append(repo.db.mappings, &m)
	return m, nil
}

func (repo *studentRepository) GetActiveMapping(_ context.Context, childID string) (student.ParentChildMapping, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, m := range repo.db.mappings {
		if m.Active && m.ChildID == childID {
			return *m, nil
		}
	}
	return student.ParentChildMapping{}, student.ErrMappingNotFound
}

func (repo *studentRepository) QueryActiveMappings(_ context.Context, childID string) ([]student.ParentChildMapping, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	mappings := make([]student.ParentChildMapping, 0)
	for _, m := range repo.db.mappings {
		if m.Active && m.ChildID == childID {
			mappings = append(mappings, *m)
		}
	}
	return mappings, nil
}

func (repo *studentRepository) DeactivateMapping(_ context.Context, childID, parentEmail string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var found bool
	for _, m := range repo.db.mappings {
		if m.Active && m.ChildID == childID && (parentEmail == "" || m.ParentEmail == parentEmail) {
			m.Active = false
			found = true
		}
	}
	if !found {
		return student.ErrMappingNotFound
	}
	return nil
}
