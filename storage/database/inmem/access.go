package inmemdb

import (
	"context"
	"time"

	"github.com/kmunyaka/shule/core/access"
)

type accessRepository struct {
	db *codeTable
}

func NewAccessRepository(db *DB) access.Repository {
	return &accessRepository{db: db.codes}
}

func (repo *accessRepository) CreateCode(_ context.Context, c access.Code) (access.Code, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[c.Code]; ok {
		return access.Code{}, access.ErrExists
	}
	repo.db.table[c.Code] = &c
	return c, nil
}

func (repo *accessRepository) GetCode(_ context.Context, code string) (access.Code, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.table[code]; ok {
		return *c, nil
	}
	return access.Code{}, access.ErrNotFound
}

func (repo *accessRepository) FilterCodes(_ context.Context, filter access.QueryFilter) ([]access.Code, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	codes := make([]access.Code, 0, len(repo.db.table))
	for _, c := range repo.db.table {
		if filter.Role != "" && c.Role != filter.Role {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.BoundStudentID != "" && c.BoundStudentID != filter.BoundStudentID {
			continue
		}
		codes = append(codes, *c)
	}
	return codes, nil
}

// MarkUsed holds the write lock across the guard check and the write: the
// conditional transition is atomic, exactly one caller can win.
func (repo *accessRepository) MarkUsed(_ context.Context, code, usedBy string, at time.Time) (access.Code, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	c, ok := repo.db.table[code]
	if !ok {
		return access.Code{}, access.ErrNotFound
	}
	if c.Status != access.StatusActive || at.After(c.ValidUntil) {
		return access.Code{}, access.ErrConflict
	}
	usedAt := at
	c.Status = access.StatusUsed
	c.UsedAt = &usedAt
	c.UsedBy = usedBy
	return *c, nil
}

func (repo *accessRepository) MarkExpired(_ context.Context, code string, _ time.Time) (access.Code, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	c, ok := repo.db.table[code]
	if !ok {
		return access.Code{}, access.ErrNotFound
	}
	if c.Status != access.StatusActive {
		return access.Code{}, access.ErrConflict
	}
	c.Status = access.StatusExpired
	return *c, nil
}

func (repo *accessRepository) MarkRevoked(_ context.Context, code, reason string, _ time.Time) (access.Code, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	c, ok := repo.db.table[code]
	if !ok {
		return access.Code{}, access.ErrNotFound
	}
	if c.Status != access.StatusActive {
		return access.Code{}, access.ErrConflict
	}
	c.Status = access.StatusRevoked
	c.RevokeReason = reason
	return *c, nil
}

func (repo *accessRepository) SweepExpired(_ context.Context, now time.Time) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var count int
	for _, c := range repo.db.table {
		if c.Status == access.StatusActive && c.ValidUntil.Before(now) {
			c.Status = access.StatusExpired
			count++
		}
	}
	return count, nil
}
