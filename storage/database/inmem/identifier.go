package inmemdb

import (
	"context"
	"time"

	"github.com/kmunyaka/shule/core/identifier"
)

type identifierRepository struct {
	db *configTable
}

func NewIdentifierRepository(db *DB) identifier.Repository {
	return &identifierRepository{db: db.configs}
}

func (repo *identifierRepository) CreateConfig(_ context.Context, cfg identifier.Config) (identifier.Config, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[cfg.IDType]; ok {
		return identifier.Config{}, identifier.ErrExists
	}
	repo.db.table[cfg.IDType] = &cfg
	return cfg, nil
}

func (repo *identifierRepository) GetConfig(_ context.Context, idType string) (identifier.Config, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if cfg, ok := repo.db.table[idType]; ok {
		return *cfg, nil
	}
	return identifier.Config{}, identifier.ErrNotFound
}

func (repo *identifierRepository) QueryAllConfigs(_ context.Context) ([]identifier.Config, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	cfgs := make([]identifier.Config, 0, len(repo.db.table))
	for _, cfg := range repo.db.table {
		cfgs = append(cfgs, *cfg)
	}
	return cfgs, nil
}

func (repo *identifierRepository) UpdateConfig(_ context.Context, cfg identifier.Config) (identifier.Config, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.table[cfg.IDType]
	if !ok {
		return identifier.Config{}, identifier.ErrNotFound
	}
	orig.Format = cfg.Format
	orig.Active = cfg.Active
	orig.UpdatedAt = cfg.UpdatedAt
	return *orig, nil
}

func (repo *identifierRepository) ClaimNextCounter(_ context.Context, idType string) (identifier.Config, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	cfg, ok := repo.db.table[idType]
	if !ok {
		return identifier.Config{}, identifier.ErrNotFound
	}
	if !cfg.Active {
		return identifier.Config{}, identifier.ErrInactive
	}
	cfg.CurrentCounter++
	cfg.UpdatedAt = time.Now().UTC()
	return *cfg, nil
}

func (repo *identifierRepository) ResetCounter(_ context.Context, idType string, value int) (identifier.Config, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	cfg, ok := repo.db.table[idType]
	if !ok {
		return identifier.Config{}, identifier.ErrNotFound
	}
	cfg.CurrentCounter = value
	cfg.UpdatedAt = time.Now().UTC()
	return *cfg, nil
}
