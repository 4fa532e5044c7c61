// Package inmemdb is an in-process store: plain maps guarded by per-table
// locks. Every conditional transition takes the table's write lock, which
// gives the engine the atomic claim/consume guarantees it needs without a
// database. It backs tests and single-node deployments.
package inmemdb

import (
	"sync"

	"github.com/kmunyaka/shule/core/access"
	"github.com/kmunyaka/shule/core/identifier"
	"github.com/kmunyaka/shule/core/student"
)

type (
	configTable struct {
		mutex sync.RWMutex
		table map[string]*identifier.Config // keyed by idType
	}

	codeTable struct {
		mutex sync.RWMutex
		table map[string]*access.Code // keyed by code
	}

	studentTable struct {
		mutex    sync.RWMutex
		students map[string]*student.Student // keyed by student ID
		mappings []*student.ParentChildMapping
	}

	DB struct {
		configs  *configTable
		codes    *codeTable
		students *studentTable
	}
)

func NewDB() *DB {
	return &DB{
		configs:  &configTable{table: make(map[string]*identifier.Config)},
		codes:    &codeTable{table: make(map[string]*access.Code)},
		students: &studentTable{students: make(map[string]*student.Student)},
	}
}
