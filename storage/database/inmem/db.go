// Package inmemdb is a mutex-guarded in-memory store implementing the repositories; used as a test double.
package inmemdb

import (
	"sync"

	"github.com/trezcool/academia/core/application"
)

type (
	DB struct {
		application *applicationTable
	}

	applicationTable struct {
		mutex sync.RWMutex
		table map[string]*application.Application
		keys  map[string]string // submission key -> ID
	}
)

func Open() *DB {
	return &DB{
		application: &applicationTable{
			table: make(map[string]*application.Application),
			keys:  make(map[string]string),
		},
	}
}
