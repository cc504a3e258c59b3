// Package inmemdb implements the repositories in memory, for tests and local demos.
package inmemdb

import (
	"sync"

	"github.com/parlemonde/clap-sub002/core/project"
)

type projectTable struct {
	mutex  sync.RWMutex
	pk     int
	table  map[int]*project.Project
	delete map[int]bool // soft-deleted rows
}

type DB struct {
	project *projectTable
}

func NewDB() *DB {
	return &DB{
		project: &projectTable{
			table:  make(map[int]*project.Project),
			delete: make(map[int]bool),
		},
	}
}
