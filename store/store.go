// Package store provides the data access layer for pricewatch.
//
// All tables live in one SQLite database opened through dbopen. Price
// observations, attempt logs and metric samples are append-only; catalog
// entities (products, retailers, mappings) are soft-deactivated via their
// active flag, never hard-deleted while observations reference them.
package store

import (
	"context"
	"database/sql"
	"os"

	"github.com/quellen/pricewatch/idgen"
)

// Store wraps the pricewatch database.
type Store struct {
	DB *sql.DB

	// path of the database file, "" for in-memory. Used for size introspection.
	path  string
	newID idgen.Generator
}

// New creates a Store from an already-opened database connection.
func New(db *sql.DB) *Store {
	return &Store{DB: db, newID: idgen.Default}
}

// NewWithPath creates a Store that knows its backing file for Stats sizing.
func NewWithPath(db *sql.DB, path string) *Store {
	s := New(db)
	s.path = path
	return s
}

// Ping reports storage reachability.
func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// fileSize returns the size of the backing database file, 0 when in-memory
// or unknown.
func (s *Store) fileSize() int64 {
	if s.path == "" {
		return 0
	}
	fi, err := os.Stat(s.path)
	if err != nil {
		return 0
	}
	return fi.Size()
}
