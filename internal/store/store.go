// Package store provides PostgreSQL persistence for sessions, run
// scopes, and the knowledge-object graph.
package store

import "database/sql"

// Store provides access to the PostgreSQL database.
type Store struct {
	db *sql.DB
}

// New creates a Store backed by the given database connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}
