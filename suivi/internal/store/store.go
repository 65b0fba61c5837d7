// Package store provides the data access layer for suivi shards.
//
// suivi receives a *sql.DB from the tenantpool; each Store instance is bound
// to one tenant shard. Both tables it owns are append-only: rows are inserted
// exactly once and never updated or deleted, so the full clinical timeline
// stays reconstructible for audit.
package store

import "database/sql"

// Store wraps a tenant shard database for clinical state operations.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened shard connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}
