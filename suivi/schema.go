package suivi

import (
	"database/sql"

	"github.com/hazyhaar/praxis/suivi/internal/store"
)

// Schema is the per-tenant shard DDL: snapshots and suggestions tables.
// Exposed so the tenant pool can provision shards on first open.
const Schema = store.Schema

// ApplySchema creates the shard tables. Idempotent.
func ApplySchema(db *sql.DB) error {
	return store.ApplySchema(db)
}
