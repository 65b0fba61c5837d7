package observability

import "database/sql"

// Schema holds the observability tables. They live in their own database so a
// full disk or lock on the observability store never blocks clinical writes.
const Schema = `
CREATE TABLE IF NOT EXISTS engine_outcome_logs (
    outcome_id  TEXT PRIMARY KEY,
    tenant_id   TEXT NOT NULL,
    patient_id  TEXT NOT NULL,
    event_type  TEXT NOT NULL,
    outcome     TEXT NOT NULL,
    detail      TEXT NOT NULL DEFAULT '',
    confidence  REAL,
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outcome_tenant ON engine_outcome_logs(tenant_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_outcome_kind ON engine_outcome_logs(outcome, created_at DESC);
`

// ApplySchema creates the observability tables.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
