package store

import "database/sql"

// Schema is the clinical state schema applied to each tenant shard.
//
// snapshots.fingerprint is UNIQUE so that a duplicated event delivery can
// never create a second row, even when two deliveries race past the lookup.
// (patient_id, seq) is UNIQUE so that "latest" is an explicit monotonic
// sequence, not a timestamp that can tie at sub-millisecond write rates.
const Schema = `
-- Clinical state snapshots: one append-only row per accepted event
CREATE TABLE IF NOT EXISTS snapshots (
    id                      TEXT PRIMARY KEY,
    tenant_id               TEXT NOT NULL,
    patient_id              TEXT NOT NULL,
    seq                     INTEGER NOT NULL,
    engine_version          TEXT NOT NULL,
    phase                   TEXT NOT NULL DEFAULT '',
    activation              REAL,
    activation_conf         REAL,
    emotional_load          REAL,
    emotional_load_conf     REAL,
    task_adherence          REAL,
    task_adherence_conf     REAL,
    cognitive_rigidity      REAL,
    cognitive_rigidity_conf REAL,
    system_confidence       REAL NOT NULL,
    flex_trend              TEXT NOT NULL DEFAULT 'flat',
    trend_streak            INTEGER NOT NULL DEFAULT 1,
    recovery_time           INTEGER,
    phase_cycles            INTEGER NOT NULL DEFAULT 1,
    crisis_flag             INTEGER NOT NULL DEFAULT 0,
    event_type              TEXT NOT NULL,
    fingerprint             TEXT NOT NULL UNIQUE,
    created_at              INTEGER NOT NULL,
    UNIQUE (patient_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_snapshots_patient ON snapshots(patient_id, seq DESC);

-- Suggestions: at most one per snapshot that triggered a rule
CREATE TABLE IF NOT EXISTS suggestions (
    id              TEXT PRIMARY KEY,
    tenant_id       TEXT NOT NULL,
    patient_id      TEXT NOT NULL,
    snapshot_id     TEXT NOT NULL REFERENCES snapshots(id),
    suggestion_type TEXT NOT NULL,
    title           TEXT NOT NULL,
    reasons         TEXT NOT NULL DEFAULT '[]',
    confidence      REAL NOT NULL,
    context_json    TEXT NOT NULL DEFAULT '{}',
    engine_version  TEXT NOT NULL,
    created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_suggestions_patient ON suggestions(patient_id, created_at DESC);
`

// ApplySchema applies the suivi schema to a shard database.
// Exported for use by tenantpool factories and migration scripts.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
