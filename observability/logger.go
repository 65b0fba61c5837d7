// Package observability records engine pipeline outcomes for audit and ops.
//
// The clinical engine drops input on purpose (duplicates, low-confidence
// candidates); those silences must still be visible somewhere. Outcome rows
// are that somewhere.
package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/praxis/idgen"
)

// Pipeline outcomes recorded per processed event.
const (
	OutcomeAccepted  = "accepted"
	OutcomeGated     = "gated"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
)

// Outcome describes what the engine did with one inbound event.
type Outcome struct {
	TenantID   string
	PatientID  string
	EventType  string
	Outcome    string   // accepted | gated | duplicate | rejected
	Detail     string   // optional human-readable context
	Confidence *float64 // system confidence of the candidate, when computed
}

// OutcomeLogger writes engine outcomes and manages retention cleanup.
type OutcomeLogger struct {
	db    *sql.DB
	newID idgen.Generator
}

// OutcomeLoggerOption configures an OutcomeLogger.
type OutcomeLoggerOption func(*OutcomeLogger)

// WithIDGenerator sets a custom ID generator for outcome IDs.
func WithIDGenerator(gen idgen.Generator) OutcomeLoggerOption {
	return func(l *OutcomeLogger) { l.newID = gen }
}

// NewOutcomeLogger creates a logger backed by the given observability database.
func NewOutcomeLogger(db *sql.DB, opts ...OutcomeLoggerOption) *OutcomeLogger {
	l := &OutcomeLogger{
		db:    db,
		newID: idgen.Prefixed("out_", idgen.Default),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Log records an engine outcome. Non-blocking: errors are logged via slog
// but do not propagate, so a failing observability store never blocks the
// clinical pipeline.
func (l *OutcomeLogger) Log(ctx context.Context, o Outcome) {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO engine_outcome_logs (
			outcome_id, tenant_id, patient_id, event_type, outcome, detail, confidence, created_at
		) VALUES (?,?,?,?,?,?,?,?)`,
		l.newID(), o.TenantID, o.PatientID, o.EventType, o.Outcome, o.Detail, o.Confidence,
		time.Now().UnixMilli())
	if err != nil {
		slog.Error("observability outcome log failed", "error", err, "outcome", o.Outcome)
	}
}

// RetentionConfig specifies retention in days. Zero means no cleanup.
type RetentionConfig struct {
	OutcomeLogsDays int
	RunVacuumAfter  bool
}

// Cleanup deletes records exceeding the retention threshold.
func Cleanup(ctx context.Context, db *sql.DB, cfg RetentionConfig) error {
	if cfg.OutcomeLogsDays > 0 {
		cutoff := time.Now().UnixMilli() - int64(cfg.OutcomeLogsDays)*86400_000
		if _, err := db.ExecContext(ctx,
			`DELETE FROM engine_outcome_logs WHERE created_at < ?`, cutoff); err != nil {
			return fmt.Errorf("cleanup engine_outcome_logs: %w", err)
		}
	}
	if cfg.RunVacuumAfter {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			return fmt.Errorf("vacuum: %w", err)
		}
	}
	return nil
}
