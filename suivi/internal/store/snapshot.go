package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDuplicateFingerprint is returned when an insert hits the unique
// fingerprint index: the event is already reflected in history. Callers
// treat this as the idempotent no-op outcome, never as a failure.
var ErrDuplicateFingerprint = errors.New("store: snapshot with this fingerprint already exists")

const snapshotCols = `id, tenant_id, patient_id, seq, engine_version, phase,
	activation, activation_conf, emotional_load, emotional_load_conf,
	task_adherence, task_adherence_conf, cognitive_rigidity, cognitive_rigidity_conf,
	system_confidence, flex_trend, trend_streak, recovery_time, phase_cycles,
	crisis_flag, event_type, fingerprint, created_at`

// InsertSnapshot appends a snapshot row, assigning the next per-patient
// sequence number inside the transaction. Two writers racing on the same
// patient can compute the same seq; the (patient_id, seq) unique index makes
// the loser retry with a fresh read instead of silently interleaving.
// A fingerprint collision is mapped to ErrDuplicateFingerprint.
func (s *Store) InsertSnapshot(ctx context.Context, snap *Snapshot) error {
	if snap.CreatedAt == 0 {
		snap.CreatedAt = time.Now().UnixMilli()
	}
	if snap.FlexTrend == "" {
		snap.FlexTrend = TrendFlat
	}

	const maxAttempts = 3
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := s.insertSnapshotTx(ctx, snap)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrDuplicateFingerprint):
			return err
		case isUniqueViolation(err, "snapshots.patient_id"):
			lastErr = err // seq race, re-read and retry
		default:
			return err
		}
	}
	return fmt.Errorf("store: insert snapshot: seq contention persisted: %w", lastErr)
}

func (s *Store) insertSnapshotTx(ctx context.Context, snap *Snapshot) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM snapshots WHERE patient_id = ?`,
		snap.PatientID).Scan(&snap.Seq); err != nil {
		return fmt.Errorf("store: next seq: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots (`+snapshotCols+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		snap.ID, snap.TenantID, snap.PatientID, snap.Seq, snap.EngineVersion, snap.Phase,
		snap.Activation, snap.ActivationConf, snap.EmotionalLoad, snap.EmotionalLoadConf,
		snap.TaskAdherence, snap.TaskAdherenceConf, snap.CognitiveRigidity, snap.CognitiveRigidityConf,
		snap.SystemConfidence, snap.FlexTrend, snap.TrendStreak, snap.RecoveryTime, snap.PhaseCycles,
		boolToInt(snap.CrisisFlag), snap.EventType, snap.Fingerprint, snap.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "snapshots.fingerprint") {
			return ErrDuplicateFingerprint
		}
		return fmt.Errorf("store: insert snapshot: %w", err)
	}
	return tx.Commit()
}

// LatestSnapshot returns the patient's current state (highest seq), or nil
// if the patient has no history yet.
func (s *Store) LatestSnapshot(ctx context.Context, patientID string) (*Snapshot, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+snapshotCols+` FROM snapshots
		WHERE patient_id = ? ORDER BY seq DESC LIMIT 1`, patientID)
	return scanSnapshot(row)
}

// GetSnapshot retrieves a snapshot by ID.
func (s *Store) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+snapshotCols+` FROM snapshots WHERE id = ?`, id)
	return scanSnapshot(row)
}

// FindByFingerprint returns the snapshot already produced by an event with
// this fingerprint, or nil. Used as the dedup pre-check; the unique index is
// what actually closes the race.
func (s *Store) FindByFingerprint(ctx context.Context, fingerprint string) (*Snapshot, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+snapshotCols+` FROM snapshots WHERE fingerprint = ?`, fingerprint)
	return scanSnapshot(row)
}

// ListSnapshots returns a patient's history, newest first.
func (s *Store) ListSnapshots(ctx context.Context, patientID string, limit int) ([]*Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+snapshotCols+` FROM snapshots
		WHERE patient_id = ? ORDER BY seq DESC LIMIT ?`, patientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []*Snapshot
	for rows.Next() {
		snap, err := scanSnapshotRows(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// CountSnapshots returns the number of snapshots for a patient.
func (s *Store) CountSnapshots(ctx context.Context, patientID string) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM snapshots WHERE patient_id = ?`, patientID).Scan(&count)
	return count, err
}

func scanSnapshot(row *sql.Row) (*Snapshot, error) {
	var snap Snapshot
	var crisis int
	err := row.Scan(
		&snap.ID, &snap.TenantID, &snap.PatientID, &snap.Seq, &snap.EngineVersion, &snap.Phase,
		&snap.Activation, &snap.ActivationConf, &snap.EmotionalLoad, &snap.EmotionalLoadConf,
		&snap.TaskAdherence, &snap.TaskAdherenceConf, &snap.CognitiveRigidity, &snap.CognitiveRigidityConf,
		&snap.SystemConfidence, &snap.FlexTrend, &snap.TrendStreak, &snap.RecoveryTime, &snap.PhaseCycles,
		&crisis, &snap.EventType, &snap.Fingerprint, &snap.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	snap.CrisisFlag = crisis != 0
	return &snap, nil
}

func scanSnapshotRows(rows *sql.Rows) (*Snapshot, error) {
	var snap Snapshot
	var crisis int
	err := rows.Scan(
		&snap.ID, &snap.TenantID, &snap.PatientID, &snap.Seq, &snap.EngineVersion, &snap.Phase,
		&snap.Activation, &snap.ActivationConf, &snap.EmotionalLoad, &snap.EmotionalLoadConf,
		&snap.TaskAdherence, &snap.TaskAdherenceConf, &snap.CognitiveRigidity, &snap.CognitiveRigidityConf,
		&snap.SystemConfidence, &snap.FlexTrend, &snap.TrendStreak, &snap.RecoveryTime, &snap.PhaseCycles,
		&crisis, &snap.EventType, &snap.Fingerprint, &snap.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	snap.CrisisFlag = crisis != 0
	return &snap, nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure on the
// given index target. Matched on the driver's error text: modernc.org/sqlite
// exposes no typed constraint error.
func isUniqueViolation(err error, target string) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: "+target)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
