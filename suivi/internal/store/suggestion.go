package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// InsertSuggestion appends a suggestion row.
func (s *Store) InsertSuggestion(ctx context.Context, sug *Suggestion) error {
	if sug.CreatedAt == 0 {
		sug.CreatedAt = time.Now().UnixMilli()
	}
	if sug.ContextJSON == "" {
		sug.ContextJSON = "{}"
	}
	reasons, err := json.Marshal(sug.Reasons)
	if err != nil {
		return fmt.Errorf("store: marshal reasons: %w", err)
	}

	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO suggestions (id, tenant_id, patient_id, snapshot_id,
		suggestion_type, title, reasons, confidence, context_json, engine_version, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		sug.ID, sug.TenantID, sug.PatientID, sug.SnapshotID,
		sug.SuggestionType, sug.Title, string(reasons), sug.Confidence,
		sug.ContextJSON, sug.EngineVersion, sug.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert suggestion: %w", err)
	}
	return nil
}

// ListSuggestions returns a patient's suggestions, newest first.
func (s *Store) ListSuggestions(ctx context.Context, patientID string, limit int) ([]*Suggestion, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, tenant_id, patient_id, snapshot_id, suggestion_type, title,
		reasons, confidence, context_json, engine_version, created_at
		FROM suggestions WHERE patient_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, patientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sugs []*Suggestion
	for rows.Next() {
		sug, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		sugs = append(sugs, sug)
	}
	return sugs, rows.Err()
}

// SuggestionsForSnapshot returns the suggestions referencing one snapshot.
// The engine caps this at one per evaluation; the query exists so tests and
// audits can verify the cap held.
func (s *Store) SuggestionsForSnapshot(ctx context.Context, snapshotID string) ([]*Suggestion, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, tenant_id, patient_id, snapshot_id, suggestion_type, title,
		reasons, confidence, context_json, engine_version, created_at
		FROM suggestions WHERE snapshot_id = ? ORDER BY created_at`, snapshotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sugs []*Suggestion
	for rows.Next() {
		sug, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		sugs = append(sugs, sug)
	}
	return sugs, rows.Err()
}

func scanSuggestion(rows *sql.Rows) (*Suggestion, error) {
	var sug Suggestion
	var reasons string
	err := rows.Scan(
		&sug.ID, &sug.TenantID, &sug.PatientID, &sug.SnapshotID,
		&sug.SuggestionType, &sug.Title, &reasons, &sug.Confidence,
		&sug.ContextJSON, &sug.EngineVersion, &sug.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan suggestion: %w", err)
	}
	if err := json.Unmarshal([]byte(reasons), &sug.Reasons); err != nil {
		return nil, fmt.Errorf("unmarshal reasons: %w", err)
	}
	return &sug, nil
}
