// Package suivi is the clinical state engine: it folds patient events into
// append-only state snapshots and selects at most one practitioner suggestion
// per accepted event.
//
// The pipeline per event: validate, fingerprint, dedup, transition, gate,
// persist, suggest. Every drop (duplicate, gated, rejected) is recorded
// through the outcome logger so silent behavior stays auditable.
package suivi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/praxis/idgen"
	"github.com/hazyhaar/praxis/observability"
	"github.com/hazyhaar/praxis/suivi/internal/rules"
	"github.com/hazyhaar/praxis/suivi/internal/store"
	"github.com/hazyhaar/praxis/suivi/internal/transition"
)

// EngineVersion is stamped on every snapshot and suggestion this build writes.
const EngineVersion = "cse-1.4.2"

// GateThreshold is the minimum system confidence a candidate snapshot needs
// to be persisted. Candidates below it are dropped without a trace in the
// clinical tables (the outcome log still records them).
const GateThreshold = 0.6

// PoolResolver maps a tenant ID to its shard database. *tenantpool.Pool
// satisfies it; tests substitute a single in-memory shard.
type PoolResolver interface {
	Resolve(ctx context.Context, tenantID string) (*sql.DB, error)
}

// Service is the engine façade. Safe for concurrent use.
type Service struct {
	pool     PoolResolver
	outcomes *observability.OutcomeLogger
	newID    idgen.Generator
	logger   *slog.Logger
	now      func() int64
}

// Option configures a Service.
type Option func(*Service)

// WithOutcomeLogger enables outcome auditing. Without it, drops are only
// visible in the application log.
func WithOutcomeLogger(l *observability.OutcomeLogger) Option {
	return func(s *Service) { s.outcomes = l }
}

// WithIDGenerator overrides the snapshot/suggestion ID generator.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(s *Service) { s.newID = gen }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() int64) Option {
	return func(s *Service) { s.now = now }
}

// New creates the engine service on top of a tenant pool.
func New(pool PoolResolver, opts ...Option) *Service {
	s := &Service{
		pool:   pool,
		newID:  idgen.Default,
		logger: slog.Default(),
		now:    func() int64 { return time.Now().UnixMilli() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ProcessEvent runs the full pipeline for one event.
//
// Validation failures return a wrapped ErrInvalidEvent. Duplicates and gated
// candidates are not errors: the Result says what happened. Anything else is
// an infrastructure failure and propagates.
func (s *Service) ProcessEvent(ctx context.Context, ev *Event) (*Result, error) {
	if err := validateEvent(ev); err != nil {
		s.record(ctx, ev, observability.OutcomeRejected, err.Error(), nil)
		return nil, err
	}
	if ev.CreatedAt == 0 {
		ev.CreatedAt = s.now()
	}

	fp, err := Fingerprint(ev)
	if err != nil {
		return nil, err
	}

	db, err := s.pool.Resolve(ctx, ev.TenantID)
	if err != nil {
		return nil, err
	}
	st := store.NewStore(db)

	// Fast path: the same delivery already landed.
	if existing, err := st.FindByFingerprint(ctx, fp); err != nil {
		return nil, err
	} else if existing != nil {
		s.record(ctx, ev, observability.OutcomeDuplicate, "", nil)
		return &Result{Outcome: OutcomeDuplicate, Snapshot: existing}, nil
	}

	prev, err := st.LatestSnapshot(ctx, ev.PatientID)
	if err != nil {
		return nil, err
	}

	cand := transition.Apply(prev, ev)
	if cand.SystemConfidence < GateThreshold {
		s.record(ctx, ev, observability.OutcomeGated, "", &cand.SystemConfidence)
		s.logger.Info("candidate gated",
			"tenant", ev.TenantID, "patient", ev.PatientID,
			"event_type", ev.EventType, "confidence", cand.SystemConfidence)
		return &Result{Outcome: OutcomeGated}, nil
	}

	cand.ID = idgen.Prefixed("cso_", s.newID)()
	cand.EngineVersion = EngineVersion
	cand.Fingerprint = fp
	cand.CreatedAt = ev.CreatedAt

	if err := st.InsertSnapshot(ctx, cand); err != nil {
		if errors.Is(err, store.ErrDuplicateFingerprint) {
			// A concurrent delivery won the race after our fast-path check.
			existing, ferr := st.FindByFingerprint(ctx, fp)
			if ferr != nil {
				return nil, ferr
			}
			s.record(ctx, ev, observability.OutcomeDuplicate, "lost insert race", nil)
			return &Result{Outcome: OutcomeDuplicate, Snapshot: existing}, nil
		}
		return nil, err
	}

	res := &Result{Outcome: OutcomeAccepted, Snapshot: cand}
	if winner := rules.Select(cand); winner != nil {
		sug, err := s.persistSuggestion(ctx, st, cand, winner)
		if err != nil {
			// The snapshot is already durable; surface the failure rather
			// than pretending no rule fired.
			return nil, fmt.Errorf("suivi: persist suggestion: %w", err)
		}
		res.Suggestion = sug
	}

	s.record(ctx, ev, observability.OutcomeAccepted, "", &cand.SystemConfidence)
	s.logger.Info("event accepted",
		"tenant", ev.TenantID, "patient", ev.PatientID,
		"event_type", ev.EventType, "seq", cand.Seq,
		"trend", cand.FlexTrend, "suggested", res.Suggestion != nil)
	return res, nil
}

// GenerateSuggestions re-evaluates the rule catalogue against a patient's
// latest snapshot without persisting anything. Returns nil when the patient
// has no history or no rule fires.
func (s *Service) GenerateSuggestions(ctx context.Context, tenantID, patientID string) (*Suggestion, error) {
	db, err := s.pool.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	st := store.NewStore(db)

	latest, err := st.LatestSnapshot(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, nil
	}
	winner := rules.Select(latest)
	if winner == nil {
		return nil, nil
	}
	return s.buildSuggestion(latest, winner), nil
}

// LatestState returns a patient's current snapshot, nil when none exists.
func (s *Service) LatestState(ctx context.Context, tenantID, patientID string) (*Snapshot, error) {
	db, err := s.pool.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return store.NewStore(db).LatestSnapshot(ctx, patientID)
}

// History returns a patient's snapshots, newest first.
func (s *Service) History(ctx context.Context, tenantID, patientID string, limit int) ([]*Snapshot, error) {
	db, err := s.pool.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return store.NewStore(db).ListSnapshots(ctx, patientID, limit)
}

// Suggestions returns a patient's persisted suggestions, newest first.
func (s *Service) Suggestions(ctx context.Context, tenantID, patientID string, limit int) ([]*Suggestion, error) {
	db, err := s.pool.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return store.NewStore(db).ListSuggestions(ctx, patientID, limit)
}

func (s *Service) buildSuggestion(snap *Snapshot, c *rules.Candidate) *Suggestion {
	contextJSON, _ := json.Marshal(map[string]any{
		"snapshot_seq": snap.Seq,
		"flex_trend":   snap.FlexTrend,
		"priority":     c.Priority,
	})
	return &Suggestion{
		ID:             idgen.Prefixed("sug_", s.newID)(),
		TenantID:       snap.TenantID,
		PatientID:      snap.PatientID,
		SnapshotID:     snap.ID,
		SuggestionType: c.Type,
		Title:          c.Title,
		Reasons:        c.Reasons,
		Confidence:     snap.SystemConfidence,
		ContextJSON:    string(contextJSON),
		EngineVersion:  EngineVersion,
		CreatedAt:      snap.CreatedAt,
	}
}

func (s *Service) persistSuggestion(ctx context.Context, st *store.Store, snap *Snapshot, c *rules.Candidate) (*Suggestion, error) {
	sug := s.buildSuggestion(snap, c)
	if err := st.InsertSuggestion(ctx, sug); err != nil {
		return nil, err
	}
	return sug, nil
}

func (s *Service) record(ctx context.Context, ev *Event, outcome, detail string, conf *float64) {
	if s.outcomes == nil || ev == nil {
		return
	}
	s.outcomes.Log(ctx, observability.Outcome{
		TenantID:   ev.TenantID,
		PatientID:  ev.PatientID,
		EventType:  ev.EventType,
		Outcome:    outcome,
		Detail:     detail,
		Confidence: conf,
	})
}
