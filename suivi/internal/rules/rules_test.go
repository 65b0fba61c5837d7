package rules

import (
	"testing"

	"github.com/hazyhaar/praxis/suivi/internal/store"
)

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }

func baseSnapshot() *store.Snapshot {
	return &store.Snapshot{
		FlexTrend:   store.TrendFlat,
		TrendStreak: 1,
		PhaseCycles: 1,
	}
}

func TestSelectNothingOnEmptySnapshot(t *testing.T) {
	// WHAT: A snapshot with every dimension unobserved fires no rule.
	// WHY: nil means "no opinion"; rules must not treat it as zero.
	if got := Select(baseSnapshot()); got != nil {
		t.Errorf("expected no suggestion, got %s", got.Type)
	}
}

func TestCrisisBeatsEverything(t *testing.T) {
	s := baseSnapshot()
	s.CrisisFlag = true
	s.EmotionalLoad = f64(0.95)
	s.Activation = f64(0.9)
	s.TaskAdherence = f64(0.1)

	got := Select(s)
	if got == nil || got.Type != TypeCrisisProtocol {
		t.Fatalf("got %+v, want crisis_protocol", got)
	}
	if got.Priority != 10 {
		t.Errorf("priority: got %d", got.Priority)
	}
}

func TestLowAdherenceSelectsCheckAdherence(t *testing.T) {
	// WHAT: Adherence 0.25 triggers check_adherence at priority 8.
	s := baseSnapshot()
	s.TaskAdherence = f64(0.25)

	got := Select(s)
	if got == nil || got.Type != TypeCheckAdherence {
		t.Fatalf("got %+v, want check_adherence", got)
	}
	if len(got.Reasons) == 0 {
		t.Error("suggestion carries no reasons")
	}
}

func TestHigherPriorityWinsOverMoreRecentCondition(t *testing.T) {
	// WHAT: With both celebrate_progress (p4) and emotional_regulation (p6)
	// eligible, the higher priority wins.
	s := baseSnapshot()
	s.TaskAdherence = f64(0.85)
	s.EmotionalLoad = f64(0.65)

	got := Select(s)
	if got == nil || got.Type != TypeEmotionalRegulation {
		t.Fatalf("got %+v, want emotional_regulation", got)
	}

	fired := Evaluate(s)
	if len(fired) != 2 {
		t.Fatalf("fired: got %d rules, want 2", len(fired))
	}
	if fired[1].Type != TypeCelebrateProgress {
		t.Errorf("runner-up: got %s", fired[1].Type)
	}
}

func TestEqualPriorityTieBreaksByDeclarationOrder(t *testing.T) {
	// WHAT: check_adherence and evaluate_pace are both priority 8; when both
	// fire, the earlier-declared rule wins, deterministically.
	s := baseSnapshot()
	s.TaskAdherence = f64(0.2)
	s.FlexTrend = store.TrendDown
	s.RecoveryTime = i64(0)

	for i := 0; i < 20; i++ {
		got := Select(s)
		if got == nil || got.Type != TypeCheckAdherence {
			t.Fatalf("run %d: got %+v, want check_adherence", i, got)
		}
	}
}

func TestPauseExposureRequiresBothDimensions(t *testing.T) {
	s := baseSnapshot()
	s.EmotionalLoad = f64(0.9)
	// Activation unobserved: overload rule must not fire on half the evidence.
	got := Select(s)
	if got != nil && got.Type == TypePauseExposure {
		t.Error("pause_exposure fired without activation data")
	}

	s.Activation = f64(0.8)
	got = Select(s)
	if got == nil || got.Type != TypePauseExposure {
		t.Fatalf("got %+v, want pause_exposure", got)
	}
}

func TestBoundaryValuesDoNotFire(t *testing.T) {
	// WHAT: Strict thresholds — exactly 0.8 load is not "above 0.8", exactly
	// 0.3 adherence is not "below 0.3".
	s := baseSnapshot()
	s.EmotionalLoad = f64(0.8)
	s.Activation = f64(0.75)
	if got := Select(s); got != nil && got.Type == TypePauseExposure {
		t.Error("pause_exposure fired at the exact boundary")
	}

	s2 := baseSnapshot()
	s2.TaskAdherence = f64(0.3)
	got := Select(s2)
	if got == nil || got.Type != TypeSimplifyTasks {
		t.Fatalf("adherence 0.3 belongs to simplify_tasks, got %+v", got)
	}
}

func TestSustainedTrends(t *testing.T) {
	up := baseSnapshot()
	up.FlexTrend = store.TrendUp
	up.TrendStreak = 3
	if got := Select(up); got == nil || got.Type != TypeAcknowledgeRecovery {
		t.Errorf("streak 3 up: got %+v, want acknowledge_recovery", got)
	}

	shortUp := baseSnapshot()
	shortUp.FlexTrend = store.TrendUp
	shortUp.TrendStreak = 2
	if got := Select(shortUp); got != nil {
		t.Errorf("streak 2 up: got %+v, want nothing", got)
	}

	flat := baseSnapshot()
	flat.TrendStreak = 5
	if got := Select(flat); got == nil || got.Type != TypeReviewFlatTrend {
		t.Errorf("streak 5 flat: got %+v, want review_flat_trend", got)
	}
}

func TestStagnantPhase(t *testing.T) {
	s := baseSnapshot()
	s.Phase = "exposure"
	s.PhaseCycles = 10
	if got := Select(s); got == nil || got.Type != TypeReviewStagnantPhase {
		t.Errorf("got %+v, want review_stagnant_phase", got)
	}
}

func TestReengageRequiresNonUpTrend(t *testing.T) {
	s := baseSnapshot()
	s.Activation = f64(0.1)
	s.FlexTrend = store.TrendUp
	if got := Select(s); got != nil && got.Type == TypeReengagePatient {
		t.Error("reengage_patient fired despite an upward trend")
	}

	s.FlexTrend = store.TrendDown
	if got := Select(s); got == nil || got.Type != TypeReengagePatient {
		t.Errorf("got %+v, want reengage_patient", got)
	}
}

func TestEvaluateOrdersByPriority(t *testing.T) {
	s := baseSnapshot()
	s.CrisisFlag = true
	s.TaskAdherence = f64(0.25)
	s.CognitiveRigidity = f64(0.75)

	fired := Evaluate(s)
	if len(fired) != 3 {
		t.Fatalf("fired: got %d, want 3", len(fired))
	}
	for i := 1; i < len(fired); i++ {
		if fired[i].Priority > fired[i-1].Priority {
			t.Errorf("order violation at %d: %d after %d", i, fired[i].Priority, fired[i-1].Priority)
		}
	}
	if fired[0].Type != TypeCrisisProtocol {
		t.Errorf("winner: got %s", fired[0].Type)
	}
}
