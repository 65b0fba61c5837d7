package transition

import (
	"testing"

	"github.com/hazyhaar/praxis/suivi/internal/store"
)

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }

// near sidesteps float accumulation noise in blended values.
func near(v *float64, want float64) bool {
	return v != nil && *v > want-1e-9 && *v < want+1e-9
}

func makeEvent(t *testing.T, eventType string, payload map[string]any) *Event {
	t.Helper()
	typed, err := DecodePayload(eventType, payload)
	if err != nil {
		t.Fatalf("decode %s payload: %v", eventType, err)
	}
	return &Event{
		TenantID:  "ten-1",
		PatientID: "pat-1",
		EventType: eventType,
		Payload:   payload,
		Typed:     typed,
	}
}

func TestApplyFirstEventNoHistory(t *testing.T) {
	// WHAT: With no predecessor, untouched dimensions stay nil and counters
	// start at 1.
	ev := makeEvent(t, EventTaskCompleted, map[string]any{"task_id": "tk-1"})
	got := Apply(nil, ev)

	if !near(got.TaskAdherence, 0.6) {
		t.Errorf("task_adherence: got %v, want 0.6 (neutral prior + 0.10)", got.TaskAdherence)
	}
	if got.Activation != nil || got.EmotionalLoad != nil || got.CognitiveRigidity != nil {
		t.Error("untouched dimensions must stay nil on first event")
	}
	if got.TrendStreak != 1 || got.PhaseCycles != 1 {
		t.Errorf("counters: streak=%d cycles=%d, want 1/1", got.TrendStreak, got.PhaseCycles)
	}
	if got.SystemConfidence != 0.8 {
		t.Errorf("system_confidence: got %v, want 0.8", got.SystemConfidence)
	}
}

func TestApplySessionEndTrendUp(t *testing.T) {
	// WHAT: 3 confrontations, 1 avoidance, 1 recovery gives a positive ratio
	// of 0.8, so the trend goes up and recovery time increments.
	prev := &store.Snapshot{
		FlexTrend:    store.TrendFlat,
		TrendStreak:  2,
		PhaseCycles:  4,
		Phase:        "exposure",
		RecoveryTime: i64(1),
	}
	ev := makeEvent(t, EventSessionEnd, map[string]any{
		"confrontations": 3,
		"avoidances":     1,
		"recoveries":     1,
	})
	got := Apply(prev, ev)

	if got.FlexTrend != store.TrendUp {
		t.Errorf("trend: got %q, want up", got.FlexTrend)
	}
	if got.RecoveryTime == nil || *got.RecoveryTime != 2 {
		t.Errorf("recovery_time: got %v, want 2", got.RecoveryTime)
	}
	if got.TrendStreak != 1 {
		t.Errorf("streak resets on trend change: got %d", got.TrendStreak)
	}
	if got.PhaseCycles != 5 {
		t.Errorf("phase_cycles: got %d, want 5 (same phase)", got.PhaseCycles)
	}
	if got.SystemConfidence != 0.85 {
		t.Errorf("system_confidence: got %v", got.SystemConfidence)
	}
}

func TestApplySessionEndTrendDownResetsRecovery(t *testing.T) {
	// WHAT: Avoidance-dominated sessions reset recovery time to zero.
	prev := &store.Snapshot{FlexTrend: store.TrendUp, TrendStreak: 3, RecoveryTime: i64(4)}
	ev := makeEvent(t, EventSessionEnd, map[string]any{
		"confrontations": 1,
		"avoidances":     4,
	})
	got := Apply(prev, ev)

	if got.FlexTrend != store.TrendDown {
		t.Errorf("trend: got %q, want down (ratio 0.2)", got.FlexTrend)
	}
	if got.RecoveryTime == nil || *got.RecoveryTime != 0 {
		t.Errorf("recovery_time: got %v, want 0", got.RecoveryTime)
	}
}

func TestApplySessionEndDurationAndEmotions(t *testing.T) {
	// WHAT: Duration blends activation 70/30 toward min(duration/60, 1);
	// emotions blend load 50/50 toward the negative share.
	prev := &store.Snapshot{Activation: f64(0.4), EmotionalLoad: f64(0.6)}
	ev := makeEvent(t, EventSessionEnd, map[string]any{
		"duration_min":      30.0,
		"negative_emotions": 3,
		"positive_emotions": 1,
	})
	got := Apply(prev, ev)

	// 0.7*0.4 + 0.3*0.5 = 0.43
	if !near(got.Activation, 0.43) {
		t.Errorf("activation: got %v, want 0.43", got.Activation)
	}
	if got.ActivationConf == nil || *got.ActivationConf != 0.6 {
		t.Errorf("activation_conf: got %v", got.ActivationConf)
	}
	// 0.5*0.6 + 0.5*0.75 = 0.675
	if !near(got.EmotionalLoad, 0.675) {
		t.Errorf("emotional_load: got %v, want 0.675", got.EmotionalLoad)
	}
	if got.EmotionalLoadConf == nil || *got.EmotionalLoadConf != 0.7 {
		t.Errorf("emotional_load_conf: got %v", got.EmotionalLoadConf)
	}
}

func TestApplySessionEndPhaseChange(t *testing.T) {
	prev := &store.Snapshot{Phase: "stabilization", PhaseCycles: 7}
	ev := makeEvent(t, EventSessionEnd, map[string]any{"phase": "exposure"})
	got := Apply(prev, ev)

	if got.Phase != "exposure" {
		t.Errorf("phase: got %q", got.Phase)
	}
	if got.PhaseCycles != 1 {
		t.Errorf("phase_cycles resets on change: got %d", got.PhaseCycles)
	}
}

func TestApplyMicroBehaviorAvoidance(t *testing.T) {
	// WHAT: Avoidance raises load and rigidity proportionally to intensity,
	// flips the trend down, and zeroes recovery time.
	prev := &store.Snapshot{
		EmotionalLoad:     f64(0.5),
		CognitiveRigidity: f64(0.4),
		FlexTrend:         store.TrendUp,
		RecoveryTime:      i64(3),
	}
	ev := makeEvent(t, EventMicroBehavior, map[string]any{
		"kind":      KindAvoidance,
		"intensity": 1.0,
	})
	got := Apply(prev, ev)

	if !near(got.EmotionalLoad, 0.7) {
		t.Errorf("emotional_load: got %v, want 0.7", got.EmotionalLoad)
	}
	if !near(got.CognitiveRigidity, 0.65) {
		t.Errorf("rigidity: got %v, want 0.65", got.CognitiveRigidity)
	}
	if got.FlexTrend != store.TrendDown {
		t.Errorf("trend: got %q", got.FlexTrend)
	}
	if got.RecoveryTime == nil || *got.RecoveryTime != 0 {
		t.Errorf("recovery_time: got %v, want 0", got.RecoveryTime)
	}
}

func TestApplyMicroBehaviorDefaultIntensity(t *testing.T) {
	// WHAT: Missing intensity falls back to 0.5.
	prev := &store.Snapshot{CognitiveRigidity: f64(0.6)}
	ev := makeEvent(t, EventMicroBehavior, map[string]any{"kind": KindAdjustment})
	got := Apply(prev, ev)

	// 0.6 - 0.2*0.5 = 0.5
	if !near(got.CognitiveRigidity, 0.5) {
		t.Errorf("rigidity: got %v, want 0.5", got.CognitiveRigidity)
	}
	if got.FlexTrend != store.TrendUp {
		t.Errorf("trend: got %q", got.FlexTrend)
	}
}

func TestApplyMicroBehaviorRecoveryIncrements(t *testing.T) {
	prev := &store.Snapshot{RecoveryTime: i64(2), EmotionalLoad: f64(0.9)}
	ev := makeEvent(t, EventMicroBehavior, map[string]any{"kind": KindRecovery, "intensity": 0.5})
	got := Apply(prev, ev)

	if got.RecoveryTime == nil || *got.RecoveryTime != 3 {
		t.Errorf("recovery_time: got %v, want 3", got.RecoveryTime)
	}
	if !near(got.EmotionalLoad, 0.8) {
		t.Errorf("emotional_load: got %v, want 0.8", got.EmotionalLoad)
	}
}

func TestApplyTaskMissed(t *testing.T) {
	prev := &store.Snapshot{TaskAdherence: f64(0.5)}
	ev := makeEvent(t, EventTaskMissed, map[string]any{"task_id": "tk-2"})
	got := Apply(prev, ev)

	if !near(got.TaskAdherence, 0.35) {
		t.Errorf("task_adherence: got %v, want 0.35", got.TaskAdherence)
	}
}

func TestApplyMoodCheckOverridesLoad(t *testing.T) {
	// WHAT: A self-reported mood of 8/10 sets load to 0.2 at confidence 0.95,
	// regardless of the carried value.
	prev := &store.Snapshot{EmotionalLoad: f64(0.9), EmotionalLoadConf: f64(0.6)}
	ev := makeEvent(t, EventMoodCheck, map[string]any{"rating": 8.0})
	got := Apply(prev, ev)

	if !near(got.EmotionalLoad, 0.2) {
		t.Errorf("emotional_load: got %v, want 0.2", got.EmotionalLoad)
	}
	if got.EmotionalLoadConf == nil || *got.EmotionalLoadConf != 0.95 {
		t.Errorf("conf: got %v", got.EmotionalLoadConf)
	}
	if got.CrisisFlag {
		t.Error("rating 8 must not raise the crisis flag")
	}
	if got.SystemConfidence != 0.95 {
		t.Errorf("system_confidence: got %v", got.SystemConfidence)
	}
}

func TestApplyMoodCheckCrisisRating(t *testing.T) {
	ev := makeEvent(t, EventMoodCheck, map[string]any{"rating": 1.0})
	got := Apply(nil, ev)
	if !got.CrisisFlag {
		t.Error("rating 1 must raise the crisis flag")
	}
}

func TestApplyCrisisAlert(t *testing.T) {
	// WHAT: A crisis alert flags the snapshot and floors the load at the
	// reported severity.
	prev := &store.Snapshot{EmotionalLoad: f64(0.4)}
	ev := makeEvent(t, EventCrisisAlert, map[string]any{"severity": 0.9})
	got := Apply(prev, ev)

	if !got.CrisisFlag {
		t.Error("crisis flag not set")
	}
	if got.EmotionalLoad == nil || *got.EmotionalLoad != 0.9 {
		t.Errorf("emotional_load: got %v, want 0.9", got.EmotionalLoad)
	}
	if got.SystemConfidence != 0.99 {
		t.Errorf("system_confidence: got %v", got.SystemConfidence)
	}
}

func TestCrisisFlagNotCarriedForward(t *testing.T) {
	prev := &store.Snapshot{CrisisFlag: true}
	ev := makeEvent(t, EventTaskCompleted, map[string]any{})
	got := Apply(prev, ev)
	if got.CrisisFlag {
		t.Error("crisis flag must not survive into the next snapshot")
	}
}

func TestApplyUnknownEventCarriesForward(t *testing.T) {
	// WHAT: Unknown event types copy the previous state verbatim with a low
	// confidence the gate will drop.
	prev := &store.Snapshot{
		Activation:    f64(0.7),
		EmotionalLoad: f64(0.3),
		FlexTrend:     store.TrendUp,
		TrendStreak:   4,
	}
	ev := makeEvent(t, "wearable_sync", map[string]any{"steps": 9000})
	got := Apply(prev, ev)

	if got.Activation == nil || *got.Activation != 0.7 {
		t.Errorf("activation: got %v", got.Activation)
	}
	if got.FlexTrend != store.TrendUp || got.TrendStreak != 5 {
		t.Errorf("trend/streak: got %q/%d", got.FlexTrend, got.TrendStreak)
	}
	if got.SystemConfidence != 0.2 {
		t.Errorf("system_confidence: got %v, want 0.2", got.SystemConfidence)
	}
}

func TestApplyClampsToUnitInterval(t *testing.T) {
	// WHAT: Nudges never push a dimension outside [0,1].
	prev := &store.Snapshot{EmotionalLoad: f64(0.95), CognitiveRigidity: f64(0.99)}
	ev := makeEvent(t, EventMicroBehavior, map[string]any{"kind": KindAvoidance, "intensity": 1.0})
	got := Apply(prev, ev)

	if got.EmotionalLoad == nil || *got.EmotionalLoad != 1 {
		t.Errorf("emotional_load: got %v, want clamped 1", got.EmotionalLoad)
	}
	if got.CognitiveRigidity == nil || *got.CognitiveRigidity != 1 {
		t.Errorf("rigidity: got %v, want clamped 1", got.CognitiveRigidity)
	}

	low := &store.Snapshot{EmotionalLoad: f64(0.05)}
	ev2 := makeEvent(t, EventMicroBehavior, map[string]any{"kind": KindRecovery, "intensity": 1.0})
	got2 := Apply(low, ev2)
	if got2.EmotionalLoad == nil || *got2.EmotionalLoad != 0 {
		t.Errorf("emotional_load: got %v, want clamped 0", got2.EmotionalLoad)
	}
}

func TestApplyDoesNotMutatePrev(t *testing.T) {
	// WHY: Apply is pure; aliasing prev's pointers would corrupt history.
	prev := &store.Snapshot{EmotionalLoad: f64(0.5), RecoveryTime: i64(2)}
	ev := makeEvent(t, EventMicroBehavior, map[string]any{"kind": KindRecovery})
	Apply(prev, ev)

	if *prev.EmotionalLoad != 0.5 || *prev.RecoveryTime != 2 {
		t.Errorf("prev mutated: load=%v recovery=%v", *prev.EmotionalLoad, *prev.RecoveryTime)
	}
}

func TestDecodePayloadRejectsBadDomains(t *testing.T) {
	cases := []struct {
		name      string
		eventType string
		payload   map[string]any
	}{
		{"negative counts", EventSessionEnd, map[string]any{"confrontations": -1}},
		{"bad kind", EventMicroBehavior, map[string]any{"kind": "stalling"}},
		{"intensity too high", EventMicroBehavior, map[string]any{"kind": KindRecovery, "intensity": 1.5}},
		{"missing rating", EventMoodCheck, map[string]any{}},
		{"rating out of range", EventMoodCheck, map[string]any{"rating": 11.0}},
		{"severity out of range", EventCrisisAlert, map[string]any{"severity": 2.0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodePayload(tc.eventType, tc.payload); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestDecodePayloadUnknownType(t *testing.T) {
	typed, err := DecodePayload("wearable_sync", map[string]any{"steps": 1})
	if err != nil {
		t.Fatalf("unknown types are structurally valid: %v", err)
	}
	if typed != nil {
		t.Errorf("typed: got %v, want nil", typed)
	}
}
