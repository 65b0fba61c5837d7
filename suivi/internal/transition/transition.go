// Package transition implements the pure clinical state transition function.
//
// Apply is deliberately I/O-free: (previous snapshot | nil, validated event)
// in, candidate snapshot out. Persistence, dedup and gating live elsewhere.
package transition

import "github.com/hazyhaar/praxis/suivi/internal/store"

// System confidence assigned per event type. Anything below the service's
// gate threshold produces no persisted row.
const (
	confSessionEnd    = 0.85
	confMicroBehavior = 0.7
	confTaskStatus    = 0.8
	confMoodCheck     = 0.95
	confCrisisAlert   = 0.99
	confUnknown       = 0.2
)

// neutralPrior is the starting value when a nudge arrives for a dimension
// that has never been observed: the nudge is the first observation and moves
// it off the middle of the scale.
const neutralPrior = 0.5

// Apply computes the candidate snapshot for an event. prev is nil for a
// patient's first occurrence. Dimensions not touched by the event are carried
// forward unchanged — including nil ("never observed"), which stays nil.
func Apply(prev *store.Snapshot, ev *Event) *store.Snapshot {
	cand := carryForward(prev, ev)

	switch p := ev.Typed.(type) {
	case *SessionEndPayload:
		applySessionEnd(prev, cand, p)
		cand.SystemConfidence = confSessionEnd
	case *MicroBehaviorPayload:
		applyMicroBehavior(cand, p)
		cand.SystemConfidence = confMicroBehavior
	case *TaskStatusPayload:
		applyTaskStatus(cand, ev.EventType)
		cand.SystemConfidence = confTaskStatus
	case *MoodCheckPayload:
		applyMoodCheck(cand, p)
		cand.SystemConfidence = confMoodCheck
	case *CrisisPayload:
		applyCrisis(cand, p)
		cand.SystemConfidence = confCrisisAlert
	default:
		// Unknown event type: full carry-forward, low confidence.
		cand.SystemConfidence = confUnknown
	}

	finishStreaks(prev, cand)
	clampSnapshot(cand)
	return cand
}

func carryForward(prev *store.Snapshot, ev *Event) *store.Snapshot {
	cand := &store.Snapshot{
		TenantID:  ev.TenantID,
		PatientID: ev.PatientID,
		EventType: ev.EventType,
		FlexTrend: store.TrendFlat,
	}
	if prev == nil {
		return cand
	}
	cand.Phase = prev.Phase
	cand.FlexTrend = prev.FlexTrend
	cand.RecoveryTime = copyInt(prev.RecoveryTime)
	cand.Activation = copyFloat(prev.Activation)
	cand.ActivationConf = copyFloat(prev.ActivationConf)
	cand.EmotionalLoad = copyFloat(prev.EmotionalLoad)
	cand.EmotionalLoadConf = copyFloat(prev.EmotionalLoadConf)
	cand.TaskAdherence = copyFloat(prev.TaskAdherence)
	cand.TaskAdherenceConf = copyFloat(prev.TaskAdherenceConf)
	cand.CognitiveRigidity = copyFloat(prev.CognitiveRigidity)
	cand.CognitiveRigidityConf = copyFloat(prev.CognitiveRigidityConf)
	// CrisisFlag is per-snapshot and never carried forward.
	return cand
}

func applySessionEnd(prev *store.Snapshot, cand *store.Snapshot, p *SessionEndPayload) {
	total := p.Confrontations + p.Avoidances + p.Adjustments + p.Recoveries
	if total > 0 {
		ratio := float64(p.Confrontations+p.Adjustments+p.Recoveries) / float64(total)
		switch {
		case ratio >= 0.6:
			cand.FlexTrend = store.TrendUp
		case ratio <= 0.3:
			cand.FlexTrend = store.TrendDown
		default:
			cand.FlexTrend = store.TrendFlat
		}
		if p.Avoidances > p.Confrontations {
			cand.RecoveryTime = intPtr(0)
		} else if prev == nil || prev.RecoveryTime == nil {
			cand.RecoveryTime = intPtr(1)
		} else {
			cand.RecoveryTime = intPtr(*prev.RecoveryTime + 1)
		}
	}

	if p.DurationMin > 0 {
		target := p.DurationMin / 60
		if target > 1 {
			target = 1
		}
		cand.Activation = floatPtr(0.7*orNeutral(cand.Activation) + 0.3*target)
		cand.ActivationConf = floatPtr(0.6)
	}

	if p.NegativeEmotions+p.PositiveEmotions > 0 {
		target := float64(p.NegativeEmotions) / float64(p.NegativeEmotions+p.PositiveEmotions)
		cand.EmotionalLoad = floatPtr(0.5*orNeutral(cand.EmotionalLoad) + 0.5*target)
		cand.EmotionalLoadConf = floatPtr(0.7)
	}

	if p.Phase != "" {
		cand.Phase = p.Phase
	}
}

func applyMicroBehavior(cand *store.Snapshot, p *MicroBehaviorPayload) {
	delta := p.EffectiveIntensity()
	switch p.Kind {
	case KindAvoidance:
		cand.EmotionalLoad = floatPtr(orNeutral(cand.EmotionalLoad) + 0.2*delta)
		cand.EmotionalLoadConf = floatPtr(0.6)
		cand.CognitiveRigidity = floatPtr(orNeutral(cand.CognitiveRigidity) + 0.25*delta)
		cand.CognitiveRigidityConf = floatPtr(0.6)
		cand.FlexTrend = store.TrendDown
		cand.RecoveryTime = intPtr(0)
	case KindConfrontation:
		cand.Activation = floatPtr(orNeutral(cand.Activation) + 0.2*delta)
		cand.ActivationConf = floatPtr(0.65)
		cand.CognitiveRigidity = floatPtr(orNeutral(cand.CognitiveRigidity) - 0.15*delta)
		cand.CognitiveRigidityConf = floatPtr(0.6)
		cand.FlexTrend = store.TrendUp
	case KindAdjustment:
		cand.CognitiveRigidity = floatPtr(orNeutral(cand.CognitiveRigidity) - 0.2*delta)
		cand.CognitiveRigidityConf = floatPtr(0.6)
		cand.FlexTrend = store.TrendUp
	case KindRecovery:
		cand.EmotionalLoad = floatPtr(orNeutral(cand.EmotionalLoad) - 0.2*delta)
		cand.EmotionalLoadConf = floatPtr(0.6)
		cand.FlexTrend = store.TrendUp
		if cand.RecoveryTime == nil {
			cand.RecoveryTime = intPtr(1)
		} else {
			cand.RecoveryTime = intPtr(*cand.RecoveryTime + 1)
		}
	}
}

func applyTaskStatus(cand *store.Snapshot, eventType string) {
	step := 0.10
	if eventType == EventTaskMissed {
		step = -0.15
	}
	cand.TaskAdherence = floatPtr(orNeutral(cand.TaskAdherence) + step)
	cand.TaskAdherenceConf = floatPtr(0.8)
}

func applyMoodCheck(cand *store.Snapshot, p *MoodCheckPayload) {
	// Direct self-report overrides whatever was carried forward.
	cand.EmotionalLoad = floatPtr(1 - *p.Rating/10)
	cand.EmotionalLoadConf = floatPtr(0.95)
	if *p.Rating <= 1 {
		cand.CrisisFlag = true
	}
}

func applyCrisis(cand *store.Snapshot, p *CrisisPayload) {
	cand.CrisisFlag = true
	if p.Severity != nil && (cand.EmotionalLoad == nil || *cand.EmotionalLoad < *p.Severity) {
		cand.EmotionalLoad = floatPtr(*p.Severity)
		cand.EmotionalLoadConf = floatPtr(0.9)
	}
}

// finishStreaks derives the trend and phase counters from the predecessor.
func finishStreaks(prev *store.Snapshot, cand *store.Snapshot) {
	if prev != nil && prev.FlexTrend == cand.FlexTrend {
		cand.TrendStreak = prev.TrendStreak + 1
	} else {
		cand.TrendStreak = 1
	}
	if prev != nil && prev.Phase == cand.Phase {
		cand.PhaseCycles = prev.PhaseCycles + 1
	} else {
		cand.PhaseCycles = 1
	}
}

// clampSnapshot bounds every numeric dimension to its domain. nil means
// "no opinion" and propagates as nil rather than becoming 0.
func clampSnapshot(s *store.Snapshot) {
	s.Activation = clamp01(s.Activation)
	s.ActivationConf = clamp01(s.ActivationConf)
	s.EmotionalLoad = clamp01(s.EmotionalLoad)
	s.EmotionalLoadConf = clamp01(s.EmotionalLoadConf)
	s.TaskAdherence = clamp01(s.TaskAdherence)
	s.TaskAdherenceConf = clamp01(s.TaskAdherenceConf)
	s.CognitiveRigidity = clamp01(s.CognitiveRigidity)
	s.CognitiveRigidityConf = clamp01(s.CognitiveRigidityConf)
	if s.SystemConfidence < 0 {
		s.SystemConfidence = 0
	}
	if s.SystemConfidence > 1 {
		s.SystemConfidence = 1
	}
	if s.RecoveryTime != nil && *s.RecoveryTime < 0 {
		s.RecoveryTime = intPtr(0)
	}
}

func clamp01(v *float64) *float64 {
	if v == nil {
		return nil
	}
	x := *v
	if x < 0 {
		x = 0
	}
	if x > 1 {
		x = 1
	}
	return &x
}

func orNeutral(v *float64) float64 {
	if v == nil {
		return neutralPrior
	}
	return *v
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int64) *int64       { return &v }

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	x := *v
	return &x
}

func copyInt(v *int64) *int64 {
	if v == nil {
		return nil
	}
	x := *v
	return &x
}
