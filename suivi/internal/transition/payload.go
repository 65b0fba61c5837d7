package transition

import (
	"encoding/json"
	"fmt"
)

// SessionEndPayload aggregates one therapy session: micro-behavior counts,
// duration, and a coarse emotion tally. Phase, when set, moves the patient to
// a new clinical phase.
type SessionEndPayload struct {
	Confrontations   int     `json:"confrontations"`
	Avoidances       int     `json:"avoidances"`
	Adjustments      int     `json:"adjustments"`
	Recoveries       int     `json:"recoveries"`
	DurationMin      float64 `json:"duration_min"`
	NegativeEmotions int     `json:"negative_emotions"`
	PositiveEmotions int     `json:"positive_emotions"`
	Phase            string  `json:"phase"`
}

// MicroBehaviorPayload is one observed micro-behavior with its intensity.
type MicroBehaviorPayload struct {
	Kind      string   `json:"kind"`
	Intensity *float64 `json:"intensity"`
}

// DefaultIntensity applies when a micro-behavior carries no intensity field.
const DefaultIntensity = 0.5

// EffectiveIntensity returns the recorded intensity or the default.
func (p *MicroBehaviorPayload) EffectiveIntensity() float64 {
	if p.Intensity == nil {
		return DefaultIntensity
	}
	return *p.Intensity
}

// TaskStatusPayload accompanies task_completed and task_missed events.
type TaskStatusPayload struct {
	TaskID string `json:"task_id"`
}

// MoodCheckPayload is a self-reported 0–10 mood rating.
type MoodCheckPayload struct {
	Rating *float64 `json:"rating"`
}

// CrisisPayload accompanies a crisis alert. Severity, when present, floors
// the emotional load.
type CrisisPayload struct {
	Severity *float64 `json:"severity"`
}

// DecodePayload turns the open payload map into the typed variant for the
// event type, validating field domains. Unknown event types return (nil, nil):
// they are structurally valid, just not interpretable.
func DecodePayload(eventType string, payload map[string]any) (any, error) {
	switch eventType {
	case EventSessionEnd:
		var p SessionEndPayload
		if err := remarshal(payload, &p); err != nil {
			return nil, err
		}
		if p.Confrontations < 0 || p.Avoidances < 0 || p.Adjustments < 0 || p.Recoveries < 0 {
			return nil, fmt.Errorf("negative micro-behavior count")
		}
		if p.NegativeEmotions < 0 || p.PositiveEmotions < 0 {
			return nil, fmt.Errorf("negative emotion count")
		}
		if p.DurationMin < 0 {
			return nil, fmt.Errorf("negative session duration")
		}
		return &p, nil

	case EventMicroBehavior:
		var p MicroBehaviorPayload
		if err := remarshal(payload, &p); err != nil {
			return nil, err
		}
		switch p.Kind {
		case KindAvoidance, KindConfrontation, KindAdjustment, KindRecovery:
		default:
			return nil, fmt.Errorf("unknown micro-behavior kind %q", p.Kind)
		}
		if p.Intensity != nil && (*p.Intensity < 0 || *p.Intensity > 1) {
			return nil, fmt.Errorf("intensity %v out of [0,1]", *p.Intensity)
		}
		return &p, nil

	case EventTaskCompleted, EventTaskMissed:
		var p TaskStatusPayload
		if err := remarshal(payload, &p); err != nil {
			return nil, err
		}
		return &p, nil

	case EventMoodCheck:
		var p MoodCheckPayload
		if err := remarshal(payload, &p); err != nil {
			return nil, err
		}
		if p.Rating == nil {
			return nil, fmt.Errorf("mood_check requires a rating")
		}
		if *p.Rating < 0 || *p.Rating > 10 {
			return nil, fmt.Errorf("rating %v out of [0,10]", *p.Rating)
		}
		return &p, nil

	case EventCrisisAlert:
		var p CrisisPayload
		if err := remarshal(payload, &p); err != nil {
			return nil, err
		}
		if p.Severity != nil && (*p.Severity < 0 || *p.Severity > 1) {
			return nil, fmt.Errorf("severity %v out of [0,1]", *p.Severity)
		}
		return &p, nil
	}

	return nil, nil
}

// remarshal converts the open map into a typed struct via JSON. Payloads
// arrive as decoded JSON anyway, so this is lossless.
func remarshal(payload map[string]any, dst any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("payload marshal: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("payload shape: %w", err)
	}
	return nil
}
