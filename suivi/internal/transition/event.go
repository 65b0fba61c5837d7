package transition

// Known event types. The engine accepts unknown types too — they produce a
// carry-forward candidate with low system confidence, which the gate drops.
const (
	EventSessionEnd    = "session_end"
	EventMicroBehavior = "micro_behavior"
	EventTaskCompleted = "task_completed"
	EventTaskMissed    = "task_missed"
	EventMoodCheck     = "mood_check"
	EventCrisisAlert   = "crisis_alert"
)

// Micro-behavior kinds.
const (
	KindAvoidance     = "avoidance"
	KindConfrontation = "confrontation"
	KindAdjustment    = "adjustment"
	KindRecovery      = "recovery"
)

// Event is one validated clinical occurrence handed to the engine. The engine
// never mutates it after construction.
type Event struct {
	TenantID  string         `json:"tenant_id"`
	PatientID string         `json:"patient_id"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload"`
	Source    string         `json:"source,omitempty"`
	RelatedID string         `json:"related_id,omitempty"`
	CreatedAt int64          `json:"created_at"`

	// Typed decodes the open payload map exactly once, in the validator.
	// nil for unknown event types.
	Typed any `json:"-"`
}
