package store

// Flexibility trend values.
const (
	TrendUp   = "up"
	TrendDown = "down"
	TrendFlat = "flat"
)

// Snapshot is one append-only clinical state row for a patient.
//
// The three historical dimensions (activation, emotional load, task
// adherence) plus cognitive rigidity are each a (value, confidence) pair
// bounded to [0,1]. A nil value means the dimension has never been observed
// for this patient — distinct from 0, which is an observation.
type Snapshot struct {
	ID            string `json:"id"`
	TenantID      string `json:"tenant_id"`
	PatientID     string `json:"patient_id"`
	Seq           int64  `json:"seq"`
	EngineVersion string `json:"engine_version"`
	Phase         string `json:"phase,omitempty"`

	Activation            *float64 `json:"activation,omitempty"`
	ActivationConf        *float64 `json:"activation_conf,omitempty"`
	EmotionalLoad         *float64 `json:"emotional_load,omitempty"`
	EmotionalLoadConf     *float64 `json:"emotional_load_conf,omitempty"`
	TaskAdherence         *float64 `json:"task_adherence,omitempty"`
	TaskAdherenceConf     *float64 `json:"task_adherence_conf,omitempty"`
	CognitiveRigidity     *float64 `json:"cognitive_rigidity,omitempty"`
	CognitiveRigidityConf *float64 `json:"cognitive_rigidity_conf,omitempty"`

	SystemConfidence float64 `json:"system_confidence"`
	FlexTrend        string  `json:"flex_trend"`
	TrendStreak      int64   `json:"trend_streak"`
	RecoveryTime     *int64  `json:"recovery_time,omitempty"`
	PhaseCycles      int64   `json:"phase_cycles"`
	CrisisFlag       bool    `json:"crisis_flag"`

	EventType   string `json:"event_type"`
	Fingerprint string `json:"fingerprint"`
	CreatedAt   int64  `json:"created_at"`
}

// Suggestion is one recommendation row, referencing the snapshot that
// triggered it. Downstream a human approves, edits, or ignores it; the
// engine never reacts to that decision.
type Suggestion struct {
	ID             string   `json:"id"`
	TenantID       string   `json:"tenant_id"`
	PatientID      string   `json:"patient_id"`
	SnapshotID     string   `json:"snapshot_id"`
	SuggestionType string   `json:"suggestion_type"`
	Title          string   `json:"title"`
	Reasons        []string `json:"reasons"`
	Confidence     float64  `json:"confidence"`
	ContextJSON    string   `json:"context_json"`
	EngineVersion  string   `json:"engine_version"`
	CreatedAt      int64    `json:"created_at"`
}
