package suivi

import (
	"fmt"

	"github.com/hazyhaar/praxis/suivi/internal/transition"
)

// validateEvent checks structure and decodes the payload into its typed
// variant exactly once. On success ev.Typed is populated (nil for unknown
// event types, which remain processable at low confidence).
func validateEvent(ev *transition.Event) error {
	if ev == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	if ev.TenantID == "" {
		return fmt.Errorf("%w: tenant_id is required", ErrInvalidEvent)
	}
	if ev.PatientID == "" {
		return fmt.Errorf("%w: patient_id is required", ErrInvalidEvent)
	}
	if ev.EventType == "" {
		return fmt.Errorf("%w: event_type is required", ErrInvalidEvent)
	}
	if ev.Payload == nil {
		ev.Payload = map[string]any{}
	}

	typed, err := transition.DecodePayload(ev.EventType, ev.Payload)
	if err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrInvalidEvent, ev.EventType, err)
	}
	ev.Typed = typed
	return nil
}
