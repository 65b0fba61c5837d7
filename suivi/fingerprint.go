package suivi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/praxis/suivi/internal/transition"
)

// Fingerprint derives the idempotency key for an event: sha256 over the
// identifying fields and the canonical payload encoding. encoding/json sorts
// map keys, so two payloads with the same content hash identically regardless
// of field order at the sender. Arrival time is deliberately excluded — a
// retried delivery must collide with the original.
func Fingerprint(ev *transition.Event) (string, error) {
	payload := ev.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("suivi: fingerprint payload: %w", err)
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|", ev.TenantID, ev.PatientID, ev.EventType, ev.RelatedID)
	h.Write(raw)
	return hex.EncodeToString(h.Sum(nil)), nil
}
