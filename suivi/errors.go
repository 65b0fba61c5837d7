package suivi

import "errors"

// ErrInvalidEvent is wrapped by every validation failure: missing identifiers,
// unparseable payloads, out-of-domain fields. Callers map it to a 4xx; every
// other error from ProcessEvent is infrastructure.
var ErrInvalidEvent = errors.New("suivi: invalid event")
