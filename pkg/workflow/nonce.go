package workflow

import "github.com/google/uuid"

// newNonce returns a fresh per-attempt nonce so downstream tracing can dedupe
// redelivered or retried LLM calls (§4.1 "Idempotence": LLM calls are not
// naturally idempotent, so the engine attaches a stable nonce to each
// attempt).
func newNonce() string { return uuid.NewString() }
