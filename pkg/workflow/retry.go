package workflow

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// MaxStageAttempts is the retry ceiling shared by every retryable error kind
// (§4.1: "exponential backoff with jitter, max 3 attempts"; "retry up to 3
// attempts" for validation failures; Sigma "up to 3 generation attempts").
const MaxStageAttempts = 3

// newStageBackOff builds the exponential-backoff-with-jitter sequence the
// stage attempt loop draws from between retries (engine.go), grounded on the
// teacher's orchestrator runner retry budget: 500ms initial, growing by the
// backoff library's default 1.5x multiplier, capped at 10s. The attempt loop calls NextBackOff() itself rather than
// backoff.Retry so it can persist a StageResult row and feed validation
// errors into the next attempt's prompt between tries.
func newStageBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0 // bounded by MaxStageAttempts, not wall-clock
	return b
}
