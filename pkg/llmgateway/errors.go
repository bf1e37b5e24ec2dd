package llmgateway

import "errors"

// ErrUnknownProvider is returned when a Request names a provider that has no
// registered Backend.
var ErrUnknownProvider = errors.New("llmgateway: unknown provider")

// ErrRateLimited is returned when a call is rejected by the local token
// bucket before ever reaching the provider (§4.2 "Failure semantics").
var ErrRateLimited = errors.New("llmgateway: rate limited")

// ErrCircuitOpen is returned when the provider's circuit breaker is open.
var ErrCircuitOpen = errors.New("llmgateway: circuit open")

// TransientError wraps a provider failure the engine's retry policy should
// retry (§7 "Error taxonomy": timeouts, 429/5xx, connection resets).
type TransientError struct {
	Provider string
	Err      error
}

func (e *TransientError) Error() string {
	return "llmgateway: transient error from " + e.Provider + ": " + e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError wraps a provider failure that will never succeed on retry
// (§7: malformed request, auth failure, content policy rejection).
type PermanentError struct {
	Provider string
	Err      error
}

func (e *PermanentError) Error() string {
	return "llmgateway: permanent error from " + e.Provider + ": " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or anything it wraps) is a TransientError,
// including the gateway's own rate-limit and circuit-breaker rejections,
// which are themselves retryable.
func IsTransient(err error) bool {
	var t *TransientError
	if errors.As(err, &t) {
		return true
	}
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrCircuitOpen)
}

// IsPermanent reports whether err (or anything it wraps) is a PermanentError.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}
