package llmgateway

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransientMatchesTransientErrorAndGatewayRejections(t *testing.T) {
	assert.True(t, IsTransient(&TransientError{Provider: "anthropic", Err: errors.New("timeout")}))
	assert.True(t, IsTransient(ErrRateLimited))
	assert.True(t, IsTransient(ErrCircuitOpen))
	assert.False(t, IsTransient(&PermanentError{Provider: "anthropic", Err: errors.New("bad request")}))
	assert.False(t, IsTransient(errors.New("some other error")))
}

func TestIsPermanentMatchesOnlyPermanentError(t *testing.T) {
	assert.True(t, IsPermanent(&PermanentError{Provider: "anthropic", Err: errors.New("auth failed")}))
	assert.False(t, IsPermanent(&TransientError{Provider: "anthropic", Err: errors.New("timeout")}))
	assert.False(t, IsPermanent(errors.New("plain")))
}

func TestTransientErrorUnwrapsToUnderlyingCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := &TransientError{Provider: "bedrock", Err: cause}
	assert.True(t, errors.Is(err, cause))
}
