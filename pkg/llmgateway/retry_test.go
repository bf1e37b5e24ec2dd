package llmgateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway lets CompleteWithRetry tests control exactly how many times a
// call fails before succeeding, without any real provider or guard wrapping.
type fakeGateway struct {
	attempts  int
	failTimes int
	err       error
}

func (f *fakeGateway) Complete(ctx context.Context, req Request) (*Response, error) {
	f.attempts++
	if f.attempts <= f.failTimes {
		return nil, f.err
	}
	return &Response{Text: "ok"}, nil
}

func (f *fakeGateway) Embed(ctx context.Context, text string) ([]float32, error) { return nil, nil }

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
}

func TestCompleteWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	gw := &fakeGateway{failTimes: 2, err: &TransientError{Provider: "p", Err: errors.New("timeout")}}

	resp, err := CompleteWithRetry(context.Background(), gw, Request{}, fastPolicy())
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 3, gw.attempts)
}

func TestCompleteWithRetryStopsImmediatelyOnPermanentError(t *testing.T) {
	permanentErr := &PermanentError{Provider: "p", Err: errors.New("bad request")}
	gw := &fakeGateway{failTimes: 10, err: permanentErr}

	_, err := CompleteWithRetry(context.Background(), gw, Request{}, fastPolicy())
	require.Error(t, err)
	assert.Equal(t, 1, gw.attempts, "a permanent error must not be retried")
}

func TestCompleteWithRetryExhaustsMaxAttempts(t *testing.T) {
	transientErr := &TransientError{Provider: "p", Err: errors.New("503")}
	gw := &fakeGateway{failTimes: 100, err: transientErr}

	_, err := CompleteWithRetry(context.Background(), gw, Request{}, fastPolicy())
	require.Error(t, err)
	assert.Equal(t, 3, gw.attempts, "retry must stop once MaxAttempts is exhausted")
}

func TestDefaultRetryPolicyMatchesThreeAttemptBudget(t *testing.T) {
	policy := DefaultRetryPolicy()
	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, policy.InitialInterval)
	assert.Equal(t, 10*time.Second, policy.MaxInterval)
}
