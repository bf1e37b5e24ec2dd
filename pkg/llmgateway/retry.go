package llmgateway

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy configures the exponential backoff applied around a single
// Gateway.Complete call by CompleteWithRetry. Stage executors use this
// instead of calling Gateway.Complete directly so every provider call gets
// the same jittered backoff (§5 "Per-stage retries").
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy matches the teacher's orchestrator runner retry budget:
// three attempts, starting at 500ms, capped at 10s, growing by the backoff
// library's default 1.5x multiplier with jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialInterval: 500 * time.Millisecond, MaxInterval: 10 * time.Second}
}

// CompleteWithRetry retries a transient Gateway.Complete failure with
// exponential backoff and jitter, stopping immediately on a permanent error
// or once maxAttempts is exhausted (§7 "Error taxonomy").
func CompleteWithRetry(ctx context.Context, gw Gateway, req Request, policy RetryPolicy) (*Response, error) {
	var resp *Response

	b := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		b.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		b.MaxInterval = policy.MaxInterval
	}
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	withRetries := backoff.WithMaxRetries(b, uint64(maxAttempts-1))
	policy2 := backoff.WithContext(withRetries, ctx)

	op := func() error {
		r, err := gw.Complete(ctx, req)
		if err != nil {
			if IsPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	}

	if err := backoff.Retry(op, policy2); err != nil {
		return nil, err
	}
	return resp, nil
}
