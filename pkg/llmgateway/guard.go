package llmgateway

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Limits configures the per-provider rate limit and circuit breaker budget
// (§4.2 "Rate limiting and circuit breaking"). Grounded on kubernaut's
// circuitbreaker.Manager construction: gobreaker.Settings{MaxRequests,
// Interval, Timeout, ReadyToTrip, OnStateChange}.
type Limits struct {
	RequestsPerSecond float64
	Burst             int

	BreakerMaxRequests      uint32
	BreakerInterval         time.Duration
	BreakerTimeout          time.Duration
	BreakerFailureThreshold uint32
}

// DefaultLimits mirrors a conservative provider budget when config omits one.
func DefaultLimits() Limits {
	return Limits{
		RequestsPerSecond:       5,
		Burst:                   5,
		BreakerMaxRequests:      2,
		BreakerInterval:         10 * time.Second,
		BreakerTimeout:          30 * time.Second,
		BreakerFailureThreshold: 3,
	}
}

// guardedBackend wraps a Backend with a token-bucket rate limiter and a
// circuit breaker, so a misbehaving provider cannot starve the others
// sharing one Gateway.
type guardedBackend struct {
	backend Backend
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func newGuardedBackend(b Backend, limits Limits) *guardedBackend {
	if limits == (Limits{}) {
		limits = DefaultLimits()
	}
	name := b.Name()
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: limits.BreakerMaxRequests,
		Interval:    limits.BreakerInterval,
		Timeout:     limits.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= limits.BreakerFailureThreshold
		},
	}
	return &guardedBackend{
		backend: b,
		limiter: rate.NewLimiter(rate.Limit(limits.RequestsPerSecond), limits.Burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (g *guardedBackend) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.backend.Complete(ctx, req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	return result.(*Response), nil
}

func (g *guardedBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.backend.Embed(ctx, text)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	return result.([]float32), nil
}
