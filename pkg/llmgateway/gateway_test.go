package llmgateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubBackend is a deterministic fake satisfying Backend without calling out
// to any real provider SDK.
type stubBackend struct {
	name     string
	resp     *Response
	err      error
	embedErr error
	embedVec []float32
	calls    int
}

func (s *stubBackend) Name() string { return s.name }

func (s *stubBackend) Complete(ctx context.Context, req Request) (*Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func (s *stubBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.embedErr != nil {
		return nil, s.embedErr
	}
	return s.embedVec, nil
}

func generousLimits() Limits {
	return Limits{RequestsPerSecond: 1000, Burst: 1000, BreakerMaxRequests: 10, BreakerFailureThreshold: 10}
}

func TestGatewayDispatchesToBackendByProviderName(t *testing.T) {
	anthropic := &stubBackend{name: "anthropic", resp: &Response{Text: "hi"}}
	bedrock := &stubBackend{name: "bedrock", resp: &Response{Text: "there"}}
	gw := New([]Backend{anthropic, bedrock}, map[string]Limits{
		"anthropic": generousLimits(), "bedrock": generousLimits(),
	}, 0)

	resp, err := gw.Complete(context.Background(), Request{Provider: "bedrock"})
	require.NoError(t, err)
	assert.Equal(t, "there", resp.Text)
	assert.Equal(t, 0, anthropic.calls)
	assert.Equal(t, 1, bedrock.calls)
}

func TestGatewayUnknownProviderReturnsError(t *testing.T) {
	gw := New([]Backend{&stubBackend{name: "anthropic"}}, map[string]Limits{"anthropic": generousLimits()}, 0)

	_, err := gw.Complete(context.Background(), Request{Provider: "does-not-exist"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownProvider))
}

func TestGatewayEmbedUsesEmbeddingNamedBackend(t *testing.T) {
	embedder := &stubBackend{name: "embedding", embedVec: []float32{0.1, 0.2, 0.3}}
	gw := New([]Backend{embedder}, map[string]Limits{"embedding": generousLimits()}, 0)

	vec, err := gw.Embed(context.Background(), "some text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestGatewayEmbedWithoutEmbeddingBackendReturnsError(t *testing.T) {
	gw := New([]Backend{&stubBackend{name: "anthropic"}}, map[string]Limits{"anthropic": generousLimits()}, 0)

	_, err := gw.Embed(context.Background(), "text")
	assert.True(t, errors.Is(err, ErrUnknownProvider))
}

func TestGatewayMissingLimitsFallsBackToDefaultLimits(t *testing.T) {
	// No entry in the limits map for "anthropic" — newGuardedBackend must not
	// construct a zero-value, always-denying rate limiter.
	backend := &stubBackend{name: "anthropic", resp: &Response{Text: "ok"}}
	gw := New([]Backend{backend}, map[string]Limits{}, 0)

	resp, err := gw.Complete(context.Background(), Request{Provider: "anthropic"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
}
