// Package llmgateway provides the uniform request/response interface over
// multiple LLM providers called for by spec §4.2: a single Complete/Embed
// contract shielding the workflow engine from per-provider parameter naming,
// rate limits, and failure semantics.
package llmgateway

import (
	"context"
	"fmt"
	"time"
)

// Request is the provider-agnostic completion request (§4.2).
type Request struct {
	Provider    string
	Model       string
	Messages    []Message
	Temperature float64
	TopP        float64
	MaxTokens   int
	Stop        []string
	JSONMode    bool
}

// Message is one turn of the conversation sent to the provider.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Response is the provider-agnostic completion response (§4.2).
type Response struct {
	Text         string
	FinishReason string
	Usage        Usage
}

// Usage reports token consumption for one Complete call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Gateway is the engine-facing LLM boundary (§4.2).
type Gateway interface {
	// Complete sends a single request to the named provider and returns its
	// response, or a Transient/Permanent error (§4.2 "Failure semantics").
	Complete(ctx context.Context, req Request) (*Response, error)

	// Embed returns a fixed-dimension embedding vector for text, using the
	// configured embedding model.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Backend is the per-provider adapter Gateway dispatches to. Each Backend
// hides one provider's own SDK and parameter-naming convention (§4.2
// "Provider abstraction").
type Backend interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// gateway is the default Gateway implementation: per-provider rate limiting
// and circuit breaking wrap a set of registered Backends.
type gateway struct {
	backends map[string]*guardedBackend
	timeout  time.Duration
}

// New builds a Gateway from a set of backends, each wrapped with the rate
// limit and circuit-breaker budgets in limits (keyed by provider name).
func New(backends []Backend, limits map[string]Limits, requestTimeout time.Duration) Gateway {
	g := &gateway{backends: make(map[string]*guardedBackend, len(backends)), timeout: requestTimeout}
	for _, b := range backends {
		l := limits[b.Name()]
		g.backends[b.Name()] = newGuardedBackend(b, l)
	}
	return g
}

func (g *gateway) Complete(ctx context.Context, req Request) (*Response, error) {
	gb, ok := g.backends[req.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, req.Provider)
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	return gb.Complete(ctx, req)
}

func (g *gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	// Embedding always targets the backend registered under "embedding";
	// callers configure which provider that name resolves to.
	gb, ok := g.backends["embedding"]
	if !ok {
		return nil, fmt.Errorf("%w: embedding", ErrUnknownProvider)
	}
	return gb.Embed(ctx, text)
}
