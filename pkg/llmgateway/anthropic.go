package llmgateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicBackend talks to Anthropic's Messages API directly through the
// vendor SDK rather than through langchaingo, matching the way kubernaut
// keeps a native Anthropic client alongside its generic llms.Model path for
// providers its holmesgpt integration depends on directly.
type anthropicBackend struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicBackend builds a Backend for the given API key and default
// model (used when a Request leaves Model empty).
func NewAnthropicBackend(apiKey, defaultModel string) Backend {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &anthropicBackend{client: &client, model: defaultModel}
}

func (a *anthropicBackend) Name() string { return "anthropic" }

func (a *anthropicBackend) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = a.model
	}

	var system string
	msgs := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = m.Content
		case "assistant":
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  msgs,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyAnthropicError(err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return &Response{
		Text:         text,
		FinishReason: string(msg.StopReason),
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}, nil
}

func (a *anthropicBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, &PermanentError{Provider: a.Name(), Err: errors.New("anthropic backend does not support embeddings")}
}

// classifyAnthropicError maps the SDK's *anthropic.Error status code into
// the gateway's Transient/Permanent taxonomy (§7): 429 and 5xx are
// transient, everything else — bad request, auth, content policy — is
// permanent.
func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return &TransientError{Provider: "anthropic", Err: err}
		case apiErr.StatusCode >= 500:
			return &TransientError{Provider: "anthropic", Err: err}
		default:
			return &PermanentError{Provider: "anthropic", Err: err}
		}
	}
	// Connection-level failures (timeouts, resets) surface without a typed
	// API error and are treated as transient.
	return &TransientError{Provider: "anthropic", Err: err}
}
