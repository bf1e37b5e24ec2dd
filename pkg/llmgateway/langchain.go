package llmgateway

import (
	"context"
	"errors"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// langchainBackend adapts any langchaingo llms.Model — used here for
// OpenAI-compatible endpoints including self-hosted/local inference servers
// (§4.2 "local model" requirement) — to the gateway's Backend contract.
// Grounded on kubernaut's generic llms.Model usage: the engine never knows
// it is talking to langchaingo underneath.
type langchainBackend struct {
	name  string
	model llms.Model
}

// NewOpenAICompatBackend builds a Backend backed by langchaingo's OpenAI
// client pointed at any OpenAI-compatible base URL (OpenAI itself, Azure
// OpenAI, vLLM, Ollama's OpenAI shim, etc).
func NewOpenAICompatBackend(name, baseURL, apiKey, defaultModel string) (Backend, error) {
	opts := []openai.Option{openai.WithModel(defaultModel)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	if apiKey != "" {
		opts = append(opts, openai.WithToken(apiKey))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	return &langchainBackend{name: name, model: model}, nil
}

func (l *langchainBackend) Name() string { return l.name }

func (l *langchainBackend) Complete(ctx context.Context, req Request) (*Response, error) {
	content := make([]llms.MessageContent, 0, len(req.Messages))
	for _, m := range req.Messages {
		content = append(content, llms.TextParts(roleToChatMessageType(m.Role), m.Content))
	}

	callOpts := []llms.CallOption{
		llms.WithTemperature(req.Temperature),
		llms.WithTopP(req.TopP),
	}
	if req.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(req.MaxTokens))
	}
	if len(req.Stop) > 0 {
		callOpts = append(callOpts, llms.WithStopWords(req.Stop))
	}
	if req.Model != "" {
		callOpts = append(callOpts, llms.WithModel(req.Model))
	}
	if req.JSONMode {
		callOpts = append(callOpts, llms.WithJSONMode())
	}

	resp, err := l.model.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		return nil, classifyLangchainError(l.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, &TransientError{Provider: l.name, Err: errors.New("empty choices in response")}
	}
	choice := resp.Choices[0]

	usage := Usage{}
	if choice.GenerationInfo != nil {
		if v, ok := choice.GenerationInfo["PromptTokens"].(int); ok {
			usage.InputTokens = v
		}
		if v, ok := choice.GenerationInfo["CompletionTokens"].(int); ok {
			usage.OutputTokens = v
		}
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	}

	return &Response{
		Text:         choice.Content,
		FinishReason: choice.StopReason,
		Usage:        usage,
	}, nil
}

func (l *langchainBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	embedder, ok := l.model.(interface {
		CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
	})
	if !ok {
		return nil, &PermanentError{Provider: l.name, Err: errors.New("backend does not support embeddings")}
	}
	vectors, err := embedder.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, classifyLangchainError(l.name, err)
	}
	if len(vectors) == 0 {
		return nil, &TransientError{Provider: l.name, Err: errors.New("empty embedding response")}
	}
	return vectors[0], nil
}

func roleToChatMessageType(role string) llms.ChatMessageType {
	switch role {
	case "system":
		return llms.ChatMessageTypeSystem
	case "assistant":
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

// classifyLangchainError maps a langchaingo/OpenAI error into the gateway's
// taxonomy by inspecting the status text langchaingo embeds in Error(),
// since langchaingo does not export a typed status-code error.
func classifyLangchainError(provider string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"),
		strings.Contains(msg, "connection reset"), strings.Contains(msg, "502"),
		strings.Contains(msg, "503"), strings.Contains(msg, "500"):
		return &TransientError{Provider: provider, Err: err}
	default:
		return &PermanentError{Provider: provider, Err: err}
	}
}
