package llmgateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
)

// bedrockBackend routes completions through AWS Bedrock's Converse API,
// giving the gateway access to models (Llama, Titan, cross-region Claude)
// a direct Anthropic key cannot reach — the same "second cloud-hosted LLM
// path" kubernaut's go.mod anticipates with aws-sdk-go-v2.
type bedrockBackend struct {
	client *bedrockruntime.Client
	model  string
}

// NewBedrockBackend builds a Backend over an already-configured Bedrock
// runtime client and the model ID (inference profile ARN or model ID) used
// when a Request leaves Model empty.
func NewBedrockBackend(client *bedrockruntime.Client, defaultModel string) Backend {
	return &bedrockBackend{client: client, model: defaultModel}
}

func (b *bedrockBackend) Name() string { return "bedrock" }

func (b *bedrockBackend) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = b.model
	}

	var system []types.SystemContentBlock
	messages := make([]types.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = append(system, &types.SystemContentBlockMemberText{Value: m.Content})
			continue
		}
		role := types.ConversationRoleUser
		if m.Role == "assistant" {
			role = types.ConversationRoleAssistant
		}
		messages = append(messages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
		})
	}

	maxTokens := int32(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	out, err := b.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:  aws.String(model),
		Messages: messages,
		System:   system,
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(maxTokens),
			Temperature: aws.Float32(float32(req.Temperature)),
			TopP:        aws.Float32(float32(req.TopP)),
		},
	})
	if err != nil {
		return nil, classifyBedrockError(err)
	}

	var text string
	if msgOut, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range msgOut.Value.Content {
			if textBlock, ok := block.(*types.ContentBlockMemberText); ok {
				text += textBlock.Value
			}
		}
	}

	usage := Usage{}
	if out.Usage != nil {
		usage = Usage{
			InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
			TotalTokens:  int(aws.ToInt32(out.Usage.TotalTokens)),
		}
	}

	return &Response{
		Text:         text,
		FinishReason: string(out.StopReason),
		Usage:        usage,
	}, nil
}

func (b *bedrockBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	// Titan Embeddings is invoked through InvokeModel rather than Converse;
	// request/response bodies are Titan's own JSON envelope.
	body, err := json.Marshal(map[string]string{"inputText": text})
	if err != nil {
		return nil, &PermanentError{Provider: b.Name(), Err: err}
	}

	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String("amazon.titan-embed-text-v2:0"),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, classifyBedrockError(err)
	}

	var parsed struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(out.Body, &parsed); err != nil {
		return nil, &PermanentError{Provider: b.Name(), Err: fmt.Errorf("decode titan embedding response: %w", err)}
	}
	return parsed.Embedding, nil
}

func classifyBedrockError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ServiceUnavailableException", "InternalServerException", "ModelTimeoutException":
			return &TransientError{Provider: "bedrock", Err: err}
		default:
			return &PermanentError{Provider: "bedrock", Err: err}
		}
	}
	return &TransientError{Provider: "bedrock", Err: err}
}
