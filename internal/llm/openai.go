package llm

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"github.com/sashabaranov/go-openai"

	"github.com/nicsan/crm-extract/internal/cost"
)

// OpenAI is a Completer backed by the chat completions API with a strict
// json_schema response format.
type OpenAI struct {
	client *openai.Client
}

var _ Completer = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI backend. baseURL overrides the API endpoint
// when set.
func NewOpenAI(apiKey, baseURL string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg)}
}

// Complete implements Completer. The document is sent as the same three user
// turns for every call.
func (o *OpenAI) Complete(ctx context.Context, req Request) (*Completion, error) {
	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: req.System},
	}
	for _, m := range documentMessages(req.Document) {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m})
	}

	// A zero temperature is dropped by omitempty; the smallest positive float
	// is sent instead.
	temp := req.Temperature
	if temp == 0 {
		temp = math.SmallestNonzeroFloat32
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: temp,
		MaxTokens:   req.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.SchemaName,
				Schema: req.Schema,
				Strict: true,
			},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "llm: openai chat completion")
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("llm: openai returned no choices")
	}

	usage := cost.Usage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	if d := resp.Usage.PromptTokensDetails; d != nil {
		usage.CachedInputTokens = d.CachedTokens
	}

	return &Completion{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage:   usage,
	}, nil
}
