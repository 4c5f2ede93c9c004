package llm

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/nicsan/crm-extract/internal/cost"
	"github.com/nicsan/crm-extract/pkg/anthropic"
)

const defaultAnthropicMaxTokens = 1024

// Anthropic is a Completer backed by the Messages API. There is no native
// response format, so the schema travels in the system prompt and the reply
// is parsed as JSON.
type Anthropic struct {
	client anthropic.Client
}

var _ Completer = (*Anthropic)(nil)

// NewAnthropic creates an Anthropic backend.
func NewAnthropic(apiKey string) *Anthropic {
	return NewAnthropicWithClient(anthropic.NewClient(apiKey))
}

// NewAnthropicWithClient wraps an existing client.
func NewAnthropicWithClient(client anthropic.Client) *Anthropic {
	return &Anthropic{client: client}
}

// Complete implements Completer.
func (a *Anthropic) Complete(ctx context.Context, req Request) (*Completion, error) {
	system := req.System +
		"\n\nRespond with one JSON object and nothing else. It must validate against this JSON schema:\n" +
		string(req.Schema)

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	temp := float64(req.Temperature)

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     req.Model,
		MaxTokens: maxTokens,
		System: []anthropic.SystemBlock{
			{Text: system, CacheControl: &anthropic.CacheControl{}},
		},
		Messages: []anthropic.Message{
			{Role: "user", Content: strings.Join(documentMessages(req.Document), "\n\n")},
		},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrap(err, "llm: anthropic message")
	}

	u := resp.Usage
	return &Completion{
		Content: resp.Text(),
		Model:   resp.Model,
		Usage: cost.Usage{
			InputTokens:       int(u.InputTokens + u.CacheReadInputTokens + u.CacheCreationInputTokens),
			OutputTokens:      int(u.OutputTokens),
			CachedInputTokens: int(u.CacheReadInputTokens),
		},
	}, nil
}
