// Package llm runs the strict-schema model call that turns windowed policy
// text into raw field candidates.
package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/nicsan/crm-extract/internal/config"
	"github.com/nicsan/crm-extract/internal/cost"
)

// Request is a single structured completion.
type Request struct {
	Model       string
	System      string
	Document    string
	Schema      json.RawMessage
	SchemaName  string
	Temperature float32
	MaxTokens   int
}

// Completion is a backend's raw reply.
type Completion struct {
	Content string
	Model   string
	Usage   cost.Usage
}

// Completer is a model backend. Implementations must honor ctx cancellation
// and return API errors unwrapped enough for errors.As.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// NewCompleter builds the backend selected by cfg.Provider.
func NewCompleter(cfg config.LLMConfig) (Completer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		return NewOpenAI(cfg.OpenAIKey, cfg.OpenAIBaseURL), nil
	case "anthropic":
		return NewAnthropic(cfg.AnthropicKey), nil
	default:
		return nil, eris.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
