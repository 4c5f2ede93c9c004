package cost

import (
	"strings"

	"github.com/nicsan/crm-extract/internal/config"
)

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input       float64 `yaml:"input" mapstructure:"input"`
	Output      float64 `yaml:"output" mapstructure:"output"`
	CachedInput float64 `yaml:"cached_input" mapstructure:"cached_input"`
}

// Rates maps model names to their pricing.
type Rates map[string]ModelRate

// Usage is the token accounting of a single LLM call.
type Usage struct {
	InputTokens       int
	OutputTokens      int
	CachedInputTokens int
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// FromConfig builds a Calculator from DefaultRates overlaid with configured
// per-model prices.
func FromConfig(cfg config.PricingConfig) *Calculator {
	rates := DefaultRates()
	for _, m := range cfg.Models {
		if m.Model == "" {
			continue
		}
		rates[m.Model] = ModelRate{Input: m.Input, Output: m.Output, CachedInput: m.CachedInput}
	}
	return NewCalculator(rates)
}

// rate resolves a model's pricing. Dated snapshot names such as
// "gpt-4o-mini-2024-07-18" fall back to the longest configured prefix.
func (c *Calculator) rate(model string) (ModelRate, bool) {
	if r, ok := c.rates[model]; ok {
		return r, true
	}
	best := ""
	for name := range c.rates {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return ModelRate{}, false
	}
	return c.rates[best], true
}

// LLM computes the USD cost of a call. Unknown models cost 0.
func (c *Calculator) LLM(model string, u Usage) float64 {
	rate, ok := c.rate(model)
	if !ok {
		return 0
	}

	cached := min(u.CachedInputTokens, u.InputTokens)
	cachedRate := rate.CachedInput
	if cachedRate == 0 {
		cachedRate = rate.Input
	}

	inCost := (float64(u.InputTokens-cached) / 1e6) * rate.Input
	crCost := (float64(cached) / 1e6) * cachedRate
	outCost := (float64(u.OutputTokens) / 1e6) * rate.Output

	return inCost + crCost + outCost
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		"gpt-4o-mini":       {Input: 0.15, Output: 0.60, CachedInput: 0.075},
		"gpt-4.1-mini":      {Input: 0.40, Output: 1.60, CachedInput: 0.10},
		"claude-haiku-4-5":  {Input: 1.00, Output: 5.00, CachedInput: 0.10},
		"claude-sonnet-4-5": {Input: 3.00, Output: 15.00, CachedInput: 0.30},
	}
}
