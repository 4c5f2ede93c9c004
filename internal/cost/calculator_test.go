package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nicsan/crm-extract/internal/config"
)

func testRates() Rates {
	return Rates{
		"mini":  {Input: 0.15, Output: 0.60, CachedInput: 0.075},
		"large": {Input: 3.00, Output: 15.00},
	}
}

func TestLLM(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name  string
		model string
		usage Usage
		want  float64
	}{
		{
			name:  "mini simple",
			model: "mini",
			usage: Usage{InputTokens: 1000000, OutputTokens: 100000},
			want:  0.15 + 0.06,
		},
		{
			name:  "mini with cached input",
			model: "mini",
			usage: Usage{InputTokens: 1000000, OutputTokens: 0, CachedInputTokens: 400000},
			// in: 0.6M * 0.15 = 0.09, cached: 0.4M * 0.075 = 0.03
			want: 0.09 + 0.03,
		},
		{
			name:  "cached rate falls back to input rate",
			model: "large",
			usage: Usage{InputTokens: 1000000, CachedInputTokens: 500000},
			want:  3.00,
		},
		{
			name:  "cached tokens capped at input",
			model: "mini",
			usage: Usage{InputTokens: 100, CachedInputTokens: 1000},
			want:  100.0 / 1e6 * 0.075,
		},
		{
			name:  "dated snapshot uses prefix",
			model: "mini-2024-07-18",
			usage: Usage{InputTokens: 1000000},
			want:  0.15,
		},
		{
			name:  "unknown model returns 0",
			model: "unknown",
			usage: Usage{InputTokens: 1000000, OutputTokens: 1000000},
			want:  0,
		},
		{
			name:  "zero tokens returns 0",
			model: "mini",
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := calc.LLM(tt.model, tt.usage)
			assert.InDelta(t, tt.want, got, 0.0001)
		})
	}
}

func TestFromConfig_OverridesDefaults(t *testing.T) {
	t.Parallel()
	calc := FromConfig(config.PricingConfig{Models: []config.ModelPricing{
		{Model: "gpt-4o-mini", Input: 1, Output: 2},
		{Model: "", Input: 9},
	}})

	assert.InDelta(t, 3.0, calc.LLM("gpt-4o-mini", Usage{InputTokens: 1000000, OutputTokens: 1000000}), 0.0001)
	assert.InDelta(t, 0.40, calc.LLM("gpt-4.1-mini", Usage{InputTokens: 1000000}), 0.0001)
}

func TestDefaultRates(t *testing.T) {
	t.Parallel()
	rates := DefaultRates()

	assert.Contains(t, rates, "gpt-4o-mini")
	assert.Contains(t, rates, "gpt-4.1-mini")
	assert.Contains(t, rates, "claude-haiku-4-5")
	assert.InDelta(t, 0.60, rates["gpt-4o-mini"].Output, 0.001)
}
