package llm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nicsan/crm-extract/internal/cache"
	"github.com/nicsan/crm-extract/internal/config"
	"github.com/nicsan/crm-extract/internal/cost"
	"github.com/nicsan/crm-extract/internal/model"
)

// Defaults used when Options leaves a value unset.
const (
	DefaultTimeout   = 4 * time.Second
	DefaultCacheTTL  = 120 * time.Second
	DefaultMaxTokens = 1024
)

// Options configures an Extractor.
type Options struct {
	// Models maps each tier to the backend model name.
	Models    map[model.Tier]string
	Timeout   time.Duration
	CacheTTL  time.Duration
	MaxTokens int
	Costs     *cost.Calculator
}

// OptionsFromConfig builds Options from the llm and cache config sections.
func OptionsFromConfig(llmCfg config.LLMConfig, cacheCfg config.CacheConfig, costs *cost.Calculator) Options {
	return Options{
		Models: map[model.Tier]string{
			model.TierPrimary:   llmCfg.PrimaryModel,
			model.TierSecondary: llmCfg.SecondaryModel,
		},
		Timeout:   llmCfg.Timeout(),
		CacheTTL:  cacheCfg.TTL(),
		MaxTokens: llmCfg.MaxOutputTokens,
		Costs:     costs,
	}
}

// Result is a successful extraction.
type Result struct {
	Tier  model.Tier `json:"tier"`
	Model string     `json:"model"`
	Data  Extracted  `json:"data"`
}

// Extractor calls the model for a tier and caches successful results per
// upload. It never retries.
type Extractor struct {
	completers map[model.Tier]Completer
	cache      cache.Cache
	opts       Options
}

// NewExtractor creates an Extractor. A nil cache disables caching.
func NewExtractor(completers map[model.Tier]Completer, c cache.Cache, opts Options) *Extractor {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Costs == nil {
		opts.Costs = cost.NewCalculator(cost.DefaultRates())
	}
	return &Extractor{completers: completers, cache: c, opts: opts}
}

func cacheKey(tier model.Tier, uploadID string) string {
	return string(tier) + ":" + uploadID
}

// Extract runs the tier's model over the windowed text. Every error is an
// *ExtractionError.
func (e *Extractor) Extract(ctx context.Context, uploadID string, tier model.Tier, insurerHint, windowed string) (*Result, error) {
	log := zap.L().With(zap.String("upload_id", uploadID), zap.String("tier", string(tier)))

	completer, ok := e.completers[tier]
	if !ok || completer == nil {
		return nil, newExtractionError(tier, CodeUnknown, "no model configured for tier", eris.Errorf("llm: no completer for tier %q", tier))
	}

	key := cacheKey(tier, uploadID)
	if hit, ok := e.cached(ctx, key, uploadID, log); ok {
		return hit, nil
	}

	modelName := e.opts.Models[tier]
	callCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	start := time.Now()
	comp, err := completer.Complete(callCtx, Request{
		Model:       modelName,
		System:      SystemPrompt(insurerHint),
		Document:    windowed,
		Schema:      Schema(),
		SchemaName:  SchemaName,
		Temperature: 0,
		MaxTokens:   e.opts.MaxTokens,
	})
	elapsed := time.Since(start)
	if err != nil {
		xerr := classify(tier, callCtx, err)
		log.Warn("llm: extraction failed",
			zap.String("model", modelName),
			zap.String("code", xerr.Code),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, xerr
	}

	if comp.Model != "" {
		modelName = comp.Model
	}
	log.Info("llm: completion",
		zap.String("model", modelName),
		zap.Int("input_tokens", comp.Usage.InputTokens),
		zap.Int("output_tokens", comp.Usage.OutputTokens),
		zap.Int("cached_input_tokens", comp.Usage.CachedInputTokens),
		zap.Float64("cost_usd", e.opts.Costs.LLM(modelName, comp.Usage)),
		zap.Duration("elapsed", elapsed),
	)

	data, err := parseReply(comp.Content)
	if err != nil {
		xerr := classify(tier, callCtx, err)
		log.Warn("llm: unusable reply", zap.String("code", xerr.Code), zap.Error(err))
		return nil, xerr
	}

	res := &Result{Tier: tier, Model: modelName, Data: data}
	e.store(ctx, key, uploadID, res, log)
	return res, nil
}

func (e *Extractor) cached(ctx context.Context, key, uploadID string, log *zap.Logger) (*Result, bool) {
	if e.cache == nil || uploadID == "" {
		return nil, false
	}
	raw, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		log.Warn("llm: cache read failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		log.Warn("llm: discarding corrupt cache entry", zap.Error(err))
		return nil, false
	}
	log.Debug("llm: cache hit")
	return &res, true
}

func (e *Extractor) store(ctx context.Context, key, uploadID string, res *Result, log *zap.Logger) {
	if e.cache == nil || uploadID == "" {
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		log.Warn("llm: encode cache entry", zap.Error(err))
		return
	}
	if err := e.cache.Set(ctx, key, raw, e.opts.CacheTTL); err != nil {
		log.Warn("llm: cache write failed", zap.Error(err))
	}
}
