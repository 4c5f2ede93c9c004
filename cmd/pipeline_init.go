package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nicsan/crm-extract/internal/blob"
	"github.com/nicsan/crm-extract/internal/cache"
	"github.com/nicsan/crm-extract/internal/cost"
	"github.com/nicsan/crm-extract/internal/llm"
	"github.com/nicsan/crm-extract/internal/model"
	"github.com/nicsan/crm-extract/internal/monitoring"
	"github.com/nicsan/crm-extract/internal/ocr"
	"github.com/nicsan/crm-extract/internal/pipeline"
	"github.com/nicsan/crm-extract/internal/resilience"
	"github.com/nicsan/crm-extract/internal/review"
	"github.com/nicsan/crm-extract/internal/store"
	"github.com/nicsan/crm-extract/internal/textsource"
)

// pipelineEnv holds the store, the extraction orchestrator and the review
// services needed by the serve/extract/process commands.
type pipelineEnv struct {
	Store        store.Store
	Orchestrator *pipeline.Orchestrator
	Worker       *review.Worker
	Confirmer    *review.Confirmer
	Collector    *monitoring.Collector

	redis *redis.Client // nil unless cache.backend is redis
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.redis != nil {
		_ = pe.redis.Close()
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// openStore validates config for mode, opens the configured store and
// applies migrations. Callers should defer st.Close().
func openStore(ctx context.Context, mode string) (store.Store, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initPipeline sets up the store, the AWS and LLM clients, and builds the
// Orchestrator. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	st, err := openStore(ctx, mode)
	if err != nil {
		return nil, err
	}
	env := &pipelineEnv{Store: st}

	awsCfg, err := blob.LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		env.Close()
		return nil, err
	}
	blobs := blob.NewS3Store(
		blob.NewS3Client(awsCfg, cfg.AWS.Endpoint),
		cfg.S3,
		resilience.FromAWSConfig(cfg.AWS, "s3", "object"),
	)
	jobs := ocr.NewTextractFromConfig(awsCfg, resilience.FromAWSConfig(cfg.AWS, "textract", "start_job"))

	parser, err := ocr.NewParser(cfg.Text)
	if err != nil {
		env.Close()
		return nil, err
	}

	textOpts := textsource.DefaultOptions()
	if cfg.Text.PageLimit > 0 {
		textOpts.PageLimit = cfg.Text.PageLimit
	}
	if cfg.Text.OCRThreshold > 0 {
		textOpts.OCRThreshold = cfg.Text.OCRThreshold
	}
	if d := cfg.Textract.Timeout(); d > 0 {
		textOpts.OCRTimeout = d
	}
	if d := cfg.Textract.PollInterval(); d > 0 {
		textOpts.PollInterval = d
	}
	text := textsource.New(blobs, parser, jobs, textOpts)

	completer, err := llm.NewCompleter(cfg.LLM)
	if err != nil {
		env.Close()
		return nil, err
	}
	completers := map[model.Tier]llm.Completer{
		model.TierPrimary:   completer,
		model.TierSecondary: completer,
	}

	var resultCache cache.Cache
	switch cfg.Cache.Backend {
	case "redis":
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.redis = rdb
		resultCache = cache.NewRedis(rdb, cfg.Redis.Prefix)
	default:
		resultCache = cache.NewMemory()
	}

	costs := cost.FromConfig(cfg.Pricing)
	extractor := llm.NewExtractor(completers, resultCache, llm.OptionsFromConfig(cfg.LLM, cfg.Cache, costs))

	env.Orchestrator = pipeline.New(text, extractor, pipeline.Options{
		MinOCRChars: cfg.Text.MinOCRChars,
		AssistDebug: cfg.Assist.Debug,
	})
	env.Worker = review.NewWorker(st, env.Orchestrator)
	env.Confirmer = review.NewConfirmer(st)
	env.Collector = monitoring.NewCollector(st, prometheus.DefaultRegisterer)

	zap.L().Info("pipeline initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("parser", cfg.Text.Parser),
		zap.String("cache", cfg.Cache.Backend),
	)
	return env, nil
}
