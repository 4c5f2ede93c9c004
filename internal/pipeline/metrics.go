package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var stageBuckets = []float64{.05, .1, .25, .5, 1, 2, 4, 8, 15, 30, 60, 120}

var (
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crm_extract_stage_duration_seconds",
		Help:    "Time spent in each extraction stage.",
		Buckets: stageBuckets,
	}, []string{"stage", "via"})

	extractionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_extract_extractions_total",
		Help: "Extractions by tier and outcome.",
	}, []string{"tier", "outcome"})

	textChars = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crm_extract_text_chars",
		Help:    "Characters of acquired document text.",
		Buckets: prometheus.ExponentialBuckets(16, 4, 8),
	})
)

// Outcome labels.
const (
	outcomeOK         = "ok"
	outcomeTextFailed = "text_failed"
	outcomeTextEmpty  = "text_empty"
	outcomeLLMFailed  = "llm_failed"
	outcomeInvalid    = "invalid"
)
