// Package monitoring reports upload pipeline health.
package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rotisserie/eris"

	"github.com/nicsan/crm-extract/internal/model"
)

// Snapshot is a point-in-time view of the upload queue.
type Snapshot struct {
	Counts map[model.UploadStatus]int `json:"counts"`
	Total  int                        `json:"total"`
	// Backlog counts uploads not yet ready for review.
	Backlog     int       `json:"backlog"`
	AwaitReview int       `json:"awaiting_review"`
	CollectedAt time.Time `json:"collected_at"`
}

// StatusCounter is the store method the collector needs.
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[model.UploadStatus]int, error)
}

// Collector gathers upload counts and mirrors them into a gauge.
type Collector struct {
	counter StatusCounter
	uploads *prometheus.GaugeVec
}

// NewCollector creates a Collector whose gauge is registered with reg.
func NewCollector(counter StatusCounter, reg prometheus.Registerer) *Collector {
	return &Collector{
		counter: counter,
		uploads: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "crm_extract_uploads",
			Help: "Uploads per lifecycle status.",
		}, []string{"status"}),
	}
}

// Collect reads the current counts and updates the gauge.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	counts, err := c.counter.CountByStatus(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count uploads")
	}

	snap := &Snapshot{Counts: counts, CollectedAt: time.Now().UTC()}
	for status, n := range counts {
		snap.Total += n
		c.uploads.WithLabelValues(string(status)).Set(float64(n))
	}
	snap.Backlog = counts[model.StatusUploaded] + counts[model.StatusProcessing]
	snap.AwaitReview = counts[model.StatusReview] + counts[model.StatusCompleted]
	return snap, nil
}
