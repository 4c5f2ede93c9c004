package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is used when NewChecker is given a non-positive interval.
const DefaultInterval = 30 * time.Second

// Checker refreshes the collector's gauges in the background.
type Checker struct {
	collector *Collector
	interval  time.Duration
}

// NewChecker creates a background refresher.
func NewChecker(collector *Collector, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Checker{collector: collector, interval: interval}
}

// Run collects once immediately and then on every tick. It blocks until
// ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting upload status checker", zap.Duration("interval", c.interval))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.check(ctx, log)
	for {
		select {
		case <-ctx.Done():
			log.Info("upload status checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	snap, err := c.collector.Collect(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Error("monitoring: failed to collect upload counts", zap.Error(err))
		}
		return
	}
	log.Debug("monitoring: upload counts refreshed",
		zap.Int("total", snap.Total),
		zap.Int("backlog", snap.Backlog),
	)
}
