package ocr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultPollInterval = 2 * time.Second

// ErrJobTimeout is matched by errors.Is for any TimeoutError.
var ErrJobTimeout = errors.New("ocr: job timed out")

// TimeoutError reports a job that did not finish within the polling ceiling.
// The job itself is left running.
type TimeoutError struct {
	JobID   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("ocr: job %s not finished after %s", e.JobID, e.Timeout)
}

// Is makes errors.Is(err, ErrJobTimeout) hold.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrJobTimeout
}

// WaitOption configures polling behavior.
type WaitOption func(*waitConfig)

type waitConfig struct {
	interval time.Duration
}

// WithPollInterval overrides the time between status checks.
func WithPollInterval(d time.Duration) WaitOption {
	return func(c *waitConfig) {
		if d > 0 {
			c.interval = d
		}
	}
}

// Wait polls jobID until it succeeds, fails or timeout elapses, then returns
// the job's text lines. Status checks are paced by a rate limiter so the
// first check is immediate and later ones are one interval apart.
func Wait(ctx context.Context, jobs JobService, jobID string, timeout time.Duration, opts ...WaitOption) ([]string, error) {
	cfg := waitConfig{interval: defaultPollInterval}
	for _, opt := range opts {
		opt(&cfg)
	}

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(cfg.interval), 1)
	for {
		if err := limiter.Wait(pollCtx); err != nil {
			return nil, waitErr(ctx, jobID, timeout, err)
		}

		status, err := jobs.PollJob(pollCtx, jobID)
		if err != nil {
			if pollCtx.Err() != nil {
				return nil, waitErr(ctx, jobID, timeout, err)
			}
			return nil, err
		}

		switch status {
		case JobSucceeded:
			return jobs.FetchLines(ctx, jobID)
		case JobFailed, JobPartial:
			return nil, eris.Errorf("ocr: job %s finished with status %s", jobID, status)
		}
		zap.L().Debug("ocr: job pending", zap.String("job_id", jobID), zap.String("status", string(status)))
	}
}

// waitErr separates the caller's cancellation from the polling ceiling. The
// limiter refuses to wait past the deadline, so a ceiling hit may surface
// before the context is actually done.
func waitErr(parent context.Context, jobID string, timeout time.Duration, err error) error {
	if perr := parent.Err(); perr != nil {
		return eris.Wrapf(perr, "ocr: wait for job %s", jobID)
	}
	zap.L().Warn("ocr: job timed out", zap.String("job_id", jobID), zap.Duration("timeout", timeout), zap.Error(err))
	return &TimeoutError{JobID: jobID, Timeout: timeout}
}
