package resilience

import (
	"time"

	"github.com/nicsan/crm-extract/internal/config"
)

// FromAWSConfig builds the retry policy for AWS calls, keeping defaults for
// unset values.
func FromAWSConfig(cfg config.AWSConfig, service, operation string) RetryConfig {
	rc := DefaultRetryConfig()
	if cfg.RetryMaxAttempts > 0 {
		rc.MaxAttempts = cfg.RetryMaxAttempts
	}
	if cfg.RetryBackoffMS > 0 {
		rc.InitialBackoff = time.Duration(cfg.RetryBackoffMS) * time.Millisecond
	}
	rc.OnRetry = RetryLogger(service, operation)
	return rc
}
