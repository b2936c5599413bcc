package llm

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig holds retry configuration for generation requests.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int `yaml:"max_attempts"`

	// BackoffBase is the wait before the first retry.
	BackoffBase time.Duration `yaml:"backoff_base"`

	// BackoffMultiplier is applied to the wait on each further retry.
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`

	// MaxBackoff caps a single wait.
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// DefaultRetryConfig waits 2s, 4s before the second and third attempts.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}

// policy builds a fresh backoff schedule for one Complete call. Waits are
// not jittered so schedules are reproducible.
func (rc RetryConfig) policy() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = rc.BackoffBase
	eb.Multiplier = rc.BackoffMultiplier
	eb.MaxInterval = rc.MaxBackoff
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	eb.Reset()

	retries := rc.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithMaxRetries(eb, uint64(retries))
}
