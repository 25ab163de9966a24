package state

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffConfig mirrors the retry shape: base delay, growth
// multiplier, and a hard ceiling.
type BackoffConfig struct {
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
}

// DefaultBackoffConfig matches the original's 1s/2x/60s shape.
var DefaultBackoffConfig = BackoffConfig{
	BaseDelay:  time.Second,
	Multiplier: 2.0,
	MaxDelay:   60 * time.Second,
}

// RetryDelay returns the delay before the (retryCount+1)th attempt,
// by stepping a deterministic (no jitter) ExponentialBackOff forward
// retryCount times rather than hand-rolling base*multiplier^n.
func RetryDelay(cfg BackoffConfig, retryCount int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.BaseDelay
	b.Multiplier = cfg.Multiplier
	b.MaxInterval = cfg.MaxDelay
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0
	b.Reset()

	delay := b.NextBackOff()
	for i := 0; i < retryCount; i++ {
		delay = b.NextBackOff()
	}

	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}

	return delay
}
