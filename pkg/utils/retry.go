package utils

import (
	"context"
	"time"
)

// RetryConfig bounds the exponential backoff Retry applies: a bounded number
// of attempts, doubling the delay each time, capped at MaxDelay. Its only
// caller is the Builder's signer submission for withdrawals; store scopes
// and persistence conflicts are not retried.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	out := c
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 3
	}
	if out.BaseDelay <= 0 {
		out.BaseDelay = 100 * time.Millisecond
	}
	if out.MaxDelay <= 0 {
		out.MaxDelay = 2 * time.Second
	}
	return out
}

// Retry runs fn up to cfg.MaxAttempts times, sleeping with doubling backoff
// between attempts. It returns fn's last error if every attempt fails, or
// nil on the first success. Sleeping is interrupted by ctx cancellation.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	cfg = cfg.withDefaults()

	var err error
	delay := cfg.BaseDelay
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return err
}
