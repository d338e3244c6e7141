package utils

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
)

// RetryConfig holds retry configuration.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
	// RetryIf decides whether a failure is worth another attempt.
	// Nil retries every failure.
	RetryIf func(error) bool
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
	}
}

func (c RetryConfig) backoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    c.InitialDelay,
		Max:    c.MaxDelay,
		Factor: c.BackoffFactor,
		Jitter: c.Jitter,
	}
}

// Retry executes a function with exponential backoff retry. It stops
// early when ctx is cancelled.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	b := cfg.backoff()

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := fn(); err != nil {
			lastErr = err
			if cfg.RetryIf != nil && !cfg.RetryIf(err) {
				return err
			}

			if attempt < cfg.MaxAttempts-1 {
				if err := Sleep(ctx, b.Duration()); err != nil {
					return err
				}
			}
		} else {
			return nil
		}
	}
	return lastErr
}

// RetryWithResult executes a function with exponential backoff retry
// and returns its result.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var lastErr error
	var zero T
	b := cfg.backoff()

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result, err := fn()
		if err != nil {
			lastErr = err
			if cfg.RetryIf != nil && !cfg.RetryIf(err) {
				return zero, err
			}

			if attempt < cfg.MaxAttempts-1 {
				if err := Sleep(ctx, b.Duration()); err != nil {
					return zero, err
				}
			}
		} else {
			return result, nil
		}
	}
	return zero, lastErr
}

// Sleep waits for d or until ctx is cancelled, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
