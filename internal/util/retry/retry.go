// Package retry retries cloud operations that fail while a resource is
// temporarily locked, using exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config holds retry configuration.
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Option is a functional option for retry configuration.
type Option func(*Config)

// WithMaxRetries sets the maximum number of retries after the first attempt.
func WithMaxRetries(n int) Option {
	return func(c *Config) { c.MaxRetries = n }
}

// WithInitialDelay sets the delay before the first retry.
func WithInitialDelay(d time.Duration) Option {
	return func(c *Config) { c.InitialDelay = d }
}

// WithMaxDelay caps the delay between retries.
func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) { c.MaxDelay = d }
}

// WithExponentialBackoff runs operation until it succeeds, returns an error
// marked with Fatal, the retries are exhausted, or ctx ends.
func WithExponentialBackoff(ctx context.Context, operation func() error, opts ...Option) error {
	cfg := &Config{
		MaxRetries:   5,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.InitialDelay
	exp.MaxInterval = cfg.MaxDelay
	exp.MaxElapsedTime = 0

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		return operation()
	}, backoff.WithContext(backoff.WithMaxRetries(exp, uint64(cfg.MaxRetries)), ctx))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("context cancelled after %d attempts: %w", attempts, errors.Join(ctx.Err(), err))
	}
	return fmt.Errorf("operation failed after %d attempts: %w", attempts, err)
}

// Fatal marks an error as non-retryable.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// IsFatal reports whether err was marked with Fatal.
func IsFatal(err error) bool {
	var permanent *backoff.PermanentError
	return errors.As(err, &permanent)
}
