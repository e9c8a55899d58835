// Package resilience provides the cross-cutting wrappers applied to every
// external call the pipeline makes: retry with exponential backoff and
// TTL-bounded LRU caching. Both are parameterized so any new gateway
// operation composes with them without duplicating logic.
package resilience

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryConfig configures retry behavior for one class of operation.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialDelay is the sleep before the first re-attempt.
	InitialDelay time.Duration

	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration

	// Factor is the multiplier applied to the delay after each attempt.
	Factor float64

	// Jitter is the random jitter factor (0.0-1.0) applied to each delay.
	Jitter float64

	// Retryable decides whether an error is worth another attempt.
	// A nil Retryable retries everything.
	Retryable func(error) bool
}

// GenerationRetry is the policy for language-model calls.
var GenerationRetry = RetryConfig{
	MaxAttempts:  3,
	InitialDelay: 1 * time.Second,
	MaxDelay:     30 * time.Second,
	Factor:       2.0,
	Jitter:       0.1,
}

// SearchRetry is the policy for vector-store operations. Searches are
// cheaper to repeat than generations, so the backoff starts shorter.
var SearchRetry = RetryConfig{
	MaxAttempts:  3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
	Factor:       2.0,
	Jitter:       0.1,
}

// NoRetry disables retries.
var NoRetry = RetryConfig{MaxAttempts: 1}

// RetryResult carries the outcome of a retried operation.
type RetryResult[T any] struct {
	// Value is the result of the last successful attempt.
	Value T

	// Err is the final error if all attempts failed, wrapped with the
	// attempt count. errors.Is/As still reach the underlying error.
	Err error

	// Attempts is the number of attempts actually made.
	Attempts int

	// Delayed is the number of backoff sleeps taken.
	Delayed int
}

// Do executes fn with retries, respecting context cancellation.
//
// Only errors the config's Retryable predicate accepts are retried; anything
// else passes through immediately with the attempt count recorded. When
// attempts are exhausted the last error is returned wrapped — a persistent
// failure is never swallowed.
func Do[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error)) RetryResult[T] {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	retryable := cfg.Retryable
	if retryable == nil {
		retryable = func(error) bool { return true }
	}

	delay := cfg.InitialDelay
	res := RetryResult[T]{}

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			res.Err = fmt.Errorf("aborted after %d attempts: %w", res.Attempts, err)
			return res
		}

		value, err := fn(ctx)
		res.Attempts = attempt + 1
		if err == nil {
			res.Value = value
			return res
		}

		if !retryable(err) {
			res.Err = err
			return res
		}

		if attempt == cfg.MaxAttempts-1 {
			res.Err = fmt.Errorf("max attempts (%d) exceeded: %w", cfg.MaxAttempts, err)
			return res
		}

		select {
		case <-ctx.Done():
			res.Err = fmt.Errorf("aborted during backoff after %d attempts: %w (last error: %v)", res.Attempts, ctx.Err(), err)
			return res
		case <-time.After(withJitter(delay, cfg.Jitter)):
			res.Delayed++
		}

		delay = time.Duration(float64(delay) * cfg.Factor)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return res
}

// withJitter spreads a delay by +/- base*jitter to avoid thundering herds.
func withJitter(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 || base <= 0 {
		return base
	}
	spread := float64(base) * jitter * (rand.Float64()*2 - 1)
	return time.Duration(float64(base) + spread)
}
