// Package gateway wraps the external services a run talks to: the language
// model, the embedding model, and the vector case store. All network
// failure modes are normalized to the error taxonomy in this file so the
// stages and retry policies never inspect provider-specific errors.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RateLimitError indicates the provider asked us to slow down.
type RateLimitError struct {
	Op         string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited: %v", e.Op, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// TimeoutError indicates a call exceeded its deadline.
type TimeoutError struct {
	Op      string
	Elapsed time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %s: %v", e.Op, e.Elapsed, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ConnectionError indicates the service could not be reached.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: connection failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ResponseFormatError indicates the model answered but not in the shape we
// asked for. Retried: regenerating often fixes it.
type ResponseFormatError struct {
	Op     string
	Detail string
	Err    error
}

func (e *ResponseFormatError) Error() string {
	return fmt.Sprintf("%s: malformed response (%s): %v", e.Op, e.Detail, e.Err)
}

func (e *ResponseFormatError) Unwrap() error { return e.Err }

// IsTransient is the retry predicate: the four taxonomy errors are worth
// re-attempting, everything else is permanent. Context cancellation is
// never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var (
		rate    *RateLimitError
		timeout *TimeoutError
		conn    *ConnectionError
		format  *ResponseFormatError
	)
	return errors.As(err, &rate) ||
		errors.As(err, &timeout) ||
		errors.As(err, &conn) ||
		errors.As(err, &format)
}

// classify maps a raw provider error into the taxonomy. Deadline errors
// become TimeoutError; everything else is treated as a connection-level
// transient failure, since langchaingo and gRPC both surface network and
// availability problems as opaque wrapped errors.
func classify(op string, elapsed time.Duration, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Elapsed: elapsed, Err: err}
	}
	return &ConnectionError{Op: op, Err: err}
}
