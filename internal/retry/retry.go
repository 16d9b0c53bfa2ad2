// Package retry implements the bounded exponential backoff shared by the
// vendor API clients. Rate-limit responses back off slower than server
// errors, and client errors are never retried.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"
)

// Class partitions retryable failures: each class has its own backoff schedule.
type Class int

const (
	// ClassRateLimited covers HTTP 429.
	ClassRateLimited Class = iota
	// ClassServerError covers HTTP 5xx and transport-level failures.
	ClassServerError
)

// Policy defines how retries are handled.
type Policy struct {
	MaxRetries         int
	RateLimitBackoff   time.Duration
	ServerErrorBackoff time.Duration
	BackoffFactor      float64
}

// DefaultPolicy returns the standard vendor-API schedule: three retries,
// 5s/10s/20s after rate limits, 2s/4s/8s after server errors.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:         3,
		RateLimitBackoff:   5 * time.Second,
		ServerErrorBackoff: 2 * time.Second,
		BackoffFactor:      2.0,
	}
}

// RetryableError wraps an error to indicate it should be retried.
type RetryableError struct {
	Err   error
	Class Class
}

func (e *RetryableError) Error() string { return e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

// RateLimited marks an error as retryable on the rate-limit schedule.
func RateLimited(err error) error {
	return &RetryableError{Err: err, Class: ClassRateLimited}
}

// ServerError marks an error as retryable on the server-error schedule.
func ServerError(err error) error {
	return &RetryableError{Err: err, Class: ClassServerError}
}

// FromStatus classifies an HTTP failure status. 429 and 5xx become retryable;
// any other status is returned as-is and fails immediately.
func FromStatus(status int, err error) error {
	switch {
	case status == http.StatusTooManyRequests:
		return RateLimited(err)
	case status >= 500:
		return ServerError(err)
	default:
		return err
	}
}

// IsRetryable checks if an error should trigger a retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable *RetryableError
	return errors.As(err, &retryable)
}

// Do executes fn with exponential backoff retry logic. After exhausting
// retries it fails with an explicit max-retries error wrapping the last
// failure.
func Do(ctx context.Context, policy Policy, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		var retryable *RetryableError
		if !errors.As(err, &retryable) {
			return err
		}

		// Don't sleep after the last attempt
		if attempt == policy.MaxRetries {
			break
		}

		backoff := Backoff(policy, retryable.Class, attempt)

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("max retries exceeded (%d): %w", policy.MaxRetries, lastErr)
}

// Backoff computes the wait before retrying a given attempt (0-based).
func Backoff(policy Policy, class Class, attempt int) time.Duration {
	initial := policy.ServerErrorBackoff
	if class == ClassRateLimited {
		initial = policy.RateLimitBackoff
	}

	return time.Duration(float64(initial) * math.Pow(policy.BackoffFactor, float64(attempt)))
}
