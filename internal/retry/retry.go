// Package retry provides a generic bounded exponential-backoff executor
// with jitter. It is domain-agnostic: callers decide which failures are
// retryable, the engine only schedules fresh attempts.
package retry

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"time"
)

// Policy holds configuration for retry operations with exponential backoff.
// A Policy is an immutable value and is never mutated at runtime.
type Policy struct {
	// MaxRetries bounds the number of retries after the initial attempt,
	// so total attempts = MaxRetries + 1.
	MaxRetries int

	// BaseDelay is the pre-jitter delay after the first failed attempt.
	BaseDelay time.Duration

	// Multiplier is the exponential growth factor (e.g. 2.0 doubles delay).
	Multiplier float64

	// MaxDelay caps the pre-jitter delay.
	MaxDelay time.Duration

	// JitterFraction randomizes each delay as delay * (1 +/- JitterFraction),
	// drawn uniformly, to avoid synchronized retry storms (0.0-1.0).
	JitterFraction float64

	// Retryable determines which errors should trigger a retry.
	// If nil, all errors are considered retryable.
	Retryable func(error) bool
}

// DefaultPolicy returns a sensible default retry policy.
//
// Default settings:
//   - MaxRetries: 2 (3 total attempts)
//   - BaseDelay: 1 second
//   - Multiplier: 2.0
//   - MaxDelay: 30 seconds
//   - JitterFraction: 0.1
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     2,
		BaseDelay:      1 * time.Second,
		Multiplier:     2.0,
		MaxDelay:       30 * time.Second,
		JitterFraction: 0.1,
	}
}

// Validate checks that the policy values are usable.
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("MaxRetries must be non-negative, got %d", p.MaxRetries)
	}
	if p.BaseDelay <= 0 {
		return fmt.Errorf("BaseDelay must be positive, got %v", p.BaseDelay)
	}
	if p.Multiplier < 1.0 {
		return fmt.Errorf("Multiplier must be at least 1.0, got %v", p.Multiplier)
	}
	if p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("MaxDelay must be at least BaseDelay, got %v", p.MaxDelay)
	}
	if p.JitterFraction < 0 || p.JitterFraction > 1 {
		return fmt.Errorf("JitterFraction must be in [0,1], got %v", p.JitterFraction)
	}
	return nil
}

// Delay returns the pre-jitter delay after the given 0-based attempt:
// min(MaxDelay, BaseDelay * Multiplier^attempt).
func (p Policy) Delay(attempt int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// jittered applies uniform jitter to a delay: delay * (1 +/- fraction).
func (p Policy) jittered(delay time.Duration) time.Duration {
	if p.JitterFraction <= 0 || delay <= 0 {
		return delay
	}
	spread := int64(float64(delay) * p.JitterFraction)
	if spread <= 0 {
		return delay
	}
	return delay - time.Duration(spread) + time.Duration(randomInt64n(2*spread))
}

// ExhaustedError reports that all allowed attempts failed. It carries
// the attempt count, cumulative elapsed time and the last underlying
// error for diagnosis.
type ExhaustedError struct {
	Attempts int
	Elapsed  time.Duration
	Err      error
}

// Error implements the error interface
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts in %v: %v", e.Attempts, e.Elapsed.Round(time.Millisecond), e.Err)
}

// Unwrap returns the last underlying error
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do executes op with the given retry policy. op must perform one fresh
// attempt per invocation (e.g. re-sign with a new timestamp) and may be
// called up to MaxRetries+1 times. On each retryable failure that is not
// the final attempt, Do sleeps for the jittered backoff delay; the sleep
// observes ctx so cancellation stops further attempts. Non-retryable
// errors propagate immediately. After the final failure Do returns an
// *ExhaustedError wrapping the last error.
func Do[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	start := time.Now()

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if policy.Retryable != nil && !policy.Retryable(err) {
			return zero, err
		}

		if attempt == policy.MaxRetries {
			break
		}

		delay := policy.jittered(policy.Delay(attempt))

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	return zero, &ExhaustedError{
		Attempts: policy.MaxRetries + 1,
		Elapsed:  time.Since(start),
		Err:      lastErr,
	}
}

// randomInt64n returns a random int64 in the range [0, n) using
// crypto/rand, falling back to time-based randomness if reading fails.
func randomInt64n(n int64) int64 {
	if n <= 0 {
		return 0
	}

	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return time.Now().UnixNano() % n
	}

	val := int64(bytes[0])<<56 | int64(bytes[1])<<48 | int64(bytes[2])<<40 | int64(bytes[3])<<32 |
		int64(bytes[4])<<24 | int64(bytes[5])<<16 | int64(bytes[6])<<8 | int64(bytes[7])

	if val < 0 {
		val = -val
	}

	return val % n
}
