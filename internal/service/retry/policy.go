// Package retry defines the bounded backoff policy used around external calls.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Policy defines a retry strategy.
type Policy struct {
	MaxAttempts int           // total attempts, first call included
	BaseDelay   time.Duration // delay after the first failure
	MaxDelay    time.Duration // cap applied before jitter
	Multiplier  float64       // growth per attempt, 2 doubles
	Jitter      float64       // 0.0-1.0, symmetric
	Rand        func() float64
}

// DefaultPolicy returns the policy used for generation calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2,
		Jitter:      0.2,
	}
}

// NoRetry returns a policy that makes a single attempt.
func NoRetry() Policy {
	return Policy{MaxAttempts: 1}
}

// maxBackoff leaves room for full jitter without overflowing time.Duration.
const maxBackoff = time.Duration(math.MaxInt64 >> 2)

// Delay returns the wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 || p.BaseDelay <= 0 {
		return 0
	}

	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	// Capped in float space; large attempts would overflow time.Duration.
	limit := float64(maxBackoff)
	if p.MaxDelay > 0 && p.MaxDelay < maxBackoff {
		limit = float64(p.MaxDelay)
	}
	raw := float64(p.BaseDelay) * math.Pow(multiplier, float64(attempt-1))
	if raw > limit || math.IsNaN(raw) {
		raw = limit
	}
	delay := time.Duration(raw)

	if p.Jitter > 0 {
		random := p.Rand
		if random == nil {
			random = rand.Float64
		}
		jitter := float64(delay) * math.Min(p.Jitter, 1) * (random()*2 - 1)
		delay = time.Duration(float64(delay) + jitter)
	}
	if delay < 0 {
		return 0
	}
	return delay
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Clock abstracts waiting so tests can run without sleeping.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// RealClock waits on the wall clock.
var RealClock Clock = realClock{}

// Classifier reports whether err is worth another attempt.
type Classifier func(err error) bool

// Func is one attempt; attempt is 1-based.
type Func func(ctx context.Context, attempt int) error

// Do runs fn until it succeeds, fails with an error classify rejects, or the
// policy's attempts are used up. It returns the number of attempts made and
// the last error.
func Do(ctx context.Context, policy Policy, clock Clock, classify Classifier, fn Func) (int, error) {
	if clock == nil {
		clock = RealClock
	}
	if classify == nil {
		classify = func(err error) bool { return !IsPermanent(err) }
	}

	maxAttempts := policy.attempts()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return attempt - 1, lastErr
			}
			return attempt - 1, err
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if !classify(lastErr) || attempt == maxAttempts {
			return attempt, lastErr
		}

		if delay := policy.Delay(attempt); delay > 0 {
			select {
			case <-ctx.Done():
				return attempt, lastErr
			case <-clock.After(delay):
			}
		}
	}
	return maxAttempts, lastErr
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var target *permanentError
	return errors.As(err, &target)
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked with Transient.
func IsTransient(err error) bool {
	var target *transientError
	return errors.As(err, &target)
}
