// Package retry runs an operation with bounded attempts and rate-limit aware backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// Policy configures one retry budget.
type Policy struct {
	// Name labels log lines, e.g. "bulk" or "chapter Budget".
	Name        string
	MaxAttempts int
	// RateLimitBackoff is multiplied by the attempt number after a rate-limited failure.
	RateLimitBackoff time.Duration
	// TransientDelay is the fixed wait after any other failure.
	TransientDelay time.Duration
	// IsRateLimited classifies errors. Nil treats every error as transient.
	IsRateLimited func(error) bool
	// Sleep waits between attempts. Nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before each wait, after the failed attempt.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// BulkPolicy returns the default budget for the single all-sections call.
func BulkPolicy() Policy {
	return Policy{
		Name:             "bulk",
		MaxAttempts:      3,
		RateLimitBackoff: 10 * time.Second,
		TransientDelay:   5 * time.Second,
	}
}

// ChapterPolicy returns the default budget for one per-chapter fallback call.
func ChapterPolicy() Policy {
	return Policy{
		Name:             "chapter",
		MaxAttempts:      3,
		RateLimitBackoff: 30 * time.Second,
		TransientDelay:   5 * time.Second,
	}
}

// ExhaustedError is returned when every attempt failed. Last is the final underlying error.
type ExhaustedError struct {
	Name     string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: gave up after %d attempts: %v", e.Name, e.Attempts, e.Last)
	}
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// WaitFor returns how long to wait after the given failed attempt (1-based).
func (p Policy) WaitFor(attempt int, err error) time.Duration {
	if p.IsRateLimited != nil && p.IsRateLimited(err) {
		return p.RateLimitBackoff * time.Duration(attempt)
	}
	return p.TransientDelay
}

// Do calls fn until it succeeds, returns a Permanent error, or the policy runs out of attempts.
// Attempts are strictly sequential.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		wait := p.WaitFor(attempt, err)
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, err)
		}
		log.Printf("[RETRY] %s: attempt %d/%d failed, waiting %v: %v", p.label(), attempt, attempts, wait, err)
		if err := sleep(ctx, wait); err != nil {
			return zero, fmt.Errorf("%s: retry wait interrupted: %w", p.label(), err)
		}
	}

	return zero, &ExhaustedError{Name: p.Name, Attempts: attempts, Last: lastErr}
}

func (p Policy) label() string {
	if p.Name == "" {
		return "call"
	}
	return p.Name
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
