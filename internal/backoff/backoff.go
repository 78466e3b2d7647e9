// Package backoff is the single retry policy for transport calls. Call sites
// wrap their operation in Retry instead of rolling per-site loops.
package backoff

import (
	"context"
	"errors"
	"time"
)

// Policy bounds a retry loop: MaxAttempts total tries, exponential delay
// starting at BaseDelay and capped at MaxDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Default is the transport retry policy: 3 attempts, 200ms base, 2s cap.
func Default() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second}
}

// Permanent wraps an error to stop retrying immediately.
type Permanent struct{ Err error }

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

// MarkPermanent flags err as non-retryable.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &Permanent{Err: err}
}

// Retry runs fn until it succeeds, the policy is exhausted, the error is
// permanent, or ctx is done. Returns the last error unwrapped from any
// Permanent marker.
func (p Policy) Retry(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	delay := p.BaseDelay

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		var perm *Permanent
		if errors.As(err, &perm) {
			return perm.Err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		lastErr = err
	}

	return lastErr
}
