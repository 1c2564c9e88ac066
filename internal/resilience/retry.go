package resilience

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. The breaker still counts it as a
// success since the downstream answered.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Retry runs a call up to MaxAttempts times with exponential backoff.
type Retry struct {
	MaxAttempts int
	BaseBackoff time.Duration
	Jitter      float64
}

// Do runs fn until it succeeds, returns a Permanent error, the breaker opens,
// or attempts run out. breaker may be nil.
func (r Retry) Do(ctx context.Context, breaker *Breaker, fn func(context.Context) error) error {
	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if breaker != nil && !breaker.Allow(ctx) {
			if lastErr != nil {
				return errors.Join(ErrOpenCircuit, lastErr)
			}
			return ErrOpenCircuit
		}
		err := fn(ctx)
		var perm permanentError
		if err == nil || errors.As(err, &perm) {
			if breaker != nil {
				breaker.Report(ctx, true)
			}
			if err != nil {
				return perm.err
			}
			return nil
		}
		lastErr = err
		if breaker != nil {
			breaker.Report(ctx, false)
		}
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(Backoff(r.BaseBackoff, attempt, r.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

// Backoff returns an exponential delay for attempt. Jitter is a fraction, e.g. 0.2 for 20%.
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base * time.Duration(1<<uint(attempt-1))
	if jitterPct <= 0 {
		return d
	}
	jitter := float64(d) * jitterPct
	return d + time.Duration((rand.Float64()*2-1)*jitter)
}
