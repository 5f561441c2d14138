// Package retry holds the two delay schedules a session lives by: the
// fixed reconnect Policy the client walks after a drop, and the jittered
// Backoff used while the very first connect has not succeeded yet.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// ── Permanent errors ─────────────────────────────────────────────────

// PermanentError marks a connect failure that another attempt cannot
// fix, such as a malformed target.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that [Backoff.Do] returns it at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries a [PermanentError].
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// ── First-connect backoff ────────────────────────────────────────────

// Backoff retries the initial connect with a growing, capped delay.
// Zero fields fall back to the DefaultBackoff values.
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// MaxAttempts counts the first try; 0 retries until ctx ends.
	MaxAttempts int
	// Jitter spreads each wait by ±25%.
	Jitter bool
	// Retryable, when set, stops the loop on errors it rejects.
	Retryable func(error) bool
	// OnRetry sees the failed attempt number, the coming wait and the
	// error before each wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// DefaultBackoff is the first-connect schedule: 2s doubling up to 30s,
// five tries, jittered.
func DefaultBackoff() *Backoff {
	return &Backoff{
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		MaxAttempts:  5,
		Jitter:       true,
	}
}

// Do calls connect with a 1-based attempt number until it returns nil,
// a [Permanent] error, or the attempt budget or ctx runs out.
func (b *Backoff) Do(ctx context.Context, connect func(attempt int) error) error {
	def := DefaultBackoff()
	delay := b.InitialDelay
	if delay <= 0 {
		delay = def.InitialDelay
	}
	multiplier := b.Multiplier
	if multiplier <= 0 {
		multiplier = def.Multiplier
	}
	maxDelay := b.MaxDelay
	if maxDelay <= 0 {
		maxDelay = def.MaxDelay
	}

	for attempt := 1; ; attempt++ {
		err := connect(attempt)
		switch {
		case err == nil:
			return nil
		case IsPermanent(err):
			return errors.Unwrap(err)
		case b.Retryable != nil && !b.Retryable(err):
			return err
		case b.MaxAttempts > 0 && attempt >= b.MaxAttempts:
			return fmt.Errorf("gave up after %d connect attempts: %w", attempt, err)
		}

		wait := delay
		if b.Jitter {
			wait = addJitter(delay)
		}
		if b.OnRetry != nil {
			b.OnRetry(attempt, wait, err)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("connect abandoned after %d attempts: %w", attempt, ctx.Err())
		case <-t.C:
		}

		delay = min(time.Duration(float64(delay)*multiplier), maxDelay)
	}
}

// addJitter moves d by up to a quarter either way, never below 1ms.
func addJitter(d time.Duration) time.Duration {
	quarter := float64(d) * 0.25
	delta := (rand.Float64() * 2 * quarter) - quarter
	return time.Duration(math.Max(float64(d)+delta, float64(time.Millisecond)))
}
