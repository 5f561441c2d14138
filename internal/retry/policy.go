package retry

import "time"

// ── Reconnect policy ─────────────────────────────────────────────────

// Policy maps a reconnect attempt count onto the delay before that
// attempt.  It is a plain value: no clock, no randomness, no I/O.
type Policy struct {
	// Delayed selects the schedule; when false every attempt is
	// immediate.
	Delayed bool
	// Schedule holds the delay for attempt 0, 1, 2, ...  Attempts past
	// the end reuse the final entry.
	Schedule []time.Duration
	// MaxAttempts bounds the number of scheduled attempts; 0 means
	// unlimited.
	MaxAttempts int
}

// Delay returns the wait before attempt number attempt (0-based).
// attempt is only read; callers increment their own counter after
// each scheduled attempt.
func (p Policy) Delay(attempt int) time.Duration {
	return Delay(attempt, p.Delayed, p.Schedule)
}

// Exhausted reports whether attempt is past the configured budget.
func (p Policy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}

// Delay is the pure schedule lookup behind [Policy.Delay]: zero when
// delayed is false, otherwise schedule[attempt] clamped to the last
// entry.  An empty schedule or a negative attempt yields zero / the
// first entry respectively.
func Delay(attempt int, delayed bool, schedule []time.Duration) time.Duration {
	if !delayed || len(schedule) == 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(schedule) {
		return schedule[len(schedule)-1]
	}
	return schedule[attempt]
}
