package client

import (
	"sync"
	"time"

	"ircc/internal/eventloop"
)

// Watchdog detects a silent connection.  While armed it keeps exactly
// one timeout scheduled on the loop; Feed pushes it back.  When the
// timeout runs, the callback given to that arm cycle is called once
// and the watchdog disarms itself until the next Arm.
type Watchdog struct {
	timeout time.Duration

	mu        sync.Mutex
	loop      eventloop.Loop
	handle    eventloop.Handle
	onTimeout func()
	armed     bool
	seq       uint64
}

// NewWatchdog returns a disarmed watchdog.
func NewWatchdog(timeout time.Duration) *Watchdog {
	return &Watchdog{timeout: timeout}
}

// Arm starts the timer on loop, replacing any previous arm cycle.
// onTimeout belongs to this cycle only; a later Arm replaces it.
func (w *Watchdog) Arm(loop eventloop.Loop, onTimeout func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancelLocked()
	w.loop = loop
	w.onTimeout = onTimeout
	w.armed = true
	w.scheduleLocked()
}

// Feed records inbound data.  It is a no-op while disarmed.
func (w *Watchdog) Feed() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.armed {
		return
	}
	w.cancelLocked()
	w.scheduleLocked()
}

// Disarm cancels the outstanding timeout.
func (w *Watchdog) Disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancelLocked()
	w.armed = false
}

// Armed reports whether a timeout is outstanding.
func (w *Watchdog) Armed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armed
}

// Timeout returns the silence window.
func (w *Watchdog) Timeout() time.Duration { return w.timeout }

func (w *Watchdog) scheduleLocked() {
	w.seq++
	seq := w.seq
	w.handle = w.loop.ScheduleAfter(w.timeout, func() { w.fire(seq) })
}

func (w *Watchdog) cancelLocked() {
	if w.handle != nil {
		w.handle.Cancel()
		w.handle = nil
	}
}

func (w *Watchdog) fire(seq uint64) {
	w.mu.Lock()
	if !w.armed || seq != w.seq {
		w.mu.Unlock()
		return
	}
	w.armed = false
	w.handle = nil
	fn := w.onTimeout
	w.mu.Unlock()

	if fn != nil {
		fn()
	}
}
