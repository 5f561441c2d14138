// Package eventloop provides the scheduling primitive the client is
// driven by.  A [Loop] runs delayed callbacks one at a time and hosts
// blocking work (socket reads, dials) off the callback path.
//
// Two implementations ship with the package: [EventLoop], a single
// goroutine reactor backed by wall-clock timers, and [Manual], a
// virtual-clock loop whose time only moves when a test says so.
package eventloop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"ircc/util"
)

// Handle identifies one scheduled callback.
type Handle interface {
	// Cancel stops the callback from running.  It reports false when
	// the callback already ran or was already cancelled.
	Cancel() bool
}

// Loop is the minimal scheduling surface the client depends on.
type Loop interface {
	// ScheduleAfter runs fn on the loop once d has elapsed.  A zero d
	// queues fn behind the callbacks already due.
	ScheduleAfter(d time.Duration, fn func()) Handle

	// Cancel is shorthand for h.Cancel() that tolerates a nil handle.
	Cancel(h Handle)

	// RunInBackground runs fn outside the loop.  fn may block; it must
	// hand results back with ScheduleAfter(0, ...).
	RunInBackground(fn func())
}

// ── EventLoop ────────────────────────────────────────────────────────

// EventLoop executes callbacks serially on the goroutine that calls
// [EventLoop.Run].  It is safe to schedule from any goroutine.
type EventLoop struct {
	logger *util.Logger

	mu      sync.Mutex
	pending []func()
	wake    chan struct{}

	done     chan struct{}
	stopOnce sync.Once
}

// New returns an idle EventLoop.  Callbacks queue up until Run is
// called.
func New(logger *util.Logger) *EventLoop {
	return &EventLoop{
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// timerHandle moves pending → fired or pending → cancelled exactly
// once.  The fired transition happens on the loop goroutine, so a
// Cancel issued from another callback always wins against a timer that
// expired but has not yet run.
type timerHandle struct {
	timer *time.Timer
	state atomic.Int32
}

const (
	statePending int32 = iota
	stateFired
	stateCancelled
)

func (h *timerHandle) Cancel() bool {
	if !h.state.CompareAndSwap(statePending, stateCancelled) {
		return false
	}
	if h.timer != nil {
		h.timer.Stop()
	}
	return true
}

func (h *timerHandle) claim() bool {
	return h.state.CompareAndSwap(statePending, stateFired)
}

// ScheduleAfter implements [Loop].
func (l *EventLoop) ScheduleAfter(d time.Duration, fn func()) Handle {
	h := &timerHandle{}
	run := func() {
		if h.claim() {
			fn()
		}
	}
	if d <= 0 {
		l.post(run)
		return h
	}
	h.timer = time.AfterFunc(d, func() { l.post(run) })
	return h
}

// Cancel implements [Loop].
func (l *EventLoop) Cancel(h Handle) {
	if h != nil {
		h.Cancel()
	}
}

// RunInBackground implements [Loop].
func (l *EventLoop) RunInBackground(fn func()) {
	go fn()
}

// Run executes callbacks until ctx is cancelled or Stop is called.
func (l *EventLoop) Run(ctx context.Context) error {
	l.logger.Debug("running")
	for {
		select {
		case <-ctx.Done():
			l.Stop()
			return ctx.Err()
		case <-l.done:
			return nil
		case <-l.wake:
		}

		for _, fn := range l.drain() {
			select {
			case <-l.done:
				return nil
			default:
			}
			fn()
		}
	}
}

// Stop makes Run return.  Callbacks still queued are dropped.
func (l *EventLoop) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
		l.logger.Debug("stopped")
	})
}

func (l *EventLoop) post(fn func()) {
	select {
	case <-l.done:
		return
	default:
	}

	l.mu.Lock()
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *EventLoop) drain() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.pending
	l.pending = nil
	return out
}
