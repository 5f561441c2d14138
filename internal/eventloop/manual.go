package eventloop

import (
	"sync"
	"time"
)

// Manual is a [Loop] driven by a virtual clock.  Nothing runs until
// [Manual.Advance] or [Manual.RunDue] is called, which makes timer
// behaviour reproducible in tests.  Background work still runs on real
// goroutines.
type Manual struct {
	mu    sync.Mutex
	now   time.Duration
	seq   int
	tasks []*manualTask
}

// NewManual returns a Manual loop at virtual time zero.
func NewManual() *Manual {
	return &Manual{}
}

type manualTask struct {
	loop      *Manual
	at        time.Duration
	seq       int
	fn        func()
	done      bool
	cancelled bool
}

func (t *manualTask) Cancel() bool {
	t.loop.mu.Lock()
	defer t.loop.mu.Unlock()
	if t.done || t.cancelled {
		return false
	}
	t.cancelled = true
	return true
}

// ScheduleAfter implements [Loop].
func (m *Manual) ScheduleAfter(d time.Duration, fn func()) Handle {
	if d < 0 {
		d = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTask{loop: m, at: m.now + d, seq: m.seq, fn: fn}
	m.tasks = append(m.tasks, t)
	return t
}

// Cancel implements [Loop].
func (m *Manual) Cancel(h Handle) {
	if h != nil {
		h.Cancel()
	}
}

// RunInBackground implements [Loop].
func (m *Manual) RunInBackground(fn func()) {
	go fn()
}

// Now returns the virtual time elapsed since creation.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending returns the number of callbacks that are scheduled and not
// cancelled.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if !t.done && !t.cancelled {
			n++
		}
	}
	return n
}

// NextDue returns the delay until the earliest pending callback.
func (m *Manual) NextDue() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.next(-1)
	if t == nil {
		return 0, false
	}
	return t.at - m.now, true
}

// RunDue runs every callback due at the current virtual time,
// including ones they schedule with a zero delay.  It returns the
// number of callbacks run.
func (m *Manual) RunDue() int {
	return m.Advance(0)
}

// Advance moves the clock forward by d, running due callbacks in
// deadline order (ties in scheduling order).  It returns the number of
// callbacks run.
func (m *Manual) Advance(d time.Duration) int {
	m.mu.Lock()
	target := m.now + d
	ran := 0
	for {
		t := m.next(target)
		if t == nil {
			break
		}
		t.done = true
		if t.at > m.now {
			m.now = t.at
		}
		m.mu.Unlock()
		t.fn()
		ran++
		m.mu.Lock()
	}
	m.now = target
	m.compact()
	m.mu.Unlock()
	return ran
}

// next returns the earliest live task due at or before limit; a
// negative limit means no bound.  Caller holds mu.
func (m *Manual) next(limit time.Duration) *manualTask {
	var best *manualTask
	for _, t := range m.tasks {
		if t.done || t.cancelled {
			continue
		}
		if limit >= 0 && t.at > limit {
			continue
		}
		if best == nil || t.at < best.at || (t.at == best.at && t.seq < best.seq) {
			best = t
		}
	}
	return best
}

func (m *Manual) compact() {
	live := m.tasks[:0]
	for _, t := range m.tasks {
		if !t.done && !t.cancelled {
			live = append(live, t)
		}
	}
	for i := len(live); i < len(m.tasks); i++ {
		m.tasks[i] = nil
	}
	m.tasks = live
}
