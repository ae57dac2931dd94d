// Package clocktest provides a manually-advanced Clock for tests.
package clocktest

import (
	"sync"
	"time"

	"github.com/uber/assist-lsp/src/alsp/internal/clock"
)

// Fake is a Clock whose time only moves when Advance is called. Scheduled
// functions run synchronously inside Advance once their deadline passes.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

// NewFake creates a Fake clock starting at the given time.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Sleep advances the clock by d instead of blocking.
func (f *Fake) Sleep(d time.Duration) {
	f.Advance(d)
}

// AfterFunc schedules fn to run when the clock advances past d.
func (f *Fake) AfterFunc(d time.Duration, fn func()) clock.Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &fakeTimer{clock: f, deadline: f.now.Add(d), fn: fn}
	f.timers = append(f.timers, t)
	return t
}

// Advance moves the clock forward, firing due timers in deadline order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()

	for {
		t := f.nextDue()
		if t == nil {
			return
		}
		t.fn()
	}
}

func (f *Fake) nextDue() *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()

	var due *fakeTimer
	idx := -1
	for i, t := range f.timers {
		if t.stopped || t.deadline.After(f.now) {
			continue
		}
		if due == nil || t.deadline.Before(due.deadline) {
			due = t
			idx = i
		}
	}
	if due == nil {
		return nil
	}
	f.timers = append(f.timers[:idx], f.timers[idx+1:]...)
	return due
}

type fakeTimer struct {
	clock    *Fake
	deadline time.Time
	fn       func()
	stopped  bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped
	t.stopped = false
	t.deadline = t.clock.now.Add(d)
	for _, existing := range t.clock.timers {
		if existing == t {
			return was
		}
	}
	t.clock.timers = append(t.clock.timers, t)
	return was
}
