package tracker

import "sync"

// StreakTracker counts consecutive accepted suggestions for telemetry.
type StreakTracker struct {
	mu     sync.Mutex
	length int
}

// NewStreakTracker creates a StreakTracker.
func NewStreakTracker() *StreakTracker {
	return &StreakTracker{}
}

// RecordAccept increments the streak and returns its new length.
func (t *StreakTracker) RecordAccept() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.length++
	return t.length
}

// RecordNonAccept resets the streak. It returns the pre-reset length and
// whether a reset actually occurred, so a broken one-long streak (length 0,
// reset true) stays distinguishable from no streak at all (length 0, reset
// false).
func (t *StreakTracker) RecordNonAccept() (length int, reset bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.length == 0 {
		return 0, false
	}
	length = t.length
	t.length = 0
	return length, true
}

// Length returns the current streak length without modifying it.
func (t *StreakTracker) Length() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.length
}
