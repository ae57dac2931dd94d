package clock

import (
	"time"

	"go.uber.org/fx"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// Clock is an interface that abstracts the functionality for measuring and scheduling time.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep pauses the current goroutine for at least the duration d. A negative or zero duration causes Sleep to return immediately.
	Sleep(duration time.Duration)

	// AfterFunc waits for the duration to elapse and then calls f in its own goroutine.
	// The returned Timer can be used to cancel or refresh the call.
	AfterFunc(duration time.Duration, f func()) Timer
}

// Timer wraps a scheduled call for cancellation and rescheduling.
type Timer interface {
	Stop() bool
	Reset(duration time.Duration) bool
}

type clock struct{}

// New creates a new instance of Clock.
func New() Clock {
	return clock{}
}

func (clock) Now() time.Time {
	return time.Now()
}

func (clock) Sleep(duration time.Duration) {
	time.Sleep(duration)
}

func (clock) AfterFunc(duration time.Duration, f func()) Timer {
	return timer{t: time.AfterFunc(duration, f)}
}

type timer struct {
	t *time.Timer
}

func (w timer) Stop() bool {
	return w.t.Stop()
}

func (w timer) Reset(duration time.Duration) bool {
	return w.t.Reset(duration)
}
