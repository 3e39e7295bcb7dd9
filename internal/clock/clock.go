// Package clock abstracts the time operations used by the sync engine so
// that debounce windows can be driven deterministically in tests.
package clock

import "time"

// Clock is the subset of the time package the engine depends on.
type Clock interface {
	Now() time.Time

	// AfterFunc waits for d, then calls f. The fake implementation calls
	// f synchronously from Advance.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the Timer from firing. It reports whether the call
// stopped a pending timer.
func (t *Timer) Stop() bool {
	if t == nil || t.stopFunc == nil {
		return false
	}
	return t.stopFunc()
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return &Timer{stopFunc: t.Stop}
}
