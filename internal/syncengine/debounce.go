package syncengine

import (
	"sync"
	"time"

	"github.com/xiaoshi569/nextchat/internal/clock"
)

// debouncer turns a stream of change notifications into scheduled pushes.
//
// A notification at least guard after the last scheduled push arms a timer
// for settle. Notifications while a timer is armed are absorbed. A
// notification inside the guard window with no timer armed arms one
// trailing timer at the end of the window, so the last change is always
// pushed. At most one timer is live at any time.
type debouncer struct {
	mu            sync.Mutex
	clk           clock.Clock
	guard         time.Duration
	settle        time.Duration
	fire          func()
	timer         *clock.Timer
	seq           uint64
	lastScheduled time.Time
}

func newDebouncer(clk clock.Clock, guard, settle time.Duration, fire func()) *debouncer {
	return &debouncer{clk: clk, guard: guard, settle: settle, fire: fire}
}

func (d *debouncer) Notify() {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.clk.Now()
	if d.lastScheduled.IsZero() || now.Sub(d.lastScheduled) >= d.guard {
		d.lastScheduled = now
		d.armLocked(d.settle)
		return
	}
	if d.timer != nil {
		return
	}
	end := d.lastScheduled.Add(d.guard)
	d.lastScheduled = end
	d.armLocked(end.Sub(now))
}

// Armed reports whether a push is pending.
func (d *debouncer) Armed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stop cancels any pending push and forgets the guard window.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	d.timer.Stop()
	d.timer = nil
	d.lastScheduled = time.Time{}
}

func (d *debouncer) armLocked(delay time.Duration) {
	if delay < time.Millisecond {
		delay = time.Millisecond
	}
	d.timer.Stop()
	d.seq++
	seq := d.seq
	d.timer = d.clk.AfterFunc(delay, func() { d.onFire(seq) })
}

func (d *debouncer) onFire(seq uint64) {
	d.mu.Lock()
	if d.seq != seq {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()
	d.fire()
}
