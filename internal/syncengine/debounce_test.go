package syncengine

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaoshi569/nextchat/internal/clock"
)

func newTestDebouncer() (*debouncer, *clock.FakeClock, *atomic.Int32) {
	clk := clock.Fake(time.Unix(1_700_000_000, 0))
	var fired atomic.Int32
	d := newDebouncer(clk, 2*time.Second, time.Second, func() { fired.Add(1) })
	return d, clk, &fired
}

func TestDebouncerBurstFiresOnce(t *testing.T) {
	d, clk, fired := newTestDebouncer()
	for i := 0; i < 10; i++ {
		d.Notify()
		clk.Advance(50 * time.Millisecond)
	}
	assert.True(t, d.Armed())
	assert.Equal(t, 1, clk.PendingCount())

	clk.Advance(time.Second)
	assert.Equal(t, int32(1), fired.Load())
	assert.False(t, d.Armed())
}

func TestDebouncerTrailingFireInsideGuard(t *testing.T) {
	d, clk, fired := newTestDebouncer()
	d.Notify()
	clk.Advance(time.Second)
	require.Equal(t, int32(1), fired.Load())

	clk.Advance(200 * time.Millisecond)
	d.Notify()
	d.Notify()
	assert.Equal(t, 1, clk.PendingCount())

	clk.Advance(799 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
	clk.Advance(time.Millisecond)
	assert.Equal(t, int32(2), fired.Load())
}

func TestDebouncerQuietPeriodRestartsSettle(t *testing.T) {
	d, clk, fired := newTestDebouncer()
	d.Notify()
	clk.Advance(time.Second)
	clk.Advance(5 * time.Second)

	d.Notify()
	clk.Advance(999 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
	clk.Advance(time.Millisecond)
	assert.Equal(t, int32(2), fired.Load())
}

func TestDebouncerStopDropsPending(t *testing.T) {
	d, clk, fired := newTestDebouncer()
	d.Notify()
	d.Stop()
	assert.False(t, d.Armed())
	clk.Advance(10 * time.Second)
	assert.Equal(t, int32(0), fired.Load())

	d.Notify()
	clk.Advance(time.Second)
	assert.Equal(t, int32(1), fired.Load())
}

func TestOpQueueSerializesPerKey(t *testing.T) {
	q := newOpQueue()
	var (
		wg      sync.WaitGroup
		running atomic.Int32
		peak    atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.Do("s1", func() error {
				n := running.Add(1)
				if n > peak.Load() {
					peak.Store(n)
				}
				time.Sleep(time.Millisecond)
				running.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak.Load())
	assert.Equal(t, 0, q.size())
}

func TestOpQueueKeysAreIndependent(t *testing.T) {
	q := newOpQueue()
	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		_ = q.Do("a", func() error {
			close(entered)
			<-release
			return nil
		})
		close(done)
	}()
	<-entered

	err := q.Do("b", func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, q.size())

	close(release)
	<-done
	assert.Equal(t, 0, q.size())
}
