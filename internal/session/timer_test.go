package session

import (
	"testing"
	"time"
)

// stubTicks is a TickSource whose channel never fires; tests drive the
// countdown through Tick directly for determinism.
type stubTicks struct {
	ch      chan time.Time
	stopped bool
}

func newStubTicks() *stubTicks {
	return &stubTicks{ch: make(chan time.Time)}
}

func (s *stubTicks) C() <-chan time.Time { return s.ch }
func (s *stubTicks) Stop()               { s.stopped = true }

func TestTimerCountdownAndExpiry(t *testing.T) {
	// 5 minutes with warnings at 300s and 60s.
	tm := NewTimer(300, []int{300, 60})

	var ticks, expires int
	var thresholds []int
	tm.OnTick(func(int) { ticks++ })
	tm.OnThreshold(func(th int) { thresholds = append(thresholds, th) })
	tm.OnExpire(func() { expires++ })

	tm.Start(newStubTicks())
	for i := 0; i < 300; i++ {
		tm.Tick()
	}

	if got := tm.Remaining(); got != 0 {
		t.Errorf("remaining = %d, want 0", got)
	}
	if expires != 1 {
		t.Errorf("expire fired %d times, want exactly 1", expires)
	}
	if ticks != 300 {
		t.Errorf("tick fired %d times, want 300", ticks)
	}
	if len(thresholds) != 2 || thresholds[0] != 300 || thresholds[1] != 60 {
		t.Errorf("thresholds fired = %v, want [300 60]", thresholds)
	}

	// Ticks after expiry must have no observable effect.
	tm.Tick()
	if expires != 1 || tm.Remaining() != 0 {
		t.Errorf("post-expiry tick had effect: expires=%d remaining=%d", expires, tm.Remaining())
	}
}

func TestTimerThresholdFiresOnceRegardlessOfGranularity(t *testing.T) {
	tm := NewTimer(62, []int{60})

	var fired []int
	tm.OnThreshold(func(th int) { fired = append(fired, th) })

	tm.Start(newStubTicks())
	for i := 0; i < 62; i++ {
		tm.Tick()
	}

	if len(fired) != 1 || fired[0] != 60 {
		t.Errorf("threshold fired = %v, want exactly [60]", fired)
	}
}

func TestTimerStaleTickAfterStop(t *testing.T) {
	tm := NewTimer(100, nil)
	tm.Start(newStubTicks())
	tm.Tick()
	if tm.Remaining() != 99 {
		t.Fatalf("remaining = %d, want 99", tm.Remaining())
	}

	tm.Stop()
	tm.Tick() // stale tick from an already-torn-down interval
	if tm.Remaining() != 99 {
		t.Errorf("stale tick decremented: remaining = %d, want 99", tm.Remaining())
	}

	// Stop is idempotent.
	tm.Stop()
	tm.Stop()
}

func TestTimerResumeAfterStop(t *testing.T) {
	tm := NewTimer(10, nil)
	tm.Start(newStubTicks())
	tm.Tick()
	tm.Tick()
	tm.Stop()

	tm.Start(newStubTicks())
	tm.Tick()
	if got := tm.Remaining(); got != 7 {
		t.Errorf("remaining = %d, want 7 (countdown resumes where it stopped)", got)
	}
}

func TestTimerStartAfterExpiryIsNoop(t *testing.T) {
	tm := NewTimer(1, nil)
	var expires int
	tm.OnExpire(func() { expires++ })

	tm.Start(newStubTicks())
	tm.Tick()
	if expires != 1 {
		t.Fatalf("expires = %d, want 1", expires)
	}

	src := newStubTicks()
	tm.Start(src)
	tm.Tick()
	if expires != 1 {
		t.Errorf("restarted an expired timer: expires = %d", expires)
	}
	if !src.stopped {
		t.Error("source passed to a dead timer must be stopped")
	}
}

func TestTimerWallClockTick(t *testing.T) {
	// One real tick through the goroutine loop to cover Start's plumbing.
	tm := NewTimer(5, nil)
	done := make(chan struct{})
	tm.OnTick(func(int) {
		select {
		case <-done:
		default:
			close(done)
		}
	})

	tm.Start(NewTickerSource(5 * time.Millisecond))
	defer tm.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("no tick observed from wall-clock source")
	}
}
