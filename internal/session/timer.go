package session

import (
	"sort"
	"sync"
	"time"
)

// TickSource abstracts the repeating one-second tick stream so tests can
// drive the countdown with synthetic ticks.
type TickSource interface {
	C() <-chan time.Time
	Stop()
}

type tickerSource struct {
	t *time.Ticker
}

// NewTickerSource returns a wall-clock TickSource with the given period.
func NewTickerSource(period time.Duration) TickSource {
	return &tickerSource{t: time.NewTicker(period)}
}

func (s *tickerSource) C() <-chan time.Time { return s.t.C }
func (s *tickerSource) Stop()               { s.t.Stop() }

// Timer is the countdown for one attempt: remaining seconds, one-shot
// threshold markers and a single Expired event. Stop is idempotent and
// race-free against in-flight ticks; a tick that arrives after Stop has
// no observable effect.
type Timer struct {
	mu         sync.Mutex
	remaining  int
	thresholds map[int]bool // threshold seconds -> already fired
	running    bool
	expired    bool
	done       chan struct{}
	source     TickSource

	onTick      func(remaining int)
	onThreshold func(threshold int)
	onExpire    func()
}

// NewTimer creates a stopped countdown with the given number of seconds
// and one-shot warning thresholds.
func NewTimer(seconds int, thresholds []int) *Timer {
	if seconds < 0 {
		seconds = 0
	}
	marks := make(map[int]bool, len(thresholds))
	for _, th := range thresholds {
		if th > 0 {
			marks[th] = false
		}
	}
	return &Timer{remaining: seconds, thresholds: marks}
}

// OnTick registers a callback fired after every decrement.
func (t *Timer) OnTick(fn func(remaining int)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTick = fn
}

// OnThreshold registers a callback fired at most once per threshold.
func (t *Timer) OnThreshold(fn func(threshold int)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onThreshold = fn
}

// OnExpire registers a callback fired exactly once when remaining hits 0.
func (t *Timer) OnExpire(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onExpire = fn
}

// Remaining returns the current remaining seconds.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Start begins consuming ticks from src. Starting an already running or
// expired timer is a no-op; src is stopped in that case.
func (t *Timer) Start(src TickSource) {
	t.mu.Lock()
	if t.running || t.expired {
		t.mu.Unlock()
		src.Stop()
		return
	}
	t.running = true
	t.source = src
	done := make(chan struct{})
	t.done = done
	t.mu.Unlock()

	go func() {
		for {
			select {
			case <-done:
				return
			case _, ok := <-src.C():
				if !ok {
					return
				}
				t.Tick()
			}
		}
	}()
}

// Stop halts the countdown. Safe to call multiple times and from
// callbacks; remaining time is preserved so a later Start resumes.
func (t *Timer) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.done)
	src := t.source
	t.source = nil
	t.mu.Unlock()

	if src != nil {
		src.Stop()
	}
}

// Tick advances the countdown by one period. No-op unless running.
// Exported so the tick loop and tests share one code path.
func (t *Timer) Tick() {
	t.mu.Lock()
	if !t.running || t.expired {
		t.mu.Unlock()
		return
	}
	if t.remaining > 0 {
		t.remaining--
	}
	rem := t.remaining

	var crossed []int
	for th, fired := range t.thresholds {
		if !fired && rem <= th {
			t.thresholds[th] = true
			crossed = append(crossed, th)
		}
	}

	expired := rem == 0
	var src TickSource
	if expired {
		t.expired = true
		t.running = false
		close(t.done)
		src = t.source
		t.source = nil
	}

	onTick := t.onTick
	onThreshold := t.onThreshold
	onExpire := t.onExpire
	t.mu.Unlock()

	// Callbacks run without the lock so they may call Stop/Remaining.
	if src != nil {
		src.Stop()
	}
	if onTick != nil {
		onTick(rem)
	}
	if onThreshold != nil {
		// Highest threshold first when several are crossed by one tick.
		sort.Sort(sort.Reverse(sort.IntSlice(crossed)))
		for _, th := range crossed {
			onThreshold(th)
		}
	}
	if expired && onExpire != nil {
		onExpire()
	}
}
