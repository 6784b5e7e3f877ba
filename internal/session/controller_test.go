package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

// memStore is an in-memory Store for controller tests.
type memStore struct {
	mu         sync.Mutex
	activeExam map[int]string
	counts     map[int]int
	cleared    int
}

func newMemStore() *memStore {
	return &memStore{activeExam: make(map[int]string), counts: make(map[int]int)}
}

func (s *memStore) SaveActiveExam(_ context.Context, studentID int, examID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeExam[studentID] = examID
	return nil
}

func (s *memStore) SaveViolationCount(_ context.Context, studentID int, _ string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[studentID] = count
	return nil
}

func (s *memStore) LoadViolationCount(_ context.Context, studentID int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[studentID], nil
}

func (s *memStore) Clear(_ context.Context, studentID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.activeExam, studentID)
	delete(s.counts, studentID)
	s.cleared++
	return nil
}

// countingGateway records every Submission; failures controls how many
// initial calls error out.
type countingGateway struct {
	mu       sync.Mutex
	calls    int32
	failures int
	last     *Submission
}

func (g *countingGateway) Submit(_ context.Context, sub *Submission) (*Outcome, error) {
	atomic.AddInt32(&g.calls, 1)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failures > 0 {
		g.failures--
		return nil, errors.New("gateway unreachable")
	}
	g.last = sub
	return &Outcome{
		Score:      float64(len(sub.Answers)),
		Total:      len(sub.Answers),
		Terminated: sub.Reason == ReasonViolationLimit,
	}, nil
}

func (g *countingGateway) callCount() int { return int(atomic.LoadInt32(&g.calls)) }

func testDefinition(n int) Definition {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("q%02d", i)
	}
	return Definition{ExamID: "exam-1", Title: "Sample Paper", DurationMinutes: 5, QuestionIDs: ids}
}

func newTestController(t *testing.T, store Store, gw Gateway) *Controller {
	t.Helper()
	cfg := Config{
		RequireInstructionsGate: true,
		ViolationLimit:          3,
		WarningThresholds:       []int{300, 60},
		WindowSize:              10,
	}
	c, err := New(context.Background(), testDefinition(23), 7, cfg, store, gw, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.setTickSource(func() TickSource { return newStubTicks() })
	return c
}

func TestControllerLifecycle(t *testing.T) {
	store := newMemStore()
	gw := &countingGateway{}
	c := newTestController(t, store, gw)

	if got := c.State(); got != StateNotStarted {
		t.Fatalf("initial state = %v, want NOT_STARTED", got)
	}
	if store.activeExam[7] != "exam-1" {
		t.Error("active exam not persisted on construction")
	}

	// Pre-start: mutations and submission are rejected.
	c.RecordAnswer("q00", 1)
	if _, ok := c.Snapshot().Answers["q00"]; ok {
		t.Error("answer recorded before start")
	}
	if _, err := c.Submit(context.Background(), ReasonManual); !errors.Is(err, ErrNotStarted) {
		t.Errorf("pre-start submit error = %v, want ErrNotStarted", err)
	}

	if err := c.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if got := c.State(); got != StateInProgress {
		t.Fatalf("state after Begin = %v, want IN_PROGRESS", got)
	}
	if err := c.Begin(); err != nil {
		t.Errorf("second Begin must be a no-op, got %v", err)
	}

	c.RecordAnswer("q00", 2)
	c.RecordAnswer("q00", 3) // overwrite
	snap := c.Snapshot()
	if snap.Answers["q00"] != 3 {
		t.Errorf("answer = %d, want last write 3", snap.Answers["q00"])
	}
	if snap.RemainingSeconds != 300 {
		t.Errorf("remaining = %d, want 300", snap.RemainingSeconds)
	}

	out, err := c.Submit(context.Background(), ReasonManual)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if c.State() != StateSubmitted {
		t.Errorf("state = %v, want SUBMITTED", c.State())
	}
	if gw.callCount() != 1 {
		t.Errorf("gateway calls = %d, want 1", gw.callCount())
	}
	if store.cleared != 1 {
		t.Errorf("store cleared %d times, want 1", store.cleared)
	}

	// Idempotence: the settled outcome is returned, no second call.
	again, err := c.Submit(context.Background(), ReasonManual)
	if err != nil {
		t.Fatalf("repeat Submit: %v", err)
	}
	if again != out {
		t.Error("repeat submit returned a different outcome")
	}
	if gw.callCount() != 1 {
		t.Errorf("gateway calls after repeat = %d, want 1", gw.callCount())
	}

	// Post-terminal mutations are no-ops.
	c.RecordAnswer("q01", 1)
	if _, ok := c.Snapshot().Answers["q01"]; ok {
		t.Error("answer recorded after terminal state")
	}
}

func TestControllerSubmitPayload(t *testing.T) {
	store := newMemStore()
	gw := &countingGateway{}
	c := newTestController(t, store, gw)
	if err := c.Begin(); err != nil {
		t.Fatal(err)
	}

	def := c.Definition()
	for i, id := range def.QuestionIDs {
		c.RecordAnswer(id, i%4)
	}
	if !c.Snapshot().Complete {
		t.Fatal("snapshot not complete after answering everything")
	}

	if _, err := c.Submit(context.Background(), ReasonManual); err != nil {
		t.Fatal(err)
	}

	if len(gw.last.Answers) != 23 {
		t.Errorf("payload answers = %d entries, want 23", len(gw.last.Answers))
	}
	for i, id := range def.QuestionIDs {
		if gw.last.Answers[id] != i%4 {
			t.Errorf("payload answer[%s] = %d, want %d", id, gw.last.Answers[id], i%4)
		}
	}
	if gw.last.Reason != ReasonManual {
		t.Errorf("payload reason = %v, want MANUAL", gw.last.Reason)
	}
}

func TestControllerConcurrentSubmitExactlyOneGatewayCall(t *testing.T) {
	for run := 0; run < 20; run++ {
		store := newMemStore()
		gw := &countingGateway{}
		c := newTestController(t, store, gw)
		if err := c.Begin(); err != nil {
			t.Fatal(err)
		}

		reasons := []SubmitReason{ReasonManual, ReasonTimerExpired, ReasonViolationLimit}
		var wg sync.WaitGroup
		for _, r := range reasons {
			wg.Add(1)
			go func(r SubmitReason) {
				defer wg.Done()
				c.Submit(context.Background(), r) //nolint:errcheck
			}(r)
		}
		wg.Wait()

		if gw.callCount() != 1 {
			t.Fatalf("run %d: gateway calls = %d, want exactly 1", run, gw.callCount())
		}
		if st := c.State(); st != StateSubmitted && st != StateTerminated {
			t.Fatalf("run %d: state = %v, want SUBMITTED or TERMINATED", run, st)
		}
	}
}

func TestControllerViolationCeiling(t *testing.T) {
	store := newMemStore()
	gw := &countingGateway{}
	c := newTestController(t, store, gw)
	if err := c.Begin(); err != nil {
		t.Fatal(err)
	}

	hide := func() {
		c.ObserveVisibility(true)
		c.ObserveVisibility(false)
	}

	hide()
	hide()
	if gw.callCount() != 0 {
		t.Fatalf("submitted before the ceiling: calls = %d", gw.callCount())
	}
	if store.counts[7] != 2 {
		t.Errorf("persisted count = %d, want 2", store.counts[7])
	}

	hide() // third violation hits the ceiling
	if gw.callCount() != 1 {
		t.Fatalf("gateway calls = %d, want 1", gw.callCount())
	}
	if c.State() != StateTerminated {
		t.Errorf("state = %v, want TERMINATED", c.State())
	}
	if gw.last.Reason != ReasonViolationLimit {
		t.Errorf("reason = %v, want VIOLATION_LIMIT", gw.last.Reason)
	}
	if gw.last.MalpracticeCount != 3 {
		t.Errorf("payload malpractice count = %d, want 3", gw.last.MalpracticeCount)
	}

	// A 4th hidden transition after termination has no effect.
	hide()
	if gw.callCount() != 1 || c.State() != StateTerminated {
		t.Error("post-terminal visibility event had an effect")
	}
}

func TestControllerRestoresViolationCountAcrossReload(t *testing.T) {
	store := newMemStore()
	store.counts[7] = 2 // survived a full page reload

	gw := &countingGateway{}
	c := newTestController(t, store, gw)
	if err := c.Begin(); err != nil {
		t.Fatal(err)
	}

	if got := c.Snapshot().MalpracticeCount; got != 2 {
		t.Fatalf("restored count = %d, want 2", got)
	}

	// One more violation reaches the ceiling immediately.
	c.ObserveVisibility(true)
	if gw.callCount() != 1 {
		t.Errorf("gateway calls = %d, want 1", gw.callCount())
	}
	if gw.last.MalpracticeCount != 3 {
		t.Errorf("payload count = %d, want 3", gw.last.MalpracticeCount)
	}
}

func TestControllerGatewayFailureRevertsAndRetries(t *testing.T) {
	store := newMemStore()
	gw := &countingGateway{failures: 1}
	c := newTestController(t, store, gw)
	if err := c.Begin(); err != nil {
		t.Fatal(err)
	}
	c.RecordAnswer("q00", 1)

	if _, err := c.Submit(context.Background(), ReasonManual); err == nil {
		t.Fatal("expected gateway failure")
	}
	if c.State() != StateInProgress {
		t.Fatalf("state after failure = %v, want IN_PROGRESS (retry possible)", c.State())
	}
	if store.cleared != 0 {
		t.Error("durable state cleared on a failed submission")
	}
	// Collected answers survive the failure.
	if c.Snapshot().Answers["q00"] != 1 {
		t.Error("answers lost on failed submission")
	}

	out, err := c.Submit(context.Background(), ReasonManual)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if out.Total != 1 {
		t.Errorf("retry outcome total = %d, want 1", out.Total)
	}
	if gw.callCount() != 2 {
		t.Errorf("gateway calls = %d, want 2 (one failed, one retried)", gw.callCount())
	}
	if c.State() != StateSubmitted {
		t.Errorf("state = %v, want SUBMITTED", c.State())
	}
}

func TestControllerTimerExpirySubmits(t *testing.T) {
	store := newMemStore()
	gw := &countingGateway{}
	c := newTestController(t, store, gw)
	if err := c.Begin(); err != nil {
		t.Fatal(err)
	}

	// duration 5 minutes = 300 ticks
	for i := 0; i < 300; i++ {
		c.timer.Tick()
	}

	if gw.callCount() != 1 {
		t.Fatalf("gateway calls = %d, want exactly 1", gw.callCount())
	}
	if gw.last.Reason != ReasonTimerExpired {
		t.Errorf("reason = %v, want TIMER_EXPIRED", gw.last.Reason)
	}
	if c.State() != StateSubmitted {
		t.Errorf("state = %v, want SUBMITTED", c.State())
	}

	// Stale tick after teardown: nothing moves.
	c.timer.Tick()
	if gw.callCount() != 1 {
		t.Error("stale tick caused a second submission")
	}
}

func TestControllerCancelSkipsGateway(t *testing.T) {
	store := newMemStore()
	gw := &countingGateway{}
	c := newTestController(t, store, gw)
	if err := c.Begin(); err != nil {
		t.Fatal(err)
	}
	c.ObserveVisibility(true)

	c.Cancel(context.Background())
	if c.State() != StateFailed {
		t.Errorf("state = %v, want FAILED", c.State())
	}
	if gw.callCount() != 0 {
		t.Errorf("cancel invoked the gateway %d times", gw.callCount())
	}
	if store.cleared != 1 {
		t.Errorf("store cleared %d times, want 1", store.cleared)
	}

	// Terminal: no resurrection.
	if err := c.Begin(); !errors.Is(err, ErrNotInProgress) {
		t.Errorf("Begin after cancel = %v, want ErrNotInProgress", err)
	}
	if _, err := c.Submit(context.Background(), ReasonManual); !errors.Is(err, ErrNotInProgress) {
		t.Errorf("Submit after cancel = %v, want ErrNotInProgress", err)
	}
}

func TestControllerListenerEvents(t *testing.T) {
	store := newMemStore()
	gw := &countingGateway{}
	c := newTestController(t, store, gw)

	events := &recordingListener{}
	c.SetListener(events)
	if err := c.Begin(); err != nil {
		t.Fatal(err)
	}

	// First tick crosses the 300s threshold (remaining 299 <= 300).
	c.timer.Tick()
	c.ObserveVisibility(true)
	if _, err := c.Submit(context.Background(), ReasonManual); err != nil {
		t.Fatal(err)
	}

	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.warnings) != 1 || events.warnings[0] != 300 {
		t.Errorf("warnings = %v, want [300]", events.warnings)
	}
	if len(events.violations) != 1 || events.violations[0] != 1 {
		t.Errorf("violations = %v, want [1]", events.violations)
	}
	if events.finished != 1 {
		t.Errorf("finished events = %d, want 1", events.finished)
	}
}

type recordingListener struct {
	mu         sync.Mutex
	warnings   []int
	violations []int
	finished   int
}

func (l *recordingListener) OnWarning(remaining int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, remaining)
}

func (l *recordingListener) OnViolation(count, _ int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.violations = append(l.violations, count)
}

func (l *recordingListener) OnFinished(_ *Outcome, _ SubmitReason) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finished++
}

func TestRegistryPutGetRemove(t *testing.T) {
	store := newMemStore()
	gw := &countingGateway{}
	c := newTestController(t, store, gw)

	r := NewRegistry()
	if _, ok := r.Get(7, "exam-1"); ok {
		t.Fatal("empty registry returned a controller")
	}

	got, created := r.Put(7, "exam-1", c)
	if !created || got != c {
		t.Fatal("first Put did not register the controller")
	}

	other := newTestController(t, newMemStore(), gw)
	got, created = r.Put(7, "exam-1", other)
	if created || got != c {
		t.Error("concurrent Put replaced the live controller")
	}

	r.Remove(7, "exam-1")
	if r.Len() != 0 {
		t.Errorf("registry len = %d after remove, want 0", r.Len())
	}
}
