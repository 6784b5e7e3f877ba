package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Definition is the immutable exam definition an attempt runs against.
// Loaded once at attempt start and never mutated. RemainingSeconds, when
// positive, overrides the full duration so a reconnect after a server
// restart resumes the countdown instead of resetting it.
type Definition struct {
	ExamID           string
	Title            string
	DurationMinutes  int
	RemainingSeconds int
	QuestionIDs      []string
}

// Submission is the payload handed to the Gateway exactly once per attempt.
type Submission struct {
	StudentID        int
	ExamID           string
	Answers          map[string]int
	MalpracticeCount int
	Reason           SubmitReason
}

// Outcome is the durable result returned by the Gateway.
type Outcome struct {
	Score      float64 `json:"score"`
	Total      int     `json:"total"`
	Passed     bool    `json:"passed"`
	Terminated bool    `json:"terminated"`
}

// Gateway accepts a finished attempt's payload and returns a durable
// result or an error. An error means nothing durable happened and the
// attempt may retry.
type Gateway interface {
	Submit(ctx context.Context, sub *Submission) (*Outcome, error)
}

// Listener receives push events for the client stream. All methods are
// invoked without internal locks held; implementations must be safe for
// concurrent use.
type Listener interface {
	OnWarning(remainingSeconds int)
	OnViolation(count, limit int)
	OnFinished(out *Outcome, reason SubmitReason)
}

// Config tunes one attempt's controller. The two observed portal
// variants (with and without an instructions gate, with and without
// mid-timer warnings) are configurations of the same controller.
type Config struct {
	RequireInstructionsGate bool
	ViolationLimit          int
	WarningThresholds       []int
	WindowSize              int
	TickPeriod              time.Duration
}

func (c Config) withDefaults() Config {
	if c.ViolationLimit <= 0 {
		c.ViolationLimit = 3
	}
	if c.WindowSize <= 0 {
		c.WindowSize = DefaultWindowSize
	}
	if c.TickPeriod <= 0 {
		c.TickPeriod = time.Second
	}
	return c
}

// Controller owns all state for one exam attempt: lifecycle, countdown,
// violation counting, answers and navigation. Timer ticks, visibility
// events and user actions are serialized through one mutex; the state
// check at every mutating entry point is the concurrency-correctness
// mechanism, so the three submit call sites (manual, timer expiry,
// violation ceiling) agree on a single terminal outcome with exactly one
// Gateway call.
type Controller struct {
	// mu is held for state reads/writes only, never across Gateway calls.
	mu sync.Mutex

	cfg       Config
	def       Definition
	studentID int

	state      State
	violations int
	outcome    *Outcome
	lastReason SubmitReason

	timer   *Timer
	monitor *Monitor
	answers *Answers
	nav     *NavState

	store    Store
	gateway  Gateway
	listener Listener

	newTicks func() TickSource
	log      zerolog.Logger
}

// Snapshot is a consistent read of attempt state for the reload path.
type Snapshot struct {
	State            State
	RemainingSeconds int
	Answers          map[string]int
	MalpracticeCount int
	ActiveQuestion   int
	WindowStart      int
	WindowEnd        int
	Complete         bool
}

// New creates a controller in NotStarted with the countdown initialized
// to the exam duration and the violation count restored from the store
// (a page reload must not reset it to zero). Call Begin to start the
// timer and monitor.
func New(ctx context.Context, def Definition, studentID int, cfg Config, store Store, gateway Gateway, log zerolog.Logger) (*Controller, error) {
	cfg = cfg.withDefaults()

	seconds := def.DurationMinutes * 60
	if def.RemainingSeconds > 0 {
		seconds = def.RemainingSeconds
	}

	c := &Controller{
		cfg:       cfg,
		def:       def,
		studentID: studentID,
		state:     StateNotStarted,
		timer:     NewTimer(seconds, cfg.WarningThresholds),
		monitor:   NewMonitor(),
		answers:   NewAnswers(),
		nav:       NewNavState(len(def.QuestionIDs), cfg.WindowSize),
		store:     store,
		gateway:   gateway,
		newTicks:  func() TickSource { return NewTickerSource(cfg.TickPeriod) },
		log: log.With().
			Str("component", "session_controller").
			Str("exam_id", def.ExamID).
			Int("student_id", studentID).
			Logger(),
	}

	count, err := store.LoadViolationCount(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("restore violation count: %w", err)
	}
	c.violations = count

	if err := store.SaveActiveExam(ctx, studentID, def.ExamID); err != nil {
		return nil, fmt.Errorf("save active exam: %w", err)
	}

	c.timer.OnThreshold(c.handleThreshold)
	c.timer.OnExpire(c.handleExpire)
	c.monitor.OnViolation(c.handleViolation)

	return c, nil
}

// SetListener attaches (or detaches, with nil) the event listener.
func (c *Controller) SetListener(l Listener) {
	c.mu.Lock()
	c.listener = l
	c.mu.Unlock()
}

// setTickSource overrides the tick source factory. Used by tests.
func (c *Controller) setTickSource(fn func() TickSource) {
	c.newTicks = fn
}

// Definition returns the immutable exam definition.
func (c *Controller) Definition() Definition { return c.def }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Begin transitions NotStarted → InProgress and starts the timer and
// monitor. When no instructions gate is configured the registry calls it
// immediately after construction. Calling Begin twice is a no-op.
func (c *Controller) Begin() error {
	c.mu.Lock()
	if c.state != StateNotStarted {
		terminal := c.state.Terminal()
		c.mu.Unlock()
		if terminal {
			return ErrNotInProgress
		}
		return nil
	}
	c.state = StateInProgress
	c.mu.Unlock()

	c.monitor.Start()
	c.timer.Start(c.newTicks())
	c.log.Info().Msg("Attempt started")
	return nil
}

// RecordAnswer upserts a chosen option. Allowed only while InProgress;
// otherwise a silent no-op per the session contract.
func (c *Controller) RecordAnswer(questionID string, optionIndex int) {
	c.mu.Lock()
	if c.state != StateInProgress {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.answers.Set(questionID, optionIndex)
}

// ObserveVisibility feeds one page visibility sample to the monitor.
func (c *Controller) ObserveVisibility(hidden bool) {
	c.monitor.Observe(hidden)
}

// MoveNext advances the active question. InProgress only.
func (c *Controller) MoveNext() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateInProgress {
		return
	}
	c.nav.MoveNext()
}

// MovePrev moves the active question back. InProgress only.
func (c *Controller) MovePrev() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateInProgress {
		return
	}
	c.nav.MovePrev()
}

// JumpTo sets the active question directly. InProgress only.
func (c *Controller) JumpTo(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateInProgress {
		return
	}
	c.nav.JumpTo(index)
}

// Snapshot returns a consistent view of the attempt for the state
// endpoint (page reload recovery).
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:            c.state,
		RemainingSeconds: c.timer.Remaining(),
		Answers:          c.answers.Snapshot(),
		MalpracticeCount: c.violations,
		ActiveQuestion:   c.nav.Active,
		WindowStart:      c.nav.WindowStart,
		WindowEnd:        c.nav.WindowEnd(),
		Complete:         c.answers.Complete(c.def.QuestionIDs),
	}
}

// Submit drives the attempt to its terminal state. First caller wins:
// the state is flipped to Terminating before the Gateway is invoked, so
// concurrent calls from the manual route, timer expiry and the violation
// ceiling result in exactly one Gateway call. A call after a settled
// outcome returns that prior outcome without a second Gateway call. On
// Gateway failure the state reverts to InProgress (timer and monitor
// resume) so a transport failure never strands the learner.
func (c *Controller) Submit(ctx context.Context, reason SubmitReason) (*Outcome, error) {
	c.mu.Lock()
	switch c.state {
	case StateSubmitted, StateTerminated:
		out := c.outcome
		c.mu.Unlock()
		return out, nil
	case StateFailed:
		c.mu.Unlock()
		return nil, ErrNotInProgress
	case StateTerminating:
		c.mu.Unlock()
		return nil, ErrSubmitInFlight
	case StateNotStarted:
		c.mu.Unlock()
		return nil, ErrNotStarted
	}
	c.state = StateTerminating
	sub := &Submission{
		StudentID:        c.studentID,
		ExamID:           c.def.ExamID,
		Answers:          c.answers.Snapshot(),
		MalpracticeCount: c.violations,
		Reason:           reason,
	}
	c.mu.Unlock()

	c.timer.Stop()
	c.monitor.Stop()

	out, err := c.gateway.Submit(ctx, sub)
	if err != nil {
		c.mu.Lock()
		c.state = StateInProgress
		c.mu.Unlock()
		// Resume so the learner can retry. An expired timer stays
		// expired; retry then comes through the manual route.
		c.timer.Start(c.newTicks())
		c.monitor.Start()
		c.log.Error().Err(err).Str("reason", string(reason)).Msg("Submission failed, attempt reverted")
		return nil, fmt.Errorf("submission gateway: %w", err)
	}

	c.mu.Lock()
	if reason == ReasonViolationLimit {
		c.state = StateTerminated
	} else {
		c.state = StateSubmitted
	}
	c.outcome = out
	c.lastReason = reason
	listener := c.listener
	state := c.state
	c.mu.Unlock()

	if err := c.store.Clear(ctx, c.studentID); err != nil {
		c.log.Warn().Err(err).Msg("Failed to clear durable attempt state")
	}

	c.log.Info().
		Str("reason", string(reason)).
		Str("state", state.String()).
		Float64("score", out.Score).
		Msg("Attempt finished")

	if listener != nil {
		listener.OnFinished(out, reason)
	}
	return out, nil
}

// Cancel abandons the attempt without invoking the Gateway: timer and
// monitor stop, durable state is cleared, state becomes Failed. Used for
// logout and navigating away.
func (c *Controller) Cancel(ctx context.Context) {
	c.mu.Lock()
	if c.state.Terminal() || c.state == StateTerminating {
		c.mu.Unlock()
		return
	}
	c.state = StateFailed
	c.mu.Unlock()

	c.timer.Stop()
	c.monitor.Stop()
	if err := c.store.Clear(ctx, c.studentID); err != nil {
		c.log.Warn().Err(err).Msg("Failed to clear durable attempt state")
	}
	c.log.Info().Msg("Attempt cancelled")
}

// handleViolation runs on each hidden transition reported while the
// monitor is active. The count only moves while InProgress; the ceiling
// check happens on every increment.
func (c *Controller) handleViolation() {
	c.mu.Lock()
	if c.state != StateInProgress {
		c.mu.Unlock()
		return
	}
	c.violations++
	count := c.violations
	limit := c.cfg.ViolationLimit
	listener := c.listener
	c.mu.Unlock()

	ctx := context.Background()
	if err := c.store.SaveViolationCount(ctx, c.studentID, c.def.ExamID, count); err != nil {
		c.log.Warn().Err(err).Int("count", count).Msg("Failed to persist violation count")
	}
	c.log.Warn().Int("count", count).Int("limit", limit).Msg("Malpractice violation recorded")

	if listener != nil {
		listener.OnViolation(count, limit)
	}

	if count >= limit {
		if _, err := c.Submit(ctx, ReasonViolationLimit); err != nil {
			c.log.Error().Err(err).Msg("Violation-limit submission failed")
		}
	}
}

// handleThreshold pushes a one-shot remaining-time warning.
func (c *Controller) handleThreshold(threshold int) {
	c.mu.Lock()
	listener := c.listener
	inProgress := c.state == StateInProgress
	c.mu.Unlock()

	if inProgress && listener != nil {
		listener.OnWarning(threshold)
	}
}

// handleExpire submits on countdown expiry.
func (c *Controller) handleExpire() {
	if _, err := c.Submit(context.Background(), ReasonTimerExpired); err != nil {
		c.log.Error().Err(err).Msg("Timer-expiry submission failed")
	}
}
