package session

import "sync"

// Monitor turns a binary page hidden/visible signal into violation
// events. It is decoupled from any transport: callers feed it observed
// visibility states and it fires the callback on each transition into
// hidden while running. Events observed before Start (the instructions
// gate) or after Stop never count.
type Monitor struct {
	mu          sync.Mutex
	running     bool
	hidden      bool
	onViolation func()
}

func NewMonitor() *Monitor {
	return &Monitor{}
}

// OnViolation registers the callback fired on each hidden transition.
func (m *Monitor) OnViolation(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onViolation = fn
}

// Start begins counting hidden transitions. The page is assumed visible
// at start.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = true
	m.hidden = false
}

// Stop halts counting. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
}

// Observe feeds one visibility sample. A visible→hidden transition while
// running fires the violation callback; repeated hidden samples do not.
func (m *Monitor) Observe(hidden bool) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	transition := hidden && !m.hidden
	m.hidden = hidden
	fn := m.onViolation
	m.mu.Unlock()

	if transition && fn != nil {
		fn()
	}
}
