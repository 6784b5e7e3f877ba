package session

import "sync"

// Answers is the per-attempt answer store: question id → chosen option
// index. Last write wins; entries are never removed while the attempt
// is alive. Completeness only drives the submit affordance; it is
// never required for submission by timer expiry or violation limit.
type Answers struct {
	mu sync.RWMutex
	m  map[string]int
}

func NewAnswers() *Answers {
	return &Answers{m: make(map[string]int)}
}

// Set records or overwrites the chosen option for a question.
func (a *Answers) Set(questionID string, optionIndex int) {
	a.mu.Lock()
	a.m[questionID] = optionIndex
	a.mu.Unlock()
}

// Get returns the recorded option index for a question.
func (a *Answers) Get(questionID string) (int, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.m[questionID]
	return v, ok
}

// Len returns the number of answered questions.
func (a *Answers) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.m)
}

// Snapshot returns a copy of the current mapping.
func (a *Answers) Snapshot() map[string]int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]int, len(a.m))
	for k, v := range a.m {
		out[k] = v
	}
	return out
}

// Complete reports whether every given question id has an answer.
func (a *Answers) Complete(questionIDs []string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, id := range questionIDs {
		if _, ok := a.m[id]; !ok {
			return false
		}
	}
	return true
}
