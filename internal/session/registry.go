package session

import (
	"fmt"
	"sync"
)

// Registry holds the live controllers for all in-flight attempts, keyed
// by (studentID, examID). Terminal controllers stay registered until
// explicitly removed so a settled outcome remains observable during
// redirect/cleanup, but a terminal attempt can never be re-entered — the
// durable attempt record blocks a fresh start.
type Registry struct {
	mu     sync.Mutex
	active map[string]*Controller
}

func NewRegistry() *Registry {
	return &Registry{active: make(map[string]*Controller)}
}

func attemptKey(studentID int, examID string) string {
	return fmt.Sprintf("%d:%s", studentID, examID)
}

// Get returns the live controller for an attempt, if any.
func (r *Registry) Get(studentID int, examID string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.active[attemptKey(studentID, examID)]
	return c, ok
}

// Put registers a controller, returning the existing one when the
// attempt already has a live controller (concurrent start).
func (r *Registry) Put(studentID int, examID string, c *Controller) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := attemptKey(studentID, examID)
	if existing, ok := r.active[key]; ok {
		return existing, false
	}
	r.active[key] = c
	return c, true
}

// Remove drops a controller from the registry.
func (r *Registry) Remove(studentID int, examID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, attemptKey(studentID, examID))
}

// Len returns the number of live controllers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
