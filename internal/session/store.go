package session

import "context"

// Store is the reload-durable slice of attempt state: which exam a
// student is currently taking and their running violation count. Only
// the Controller reads or writes it; everything else about an attempt is
// transient and rebuilt from the exam payload. Cleared on any terminal
// transition.
type Store interface {
	// SaveActiveExam records the exam the student is attempting.
	SaveActiveExam(ctx context.Context, studentID int, examID string) error
	// SaveViolationCount persists the running malpractice count and
	// queues the violation event for durable audit persistence.
	SaveViolationCount(ctx context.Context, studentID int, examID string, count int) error
	// LoadViolationCount restores the count after a reload; returns 0
	// when none is stored.
	LoadViolationCount(ctx context.Context, studentID int) (int, error)
	// Clear removes all durable attempt state for the student.
	Clear(ctx context.Context, studentID int) error
}
