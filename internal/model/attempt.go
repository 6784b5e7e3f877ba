package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates durable attempt outcomes.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusSubmitted  AttemptStatus = "SUBMITTED"
	// AttemptStatusTerminated marks an attempt ended by the violation
	// ceiling. Results views must treat it as a distinct outcome from a
	// normal score.
	AttemptStatusTerminated AttemptStatus = "TERMINATED"
)

// Attempt represents one student's single pass through one exam.
type Attempt struct {
	ID               uuid.UUID     `json:"id"`
	ExamID           uuid.UUID     `json:"exam_id"`
	StudentID        int           `json:"student_id"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       *time.Time    `json:"finished_at,omitempty"`
	Status           AttemptStatus `json:"status"`
	Score            *float64      `json:"score,omitempty"`
	MalpracticeCount int           `json:"malpractice_count"`
}

// AttemptState is what a reloading client needs to rebuild its view:
// everything else is transient and re-derived from the exam payload.
type AttemptState struct {
	ExamID           uuid.UUID      `json:"exam_id"`
	StudentID        int            `json:"student_id"`
	Answers          map[string]int `json:"answers"`
	RemainingSeconds int            `json:"remaining_seconds"`
	MalpracticeCount int            `json:"malpractice_count"`
	InstructionsGate bool           `json:"instructions_gate"`
	Started          bool           `json:"started"`
}

// AttemptStatusResponse answers the pre-start entitlement check.
type AttemptStatusResponse struct {
	Completed bool `json:"completed"`
}

// ViolationEvent is the queue payload pushed for every recorded
// malpractice violation and drained to Postgres by the violation worker.
type ViolationEvent struct {
	StudentID int    `json:"student_id"`
	ExamID    string `json:"exam_id"`
	Count     int    `json:"count"`
	Timestamp int64  `json:"timestamp"`
}

// ResultEvent is the queue payload for a graded attempt, drained to
// Postgres by the result worker. Grading happens in RAM at submission
// time; this event only carries the already-computed outcome.
type ResultEvent struct {
	ExamID           string  `json:"exam_id"`
	StudentID        int     `json:"student_id"`
	Score            float64 `json:"score"`
	Status           string  `json:"status"`
	MalpracticeCount int     `json:"malpractice_count"`
	FinishedAt       int64   `json:"finished_at"`
}
