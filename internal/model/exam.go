package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// Exam represents a question paper authored by an admin.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Domain          string     `json:"domain"`
	AuthorID        int        `json:"author_id"`
	DurationMinutes int        `json:"duration_minutes"`
	PassingScore    int        `json:"passing_score"`
	QuestionCount   int        `json:"question_count"`
	Status          ExamStatus `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// CreateExamRequest is the payload for creating a new question paper.
type CreateExamRequest struct {
	Title           string               `json:"title" binding:"required,min=3,max=255"`
	Description     string               `json:"description" binding:"omitempty,max=2000"`
	Domain          string               `json:"domain" binding:"required,min=2,max=100"`
	DurationMinutes int                  `json:"duration" binding:"required,min=1,max=480"`
	PassingScore    int                  `json:"passing_score" binding:"min=0"`
	Questions       []AddQuestionRequest `json:"questions" binding:"omitempty,dive"`
}

// UpdateExamRequest is the payload for updating an existing question paper.
// A non-nil Questions slice replaces the full question list.
type UpdateExamRequest struct {
	Title           string               `json:"title" binding:"omitempty,min=3,max=255"`
	Description     string               `json:"description" binding:"omitempty,max=2000"`
	Domain          string               `json:"domain" binding:"omitempty,min=2,max=100"`
	DurationMinutes int                  `json:"duration" binding:"omitempty,min=1,max=480"`
	PassingScore    *int                 `json:"passing_score" binding:"omitempty,min=0"`
	Questions       []AddQuestionRequest `json:"questions" binding:"omitempty,dive"`
}

// ExamPayload is the student-facing exam definition (no correct answers).
// Cached in Redis once an exam is published.
type ExamPayload struct {
	ExamID    uuid.UUID            `json:"exam_id"`
	Title     string               `json:"title"`
	Domain    string               `json:"domain"`
	Duration  int                  `json:"duration"`
	Questions []QuestionForStudent `json:"questions"`
}

// QuestionForStudent is a question without the correct answer, sent to students.
type QuestionForStudent struct {
	ID       uuid.UUID       `json:"id"`
	Prompt   string          `json:"question"`
	Options  json.RawMessage `json:"options"`
	OrderNum int             `json:"order_num"`
}
