package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Question represents a single multiple-choice question. Options is a
// JSON array of at least two option strings; CorrectOption is an index
// into that array.
type Question struct {
	ID            uuid.UUID       `json:"id"`
	ExamID        uuid.UUID       `json:"exam_id"`
	Prompt        string          `json:"question"`
	Options       json.RawMessage `json:"options"`
	CorrectOption int             `json:"correct_option"`
	OrderNum      int             `json:"order_num"`
}

// AddQuestionRequest is the payload for adding a question to an exam.
type AddQuestionRequest struct {
	Prompt        string   `json:"question" binding:"required,min=1,max=2000"`
	Options       []string `json:"options" binding:"required,min=2,dive,required"`
	CorrectOption int      `json:"correct_option" binding:"min=0"`
	OrderNum      int      `json:"order_num" binding:"min=0"`
}
