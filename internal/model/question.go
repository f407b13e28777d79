package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// QuestionType tags the shape of a question's options and submitted answer.
type QuestionType string

const (
	QuestionTypeSingle    QuestionType = "single"
	QuestionTypeMultiple  QuestionType = "multiple"
	QuestionTypeTrueFalse QuestionType = "true-false"
	QuestionTypeText      QuestionType = "text"
)

// Option is one selectable choice of a single/multiple question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question represents a single exam question.
//
// CorrectAnswer is a raw JSON value whose shape depends on Type:
// a string option id (single), an array of option ids (multiple), the
// literal "true"/"false" (true-false), or a reference string (text).
// It is decoded and checked at the scoring boundary, not before.
type Question struct {
	ID            uuid.UUID       `json:"id"`
	ExamID        uuid.UUID       `json:"exam_id"`
	Text          string          `json:"text"`
	Type          QuestionType    `json:"type"`
	Points        float64         `json:"points"`
	Options       []Option        `json:"options,omitempty"`
	CorrectAnswer json.RawMessage `json:"correct_answer,omitempty"`
	Position      int             `json:"position"`
}

// QuestionForStudent is a question stripped of its correct answer.
type QuestionForStudent struct {
	ID      uuid.UUID    `json:"id"`
	Text    string       `json:"text"`
	Type    QuestionType `json:"type"`
	Points  float64      `json:"points"`
	Options []Option     `json:"options,omitempty"`
}

// AddQuestionRequest is the payload for adding a question to an exam.
type AddQuestionRequest struct {
	Text          string          `json:"text" binding:"required,min=1,max=4000"`
	Type          string          `json:"type" binding:"required,oneof=single multiple true-false text"`
	Points        float64         `json:"points" binding:"omitempty,gt=0"`
	Options       []Option        `json:"options" binding:"omitempty,dive"`
	CorrectAnswer json.RawMessage `json:"correct_answer" binding:"required"`
	Position      int             `json:"position" binding:"min=0"`
}

// ReplaceQuestionsRequest is the payload for bulk replacing an exam's questions.
type ReplaceQuestionsRequest struct {
	Questions []AddQuestionRequest `json:"questions" binding:"required,dive"`
}
