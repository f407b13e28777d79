package model

import (
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

// Exam represents an exam definition. The question set is immutable once an
// attempt has started; per-attempt ordering is frozen at attempt creation.
type Exam struct {
	ID          uuid.UUID `json:"id"`
	SubjectID   uuid.UUID `json:"subject_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	// Duration is a human-readable duration string such as "2h30" or "45m".
	// Parsed to seconds by timeutil.ParseDuration when a timer starts.
	Duration  string     `json:"duration"`
	Shuffle   bool       `json:"shuffle"`
	Status    ExamStatus `json:"status"`
	Questions []Question `json:"questions,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// QuestionByID returns the question with the given id, or nil.
func (e *Exam) QuestionByID(id string) *Question {
	for i := range e.Questions {
		if e.Questions[i].ID.String() == id {
			return &e.Questions[i]
		}
	}
	return nil
}

// TotalPoints sums the point values of every question.
func (e *Exam) TotalPoints() float64 {
	var total float64
	for i := range e.Questions {
		total += e.Questions[i].Points
	}
	return total
}

// PaperFor builds the student-facing payload, replaying the given question
// order. Unknown ids in the order are skipped.
func (e *Exam) PaperFor(order []string) ExamPaper {
	questions := make([]QuestionForStudent, 0, len(e.Questions))
	for _, id := range order {
		q := e.QuestionByID(id)
		if q == nil {
			continue
		}
		questions = append(questions, QuestionForStudent{
			ID:      q.ID,
			Text:    q.Text,
			Type:    q.Type,
			Points:  q.Points,
			Options: q.Options,
		})
	}
	return ExamPaper{
		ExamID:    e.ID,
		Title:     e.Title,
		Duration:  e.Duration,
		Questions: questions,
	}
}

// ExamPaper is the student-facing payload: questions without correct answers.
type ExamPaper struct {
	ExamID    uuid.UUID            `json:"exam_id"`
	Title     string               `json:"title"`
	Duration  string               `json:"duration"`
	Questions []QuestionForStudent `json:"questions"`
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	SubjectID   uuid.UUID `json:"subject_id" binding:"required"`
	Title       string    `json:"title" binding:"required,min=3,max=255"`
	Description string    `json:"description" binding:"omitempty,max=5000"`
	Duration    string    `json:"duration" binding:"required,max=16"`
	Shuffle     *bool     `json:"shuffle" binding:"omitempty"`
}

// UpdateExamRequest is the payload for updating an existing draft exam.
// Zero-valued fields are left unchanged.
type UpdateExamRequest struct {
	Title       string `json:"title" binding:"omitempty,min=3,max=255"`
	Description string `json:"description" binding:"omitempty,max=5000"`
	Duration    string `json:"duration" binding:"omitempty,max=16"`
	Shuffle     *bool  `json:"shuffle" binding:"omitempty"`
}
