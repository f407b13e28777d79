package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AnswerMap holds submitted answers keyed by question id. Values are raw
// JSON whose shape depends on the question type; the scoring engine decodes
// them against the question's type tag.
type AnswerMap map[string]json.RawMessage

// Clone returns a deep copy of the map. Raw values are immutable by
// convention, so sharing the underlying bytes is fine.
func (m AnswerMap) Clone() AnswerMap {
	if m == nil {
		return AnswerMap{}
	}
	out := make(AnswerMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Progress is the full mutable state of an in-flight attempt, written on
// every autosave tick and on each answer submission.
type Progress struct {
	Answers      AnswerMap `json:"answers"`
	Flags        []int     `json:"flags"`
	CurrentIndex int       `json:"current_index"`
	TimeLeft     int       `json:"time_left"`
	SavedAt      time.Time `json:"saved_at"`
}

// Attempt is one user's in-progress or completed instance of an exam.
// At most one incomplete attempt exists per (user, exam) pair.
type Attempt struct {
	ID            uuid.UUID  `json:"id"`
	UserID        int        `json:"user_id"`
	ExamID        uuid.UUID  `json:"exam_id"`
	QuestionOrder []string   `json:"question_order"`
	Answers       AnswerMap  `json:"answers"`
	Flags         []int      `json:"flags"`
	CurrentIndex  int        `json:"current_index"`
	TimeLeft      int        `json:"time_left"`
	StartedAt     time.Time  `json:"started_at"`
	SavedAt       time.Time  `json:"saved_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Result        *Result    `json:"result,omitempty"`
}

// Completed reports whether the attempt has been finalized.
func (a *Attempt) Completed() bool {
	return a.CompletedAt != nil
}

// AttemptSummary is one row of an exam's admin results listing.
type AttemptSummary struct {
	AttemptID   uuid.UUID `json:"attempt_id"`
	UserID      int       `json:"user_id"`
	UserName    string    `json:"user_name"`
	UserEmail   string    `json:"user_email"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Result      Result    `json:"result"`
}

// AttemptHistoryEntry is one row of a user's own exam history.
type AttemptHistoryEntry struct {
	AttemptID   uuid.UUID `json:"attempt_id"`
	ExamID      uuid.UUID `json:"exam_id"`
	ExamTitle   string    `json:"exam_title"`
	SubjectName string    `json:"subject_name"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Result      Result    `json:"result"`
}

// Result is the derived scoring outcome of a completed attempt. It is a
// pure function of the exam definition and the answer map, so it can be
// recomputed at any time and never mutated independently.
type Result struct {
	Score           float64   `json:"score"`
	Total           float64   `json:"total"`
	CorrectCount    int       `json:"correct_count"`
	IncorrectCount  int       `json:"incorrect_count"`
	UnansweredCount int       `json:"unanswered_count"`
	QuestionCount   int       `json:"question_count"`
	Percentage      int       `json:"percentage"`
	CompletedAt     time.Time `json:"completed_at"`
}
