package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/falachabt/bacblanc-sub000/internal/model"
)

// Gateway is the persistence contract the controller reads and writes
// attempt state through. Writes are idempotent full-state overwrites keyed
// by (user, exam), so no in-flight write ever needs cancelling. The store
// enforces at most one incomplete attempt per (user, exam) pair.
type Gateway interface {
	// FindIncompleteAttempt returns the open attempt for the pair, or
	// (nil, nil) when none exists.
	FindIncompleteAttempt(ctx context.Context, userID int, examID uuid.UUID) (*model.Attempt, error)

	// CreateAttempt opens a new attempt with the question order frozen for
	// its whole lifetime.
	CreateAttempt(ctx context.Context, userID int, examID uuid.UUID, questionOrder []string) (*model.Attempt, error)

	// SaveProgress overwrites the attempt's mutable state.
	SaveProgress(ctx context.Context, userID int, examID uuid.UUID, progress model.Progress) error

	// CompleteAttempt finalizes the attempt with its result and the answer
	// map it was scored from. The attempt is immutable afterwards.
	CompleteAttempt(ctx context.Context, userID int, examID uuid.UUID, result model.Result, answers model.AnswerMap) error

	// FindCompletedResult returns the stored result of a completed attempt,
	// or (nil, nil) when the pair has no completed attempt.
	FindCompletedResult(ctx context.Context, userID int, examID uuid.UUID) (*model.Result, error)
}

// ExamProvider supplies exam definitions with their ordered questions.
type ExamProvider interface {
	GetExamByID(ctx context.Context, examID uuid.UUID) (*model.Exam, error)
}
