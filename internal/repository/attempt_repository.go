package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/falachabt/bacblanc-sub000/internal/model"
)

// AttemptRepository handles exam attempt data access. A partial unique index
// on (user_id, exam_id) WHERE completed_at IS NULL guarantees at most one
// open attempt per pair even under concurrent starts.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, user_id, exam_id, question_order, answers, flags,
	current_index, time_left, started_at, saved_at, completed_at, result`

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	a := &model.Attempt{}
	var resultRaw []byte
	err := row.Scan(&a.ID, &a.UserID, &a.ExamID, &a.QuestionOrder, &a.Answers, &a.Flags,
		&a.CurrentIndex, &a.TimeLeft, &a.StartedAt, &a.SavedAt, &a.CompletedAt, &resultRaw)
	if err != nil {
		return nil, err
	}
	if len(resultRaw) > 0 {
		a.Result = &model.Result{}
		if err := json.Unmarshal(resultRaw, a.Result); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// FindIncomplete returns the open attempt for the pair, or (nil, nil) when
// none exists.
func (r *AttemptRepository) FindIncomplete(ctx context.Context, userID int, examID uuid.UUID) (*model.Attempt, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE user_id = $1 AND exam_id = $2 AND completed_at IS NULL`,
		userID, examID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// FindCompleted returns the most recent completed attempt for the pair, or
// (nil, nil) when none exists.
func (r *AttemptRepository) FindCompleted(ctx context.Context, userID int, examID uuid.UUID) (*model.Attempt, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE user_id = $1 AND exam_id = $2 AND completed_at IS NOT NULL
		 ORDER BY completed_at DESC LIMIT 1`,
		userID, examID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create opens a new attempt with a frozen question order and the starting
// timer value. If another open attempt for the pair already exists, the
// insert is a no-op and the existing row is returned instead.
func (r *AttemptRepository) Create(ctx context.Context, userID int, examID uuid.UUID, questionOrder []string, timeLeft int) (*model.Attempt, error) {
	a := &model.Attempt{
		UserID:        userID,
		ExamID:        examID,
		QuestionOrder: questionOrder,
		Answers:       model.AnswerMap{},
		Flags:         []int{},
		TimeLeft:      timeLeft,
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO attempts (user_id, exam_id, question_order, answers, flags, current_index, time_left)
		 VALUES ($1, $2, $3, '{}'::jsonb, '[]'::jsonb, 0, $4)
		 ON CONFLICT (user_id, exam_id) WHERE completed_at IS NULL DO NOTHING
		 RETURNING id, started_at, saved_at`,
		userID, examID, questionOrder, timeLeft,
	).Scan(&a.ID, &a.StartedAt, &a.SavedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		// Lost the race to a concurrent start. The existing open attempt wins.
		return r.FindIncomplete(ctx, userID, examID)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// SaveProgress overwrites the mutable state of the open attempt. Completed
// attempts are never touched.
func (r *AttemptRepository) SaveProgress(ctx context.Context, userID int, examID uuid.UUID, p model.Progress) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET answers = $1, flags = $2, current_index = $3, time_left = $4, saved_at = $5
		 WHERE user_id = $6 AND exam_id = $7 AND completed_at IS NULL`,
		p.Answers, p.Flags, p.CurrentIndex, p.TimeLeft, p.SavedAt, userID, examID)
	return err
}

// BulkSaveProgress flushes a batch of snapshots in one round trip. Each
// snapshot is the JSON encoding of a model.Progress. Snapshots for attempts
// that completed in the meantime are silently skipped.
func (r *AttemptRepository) BulkSaveProgress(ctx context.Context, userIDs []int, examIDs []uuid.UUID, snapshots [][]byte) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts a
		 SET answers       = u.snapshot->'answers',
		     flags         = u.snapshot->'flags',
		     current_index = (u.snapshot->>'current_index')::int,
		     time_left     = (u.snapshot->>'time_left')::int,
		     saved_at      = (u.snapshot->>'saved_at')::timestamptz
		 FROM UNNEST($1::int[], $2::uuid[], $3::jsonb[]) AS u(user_id, exam_id, snapshot)
		 WHERE a.user_id = u.user_id AND a.exam_id = u.exam_id AND a.completed_at IS NULL`,
		userIDs, examIDs, snapshots)
	return err
}

// Complete finalizes the open attempt with its result and the answer map it
// was scored from.
func (r *AttemptRepository) Complete(ctx context.Context, userID int, examID uuid.UUID, result model.Result, answers model.AnswerMap) error {
	resultRaw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE attempts
		 SET answers = $1, result = $2, time_left = 0, completed_at = $3, saved_at = $3
		 WHERE user_id = $4 AND exam_id = $5 AND completed_at IS NULL`,
		answers, resultRaw, result.CompletedAt, userID, examID)
	return err
}

// ListCompletedByExam returns all completed attempts for an exam, newest
// first, with the attempting user's name and email joined in.
func (r *AttemptRepository) ListCompletedByExam(ctx context.Context, examID uuid.UUID) ([]model.AttemptSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.user_id, u.name, u.email, a.started_at, a.completed_at, a.result
		 FROM attempts a
		 JOIN users u ON a.user_id = u.id
		 WHERE a.exam_id = $1 AND a.completed_at IS NOT NULL
		 ORDER BY a.completed_at DESC`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []model.AttemptSummary
	for rows.Next() {
		var s model.AttemptSummary
		var resultRaw []byte
		var completedAt time.Time
		if err := rows.Scan(&s.AttemptID, &s.UserID, &s.UserName, &s.UserEmail, &s.StartedAt, &completedAt, &resultRaw); err != nil {
			return nil, err
		}
		s.CompletedAt = completedAt
		if len(resultRaw) > 0 {
			if err := json.Unmarshal(resultRaw, &s.Result); err != nil {
				return nil, err
			}
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// ListByUser returns a user's completed attempts across all exams, joined
// with exam and subject titles for the portal history view.
func (r *AttemptRepository) ListByUser(ctx context.Context, userID int) ([]model.AttemptHistoryEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.exam_id, e.title, s.name, a.started_at, a.completed_at, a.result
		 FROM attempts a
		 JOIN exams e ON a.exam_id = e.id
		 JOIN subjects s ON e.subject_id = s.id
		 WHERE a.user_id = $1 AND a.completed_at IS NOT NULL
		 ORDER BY a.completed_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.AttemptHistoryEntry
	for rows.Next() {
		var e model.AttemptHistoryEntry
		var resultRaw []byte
		if err := rows.Scan(&e.AttemptID, &e.ExamID, &e.ExamTitle, &e.SubjectName, &e.StartedAt, &e.CompletedAt, &resultRaw); err != nil {
			return nil, err
		}
		if len(resultRaw) > 0 {
			if err := json.Unmarshal(resultRaw, &e.Result); err != nil {
				return nil, err
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
