package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/falachabt/bacblanc-sub000/internal/model"
)

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an exam without its questions.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, subject_id, title, description, duration, shuffle, status, created_at, updated_at
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.SubjectID, &e.Title, &e.Description, &e.Duration, &e.Shuffle, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetWithQuestions retrieves an exam together with its questions ordered by
// position.
func (r *ExamRepository) GetWithQuestions(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, text, type, points, options, correct_answer, position
		 FROM questions WHERE exam_id = $1 ORDER BY position, id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Text, &q.Type, &q.Points, &q.Options, &q.CorrectAnswer, &q.Position); err != nil {
			return nil, err
		}
		e.Questions = append(e.Questions, q)
	}
	return e, rows.Err()
}

// ListBySubject retrieves exams for a subject, optionally filtered by status.
func (r *ExamRepository) ListBySubject(ctx context.Context, subjectID uuid.UUID, status *model.ExamStatus) ([]model.Exam, error) {
	query := `SELECT id, subject_id, title, description, duration, shuffle, status, created_at, updated_at
	          FROM exams WHERE subject_id = $1`
	args := []any{subjectID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.SubjectID, &e.Title, &e.Description, &e.Duration, &e.Shuffle, &e.Status, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// ListPublished retrieves every published exam.
func (r *ExamRepository) ListPublished(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, subject_id, title, description, duration, shuffle, status, created_at, updated_at
		 FROM exams WHERE status = 'PUBLISHED' ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.SubjectID, &e.Title, &e.Description, &e.Duration, &e.Shuffle, &e.Status, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// Create inserts a new exam in DRAFT status.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (subject_id, title, description, duration, shuffle, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		e.SubjectID, e.Title, e.Description, e.Duration, e.Shuffle, model.ExamStatusDraft,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// Update modifies an exam's editable fields.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exams SET title = $1, description = $2, duration = $3, shuffle = $4, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $5`,
		e.Title, e.Description, e.Duration, e.Shuffle, e.ID)
	return err
}

// UpdateStatus transitions an exam's lifecycle status.
func (r *ExamRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ExamStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exams SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`,
		status, id)
	return err
}

// Delete removes an exam and its questions (cascade).
func (r *ExamRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id)
	return err
}

// CountQuestions returns how many questions the exam has.
func (r *ExamRepository) CountQuestions(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM questions WHERE exam_id = $1`, id).Scan(&n)
	return n, err
}
