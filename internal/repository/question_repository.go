package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/falachabt/bacblanc-sub000/internal/model"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByExam retrieves an exam's questions ordered by position.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, text, type, points, options, correct_answer, position
		 FROM questions WHERE exam_id = $1 ORDER BY position, id`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Text, &q.Type, &q.Points, &q.Options, &q.CorrectAnswer, &q.Position); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Create inserts a single question.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (exam_id, text, type, points, options, correct_answer, position)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		q.ExamID, q.Text, q.Type, q.Points, q.Options, q.CorrectAnswer, q.Position,
	).Scan(&q.ID)
}

// ReplaceAll atomically swaps an exam's full question set. Positions are
// reassigned from the slice order.
func (r *QuestionRepository) ReplaceAll(ctx context.Context, examID uuid.UUID, questions []model.Question) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE exam_id = $1`, examID); err != nil {
		return err
	}

	for i := range questions {
		q := &questions[i]
		q.ExamID = examID
		q.Position = i
		if err := tx.QueryRow(ctx,
			`INSERT INTO questions (exam_id, text, type, points, options, correct_answer, position)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING id`,
			q.ExamID, q.Text, q.Type, q.Points, q.Options, q.CorrectAnswer, q.Position,
		).Scan(&q.ID); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// Delete removes a question by ID, scoped to its exam.
func (r *QuestionRepository) Delete(ctx context.Context, examID, questionID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM questions WHERE id = $1 AND exam_id = $2`, questionID, examID)
	return err
}
