package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/falachabt/bacblanc-sub000/internal/model"
)

var (
	ErrDuplicateSubjectName = errors.New("subject with this name already exists")
	ErrSubjectHasExams      = errors.New("subject still has exams attached")
)

// SubjectRepository handles subject data access.
type SubjectRepository struct {
	pool *pgxpool.Pool
}

// NewSubjectRepository creates a new SubjectRepository.
func NewSubjectRepository(pool *pgxpool.Pool) *SubjectRepository {
	return &SubjectRepository{pool: pool}
}

// GetByID retrieves a subject by ID, including its exam count.
func (r *SubjectRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Subject, error) {
	s := &model.Subject{}
	err := r.pool.QueryRow(ctx,
		`SELECT s.id, s.name, s.description,
		        (SELECT COUNT(*) FROM exams e WHERE e.subject_id = s.id) AS exam_count,
		        s.created_at, s.updated_at
		 FROM subjects s WHERE s.id = $1`, id,
	).Scan(&s.ID, &s.Name, &s.Description, &s.ExamCount, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// List retrieves all subjects ordered by name. publishedOnly restricts the
// exam count to published exams, which is what the student portal shows.
func (r *SubjectRepository) List(ctx context.Context, publishedOnly bool) ([]model.Subject, error) {
	countCond := ``
	if publishedOnly {
		countCond = ` AND e.status = 'PUBLISHED'`
	}

	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.name, s.description,
		        (SELECT COUNT(*) FROM exams e WHERE e.subject_id = s.id`+countCond+`) AS exam_count,
		        s.created_at, s.updated_at
		 FROM subjects s ORDER BY s.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subjects []model.Subject
	for rows.Next() {
		var s model.Subject
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.ExamCount, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		subjects = append(subjects, s)
	}
	return subjects, rows.Err()
}

// Create inserts a new subject.
func (r *SubjectRepository) Create(ctx context.Context, s *model.Subject) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO subjects (name, description)
		 VALUES ($1, $2)
		 RETURNING id, created_at, updated_at`,
		s.Name, s.Description,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateSubjectName
		}
		return err
	}
	return nil
}

// Update modifies a subject's name and description.
func (r *SubjectRepository) Update(ctx context.Context, s *model.Subject) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE subjects SET name = $1, description = $2, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $3`,
		s.Name, s.Description, s.ID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateSubjectName
		}
		return err
	}
	return nil
}

// Delete removes a subject. Fails if exams still reference it.
func (r *SubjectRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM subjects WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrSubjectHasExams
		}
		return err
	}
	return nil
}
