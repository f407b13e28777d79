package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/falachabt/bacblanc-sub000/internal/config"
	"github.com/falachabt/bacblanc-sub000/internal/model"
	"github.com/falachabt/bacblanc-sub000/internal/repository"
)

// Common exam errors.
var (
	ErrExamNotFound = errors.New("exam not found")
	ErrExamNotDraft = errors.New("exam is no longer a draft")
	ErrNoQuestions  = errors.New("exam has no questions")
	ErrNotPublished = errors.New("exam is not published")
)

// ExamService handles exam lifecycle and question management. Published
// exams are cached whole in Redis so session starts never race the
// database; a cache miss self-heals from PostgreSQL.
type ExamService struct {
	examRepo     *repository.ExamRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(examRepo *repository.ExamRepository, questionRepo *repository.QuestionRepository, rdb *redis.Client, log zerolog.Logger) *ExamService {
	return &ExamService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "exam_service").Logger(),
	}
}

// Create inserts a new DRAFT exam.
func (s *ExamService) Create(ctx context.Context, req *model.CreateExamRequest) (*model.Exam, error) {
	e := &model.Exam{
		SubjectID:   req.SubjectID,
		Title:       req.Title,
		Description: req.Description,
		Duration:    req.Duration,
		Shuffle:     req.Shuffle != nil && *req.Shuffle,
		Status:      model.ExamStatusDraft,
	}
	if err := s.examRepo.Create(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Update modifies a DRAFT exam's editable fields.
func (s *ExamService) Update(ctx context.Context, id uuid.UUID, req *model.UpdateExamRequest) (*model.Exam, error) {
	e, err := s.getDraft(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Title != "" {
		e.Title = req.Title
	}
	if req.Description != "" {
		e.Description = req.Description
	}
	if req.Duration != "" {
		e.Duration = req.Duration
	}
	if req.Shuffle != nil {
		e.Shuffle = *req.Shuffle
	}
	if err := s.examRepo.Update(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Delete removes a DRAFT exam and its questions.
func (s *ExamService) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.getDraft(ctx, id); err != nil {
		return err
	}
	return s.examRepo.Delete(ctx, id)
}

// GetByID retrieves an exam with its questions, answers included. Admin use
// only.
func (s *ExamService) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e, err := s.examRepo.GetWithQuestions(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExamNotFound
	}
	return e, err
}

// ListBySubject retrieves a subject's exams, optionally filtered by status.
func (s *ExamService) ListBySubject(ctx context.Context, subjectID uuid.UUID, status *model.ExamStatus) ([]model.Exam, error) {
	return s.examRepo.ListBySubject(ctx, subjectID, status)
}

// AddQuestion appends a question to a DRAFT exam. Unset points default to 1.
func (s *ExamService) AddQuestion(ctx context.Context, examID uuid.UUID, req *model.AddQuestionRequest) (*model.Question, error) {
	if _, err := s.getDraft(ctx, examID); err != nil {
		return nil, err
	}

	q := questionFromRequest(examID, req)
	if err := s.questionRepo.Create(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// ReplaceQuestions swaps a DRAFT exam's full question set atomically.
func (s *ExamService) ReplaceQuestions(ctx context.Context, examID uuid.UUID, req *model.ReplaceQuestionsRequest) ([]model.Question, error) {
	if _, err := s.getDraft(ctx, examID); err != nil {
		return nil, err
	}

	questions := make([]model.Question, len(req.Questions))
	for i := range req.Questions {
		questions[i] = *questionFromRequest(examID, &req.Questions[i])
	}
	if err := s.questionRepo.ReplaceAll(ctx, examID, questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// DeleteQuestion removes a question from a DRAFT exam.
func (s *ExamService) DeleteQuestion(ctx context.Context, examID, questionID uuid.UUID) error {
	if _, err := s.getDraft(ctx, examID); err != nil {
		return err
	}
	return s.questionRepo.Delete(ctx, examID, questionID)
}

// Publish transitions a DRAFT exam to PUBLISHED and warms the Redis cache.
// An exam without questions cannot be published.
func (s *ExamService) Publish(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e, err := s.getDraft(ctx, id)
	if err != nil {
		return nil, err
	}

	count, err := s.examRepo.CountQuestions(ctx, id)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrNoQuestions
	}

	if err := s.examRepo.UpdateStatus(ctx, id, model.ExamStatusPublished); err != nil {
		return nil, err
	}
	e.Status = model.ExamStatusPublished

	if err := s.warmCache(ctx, id); err != nil {
		// Non-fatal: GetExamByID self-heals on the first cache miss.
		s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Cache warm failed")
	}
	return e, nil
}

// Archive transitions a PUBLISHED exam to ARCHIVED and drops its cache
// entry. Existing results stay readable; new sessions are refused.
func (s *ExamService) Archive(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, err
	}
	if e.Status != model.ExamStatusPublished {
		return nil, ErrNotPublished
	}

	if err := s.examRepo.UpdateStatus(ctx, id, model.ExamStatusArchived); err != nil {
		return nil, err
	}
	e.Status = model.ExamStatusArchived

	if err := s.rdb.Del(ctx, config.CacheKey.ExamPayloadKey(id.String())).Err(); err != nil {
		s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Cache invalidation failed")
	}
	return e, nil
}

// GetExamByID returns a published exam with its full question set, answers
// included. Cache-first; a miss loads from PostgreSQL and heals the cache.
// This is the lookup exam sessions start from.
func (s *ExamService) GetExamByID(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	key := config.CacheKey.ExamPayloadKey(examID.String())

	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var e model.Exam
		if err := json.Unmarshal(data, &e); err == nil {
			return &e, nil
		}
		s.log.Warn().Str("exam_id", examID.String()).Msg("Corrupt exam cache entry, reloading")
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("Exam cache read failed, falling back to database")
	}

	e, err := s.examRepo.GetWithQuestions(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, err
	}
	if e.Status != model.ExamStatusPublished {
		return nil, ErrNotPublished
	}

	if payload, err := json.Marshal(e); err == nil {
		if err := s.rdb.Set(ctx, key, payload, 0).Err(); err != nil {
			s.log.Warn().Err(err).Msg("Exam cache heal failed")
		}
	}
	return e, nil
}

// PrewarmAllCaches loads all published exams into Redis on startup.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	exams, err := s.examRepo.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}

	warmed := 0
	for i := range exams {
		if err := s.warmCache(ctx, exams[i].ID); err != nil {
			s.log.Warn().Err(err).Str("exam_id", exams[i].ID.String()).Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().Int("warmed", warmed).Int("total", len(exams)).Msg("Prewarming complete")
	return nil
}

func (s *ExamService) warmCache(ctx context.Context, examID uuid.UUID) error {
	e, err := s.examRepo.GetWithQuestions(ctx, examID)
	if err != nil {
		return fmt.Errorf("load exam: %w", err)
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal exam: %w", err)
	}
	return s.rdb.Set(ctx, config.CacheKey.ExamPayloadKey(examID.String()), payload, 0).Err()
}

func (s *ExamService) getDraft(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, err
	}
	if e.Status != model.ExamStatusDraft {
		return nil, ErrExamNotDraft
	}
	return e, nil
}

func questionFromRequest(examID uuid.UUID, req *model.AddQuestionRequest) *model.Question {
	points := req.Points
	if points <= 0 {
		points = 1
	}
	return &model.Question{
		ExamID:        examID,
		Text:          req.Text,
		Type:          model.QuestionType(req.Type),
		Points:        points,
		Options:       req.Options,
		CorrectAnswer: req.CorrectAnswer,
		Position:      req.Position,
	}
}
