package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/falachabt/bacblanc-sub000/internal/model"
	"github.com/falachabt/bacblanc-sub000/internal/repository"
)

var ErrSubjectNotFound = errors.New("subject not found")

// SubjectService handles subject business logic.
type SubjectService struct {
	repo *repository.SubjectRepository
}

// NewSubjectService creates a new SubjectService.
func NewSubjectService(repo *repository.SubjectRepository) *SubjectService {
	return &SubjectService{repo: repo}
}

// List returns all subjects. publishedOnly limits exam counts to published
// exams for the student portal.
func (s *SubjectService) List(ctx context.Context, publishedOnly bool) ([]model.Subject, error) {
	return s.repo.List(ctx, publishedOnly)
}

// GetByID returns a single subject.
func (s *SubjectService) GetByID(ctx context.Context, id uuid.UUID) (*model.Subject, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSubjectNotFound
	}
	return sub, err
}

// Create inserts a new subject.
func (s *SubjectService) Create(ctx context.Context, req *model.CreateSubjectRequest) (*model.Subject, error) {
	sub := &model.Subject{Name: req.Name, Description: req.Description}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Update modifies a subject's name and description.
func (s *SubjectService) Update(ctx context.Context, id uuid.UUID, req *model.UpdateSubjectRequest) (*model.Subject, error) {
	sub, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != "" {
		sub.Name = req.Name
	}
	if req.Description != "" {
		sub.Description = req.Description
	}
	if err := s.repo.Update(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Delete removes a subject.
func (s *SubjectService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}
