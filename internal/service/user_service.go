package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/falachabt/bacblanc-sub000/internal/model"
	"github.com/falachabt/bacblanc-sub000/internal/repository"
)

var ErrUserNotFound = errors.New("user not found")

// UserService handles user lookups and administration.
type UserService struct {
	repo *repository.UserRepository
}

// NewUserService creates a new UserService.
func NewUserService(repo *repository.UserRepository) *UserService {
	return &UserService{repo: repo}
}

// GetByID returns a single user.
func (s *UserService) GetByID(ctx context.Context, id int) (*model.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// List returns users page by page.
func (s *UserService) List(ctx context.Context, page, perPage int) ([]model.User, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 25
	}
	return s.repo.ListPaginated(ctx, perPage, (page-1)*perPage)
}

// PromoteToAdmin grants the admin role.
func (s *UserService) PromoteToAdmin(ctx context.Context, id int) error {
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	return s.repo.UpdateRole(ctx, id, model.UserRoleAdmin)
}
