package model

import (
	"time"

	"github.com/google/uuid"
)

// Subject groups exams by academic discipline (maths, physics, ...).
type Subject struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ExamCount   int       `json:"exam_count,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateSubjectRequest is the payload for creating a subject.
type CreateSubjectRequest struct {
	Name        string `json:"name" binding:"required,min=2,max=120"`
	Description string `json:"description" binding:"omitempty,max=2000"`
}

// UpdateSubjectRequest is the payload for updating a subject.
type UpdateSubjectRequest struct {
	Name        string `json:"name" binding:"omitempty,min=2,max=120"`
	Description string `json:"description" binding:"omitempty,max=2000"`
}
