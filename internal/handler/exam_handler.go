package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/falachabt/bacblanc-sub000/internal/model"
	"github.com/falachabt/bacblanc-sub000/internal/repository"
	"github.com/falachabt/bacblanc-sub000/internal/response"
	"github.com/falachabt/bacblanc-sub000/internal/service"
	"github.com/falachabt/bacblanc-sub000/internal/validator"
)

// ExamHandler handles admin exam and question management.
type ExamHandler struct {
	examService *service.ExamService
	attempts    *repository.AttemptRepository
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService, attempts *repository.AttemptRepository) *ExamHandler {
	return &ExamHandler{examService: examService, attempts: attempts}
}

func failExam(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExamNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrExamNotFound)
	case errors.Is(err, service.ErrExamNotDraft):
		response.Fail(c, http.StatusConflict, response.ErrExamNotDraft)
	case errors.Is(err, service.ErrNotPublished):
		response.Fail(c, http.StatusConflict, response.ErrExamNotPublished)
	case errors.Is(err, service.ErrNoQuestions):
		response.Fail(c, http.StatusConflict, response.ErrNoQuestions)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// Create godoc
// POST /api/v1/admin/exams
func (h *ExamHandler) Create(c *gin.Context) {
	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.Create(c.Request.Context(), &req)
	if err != nil {
		failExam(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"exam": exam})
}

// GetByID godoc
// GET /api/v1/admin/exams/:id
func (h *ExamHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	exam, err := h.examService.GetByID(c.Request.Context(), id)
	if err != nil {
		failExam(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// ListBySubject godoc
// GET /api/v1/admin/subjects/:id/exams
func (h *ExamHandler) ListBySubject(c *gin.Context) {
	subjectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var status *model.ExamStatus
	if raw := c.Query("status"); raw != "" {
		s := model.ExamStatus(raw)
		status = &s
	}

	exams, err := h.examService.ListBySubject(c.Request.Context(), subjectID, status)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// Update godoc
// PUT /api/v1/admin/exams/:id
func (h *ExamHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.UpdateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.Update(c.Request.Context(), id, &req)
	if err != nil {
		failExam(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// Delete godoc
// DELETE /api/v1/admin/exams/:id
func (h *ExamHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.examService.Delete(c.Request.Context(), id); err != nil {
		failExam(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "exam deleted"})
}

// Publish godoc
// POST /api/v1/admin/exams/:id/publish
func (h *ExamHandler) Publish(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	exam, err := h.examService.Publish(c.Request.Context(), id)
	if err != nil {
		failExam(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// Archive godoc
// POST /api/v1/admin/exams/:id/archive
func (h *ExamHandler) Archive(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	exam, err := h.examService.Archive(c.Request.Context(), id)
	if err != nil {
		failExam(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// AddQuestion godoc
// POST /api/v1/admin/exams/:id/questions
func (h *ExamHandler) AddQuestion(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.AddQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	q, err := h.examService.AddQuestion(c.Request.Context(), examID, &req)
	if err != nil {
		failExam(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"question": q})
}

// ReplaceQuestions godoc
// PUT /api/v1/admin/exams/:id/questions
func (h *ExamHandler) ReplaceQuestions(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.ReplaceQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	questions, err := h.examService.ReplaceQuestions(c.Request.Context(), examID, &req)
	if err != nil {
		failExam(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// DeleteQuestion godoc
// DELETE /api/v1/admin/exams/:id/questions/:question_id
func (h *ExamHandler) DeleteQuestion(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	questionID, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.examService.DeleteQuestion(c.Request.Context(), examID, questionID); err != nil {
		failExam(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "question deleted"})
}

// Results godoc
// GET /api/v1/admin/exams/:id/results
func (h *ExamHandler) Results(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	results, err := h.attempts.ListCompletedByExam(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if results == nil {
		results = []model.AttemptSummary{}
	}
	response.Success(c, http.StatusOK, gin.H{"results": results})
}
