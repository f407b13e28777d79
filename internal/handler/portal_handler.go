package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/falachabt/bacblanc-sub000/internal/middleware"
	"github.com/falachabt/bacblanc-sub000/internal/model"
	"github.com/falachabt/bacblanc-sub000/internal/repository"
	"github.com/falachabt/bacblanc-sub000/internal/response"
	"github.com/falachabt/bacblanc-sub000/internal/service"
	"github.com/falachabt/bacblanc-sub000/internal/session"
	"github.com/falachabt/bacblanc-sub000/internal/validator"
)

// PortalHandler is the student-facing surface: browsing published exams and
// driving the exam session lifecycle.
type PortalHandler struct {
	subjectService *service.SubjectService
	examService    *service.ExamService
	manager        *session.Manager
	attempts       *repository.AttemptRepository
}

// NewPortalHandler creates a new PortalHandler.
func NewPortalHandler(subjectService *service.SubjectService, examService *service.ExamService, manager *session.Manager, attempts *repository.AttemptRepository) *PortalHandler {
	return &PortalHandler{
		subjectService: subjectService,
		examService:    examService,
		manager:        manager,
		attempts:       attempts,
	}
}

// AnswerRequest submits one question's answer. The answer's shape depends on
// the question type and is checked at grading time, not here.
type AnswerRequest struct {
	QuestionID string          `json:"question_id" binding:"required"`
	Answer     json.RawMessage `json:"answer" binding:"required"`
}

// IndexRequest carries a question index for flag and goto operations.
type IndexRequest struct {
	Index int `json:"index" binding:"min=0"`
}

// ListSubjects godoc
// GET /api/v1/portal/subjects
func (h *PortalHandler) ListSubjects(c *gin.Context) {
	subjects, err := h.subjectService.List(c.Request.Context(), true)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if subjects == nil {
		subjects = []model.Subject{}
	}
	response.Success(c, http.StatusOK, gin.H{"subjects": subjects})
}

// ListExams godoc
// GET /api/v1/portal/subjects/:id/exams
func (h *PortalHandler) ListExams(c *gin.Context) {
	subjectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	published := model.ExamStatusPublished
	exams, err := h.examService.ListBySubject(c.Request.Context(), subjectID, &published)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// StartOrResume godoc
// POST /api/v1/portal/exams/:id/session
// Starts a fresh attempt or resumes persisted progress. A completed attempt
// is a distinct condition: the stored result comes back with the error code.
func (h *PortalHandler) StartOrResume(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	ctrl, err := h.manager.StartOrResume(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrAttemptCompleted):
			result, rErr := h.manager.Result(c.Request.Context(), claims.UserID, examID)
			if rErr != nil {
				response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
				return
			}
			response.FailWithData(c, http.StatusConflict, response.ErrAttemptCompleted, gin.H{"result": result})
		case errors.Is(err, session.ErrExamNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrExamNotFound)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"session": ctrl.View(),
		"paper":   ctrl.Paper(),
	})
}

// GetState godoc
// GET /api/v1/portal/exams/:id/session
func (h *PortalHandler) GetState(c *gin.Context) {
	ctrl, ok := h.activeSession(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": ctrl.View()})
}

// Answer godoc
// POST /api/v1/portal/exams/:id/session/answer
func (h *PortalHandler) Answer(c *gin.Context) {
	ctrl, ok := h.activeSession(c)
	if !ok {
		return
	}

	var req AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := ctrl.SubmitAnswer(req.QuestionID, req.Answer); err != nil {
		response.Fail(c, http.StatusConflict, response.ErrNoActiveSession)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "answer recorded"})
}

// Flag godoc
// POST /api/v1/portal/exams/:id/session/flag
func (h *PortalHandler) Flag(c *gin.Context) {
	ctrl, ok := h.activeSession(c)
	if !ok {
		return
	}

	var req IndexRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := ctrl.ToggleFlag(req.Index); err != nil {
		response.Fail(c, http.StatusConflict, response.ErrNoActiveSession)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"flags": ctrl.View().Flags})
}

// Goto godoc
// POST /api/v1/portal/exams/:id/session/goto
func (h *PortalHandler) Goto(c *gin.Context) {
	ctrl, ok := h.activeSession(c)
	if !ok {
		return
	}

	var req IndexRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := ctrl.GoTo(req.Index); err != nil {
		response.Fail(c, http.StatusConflict, response.ErrNoActiveSession)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"current_index": ctrl.View().CurrentIndex})
}

// Finish godoc
// POST /api/v1/portal/exams/:id/session/finish
func (h *PortalHandler) Finish(c *gin.Context) {
	ctrl, ok := h.activeSession(c)
	if !ok {
		return
	}

	result, err := ctrl.Finish()
	if err != nil {
		response.Fail(c, http.StatusConflict, response.ErrNoActiveSession)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// Quit godoc
// POST /api/v1/portal/exams/:id/session/quit
// Persists progress and stops the timers without grading. The attempt
// resumes on the next start.
func (h *PortalHandler) Quit(c *gin.Context) {
	ctrl, ok := h.activeSession(c)
	if !ok {
		return
	}

	if err := ctrl.Quit(c.Request.Context()); err != nil {
		response.Fail(c, http.StatusConflict, response.ErrNoActiveSession)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "progress saved"})
}

// Result godoc
// GET /api/v1/portal/exams/:id/result
func (h *PortalHandler) Result(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.manager.Result(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if result == nil {
		response.Fail(c, http.StatusNotFound, response.ErrResultNotFound)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// History godoc
// GET /api/v1/portal/history
func (h *PortalHandler) History(c *gin.Context) {
	claims := middleware.GetClaims(c)

	entries, err := h.attempts.ListByUser(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if entries == nil {
		entries = []model.AttemptHistoryEntry{}
	}
	response.Success(c, http.StatusOK, gin.H{"attempts": entries})
}

// activeSession resolves the caller's running controller for the exam in the
// path, failing the request when none exists.
func (h *PortalHandler) activeSession(c *gin.Context) (*session.Controller, bool) {
	claims := middleware.GetClaims(c)
	examID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, false
	}

	ctrl, ok := h.manager.Get(claims.UserID, examID)
	if !ok {
		response.Fail(c, http.StatusConflict, response.ErrNoActiveSession)
		return nil, false
	}
	return ctrl, true
}
