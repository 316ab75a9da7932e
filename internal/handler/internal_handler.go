package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
	"github.com/stemsi/exstem-assessment/internal/validator"
)

// InternalHandler serves service-to-service endpoints used by the job
// application workflow and the plagiarism pipeline.
type InternalHandler struct {
	sessions  *service.AssessmentService
	integrity *service.IntegrityService
}

// NewInternalHandler creates a new InternalHandler.
func NewInternalHandler(sessions *service.AssessmentService, integrity *service.IntegrityService) *InternalHandler {
	return &InternalHandler{sessions: sessions, integrity: integrity}
}

// CreateSession godoc
// POST /api/v1/internal/sessions
// Creates a pending session for an application. One session per application.
func (h *InternalHandler) CreateSession(c *gin.Context) {
	var req model.CreateSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sess, err := h.sessions.Create(c.Request.Context(), req)
	if err != nil {
		response.FailDomain(c, err)
		return
	}
	response.Success(c, http.StatusCreated, sess)
}

// GetByApplication godoc
// GET /api/v1/internal/applications/:application_id/session
func (h *InternalHandler) GetByApplication(c *gin.Context) {
	sess, err := h.sessions.GetByApplication(c.Request.Context(), c.Param("application_id"))
	if err != nil {
		response.FailDomain(c, err)
		return
	}
	response.Success(c, http.StatusOK, sess)
}

// RecordPlagiarism godoc
// POST /api/v1/internal/sessions/:id/plagiarism
// Stores an advisory similarity score for a coding answer.
func (h *InternalHandler) RecordPlagiarism(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	var req model.PlagiarismScoreRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	accepted, err := h.integrity.ReportPlagiarismScore(c.Request.Context(), id, req.QuestionID, *req.SimilarityScore)
	if err != nil {
		response.FailDomain(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"accepted": accepted})
}
