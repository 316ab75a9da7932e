package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
	"github.com/stemsi/exstem-assessment/internal/validator"
)

// AssessmentHandler handles candidate-facing session endpoints.
type AssessmentHandler struct {
	sessions  *service.AssessmentService
	integrity *service.IntegrityService
}

// NewAssessmentHandler creates a new AssessmentHandler.
func NewAssessmentHandler(sessions *service.AssessmentService, integrity *service.IntegrityService) *AssessmentHandler {
	return &AssessmentHandler{sessions: sessions, integrity: integrity}
}

// GetSession godoc
// GET /api/v1/sessions/:id
// Returns the session without the answer key while it is still open.
func (h *AssessmentHandler) GetSession(c *gin.Context) {
	sess, ok := loadAuthorized(c, h.sessions)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, model.NewCandidateView(sess, h.sessions.Now()))
}

// StartSession godoc
// POST /api/v1/sessions/:id/start
func (h *AssessmentHandler) StartSession(c *gin.Context) {
	sess, ok := loadAuthorized(c, h.sessions)
	if !ok {
		return
	}

	started, err := h.sessions.Start(c.Request.Context(), sess.ID)
	if err != nil {
		response.FailDomain(c, err)
		return
	}
	response.Success(c, http.StatusOK, model.NewCandidateView(started, h.sessions.Now()))
}

// SaveAnswer godoc
// PUT /api/v1/sessions/:id/answers/:question_id
// Autosaves one answer. Last write wins.
func (h *AssessmentHandler) SaveAnswer(c *gin.Context) {
	sess, ok := loadAuthorized(c, h.sessions)
	if !ok {
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	questionID := c.Param("question_id")
	saved, err := h.sessions.SaveAnswer(c.Request.Context(), sess.ID, questionID, req.Answer)
	if err != nil {
		response.FailDomain(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"answer":            saved.Answers[questionID],
		"remaining_seconds": saved.RemainingSeconds(h.sessions.Now()),
	})
}

// SubmitSession godoc
// POST /api/v1/sessions/:id/submit
// Scores the session. Submitting an ended session returns it unchanged.
func (h *AssessmentHandler) SubmitSession(c *gin.Context) {
	sess, ok := loadAuthorized(c, h.sessions)
	if !ok {
		return
	}

	var req model.SubmitRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	done, err := h.sessions.Submit(c.Request.Context(), sess.ID, req)
	if err != nil {
		response.FailDomain(c, err)
		return
	}
	response.Success(c, http.StatusOK, model.NewCandidateView(done, h.sessions.Now()))
}

// ReportViolation godoc
// POST /api/v1/sessions/:id/violations
// Best-effort: a dropped or debounced event still answers 200.
func (h *AssessmentHandler) ReportViolation(c *gin.Context) {
	sess, ok := loadAuthorized(c, h.sessions)
	if !ok {
		return
	}

	var req model.ReportViolationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	accepted, err := h.integrity.ReportViolation(c.Request.Context(), sess.ID, model.ViolationKind(req.Kind), timeOrZero(req.Timestamp), req.Metadata)
	if err != nil {
		response.FailDomain(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"accepted": accepted})
}

// ReportFaceSample godoc
// POST /api/v1/sessions/:id/face-samples
func (h *AssessmentHandler) ReportFaceSample(c *gin.Context) {
	sess, ok := loadAuthorized(c, h.sessions)
	if !ok {
		return
	}

	var req model.FaceSampleRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	accepted, err := h.integrity.ReportFaceSample(c.Request.Context(), sess.ID, *req.Present, timeOrZero(req.Timestamp))
	if err != nil {
		response.FailDomain(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"accepted": accepted})
}

// GetResults godoc
// GET /api/v1/sessions/:id/results
// Available to the owning candidate and to recruiters of the job once the
// session has ended.
func (h *AssessmentHandler) GetResults(c *gin.Context) {
	sess, ok := loadAuthorized(c, h.sessions)
	if !ok {
		return
	}

	results, err := h.sessions.Results(c.Request.Context(), sess.ID)
	if err != nil {
		response.FailDomain(c, err)
		return
	}
	response.Success(c, http.StatusOK, results)
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
