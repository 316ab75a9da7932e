package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// RecruiterHandler serves the full session record to recruiters.
type RecruiterHandler struct {
	sessions *service.AssessmentService
}

// NewRecruiterHandler creates a new RecruiterHandler.
func NewRecruiterHandler(sessions *service.AssessmentService) *RecruiterHandler {
	return &RecruiterHandler{sessions: sessions}
}

// GetSession godoc
// GET /api/v1/recruiter/sessions/:id
// Returns the session including the answer key and integrity record.
func (h *RecruiterHandler) GetSession(c *gin.Context) {
	sess, ok := loadAuthorized(c, h.sessions)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, sess)
}

// ListJobSessions godoc
// GET /api/v1/recruiter/jobs/:job_id/sessions?page=1&per_page=20
// Newest first.
func (h *RecruiterHandler) ListJobSessions(c *gin.Context) {
	jobID := c.Param("job_id")
	if claims := middleware.GetClaims(c); claims == nil || !claims.CanViewJob(jobID) {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(defaultPerPage)))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > maxPerPage {
		perPage = defaultPerPage
	}

	all, err := h.sessions.ListByJob(c.Request.Context(), jobID)
	if err != nil {
		response.FailDomain(c, err)
		return
	}

	pagination, from, to := response.NewPagination(page, perPage, len(all))
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"sessions": summarize(all[from:to])}, pagination)
}
