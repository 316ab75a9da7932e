package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
)

// sessionID parses the :id path parameter. It writes a 400 and returns false
// on a malformed id.
func sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	response.SetSessionID(c, id)
	return id, true
}

// canAccess reports whether claims may read sess. Candidates only see their
// own sessions and recruiters only the jobs they are scoped to.
func canAccess(claims *service.Claims, sess *model.AssessmentSession) bool {
	if claims == nil {
		return false
	}
	switch claims.Role {
	case service.RoleCandidate:
		return claims.Subject == sess.CandidateID
	default:
		return claims.CanViewJob(sess.JobID)
	}
}

// loadAuthorized resolves the session and checks access. Sessions the caller
// may not see are reported as not found.
func loadAuthorized(c *gin.Context, sessions *service.AssessmentService) (*model.AssessmentSession, bool) {
	id, ok := sessionID(c)
	if !ok {
		return nil, false
	}

	sess, err := sessions.Get(c.Request.Context(), id)
	if err != nil {
		response.FailDomain(c, err)
		return nil, false
	}

	if !canAccess(middleware.GetClaims(c), sess) {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return nil, false
	}
	return sess, true
}
