package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// SessionSummary is one row of the recruiter monitor.
type SessionSummary struct {
	SessionID      uuid.UUID           `json:"session_id"`
	ApplicationID  string              `json:"application_id"`
	CandidateID    string              `json:"candidate_id"`
	Status         model.SessionStatus `json:"status"`
	StartedAt      *time.Time          `json:"started_at,omitempty"`
	ExpiresAt      *time.Time          `json:"expires_at,omitempty"`
	SubmittedAt    *time.Time          `json:"submitted_at,omitempty"`
	Percentage     float64             `json:"percentage"`
	AnsweredCount  int                 `json:"answered_count"`
	TotalQuestions int                 `json:"total_questions"`
	FaceViolations int                 `json:"face_violations"`
	TabSwitchCount int                 `json:"tab_switch_count"`
}

// MonitorStats aggregates a job's sessions by status.
type MonitorStats struct {
	Total           int `json:"total"`
	Pending         int `json:"pending"`
	InProgress      int `json:"in_progress"`
	Completed       int `json:"completed"`
	Expired         int `json:"expired"`
	TotalViolations int `json:"total_violations"`
}

func summarize(sessions []*model.AssessmentSession) []SessionSummary {
	out := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionSummary{
			SessionID:      s.ID,
			ApplicationID:  s.ApplicationID,
			CandidateID:    s.CandidateID,
			Status:         s.Status,
			StartedAt:      s.StartedAt,
			ExpiresAt:      s.ExpiresAt,
			SubmittedAt:    s.SubmittedAt,
			Percentage:     s.Percentage,
			AnsweredCount:  len(s.Answers),
			TotalQuestions: len(s.Questions),
			FaceViolations: len(s.Integrity.FaceViolations),
			TabSwitchCount: s.Integrity.TabSwitchCount,
		})
	}
	return out
}

func monitorStats(sessions []*model.AssessmentSession) MonitorStats {
	st := MonitorStats{Total: len(sessions)}
	for _, s := range sessions {
		switch s.Status {
		case model.SessionStatusPending:
			st.Pending++
		case model.SessionStatusInProgress:
			st.InProgress++
		case model.SessionStatusCompleted:
			st.Completed++
		case model.SessionStatusExpired:
			st.Expired++
		}
		st.TotalViolations += len(s.Integrity.FaceViolations) + s.Integrity.TabSwitchCount
	}
	return st
}

// MonitorHandler streams a job's live assessment activity to recruiters.
type MonitorHandler struct {
	rdb      *redis.Client
	sessions *service.AssessmentService
	log      zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(rdb *redis.Client, sessions *service.AssessmentService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		rdb:      rdb,
		sessions: sessions,
		log:      log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorJobSSE godoc
// GET /api/v1/recruiter/jobs/:job_id/monitor
// Sends a snapshot, then forwards every monitor event published for the job.
func (h *MonitorHandler) MonitorJobSSE(c *gin.Context) {
	jobID := c.Param("job_id")
	if claims := middleware.GetClaims(c); claims == nil || !claims.CanViewJob(jobID) {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return
	}

	reqCtx := c.Request.Context()
	jobLog := h.log.With().Str("job_id", jobID).Logger()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	h.sendSnapshot(c, reqCtx, jobID, "snapshot")

	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.JobMonitorChannel(jobID))
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	// Refreshes are skipped until something happens on the channel.
	active := false

	jobLog.Info().Msg("Recruiter attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			jobLog.Info().Msg("Recruiter disconnected from live monitor SSE")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Events are already JSON, forward them untouched.
			writeSSEData(c, []byte(msg.Payload))
			active = true

		case <-refreshTicker.C:
			if !active {
				continue
			}
			h.sendSnapshot(c, reqCtx, jobID, "refresh")

		case <-keepAliveTicker.C:
			writeSSEData(c, pingPayload)
		}
	}
}

// sendSnapshot lists the job's sessions, which also expires overdue ones,
// and writes them as one SSE event.
func (h *MonitorHandler) sendSnapshot(c *gin.Context, parentCtx context.Context, jobID, kind string) {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	sessions, err := h.sessions.ListByJob(ctx, jobID)
	if err != nil {
		h.log.Warn().Err(err).Str("job_id", jobID).Msg("Failed to list sessions for monitor")
		return
	}

	c.SSEvent("message", gin.H{
		"type": kind,
		"data": gin.H{
			"job_id":   jobID,
			"stats":    monitorStats(sessions),
			"sessions": summarize(sessions),
		},
	})
	c.Writer.Flush()
}

func writeSSEData(c *gin.Context, payload []byte) {
	_, _ = c.Writer.Write([]byte("data: "))
	_, _ = c.Writer.Write(payload)
	_, _ = c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
