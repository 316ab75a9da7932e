package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
	ws "github.com/stemsi/exstem-assessment/internal/websocket"
)

const wsOpTimeout = 10 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler carries the proctoring stream of one session: face samples,
// tab switches, autosaves and the final submit.
type WSHandler struct {
	sessions  *service.AssessmentService
	integrity *service.IntegrityService
	log       zerolog.Logger
	upgrader  websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions *service.AssessmentService, integrity *service.IntegrityService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions:  sessions,
		integrity: integrity,
		log:       log.With().Str("component", "ws_handler").Logger(),
		upgrader:  buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/sessions/:id/stream?token=...
// Every message goes through the same service paths as the HTTP routes, so
// the deadline is enforced on each one.
func (h *WSHandler) SessionStream(c *gin.Context) {
	// Ownership is checked before the upgrade so failures are plain HTTP.
	sess, ok := loadAuthorized(c, h.sessions)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("session_id", sess.ID.String()).
		Str("candidate_id", sess.CandidateID).
		Logger()

	wsLog.Info().Msg("Candidate connected")

	// The request context ends with the handler; messages keep its values only.
	baseCtx := context.WithoutCancel(c.Request.Context())

	for {
		var msg ws.Request
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		ctx, cancel := context.WithTimeout(baseCtx, wsOpTimeout)
		reply := h.dispatch(ctx, sess.ID, &msg)
		cancel()

		if err := ws.WriteTyped(conn, reply); err != nil {
			wsLog.Debug().Err(err).Msg("Write failed")
			return
		}
	}
}

// dispatch runs one client message and returns the reply to send.
func (h *WSHandler) dispatch(ctx context.Context, id uuid.UUID, msg *ws.Request) interface{} {
	switch msg.Action {
	case ws.ActionFaceSample:
		if msg.Present == nil {
			return invalidPayload("present is required")
		}
		accepted, err := h.integrity.ReportFaceSample(ctx, id, *msg.Present, timeOrZero(msg.Timestamp))
		return ackOrError(msg.Action, accepted, err)

	case ws.ActionTabSwitch:
		accepted, err := h.integrity.ReportViolation(ctx, id, model.ViolationTabSwitch, timeOrZero(msg.Timestamp), msg.Metadata)
		return ackOrError(msg.Action, accepted, err)

	case ws.ActionMultipleFaces:
		accepted, err := h.integrity.ReportViolation(ctx, id, model.ViolationMultipleFaces, timeOrZero(msg.Timestamp), msg.Metadata)
		return ackOrError(msg.Action, accepted, err)

	case ws.ActionAutosave:
		if msg.QuestionID == "" {
			return invalidPayload("question_id is required")
		}
		_, err := h.sessions.SaveAnswer(ctx, id, msg.QuestionID, msg.Answer)
		return ackOrError(msg.Action, err == nil, err)

	case ws.ActionSubmit:
		done, err := h.sessions.Submit(ctx, id, model.SubmitRequest{Answers: msg.Answers, Integrity: msg.Integrity})
		if err != nil {
			return domainError(err)
		}
		return ws.GradedResponse{Event: ws.EventGraded, Result: model.NewResultsView(done)}

	case ws.ActionPing:
		sess, err := h.sessions.Get(ctx, id)
		if err != nil {
			return domainError(err)
		}
		return ws.PongResponse{
			Event:            ws.EventPong,
			Status:           sess.Status,
			RemainingSeconds: sess.RemainingSeconds(h.sessions.Now()),
		}

	default:
		return invalidPayload("unknown action: " + string(msg.Action))
	}
}

func ackOrError(action ws.Action, accepted bool, err error) interface{} {
	if err != nil {
		return domainError(err)
	}
	return ws.AckResponse{Event: ws.EventAck, Action: action, Accepted: accepted}
}

func domainError(err error) ws.ErrorResponse {
	_, code := response.Classify(err)
	return ws.ErrorResponse{Event: ws.EventError, Code: string(code), Error: response.GetMessage(code)}
}

func invalidPayload(msg string) ws.ErrorResponse {
	return ws.ErrorResponse{Event: ws.EventError, Code: string(response.ErrInvalidPayload), Error: msg}
}
