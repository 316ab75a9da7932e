package websocket

import (
	"encoding/json"
	"time"

	"github.com/stemsi/exstem-assessment/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionFaceSample    Action = "face_sample"
	ActionTabSwitch     Action = "tab_switch"
	ActionMultipleFaces Action = "multiple_faces"
	ActionAutosave      Action = "autosave"
	ActionSubmit        Action = "submit"
	ActionPing          Action = "ping"
)

// Request is any client message. Fields not used by an action are ignored.
type Request struct {
	Action Action `json:"action"`

	// face_sample, tab_switch, multiple_faces
	Present   *bool                   `json:"present,omitempty"`
	Timestamp *time.Time              `json:"timestamp,omitempty"`
	Metadata  model.ViolationMetadata `json:"metadata"`

	// autosave
	QuestionID string          `json:"question_id,omitempty"`
	Answer     json.RawMessage `json:"answer,omitempty"`

	// submit
	Answers   []model.AnswerInput      `json:"answers,omitempty"`
	Integrity *model.IntegritySnapshot `json:"integrity,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventAck    Event = "ack"
	EventGraded Event = "graded"
	EventPong   Event = "pong"
	EventError  Event = "error"
)

// AckResponse confirms a proctoring signal or autosave. Accepted is false
// for signals that were debounced or arrived outside the active window.
type AckResponse struct {
	Event    Event  `json:"event"`
	Action   Action `json:"action"`
	Accepted bool   `json:"accepted"`
}

// GradedResponse is sent once the session is scored.
type GradedResponse struct {
	Event  Event             `json:"event"`
	Result model.ResultsView `json:"result"`
}

// PongResponse carries the advisory countdown.
type PongResponse struct {
	Event            Event               `json:"event"`
	Status           model.SessionStatus `json:"status"`
	RemainingSeconds float64             `json:"remaining_seconds"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}
