package model

import (
	"encoding/json"
	"time"
)

// CreateSessionRequest is sent by the job-application workflow when a
// pre-assessment is required.
type CreateSessionRequest struct {
	ApplicationID    string          `json:"application_id" binding:"required,max=128"`
	CandidateID      string          `json:"candidate_id" binding:"required,max=128"`
	JobID            string          `json:"job_id" binding:"required,max=128"`
	TimeLimitMinutes int             `json:"time_limit_minutes" binding:"required,min=1,max=480"`
	Questions        []QuestionInput `json:"questions" binding:"dive"`
}

// QuestionInput is one question in a CreateSessionRequest.
type QuestionInput struct {
	ID            string     `json:"id" binding:"required,max=128"`
	Type          string     `json:"type" binding:"required,question_type"`
	Text          string     `json:"text" binding:"required,max=10000"`
	Points        int        `json:"points" binding:"min=0,max=1000"`
	Options       []string   `json:"options" binding:"omitempty,dive,max=2000"`
	CorrectAnswer string     `json:"correct_answer" binding:"max=2000"`
	TestCases     []TestCase `json:"test_cases"`
}

// AnswerInput carries an answer of any JSON shape; it is normalised to text.
type AnswerInput struct {
	QuestionID string          `json:"question_id" binding:"required,max=128"`
	Answer     json.RawMessage `json:"answer"`
}

// SubmitRequest finishes a session.
type SubmitRequest struct {
	Answers   []AnswerInput      `json:"answers" binding:"dive"`
	Integrity *IntegritySnapshot `json:"integrity"`
}

// SaveAnswerRequest autosaves a single answer.
type SaveAnswerRequest struct {
	Answer json.RawMessage `json:"answer" binding:"required"`
}

// ReportViolationRequest reports a single proctoring event.
type ReportViolationRequest struct {
	Kind      string            `json:"kind" binding:"required,violation_kind"`
	Timestamp *time.Time        `json:"timestamp"`
	Metadata  ViolationMetadata `json:"metadata"`
}

// FaceSampleRequest reports the outcome of one periodic face-presence check.
type FaceSampleRequest struct {
	Present   *bool      `json:"present" binding:"required"`
	Timestamp *time.Time `json:"timestamp"`
}

// PlagiarismScoreRequest records an external similarity check.
type PlagiarismScoreRequest struct {
	QuestionID      string   `json:"question_id" binding:"required,max=128"`
	SimilarityScore *float64 `json:"similarity_score" binding:"required,min=0,max=100"`
}
