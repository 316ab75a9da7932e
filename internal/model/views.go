package model

import (
	"time"

	"github.com/google/uuid"
)

// CandidateView is the session as shown to its owner. The answer key and
// per-question results stay hidden until the session is terminal.
type CandidateView struct {
	ID               uuid.UUID         `json:"id"`
	ApplicationID    string            `json:"application_id"`
	JobID            string            `json:"job_id"`
	Status           SessionStatus     `json:"status"`
	Questions        []Question        `json:"questions"`
	Answers          map[string]Answer `json:"answers"`
	TimeLimitMinutes int               `json:"time_limit_minutes"`
	StartedAt        *time.Time        `json:"started_at,omitempty"`
	ExpiresAt        *time.Time        `json:"expires_at,omitempty"`
	SubmittedAt      *time.Time        `json:"submitted_at,omitempty"`
	RemainingSeconds float64           `json:"remaining_seconds"`
	AttemptCount     int               `json:"attempt_count"`
	IsCompleted      bool              `json:"is_completed"`
	Result           *ResultsView      `json:"result,omitempty"`
}

// ResultsView is the scored outcome of a terminal session.
type ResultsView struct {
	SessionID   uuid.UUID        `json:"session_id"`
	Status      SessionStatus    `json:"status"`
	Score       float64          `json:"score"`
	TotalPoints float64          `json:"total_points"`
	Percentage  float64          `json:"percentage"`
	Results     []QuestionResult `json:"results"`
	SubmittedAt *time.Time       `json:"submitted_at,omitempty"`
}

// NewCandidateView builds the owner-facing view of s at now.
func NewCandidateView(s *AssessmentSession, now time.Time) CandidateView {
	questions := make([]Question, len(s.Questions))
	for i, q := range s.Questions {
		if s.Status.IsTerminal() {
			questions[i] = q.clone()
		} else {
			questions[i] = q.ForCandidate()
		}
	}

	answers := make(map[string]Answer, len(s.Answers))
	for k, v := range s.Answers {
		answers[k] = v
	}

	v := CandidateView{
		ID:               s.ID,
		ApplicationID:    s.ApplicationID,
		JobID:            s.JobID,
		Status:           s.Status,
		Questions:        questions,
		Answers:          answers,
		TimeLimitMinutes: s.TimeLimitMinutes,
		StartedAt:        s.StartedAt,
		ExpiresAt:        s.ExpiresAt,
		SubmittedAt:      s.SubmittedAt,
		RemainingSeconds: s.RemainingSeconds(now),
		AttemptCount:     s.AttemptCount,
		IsCompleted:      s.IsCompleted,
	}
	if s.Status.IsTerminal() {
		r := NewResultsView(s)
		v.Result = &r
	}
	return v
}

// NewResultsView extracts the scored outcome of s.
func NewResultsView(s *AssessmentSession) ResultsView {
	results := s.Results
	if results == nil {
		results = []QuestionResult{}
	}
	return ResultsView{
		SessionID:   s.ID,
		Status:      s.Status,
		Score:       s.Score,
		TotalPoints: s.TotalPoints,
		Percentage:  s.Percentage,
		Results:     results,
		SubmittedAt: s.SubmittedAt,
	}
}
