package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates assessment session states.
type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "pending"
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusExpired    SessionStatus = "expired"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusExpired
}

// Valid reports whether s is one of the known statuses.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusPending, SessionStatusInProgress, SessionStatusCompleted, SessionStatusExpired:
		return true
	}
	return false
}

// AssessmentSession is one candidate's attempt at one assessment, keyed by application.
type AssessmentSession struct {
	ID            uuid.UUID     `json:"id"`
	ApplicationID string        `json:"application_id"`
	CandidateID   string        `json:"candidate_id"`
	JobID         string        `json:"job_id"`
	Status        SessionStatus `json:"status"`

	Questions []Question        `json:"questions"`
	Answers   map[string]Answer `json:"answers"`
	Integrity Integrity         `json:"integrity"`
	Results   []QuestionResult  `json:"results"`

	TimeLimitMinutes int        `json:"time_limit_minutes"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	SubmittedAt      *time.Time `json:"submitted_at,omitempty"`

	Score       float64 `json:"score"`
	TotalPoints float64 `json:"total_points"`
	Percentage  float64 `json:"percentage"`

	AttemptCount int  `json:"attempt_count"`
	IsCompleted  bool `json:"is_completed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Revision guards lifecycle and answer writes; IntegrityRevision guards
	// integrity appends. Both are owned by the session store.
	Revision          int64 `json:"-"`
	IntegrityRevision int64 `json:"-"`
}

// QuestionResult is the per-question outcome of scoring.
type QuestionResult struct {
	QuestionID      string `json:"question_id"`
	IsCorrect       bool   `json:"is_correct"`
	PointsAwarded   int    `json:"points_awarded"`
	CorrectAnswer   string `json:"correct_answer"`
	CandidateAnswer string `json:"candidate_answer"`
}

// Answer is a candidate's latest answer to one question.
type Answer struct {
	QuestionID  string    `json:"question_id"`
	AnswerText  string    `json:"answer_text"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Expired reports whether an in-progress session has passed its deadline at now.
func (s *AssessmentSession) Expired(now time.Time) bool {
	if s.Status != SessionStatusInProgress || s.ExpiresAt == nil {
		return false
	}
	return !now.Before(*s.ExpiresAt)
}

// RemainingSeconds returns the advisory countdown for the session owner.
func (s *AssessmentSession) RemainingSeconds(now time.Time) float64 {
	if s.Status != SessionStatusInProgress || s.ExpiresAt == nil {
		return 0
	}
	remaining := s.ExpiresAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining.Seconds()
}

// Question returns the question with the given ID.
func (s *AssessmentSession) Question(id string) (Question, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Clone returns a deep copy so callers can derive a new state without
// aliasing the stored one.
func (s *AssessmentSession) Clone() *AssessmentSession {
	if s == nil {
		return nil
	}
	c := *s

	c.Questions = make([]Question, len(s.Questions))
	for i, q := range s.Questions {
		c.Questions[i] = q.clone()
	}

	c.Answers = make(map[string]Answer, len(s.Answers))
	for k, v := range s.Answers {
		c.Answers[k] = v
	}

	if s.Results != nil {
		c.Results = append([]QuestionResult(nil), s.Results...)
	}
	c.Integrity = s.Integrity.Clone()
	c.StartedAt = cloneTime(s.StartedAt)
	c.ExpiresAt = cloneTime(s.ExpiresAt)
	c.SubmittedAt = cloneTime(s.SubmittedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
