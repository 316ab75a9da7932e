package lifecycle

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-assessment/internal/model"
)

const (
	MinTimeLimitMinutes = 1
	MaxTimeLimitMinutes = 480
)

// NewSession validates req and builds a pending session. Points of 0 are
// stored as model.DefaultQuestionPoints.
func NewSession(id uuid.UUID, req model.CreateSessionRequest, now time.Time) (*model.AssessmentSession, error) {
	verr := &ValidationError{}

	if strings.TrimSpace(req.ApplicationID) == "" {
		verr.Add("application_id", "is required")
	}
	if strings.TrimSpace(req.CandidateID) == "" {
		verr.Add("candidate_id", "is required")
	}
	if strings.TrimSpace(req.JobID) == "" {
		verr.Add("job_id", "is required")
	}
	if req.TimeLimitMinutes < MinTimeLimitMinutes || req.TimeLimitMinutes > MaxTimeLimitMinutes {
		verr.Add("time_limit_minutes", fmt.Sprintf("must be between %d and %d", MinTimeLimitMinutes, MaxTimeLimitMinutes))
	}

	questions := make([]model.Question, 0, len(req.Questions))
	seen := make(map[string]struct{}, len(req.Questions))
	for i, in := range req.Questions {
		field := fmt.Sprintf("questions[%d]", i)
		q, ok := buildQuestion(field, in, verr)
		if !ok {
			continue
		}
		if _, dup := seen[q.ID]; dup {
			verr.Add(field+".id", fmt.Sprintf("duplicate question id %q", q.ID))
			continue
		}
		seen[q.ID] = struct{}{}
		questions = append(questions, q)
	}

	if err := verr.orNil(); err != nil {
		return nil, err
	}

	at := now.UTC()
	return &model.AssessmentSession{
		ID:               id,
		ApplicationID:    strings.TrimSpace(req.ApplicationID),
		CandidateID:      strings.TrimSpace(req.CandidateID),
		JobID:            strings.TrimSpace(req.JobID),
		Status:           model.SessionStatusPending,
		Questions:        questions,
		Answers:          map[string]model.Answer{},
		Integrity:        model.Integrity{}.Clone(),
		Results:          []model.QuestionResult{},
		TimeLimitMinutes: req.TimeLimitMinutes,
		CreatedAt:        at,
		UpdatedAt:        at,
	}, nil
}

func buildQuestion(field string, in model.QuestionInput, verr *ValidationError) (model.Question, bool) {
	q := model.Question{
		ID:        strings.TrimSpace(in.ID),
		Type:      model.QuestionType(in.Type),
		Text:      in.Text,
		Points:    in.Points,
		TestCases: in.TestCases,
	}
	valid := true

	if q.ID == "" {
		verr.Add(field+".id", "is required")
		valid = false
	}
	if strings.TrimSpace(q.Text) == "" {
		verr.Add(field+".text", "is required")
		valid = false
	}
	if q.Points < 0 {
		verr.Add(field+".points", "must not be negative")
		valid = false
	}
	q.Points = q.EffectivePoints()

	switch q.Type {
	case model.QuestionTypeMCQ:
		if len(in.Options) < 2 {
			verr.Add(field+".options", "multiple choice questions need at least 2 options")
			valid = false
		}
		if in.CorrectAnswer == "" {
			verr.Add(field+".correct_answer", "is required for multiple choice questions")
			valid = false
		} else if !slices.Contains(in.Options, in.CorrectAnswer) {
			verr.Add(field+".correct_answer", "must be one of the options")
			valid = false
		}
		q.Options = append([]string(nil), in.Options...)
		q.CorrectAnswer = in.CorrectAnswer
		q.TestCases = nil
	case model.QuestionTypeCoding:
		// Coding questions carry no answer key.
	default:
		verr.Add(field+".type", fmt.Sprintf("unsupported question type %q", in.Type))
		valid = false
	}
	return q, valid
}
