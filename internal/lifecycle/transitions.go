// Package lifecycle implements the assessment session state machine.
//
// Transitions are pure: each takes the current session and a timestamp and
// returns a new session, never mutating its input. Persisting the result
// under a conditional update is the caller's job.
//
//	pending ──Start──▶ in_progress ──Submit──▶ completed
//	                        │
//	                        └──Timeout──▶ expired
package lifecycle

import (
	"fmt"
	"time"

	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/scoring"
)

// Start opens the answering window. Only pending sessions can start.
func Start(s *model.AssessmentSession, now time.Time) (*model.AssessmentSession, error) {
	if s.Status != model.SessionStatusPending {
		return nil, fmt.Errorf("%w: cannot start a session that is %s", ErrInvalidTransition, s.Status)
	}

	started := now.UTC()
	expires := started.Add(time.Duration(s.TimeLimitMinutes) * time.Minute)

	next := s.Clone()
	next.Status = model.SessionStatusInProgress
	next.StartedAt = &started
	next.ExpiresAt = &expires
	next.AttemptCount++
	next.UpdatedAt = started
	return next, nil
}

// Submit merges answers into an in-progress session, scores it and marks it
// completed.
//
// On a terminal session Submit is a no-op and returns s with changed=false.
// If the deadline has already passed the submitted answers are discarded and
// the session times out instead.
func Submit(s *model.AssessmentSession, answers []model.Answer, now time.Time) (next *model.AssessmentSession, changed bool, err error) {
	switch {
	case s.Status.IsTerminal():
		return s, false, nil
	case s.Status != model.SessionStatusInProgress:
		return nil, false, fmt.Errorf("%w: cannot submit a session that is %s", ErrInvalidTransition, s.Status)
	case s.Expired(now):
		next, err = Timeout(s, now)
		return next, err == nil, err
	}

	next = s.Clone()
	for _, a := range answers {
		next.Answers[a.QuestionID] = a
	}
	finish(next, model.SessionStatusCompleted, now)
	return next, true, nil
}

// Timeout closes an in-progress session whose deadline has passed, scoring
// whatever answers were saved before it.
func Timeout(s *model.AssessmentSession, now time.Time) (*model.AssessmentSession, error) {
	if s.Status != model.SessionStatusInProgress {
		return nil, fmt.Errorf("%w: cannot expire a session that is %s", ErrInvalidTransition, s.Status)
	}
	if !s.Expired(now) {
		return nil, fmt.Errorf("%w: session deadline has not passed", ErrInvalidTransition)
	}

	next := s.Clone()
	finish(next, model.SessionStatusExpired, now)
	return next, nil
}

// SaveAnswer records one answer while the session is open. The last write
// for a question wins.
func SaveAnswer(s *model.AssessmentSession, answer model.Answer, now time.Time) (*model.AssessmentSession, error) {
	if s.Status != model.SessionStatusInProgress || s.Expired(now) {
		return nil, fmt.Errorf("%w: answers can only be saved while the session is in progress", ErrInvalidTransition)
	}
	if _, ok := s.Question(answer.QuestionID); !ok {
		return nil, NewValidationError("question_id", fmt.Sprintf("unknown question %q", answer.QuestionID))
	}

	next := s.Clone()
	next.Answers[answer.QuestionID] = answer
	next.UpdatedAt = now.UTC()
	return next, nil
}

// Results returns the scored outcome of a terminal session.
func Results(s *model.AssessmentSession) (model.ResultsView, error) {
	if !s.Status.IsTerminal() {
		return model.ResultsView{}, fmt.Errorf("%w: session is %s", ErrResultsNotReady, s.Status)
	}
	return model.NewResultsView(s), nil
}

// Consistent reports whether the stored score of a terminal session matches
// a fresh scoring run over its stored questions and answers.
func Consistent(s *model.AssessmentSession) bool {
	if !s.Status.IsTerminal() {
		return true
	}
	r := scoring.Score(s.Questions, s.Answers)
	if r.Score != s.Score || r.TotalPoints != s.TotalPoints || r.Percentage != s.Percentage {
		return false
	}
	if len(r.Results) != len(s.Results) {
		return false
	}
	for i := range r.Results {
		if r.Results[i] != s.Results[i] {
			return false
		}
	}
	return true
}

func finish(s *model.AssessmentSession, status model.SessionStatus, now time.Time) {
	at := now.UTC()
	scoring.Apply(s, scoring.Score(s.Questions, s.Answers))
	s.Status = status
	s.IsCompleted = true
	s.SubmittedAt = &at
	s.UpdatedAt = at
}
