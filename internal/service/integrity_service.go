package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/lifecycle"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// IntegrityService ingests proctoring signals. It never changes a session's
// status or score. Storage failures are logged and reported as not accepted.
type IntegrityService struct {
	sessions *AssessmentService
	log      zerolog.Logger
}

// NewIntegrityService creates a new IntegrityService.
func NewIntegrityService(sessions *AssessmentService, log zerolog.Logger) *IntegrityService {
	return &IntegrityService{
		sessions: sessions,
		log:      log.With().Str("component", "integrity_service").Logger(),
	}
}

// ReportViolation records one proctoring event. A zero timestamp is replaced
// by the server clock.
func (s *IntegrityService) ReportViolation(ctx context.Context, id uuid.UUID, kind model.ViolationKind, at time.Time, meta model.ViolationMetadata) (accepted bool, err error) {
	ctx, span := tracer.Start(ctx, "IntegrityService.ReportViolation", sessionAttr(id))
	defer func() { endSpan(span, err) }()

	if at.IsZero() {
		at = s.sessions.Now()
	}
	ev := model.ViolationEvent{Kind: kind, Timestamp: at.UTC(), Metadata: meta}

	sess, accepted, err := s.sessions.appendIntegrity(ctx, id, false, func(cur *model.AssessmentSession) (model.Integrity, bool, error) {
		return s.sessions.policy.Violation(cur.Integrity, ev)
	})
	if err := s.swallow(id, string(kind), err); err != nil {
		return false, err
	}
	if accepted {
		mev := newMonitorEvent(EventViolation, sess, ev.Timestamp)
		mev.Kind = kind
		s.sessions.publish(ctx, mev)
	}
	return accepted, nil
}

// ReportFaceSample records the outcome of one periodic face check. Only
// absent samples are stored.
func (s *IntegrityService) ReportFaceSample(ctx context.Context, id uuid.UUID, present bool, at time.Time) (accepted bool, err error) {
	if present {
		// Still resolve the session so unknown ids are reported and the
		// deadline is enforced.
		if _, err := s.sessions.load(ctx, id); errors.Is(err, lifecycle.ErrNotFound) {
			return false, err
		}
		return false, nil
	}
	return s.ReportViolation(ctx, id, model.ViolationNoFace, at, model.ViolationMetadata{Source: "face_sample"})
}

// ReportPlagiarismScore stores an advisory similarity score. Scores are
// accepted for started and ended sessions and never affect scoring.
func (s *IntegrityService) ReportPlagiarismScore(ctx context.Context, id uuid.UUID, questionID string, similarity float64) (accepted bool, err error) {
	ctx, span := tracer.Start(ctx, "IntegrityService.ReportPlagiarismScore", sessionAttr(id))
	defer func() { endSpan(span, err) }()

	score := model.PlagiarismScore{
		QuestionID:      questionID,
		SimilarityScore: similarity,
		CheckedAt:       s.sessions.Now().UTC(),
	}

	_, accepted, err = s.sessions.appendIntegrity(ctx, id, true, func(cur *model.AssessmentSession) (model.Integrity, bool, error) {
		if q, ok := cur.Question(questionID); !ok || q.Type != model.QuestionTypeCoding {
			return cur.Integrity, false, lifecycle.NewValidationError("question_id", "not a coding question of this session")
		}
		next, err := s.sessions.policy.Plagiarism(cur.Integrity, score)
		return next, err == nil, err
	})
	if err := s.swallow(id, "plagiarism", err); err != nil {
		return false, err
	}
	return accepted, nil
}

// swallow logs err and drops it, except for unknown sessions and malformed
// requests which the caller must see.
func (s *IntegrityService) swallow(id uuid.UUID, kind string, err error) error {
	if err == nil {
		return nil
	}
	var verr *lifecycle.ValidationError
	if errors.Is(err, lifecycle.ErrNotFound) || errors.As(err, &verr) {
		return err
	}
	s.log.Warn().Err(err).
		Str("session_id", id.String()).
		Str("kind", kind).
		Msg("Integrity event dropped")
	return nil
}
