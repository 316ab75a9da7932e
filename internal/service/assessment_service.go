package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/stemsi/exstem-assessment/internal/integrity"
	"github.com/stemsi/exstem-assessment/internal/lifecycle"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/repository"
)

// maxWriteAttempts bounds retries after a revision conflict.
const maxWriteAttempts = 5

var tracer = otel.Tracer("github.com/stemsi/exstem-assessment/internal/service")

// AssessmentService drives the session lifecycle on top of a SessionStore.
//
// Every entry point loads the session through load, which expires an
// in-progress session whose deadline has passed before anything else sees it.
type AssessmentService struct {
	store      repository.SessionStore
	policy     integrity.Policy
	events     EventPublisher
	plagiarism PlagiarismQueue
	log        zerolog.Logger
	now        func() time.Time

	expiry singleflight.Group
}

// AssessmentOption customises an AssessmentService.
type AssessmentOption func(*AssessmentService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) AssessmentOption {
	return func(s *AssessmentService) { s.now = now }
}

// WithEventPublisher sets where monitor events go.
func WithEventPublisher(p EventPublisher) AssessmentOption {
	return func(s *AssessmentService) { s.events = p }
}

// WithPlagiarismQueue sets where coding answers are queued after a session ends.
func WithPlagiarismQueue(q PlagiarismQueue) AssessmentOption {
	return func(s *AssessmentService) { s.plagiarism = q }
}

// NewAssessmentService creates a new AssessmentService.
func NewAssessmentService(store repository.SessionStore, policy integrity.Policy, log zerolog.Logger, opts ...AssessmentOption) *AssessmentService {
	s := &AssessmentService{
		store:      store,
		policy:     policy,
		events:     NopEventPublisher{},
		plagiarism: NopPlagiarismQueue{},
		log:        log.With().Str("component", "assessment_service").Logger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates req and stores a new pending session.
func (s *AssessmentService) Create(ctx context.Context, req model.CreateSessionRequest) (_ *model.AssessmentSession, err error) {
	ctx, span := tracer.Start(ctx, "AssessmentService.Create",
		trace.WithAttributes(attribute.String("application_id", req.ApplicationID)))
	defer func() { endSpan(span, err) }()

	sess, err := lifecycle.NewSession(uuid.New(), req, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, storeErr(err)
	}

	s.log.Info().
		Str("session_id", sess.ID.String()).
		Str("application_id", sess.ApplicationID).
		Int("questions", len(sess.Questions)).
		Msg("Session created")
	s.publish(ctx, newMonitorEvent(EventSessionCreated, sess, sess.CreatedAt))
	return sess, nil
}

// Get returns the session after enforcing its deadline.
func (s *AssessmentService) Get(ctx context.Context, id uuid.UUID) (_ *model.AssessmentSession, err error) {
	ctx, span := tracer.Start(ctx, "AssessmentService.Get", sessionAttr(id))
	defer func() { endSpan(span, err) }()

	return s.load(ctx, id)
}

// GetByApplication returns the session created for an application.
func (s *AssessmentService) GetByApplication(ctx context.Context, applicationID string) (_ *model.AssessmentSession, err error) {
	ctx, span := tracer.Start(ctx, "AssessmentService.GetByApplication",
		trace.WithAttributes(attribute.String("application_id", applicationID)))
	defer func() { endSpan(span, err) }()

	sess, err := s.store.GetByApplication(ctx, applicationID)
	if err != nil {
		return nil, storeErr(err)
	}
	return s.enforceDeadline(ctx, sess)
}

// ListByJob returns every session of a job, newest first.
func (s *AssessmentService) ListByJob(ctx context.Context, jobID string) (_ []*model.AssessmentSession, err error) {
	ctx, span := tracer.Start(ctx, "AssessmentService.ListByJob",
		trace.WithAttributes(attribute.String("job_id", jobID)))
	defer func() { endSpan(span, err) }()

	sessions, err := s.store.ListByJob(ctx, jobID)
	if err != nil {
		return nil, storeErr(err)
	}
	for i, sess := range sessions {
		if sessions[i], err = s.enforceDeadline(ctx, sess); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

// Start opens the answering window of a pending session.
func (s *AssessmentService) Start(ctx context.Context, id uuid.UUID) (_ *model.AssessmentSession, err error) {
	ctx, span := tracer.Start(ctx, "AssessmentService.Start", sessionAttr(id))
	defer func() { endSpan(span, err) }()

	next, err := s.transition(ctx, id, false, func(cur *model.AssessmentSession, now time.Time) (*model.AssessmentSession, bool, error) {
		n, err := lifecycle.Start(cur, now)
		return n, err == nil, err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("session_id", id.String()).
		Time("expires_at", *next.ExpiresAt).
		Msg("Session started")
	s.publish(ctx, newMonitorEvent(EventSessionStarted, next, *next.StartedAt))
	return next, nil
}

// SaveAnswer autosaves one answer while the session is in progress.
func (s *AssessmentService) SaveAnswer(ctx context.Context, id uuid.UUID, questionID string, raw json.RawMessage) (_ *model.AssessmentSession, err error) {
	ctx, span := tracer.Start(ctx, "AssessmentService.SaveAnswer", sessionAttr(id))
	defer func() { endSpan(span, err) }()

	return s.transition(ctx, id, false, func(cur *model.AssessmentSession, now time.Time) (*model.AssessmentSession, bool, error) {
		n, err := lifecycle.SaveAnswer(cur, model.Answer{
			QuestionID:  questionID,
			AnswerText:  lifecycle.NormalizeAnswer(raw),
			SubmittedAt: now.UTC(),
		}, now)
		return n, err == nil, err
	})
}

// Submit finishes the session with the given answers and integrity snapshot.
// Submitting a session that has already ended returns it unchanged.
func (s *AssessmentService) Submit(ctx context.Context, id uuid.UUID, req model.SubmitRequest) (_ *model.AssessmentSession, err error) {
	ctx, span := tracer.Start(ctx, "AssessmentService.Submit", sessionAttr(id))
	defer func() { endSpan(span, err) }()

	cur, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status.IsTerminal() {
		return cur, nil
	}
	if cur.Status != model.SessionStatusInProgress {
		return nil, fmt.Errorf("%w: cannot submit a session that is %s", lifecycle.ErrInvalidTransition, cur.Status)
	}

	answers, err := lifecycle.BuildAnswers(cur, req.Answers, s.now())
	if err != nil {
		return nil, err
	}

	if req.Integrity != nil {
		_, _, ierr := s.appendIntegrity(ctx, id, false, func(cur *model.AssessmentSession) (model.Integrity, bool, error) {
			return s.policy.Merge(cur.Integrity, req.Integrity), true, nil
		})
		if ierr != nil {
			s.log.Warn().Err(ierr).Str("session_id", id.String()).Msg("Integrity snapshot not merged")
		}
	}

	return s.transition(ctx, id, true, func(cur *model.AssessmentSession, now time.Time) (*model.AssessmentSession, bool, error) {
		return lifecycle.Submit(cur, answers, now)
	})
}

// Results returns the scored outcome of an ended session.
func (s *AssessmentService) Results(ctx context.Context, id uuid.UUID) (_ model.ResultsView, err error) {
	ctx, span := tracer.Start(ctx, "AssessmentService.Results", sessionAttr(id))
	defer func() { endSpan(span, err) }()

	sess, err := s.load(ctx, id)
	if err != nil {
		return model.ResultsView{}, err
	}
	return lifecycle.Results(sess)
}

// Now returns the service clock.
func (s *AssessmentService) Now() time.Time {
	return s.now()
}

// load reads a session and applies the deadline check.
func (s *AssessmentService) load(ctx context.Context, id uuid.UUID) (*model.AssessmentSession, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	return s.enforceDeadline(ctx, sess)
}

// enforceDeadline expires sess if its deadline has passed. Concurrent callers
// for the same session share a single expiry run. The run is detached from
// the caller's cancellation; a caller that gives up only stops waiting.
func (s *AssessmentService) enforceDeadline(ctx context.Context, sess *model.AssessmentSession) (*model.AssessmentSession, error) {
	if !sess.Expired(s.now()) {
		return sess, nil
	}

	runCtx := context.WithoutCancel(ctx)
	ch := s.expiry.DoChan(sess.ID.String(), func() (any, error) {
		return s.expire(runCtx, sess.ID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.AssessmentSession).Clone(), nil
	}
}

func (s *AssessmentService) expire(ctx context.Context, id uuid.UUID) (*model.AssessmentSession, error) {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		cur, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, storeErr(err)
		}
		now := s.now()
		if !cur.Expired(now) {
			return cur, nil
		}

		next, err := lifecycle.Timeout(cur, now)
		if err != nil {
			return nil, err
		}
		err = s.store.CompareAndSwap(ctx, next, cur.Status, cur.Revision)
		if err == nil {
			s.log.Info().
				Str("session_id", id.String()).
				Float64("percentage", next.Percentage).
				Msg("Session expired")
			s.ended(ctx, next, EventSessionExpired)
			return next, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, storeErr(err)
		}
	}
	return nil, lifecycle.ErrConcurrencyConflict
}

type transitionFunc func(cur *model.AssessmentSession, now time.Time) (next *model.AssessmentSession, changed bool, err error)

// transition applies fn to the latest stored session and writes the result
// under a status and revision check. A revision conflict with the status
// unchanged is retried. If the status moved, the call fails with
// ErrConcurrencyConflict, unless terminalOK is set and the session has ended,
// in which case the ended session is returned.
func (s *AssessmentService) transition(ctx context.Context, id uuid.UUID, terminalOK bool, fn transitionFunc) (*model.AssessmentSession, error) {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		cur, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}

		next, changed, err := fn(cur, s.now())
		if err != nil {
			return nil, err
		}
		if !changed {
			return next, nil
		}

		err = s.store.CompareAndSwap(ctx, next, cur.Status, cur.Revision)
		if err == nil {
			if next.Status.IsTerminal() {
				s.log.Info().
					Str("session_id", id.String()).
					Str("status", string(next.Status)).
					Float64("percentage", next.Percentage).
					Msg("Session ended")
				ev := EventSessionCompleted
				if next.Status == model.SessionStatusExpired {
					ev = EventSessionExpired
				}
				s.ended(ctx, next, ev)
			}
			return next, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, storeErr(err)
		}

		latest, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if latest.Status == cur.Status {
			continue
		}
		if terminalOK && latest.Status.IsTerminal() {
			return latest, nil
		}
		return nil, fmt.Errorf("%w: session moved from %s to %s", lifecycle.ErrConcurrencyConflict, cur.Status, latest.Status)
	}
	return nil, lifecycle.ErrConcurrencyConflict
}

type integrityFunc func(cur *model.AssessmentSession) (next model.Integrity, accepted bool, err error)

// appendIntegrity derives a new integrity record with fn and stores it under
// the integrity revision. Events are accepted while the session is in
// progress, and also after it ended when acceptEnded is set. Otherwise
// accepted is false and nothing is written.
func (s *AssessmentService) appendIntegrity(ctx context.Context, id uuid.UUID, acceptEnded bool, fn integrityFunc) (*model.AssessmentSession, bool, error) {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		cur, err := s.load(ctx, id)
		if err != nil {
			return nil, false, err
		}
		open := cur.Status == model.SessionStatusInProgress || (acceptEnded && cur.Status.IsTerminal())
		if !open {
			return cur, false, nil
		}

		rec, accepted, err := fn(cur)
		if err != nil || !accepted {
			return cur, false, err
		}

		err = s.store.UpdateIntegrity(ctx, id, cur.IntegrityRevision, rec)
		if err == nil {
			cur.Integrity = rec
			cur.IntegrityRevision++
			return cur, true, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, false, storeErr(err)
		}
	}
	return nil, false, lifecycle.ErrConcurrencyConflict
}

// ended runs the side effects of a terminal transition. Failures are logged.
func (s *AssessmentService) ended(ctx context.Context, sess *model.AssessmentSession, ev MonitorEventType) {
	s.publish(ctx, newMonitorEvent(ev, sess, *sess.SubmittedAt))

	jobs := PlagiarismJobsFor(sess, *sess.SubmittedAt)
	if err := s.plagiarism.Enqueue(ctx, sess.ID, jobs); err != nil {
		s.log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("Failed to queue plagiarism checks")
	}
}

func (s *AssessmentService) publish(ctx context.Context, ev MonitorEvent) {
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).
			Str("session_id", ev.SessionID.String()).
			Str("event", string(ev.Type)).
			Msg("Failed to publish monitor event")
	}
}

// storeErr maps repository errors onto lifecycle errors.
func storeErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return lifecycle.ErrNotFound
	case errors.Is(err, repository.ErrAlreadyExists):
		return lifecycle.ErrAlreadyExists
	case errors.Is(err, repository.ErrConflict):
		return lifecycle.ErrConcurrencyConflict
	}
	return err
}

func sessionAttr(id uuid.UUID) trace.SpanStartOption {
	return trace.WithAttributes(attribute.String("session_id", id.String()))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
