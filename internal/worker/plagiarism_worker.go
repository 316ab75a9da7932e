package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/lifecycle"
	"github.com/stemsi/exstem-assessment/internal/service"
)

const (
	pollTimeout      = time.Second
	retryDelay       = 5 * time.Second
	maxCheckAttempts = 5
)

// ScoreRecorder stores a similarity score on a session.
type ScoreRecorder interface {
	ReportPlagiarismScore(ctx context.Context, id uuid.UUID, questionID string, similarity float64) (bool, error)
}

// PlagiarismWorker consumes plagiarism_check_queue, asks the external checker
// for a similarity score and records it on the session.
type PlagiarismWorker struct {
	rdb      *redis.Client
	checker  service.PlagiarismChecker
	recorder ScoreRecorder
	requeue  *service.RedisPlagiarismQueue
	log      zerolog.Logger
	queue    string
}

// NewPlagiarismWorker creates a new PlagiarismWorker.
func NewPlagiarismWorker(rdb *redis.Client, checker service.PlagiarismChecker, recorder ScoreRecorder, log zerolog.Logger) *PlagiarismWorker {
	return &PlagiarismWorker{
		rdb:      rdb,
		checker:  checker,
		recorder: recorder,
		requeue:  service.NewRedisPlagiarismQueue(rdb),
		log:      log.With().Str("component", "plagiarism_worker").Logger(),
		queue:    config.WorkerKey.PlagiarismCheckQueue,
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *PlagiarismWorker) Start(ctx context.Context) {
	w.log.Info().Str("queue", w.queue).Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *PlagiarismWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, pollTimeout, w.queue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
			time.Sleep(pollTimeout)
		}
		return
	}
	if len(result) < 2 {
		return
	}

	retry, err := w.handle(ctx, result[1])
	if err == nil {
		return
	}
	if retry == nil {
		w.log.Error().Err(err).Msg("Plagiarism job dropped")
		return
	}

	w.log.Warn().Err(err).
		Str("session_id", retry.SessionID.String()).
		Str("question_id", retry.QuestionID).
		Int("attempt", retry.Attempt).
		Msg("Plagiarism check failed, requeueing")

	select {
	case <-ctx.Done():
	case <-time.After(retryDelay):
	}
	if err := w.requeue.Requeue(context.WithoutCancel(ctx), *retry); err != nil {
		w.log.Error().Err(err).Msg("Requeue failed")
	}
}

// handle processes one raw job. When the job should be retried, the returned
// job carries the incremented attempt count.
func (w *PlagiarismWorker) handle(ctx context.Context, raw string) (*service.PlagiarismJob, error) {
	var job service.PlagiarismJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}

	score, err := w.checker.Check(ctx, job)
	if err != nil {
		return w.retryable(job, err)
	}

	if _, err := w.recorder.ReportPlagiarismScore(ctx, job.SessionID, job.QuestionID, score); err != nil {
		var verr *lifecycle.ValidationError
		if errors.Is(err, lifecycle.ErrNotFound) || errors.As(err, &verr) {
			return nil, err
		}
		return w.retryable(job, err)
	}

	w.log.Debug().
		Str("session_id", job.SessionID.String()).
		Str("question_id", job.QuestionID).
		Float64("similarity_score", score).
		Msg("Plagiarism score recorded")
	return nil, nil
}

func (w *PlagiarismWorker) retryable(job service.PlagiarismJob, err error) (*service.PlagiarismJob, error) {
	job.Attempt++
	if job.Attempt >= maxCheckAttempts {
		return nil, fmt.Errorf("giving up after %d attempts: %w", job.Attempt, err)
	}
	return &job, err
}
