package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// PlagiarismJob asks the external checker to score one coding answer.
type PlagiarismJob struct {
	SessionID  uuid.UUID `json:"session_id"`
	JobID      string    `json:"job_id"`
	QuestionID string    `json:"question_id"`
	Answer     string    `json:"answer"`
	QueuedAt   time.Time `json:"queued_at"`
	Attempt    int       `json:"attempt"`
}

// PlagiarismJobsFor returns one job per non-blank coding answer of s.
func PlagiarismJobsFor(s *model.AssessmentSession, at time.Time) []PlagiarismJob {
	var jobs []PlagiarismJob
	for _, q := range s.Questions {
		if q.Type != model.QuestionTypeCoding {
			continue
		}
		ans, ok := s.Answers[q.ID]
		if !ok || strings.TrimSpace(ans.AnswerText) == "" {
			continue
		}
		jobs = append(jobs, PlagiarismJob{
			SessionID:  s.ID,
			JobID:      s.JobID,
			QuestionID: q.ID,
			Answer:     ans.AnswerText,
			QueuedAt:   at.UTC(),
		})
	}
	return jobs
}

// PlagiarismQueue hands coding answers to the plagiarism worker.
type PlagiarismQueue interface {
	Enqueue(ctx context.Context, sessionID uuid.UUID, jobs []PlagiarismJob) error
}

// RedisPlagiarismQueue pushes jobs onto a Redis list consumed by
// worker.PlagiarismWorker. A session is queued at most once.
type RedisPlagiarismQueue struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisPlagiarismQueue creates a new RedisPlagiarismQueue.
func NewRedisPlagiarismQueue(rdb *redis.Client) *RedisPlagiarismQueue {
	return &RedisPlagiarismQueue{rdb: rdb, ttl: 7 * 24 * time.Hour}
}

// Enqueue pushes jobs for a session that has not been queued before. The
// marker is removed again when the push fails so a later submit can retry.
func (q *RedisPlagiarismQueue) Enqueue(ctx context.Context, sessionID uuid.UUID, jobs []PlagiarismJob) error {
	if len(jobs) == 0 {
		return nil
	}

	payloads := make([]any, 0, len(jobs))
	for _, j := range jobs {
		b, err := json.Marshal(j)
		if err != nil {
			return fmt.Errorf("marshal plagiarism job: %w", err)
		}
		payloads = append(payloads, b)
	}

	marker := config.CacheKey.SessionPlagiarismCheckedKey(sessionID.String())
	first, err := q.rdb.SetNX(ctx, marker, 1, q.ttl).Result()
	if err != nil {
		return fmt.Errorf("mark session queued: %w", err)
	}
	if !first {
		return nil
	}

	if err := q.rdb.RPush(ctx, config.WorkerKey.PlagiarismCheckQueue, payloads...).Err(); err != nil {
		if delErr := q.rdb.Del(context.WithoutCancel(ctx), marker).Err(); delErr != nil {
			return fmt.Errorf("push plagiarism jobs: %w (marker kept: %v)", err, delErr)
		}
		return fmt.Errorf("push plagiarism jobs: %w", err)
	}
	return nil
}

// Requeue pushes a single job back after a failed check.
func (q *RedisPlagiarismQueue) Requeue(ctx context.Context, job PlagiarismJob) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal plagiarism job: %w", err)
	}
	return q.rdb.RPush(ctx, config.WorkerKey.PlagiarismCheckQueue, b).Err()
}

// NopPlagiarismQueue discards jobs. Used when Redis is disabled.
type NopPlagiarismQueue struct{}

func (NopPlagiarismQueue) Enqueue(context.Context, uuid.UUID, []PlagiarismJob) error { return nil }
