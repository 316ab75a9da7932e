package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/lifecycle"
	"github.com/stemsi/exstem-assessment/internal/service"
)

type stubChecker struct {
	score float64
	err   error
}

func (c stubChecker) Check(context.Context, service.PlagiarismJob) (float64, error) {
	return c.score, c.err
}

type stubRecorder struct {
	err   error
	calls []float64
}

func (r *stubRecorder) ReportPlagiarismScore(_ context.Context, _ uuid.UUID, _ string, similarity float64) (bool, error) {
	r.calls = append(r.calls, similarity)
	return r.err == nil, r.err
}

func rawJob(t *testing.T, attempt int) string {
	t.Helper()
	b, err := json.Marshal(service.PlagiarismJob{SessionID: uuid.New(), JobID: "job-1", QuestionID: "c1", Answer: "x", Attempt: attempt})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func TestPlagiarismWorkerHandle(t *testing.T) {
	t.Run("records score", func(t *testing.T) {
		rec := &stubRecorder{}
		w := NewPlagiarismWorker(nil, stubChecker{score: 33}, rec, zerolog.Nop())
		retry, err := w.handle(context.Background(), rawJob(t, 0))
		if err != nil || retry != nil {
			t.Fatalf("retry=%v err=%v", retry, err)
		}
		if len(rec.calls) != 1 || rec.calls[0] != 33 {
			t.Fatalf("calls = %v", rec.calls)
		}
	})

	t.Run("checker failure is retried", func(t *testing.T) {
		w := NewPlagiarismWorker(nil, stubChecker{err: errors.New("timeout")}, &stubRecorder{}, zerolog.Nop())
		retry, err := w.handle(context.Background(), rawJob(t, 1))
		if err == nil || retry == nil {
			t.Fatalf("retry=%v err=%v, want retry", retry, err)
		}
		if retry.Attempt != 2 {
			t.Fatalf("attempt = %d, want 2", retry.Attempt)
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		w := NewPlagiarismWorker(nil, stubChecker{err: errors.New("timeout")}, &stubRecorder{}, zerolog.Nop())
		retry, err := w.handle(context.Background(), rawJob(t, maxCheckAttempts-1))
		if err == nil || retry != nil {
			t.Fatalf("retry=%v err=%v, want dropped", retry, err)
		}
	})

	t.Run("unknown session is dropped", func(t *testing.T) {
		rec := &stubRecorder{err: lifecycle.ErrNotFound}
		w := NewPlagiarismWorker(nil, stubChecker{score: 1}, rec, zerolog.Nop())
		retry, err := w.handle(context.Background(), rawJob(t, 0))
		if !errors.Is(err, lifecycle.ErrNotFound) || retry != nil {
			t.Fatalf("retry=%v err=%v", retry, err)
		}
	})

	t.Run("malformed payload is dropped", func(t *testing.T) {
		w := NewPlagiarismWorker(nil, stubChecker{}, &stubRecorder{}, zerolog.Nop())
		retry, err := w.handle(context.Background(), "{not json")
		if err == nil || retry != nil {
			t.Fatalf("retry=%v err=%v", retry, err)
		}
	})
}
