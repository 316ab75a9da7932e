package service

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-assessment/internal/config"
)

// scriptedRedis answers commands in-process so no server is needed.
type scriptedRedis struct {
	mu       sync.Mutex
	keys     map[string]bool
	pushed   int
	pushErr  error
	commands []string
}

func (r *scriptedRedis) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, errors.New("dial disabled")
	}
}

func (r *scriptedRedis) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.commands = append(r.commands, cmd.Name())

		key, _ := cmd.Args()[1].(string)
		switch c := cmd.(type) {
		case *redis.BoolCmd:
			c.SetVal(!r.keys[key])
			r.keys[key] = true
		case *redis.IntCmd:
			switch cmd.Name() {
			case "rpush":
				if r.pushErr != nil {
					c.SetErr(r.pushErr)
					return r.pushErr
				}
				r.pushed += len(cmd.Args()) - 2
				c.SetVal(int64(r.pushed))
			case "del":
				delete(r.keys, key)
				c.SetVal(1)
			}
		}
		return nil
	}
}

func (r *scriptedRedis) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func newScriptedQueue(script *scriptedRedis) *RedisPlagiarismQueue {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	rdb.AddHook(script)
	return NewRedisPlagiarismQueue(rdb)
}

func TestRedisPlagiarismQueueEnqueuesOnce(t *testing.T) {
	script := &scriptedRedis{keys: map[string]bool{}}
	q := newScriptedQueue(script)
	ctx := context.Background()
	id := uuid.New()
	jobs := []PlagiarismJob{{SessionID: id, QuestionID: "c1", Answer: "x", QueuedAt: t0}}

	for i := 0; i < 2; i++ {
		if err := q.Enqueue(ctx, id, jobs); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if script.pushed != 1 {
		t.Fatalf("pushed = %d, want 1", script.pushed)
	}
}

func TestRedisPlagiarismQueueReleasesMarkerOnPushFailure(t *testing.T) {
	script := &scriptedRedis{keys: map[string]bool{}, pushErr: errors.New("READONLY")}
	q := newScriptedQueue(script)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	id := uuid.New()
	jobs := []PlagiarismJob{{SessionID: id, QuestionID: "c1", Answer: "x", QueuedAt: t0}}

	if err := q.Enqueue(ctx, id, jobs); err == nil {
		t.Fatal("enqueue: want error when push fails")
	}
	if script.keys[config.CacheKey.SessionPlagiarismCheckedKey(id.String())] {
		t.Fatal("queued marker still set after failed push")
	}

	script.pushErr = nil
	if err := q.Enqueue(ctx, id, jobs); err != nil {
		t.Fatalf("retry enqueue: %v", err)
	}
	if script.pushed != 1 {
		t.Fatalf("pushed = %d, want 1 after retry", script.pushed)
	}
}
