package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// MonitorEventType names an event pushed to the recruiter monitor.
type MonitorEventType string

const (
	EventSessionCreated   MonitorEventType = "session_created"
	EventSessionStarted   MonitorEventType = "session_started"
	EventSessionCompleted MonitorEventType = "session_completed"
	EventSessionExpired   MonitorEventType = "session_expired"
	EventViolation        MonitorEventType = "violation"
)

// MonitorEvent is one message on a job's monitor channel.
type MonitorEvent struct {
	Type          MonitorEventType    `json:"type"`
	SessionID     uuid.UUID           `json:"session_id"`
	ApplicationID string              `json:"application_id"`
	CandidateID   string              `json:"candidate_id"`
	JobID         string              `json:"job_id"`
	Status        model.SessionStatus `json:"status"`
	Kind          model.ViolationKind `json:"kind,omitempty"`
	Percentage    *float64            `json:"percentage,omitempty"`
	At            time.Time           `json:"at"`
}

func newMonitorEvent(t MonitorEventType, s *model.AssessmentSession, at time.Time) MonitorEvent {
	ev := MonitorEvent{
		Type:          t,
		SessionID:     s.ID,
		ApplicationID: s.ApplicationID,
		CandidateID:   s.CandidateID,
		JobID:         s.JobID,
		Status:        s.Status,
		At:            at.UTC(),
	}
	if s.Status.IsTerminal() {
		pct := s.Percentage
		ev.Percentage = &pct
	}
	return ev
}

// EventPublisher delivers monitor events. Delivery is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, ev MonitorEvent) error
}

// RedisEventPublisher publishes monitor events on the job's pub/sub channel.
type RedisEventPublisher struct {
	rdb *redis.Client
}

// NewRedisEventPublisher creates a new RedisEventPublisher.
func NewRedisEventPublisher(rdb *redis.Client) *RedisEventPublisher {
	return &RedisEventPublisher{rdb: rdb}
}

func (p *RedisEventPublisher) Publish(ctx context.Context, ev MonitorEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal monitor event: %w", err)
	}
	if err := p.rdb.Publish(ctx, config.CacheKey.JobMonitorChannel(ev.JobID), payload).Err(); err != nil {
		return fmt.Errorf("publish monitor event: %w", err)
	}
	return nil
}

// NopEventPublisher drops every event. Used when Redis is disabled.
type NopEventPublisher struct{}

func (NopEventPublisher) Publish(context.Context, MonitorEvent) error { return nil }
