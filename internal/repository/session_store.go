package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-assessment/internal/model"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	ErrConflict      = errors.New("record changed since it was read")
)

// SessionStore persists assessment sessions with conditional updates.
//
// Lifecycle writes and integrity appends are guarded by separate revision
// counters so proctoring traffic never invalidates a pending transition.
type SessionStore interface {
	// Create inserts a new session. ErrAlreadyExists is returned when the
	// application already has one.
	Create(ctx context.Context, s *model.AssessmentSession) error
	Get(ctx context.Context, id uuid.UUID) (*model.AssessmentSession, error)
	GetByApplication(ctx context.Context, applicationID string) (*model.AssessmentSession, error)
	// ListByJob returns a job's sessions, newest first.
	ListByJob(ctx context.Context, jobID string) ([]*model.AssessmentSession, error)

	// CompareAndSwap writes the lifecycle, answer and score fields of next
	// only if the stored row still has the expected status and revision.
	// The integrity record is left untouched. On success next.Revision is
	// advanced to the stored value.
	CompareAndSwap(ctx context.Context, next *model.AssessmentSession, expected model.SessionStatus, expectedRevision int64) error

	// UpdateIntegrity replaces the integrity record if the stored integrity
	// revision still matches.
	UpdateIntegrity(ctx context.Context, id uuid.UUID, expectedRevision int64, integrity model.Integrity) error
}
