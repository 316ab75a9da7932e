package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-assessment/internal/model"
)

// MemorySessionStore keeps sessions in process memory. Every read and write
// goes through a deep copy so callers never share state with the store.
type MemorySessionStore struct {
	mu            sync.RWMutex
	sessions      map[uuid.UUID]*model.AssessmentSession
	byApplication map[string]uuid.UUID
}

// NewMemorySessionStore creates an empty MemorySessionStore.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions:      make(map[uuid.UUID]*model.AssessmentSession),
		byApplication: make(map[string]uuid.UUID),
	}
}

func (m *MemorySessionStore) Create(ctx context.Context, s *model.AssessmentSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; ok {
		return ErrAlreadyExists
	}
	if _, ok := m.byApplication[s.ApplicationID]; ok {
		return ErrAlreadyExists
	}
	m.sessions[s.ID] = s.Clone()
	m.byApplication[s.ApplicationID] = s.ID
	return nil
}

func (m *MemorySessionStore) Get(ctx context.Context, id uuid.UUID) (*model.AssessmentSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemorySessionStore) GetByApplication(ctx context.Context, applicationID string) (*model.AssessmentSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byApplication[applicationID]
	if !ok {
		return nil, ErrNotFound
	}
	return m.sessions[id].Clone(), nil
}

func (m *MemorySessionStore) ListByJob(ctx context.Context, jobID string) ([]*model.AssessmentSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*model.AssessmentSession, 0)
	for _, s := range m.sessions {
		if s.JobID == jobID {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemorySessionStore) CompareAndSwap(ctx context.Context, next *model.AssessmentSession, expected model.SessionStatus, expectedRevision int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.sessions[next.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != expected || cur.Revision != expectedRevision {
		return ErrConflict
	}

	stored := next.Clone()
	stored.Integrity = cur.Integrity.Clone()
	stored.IntegrityRevision = cur.IntegrityRevision
	stored.Revision = expectedRevision + 1
	m.sessions[next.ID] = stored

	next.Revision = stored.Revision
	return nil
}

func (m *MemorySessionStore) UpdateIntegrity(ctx context.Context, id uuid.UUID, expectedRevision int64, integrity model.Integrity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if cur.IntegrityRevision != expectedRevision {
		return ErrConflict
	}
	cur.Integrity = integrity.Clone()
	cur.IntegrityRevision++
	return nil
}
