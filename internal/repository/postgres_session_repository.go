package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-assessment/internal/model"
)

const sessionColumns = `id, application_id, candidate_id, job_id, status,
	questions, answers, integrity, results,
	time_limit_minutes, started_at, expires_at, submitted_at,
	score, total_points, percentage, attempt_count, is_completed,
	revision, integrity_revision, created_at, updated_at`

// PostgresSessionRepository stores sessions in PostgreSQL. Questions,
// answers, integrity and results are JSONB documents on the session row.
type PostgresSessionRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSessionRepository creates a new PostgresSessionRepository.
func NewPostgresSessionRepository(pool *pgxpool.Pool) *PostgresSessionRepository {
	return &PostgresSessionRepository{pool: pool}
}

// Create inserts a new session.
func (r *PostgresSessionRepository) Create(ctx context.Context, s *model.AssessmentSession) error {
	docs, err := encodeSessionDocs(s)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO assessment_sessions (`+sessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		s.ID, s.ApplicationID, s.CandidateID, s.JobID, s.Status,
		docs.questions, docs.answers, docs.integrity, docs.results,
		s.TimeLimitMinutes, s.StartedAt, s.ExpiresAt, s.SubmittedAt,
		s.Score, s.TotalPoints, s.Percentage, s.AttemptCount, s.IsCompleted,
		s.Revision, s.IntegrityRevision, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID.
func (r *PostgresSessionRepository) Get(ctx context.Context, id uuid.UUID) (*model.AssessmentSession, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM assessment_sessions WHERE id = $1`, id)
	return scanSession(row)
}

// GetByApplication retrieves the session created for an application.
func (r *PostgresSessionRepository) GetByApplication(ctx context.Context, applicationID string) (*model.AssessmentSession, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM assessment_sessions WHERE application_id = $1`, applicationID)
	return scanSession(row)
}

// ListByJob retrieves every session of a job, newest first.
func (r *PostgresSessionRepository) ListByJob(ctx context.Context, jobID string) ([]*model.AssessmentSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM assessment_sessions
		 WHERE job_id = $1
		 ORDER BY created_at DESC, id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*model.AssessmentSession, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// CompareAndSwap writes lifecycle, answers and scores if status and revision
// still match.
func (r *PostgresSessionRepository) CompareAndSwap(ctx context.Context, next *model.AssessmentSession, expected model.SessionStatus, expectedRevision int64) error {
	answers, err := encodeAnswers(next.Answers)
	if err != nil {
		return err
	}
	results, err := encodeResults(next.Results)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE assessment_sessions
		 SET status = $1, answers = $2, results = $3,
		     started_at = $4, expires_at = $5, submitted_at = $6,
		     score = $7, total_points = $8, percentage = $9,
		     attempt_count = $10, is_completed = $11, updated_at = $12,
		     revision = revision + 1
		 WHERE id = $13 AND status = $14 AND revision = $15`,
		next.Status, answers, results,
		next.StartedAt, next.ExpiresAt, next.SubmittedAt,
		next.Score, next.TotalPoints, next.Percentage,
		next.AttemptCount, next.IsCompleted, next.UpdatedAt,
		next.ID, expected, expectedRevision,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, next.ID)
	}
	next.Revision = expectedRevision + 1
	return nil
}

// UpdateIntegrity replaces the integrity document if its revision still matches.
func (r *PostgresSessionRepository) UpdateIntegrity(ctx context.Context, id uuid.UUID, expectedRevision int64, integrity model.Integrity) error {
	doc, err := encodeIntegrity(integrity)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE assessment_sessions
		 SET integrity = $1, integrity_revision = integrity_revision + 1
		 WHERE id = $2 AND integrity_revision = $3`,
		doc, id, expectedRevision,
	)
	if err != nil {
		return fmt.Errorf("update integrity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, id)
	}
	return nil
}

func (r *PostgresSessionRepository) missOrConflict(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM assessment_sessions WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func scanSession(row pgx.Row) (*model.AssessmentSession, error) {
	s := &model.AssessmentSession{}
	var docs sessionDocs
	err := row.Scan(
		&s.ID, &s.ApplicationID, &s.CandidateID, &s.JobID, &s.Status,
		&docs.questions, &docs.answers, &docs.integrity, &docs.results,
		&s.TimeLimitMinutes, &s.StartedAt, &s.ExpiresAt, &s.SubmittedAt,
		&s.Score, &s.TotalPoints, &s.Percentage, &s.AttemptCount, &s.IsCompleted,
		&s.Revision, &s.IntegrityRevision, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if err := decodeSessionDocs(s, docs); err != nil {
		return nil, err
	}
	return s, nil
}
