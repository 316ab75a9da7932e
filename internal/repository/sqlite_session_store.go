package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/stemsi/exstem-assessment/internal/model"
)

//go:embed sqlite_migrations/*.sql
var sqliteMigrations embed.FS

// SQLiteSessionStore stores sessions in a single SQLite file. Timestamps are
// kept as unix milliseconds.
type SQLiteSessionStore struct {
	db *sql.DB
}

// OpenSQLiteSessionStore opens the database at path and applies the embedded
// migrations.
func OpenSQLiteSessionStore(path string) (*SQLiteSessionStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applySQLiteMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteSessionStore{db: db}, nil
}

// Close closes the database handle.
func (r *SQLiteSessionStore) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *SQLiteSessionStore) Create(ctx context.Context, s *model.AssessmentSession) error {
	docs, err := encodeSessionDocs(s)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO assessment_sessions (`+sessionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID.String(), s.ApplicationID, s.CandidateID, s.JobID, string(s.Status),
		string(docs.questions), string(docs.answers), string(docs.integrity), string(docs.results),
		s.TimeLimitMinutes, toNullMillis(s.StartedAt), toNullMillis(s.ExpiresAt), toNullMillis(s.SubmittedAt),
		s.Score, s.TotalPoints, s.Percentage, s.AttemptCount, s.IsCompleted,
		s.Revision, s.IntegrityRevision, toMillis(s.CreatedAt), toMillis(s.UpdatedAt),
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SQLiteSessionStore) Get(ctx context.Context, id uuid.UUID) (*model.AssessmentSession, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM assessment_sessions WHERE id = ?`, id.String())
	return scanSQLiteSession(row)
}

func (r *SQLiteSessionStore) GetByApplication(ctx context.Context, applicationID string) (*model.AssessmentSession, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM assessment_sessions WHERE application_id = ?`, applicationID)
	return scanSQLiteSession(row)
}

func (r *SQLiteSessionStore) ListByJob(ctx context.Context, jobID string) ([]*model.AssessmentSession, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+`
		 FROM assessment_sessions
		 WHERE job_id = ?
		 ORDER BY created_at DESC, id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*model.AssessmentSession, 0)
	for rows.Next() {
		s, err := scanSQLiteSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *SQLiteSessionStore) CompareAndSwap(ctx context.Context, next *model.AssessmentSession, expected model.SessionStatus, expectedRevision int64) error {
	answers, err := encodeAnswers(next.Answers)
	if err != nil {
		return err
	}
	results, err := encodeResults(next.Results)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE assessment_sessions
		 SET status = ?, answers = ?, results = ?,
		     started_at = ?, expires_at = ?, submitted_at = ?,
		     score = ?, total_points = ?, percentage = ?,
		     attempt_count = ?, is_completed = ?, updated_at = ?,
		     revision = revision + 1
		 WHERE id = ? AND status = ? AND revision = ?`,
		string(next.Status), string(answers), string(results),
		toNullMillis(next.StartedAt), toNullMillis(next.ExpiresAt), toNullMillis(next.SubmittedAt),
		next.Score, next.TotalPoints, next.Percentage,
		next.AttemptCount, next.IsCompleted, toMillis(next.UpdatedAt),
		next.ID.String(), string(expected), expectedRevision,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("update session: %w", err)
	} else if n == 0 {
		return r.missOrConflict(ctx, next.ID)
	}
	next.Revision = expectedRevision + 1
	return nil
}

func (r *SQLiteSessionStore) UpdateIntegrity(ctx context.Context, id uuid.UUID, expectedRevision int64, integrity model.Integrity) error {
	doc, err := encodeIntegrity(integrity)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE assessment_sessions
		 SET integrity = ?, integrity_revision = integrity_revision + 1
		 WHERE id = ? AND integrity_revision = ?`,
		string(doc), id.String(), expectedRevision,
	)
	if err != nil {
		return fmt.Errorf("update integrity: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("update integrity: %w", err)
	} else if n == 0 {
		return r.missOrConflict(ctx, id)
	}
	return nil
}

func (r *SQLiteSessionStore) missOrConflict(ctx context.Context, id uuid.UUID) error {
	var found int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM assessment_sessions WHERE id = ?`, id.String()).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	return ErrConflict
}

type sqliteScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSession(row sqliteScanner) (*model.AssessmentSession, error) {
	s := &model.AssessmentSession{}
	var (
		id, status                            string
		questions, answers, integrity, result string
		startedAt, expiresAt, submittedAt     sql.NullInt64
		createdAt, updatedAt                  int64
	)
	err := row.Scan(
		&id, &s.ApplicationID, &s.CandidateID, &s.JobID, &status,
		&questions, &answers, &integrity, &result,
		&s.TimeLimitMinutes, &startedAt, &expiresAt, &submittedAt,
		&s.Score, &s.TotalPoints, &s.Percentage, &s.AttemptCount, &s.IsCompleted,
		&s.Revision, &s.IntegrityRevision, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	if s.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse session id: %w", err)
	}
	s.Status = model.SessionStatus(status)
	s.StartedAt = fromNullMillis(startedAt)
	s.ExpiresAt = fromNullMillis(expiresAt)
	s.SubmittedAt = fromNullMillis(submittedAt)
	s.CreatedAt = fromMillis(createdAt)
	s.UpdatedAt = fromMillis(updatedAt)

	docs := sessionDocs{
		questions: []byte(questions),
		answers:   []byte(answers),
		integrity: []byte(integrity),
		results:   []byte(result),
	}
	if err := decodeSessionDocs(s, docs); err != nil {
		return nil, err
	}
	return s, nil
}

func applySQLiteMigrations(db *sql.DB) error {
	const table = "schema_migrations"
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ` + table + ` (
		name TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	entries, err := fs.ReadDir(sqliteMigrations, "sqlite_migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		var found int
		err := db.QueryRow(`SELECT 1 FROM `+table+` WHERE name = ?`, name).Scan(&found)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %s: %w", name, err)
		}

		content, err := fs.ReadFile(sqliteMigrations, "sqlite_migrations/"+name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", name, err)
		}
		if _, err := tx.Exec(upSection(string(content))); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		if _, err := tx.Exec(`INSERT INTO `+table+` (name, applied_at) VALUES (?, ?)`, name, time.Now().UTC().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}
	return nil
}

// upSection returns the SQL between "-- +migrate Up" and "-- +migrate Down".
func upSection(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	if i := strings.Index(content, up); i >= 0 {
		content = content[i+len(up):]
	}
	if i := strings.Index(content, down); i >= 0 {
		content = content[:i]
	}
	return content
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func toNullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
