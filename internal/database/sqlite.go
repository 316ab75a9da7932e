package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/repository"
)

// OpenSQLiteStore opens the SQLite session store at cfg.SQLitePath, creating
// its parent directory if needed.
func OpenSQLiteStore(cfg *config.Config, log zerolog.Logger) (*repository.SQLiteSessionStore, error) {
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	store, err := repository.OpenSQLiteSessionStore(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}

	log.Info().Str("path", cfg.SQLitePath).Msg("SQLite store opened")
	return store, nil
}
