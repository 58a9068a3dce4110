// Package store provides SQLite-based persistence for content records.
// Each record is kept once per stage it exists in.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kilupskalvis/indexsync/internal/models"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a record does not exist in a stage.
var ErrNotFound = errors.New("record not found")

// Store represents the SQLite database store
type Store struct {
	db       *sql.DB
	registry *models.Registry
}

// New creates a new store connection. The registry tells versioned types
// from types that keep a single row for both stages.
func New(dbPath string, registry *models.Registry) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if registry == nil {
		registry = models.NewRegistry()
	}
	return &Store{db: db, registry: registry}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Initialize creates the database schema and applies migrations.
func (s *Store) Initialize() error {
	schema := `
	-- Content records, one row per stage
	CREATE TABLE IF NOT EXISTS records (
		type TEXT NOT NULL,
		id TEXT NOT NULL,
		stage TEXT NOT NULL,
		parent_id TEXT NOT NULL DEFAULT '',
		sort INTEGER NOT NULL DEFAULT 0,
		data JSON NOT NULL,
		viewer_groups TEXT NOT NULL DEFAULT '',
		created TEXT NOT NULL,
		last_edited TEXT NOT NULL,
		PRIMARY KEY (type, id, stage)
	);

	CREATE INDEX IF NOT EXISTS idx_records_stage ON records(type, stage, sort, id);
	CREATE INDEX IF NOT EXISTS idx_records_parent ON records(parent_id, stage);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return s.RunMigrations()
}

// versioned reports whether a type keeps separate rows per stage.
func (s *Store) versioned(typeName string) bool {
	spec, ok := s.registry.Spec(typeName)
	return !ok || spec.Versioned
}

// rowStage maps a requested stage to the stage rows are kept under.
func (s *Store) rowStage(typeName string, stage models.Stage) models.Stage {
	if stage == "" || !s.versioned(typeName) {
		return models.StageDraft
	}
	return stage
}
