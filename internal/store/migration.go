package store

import (
	"database/sql"
	"fmt"
)

const currentSchemaVersion = 1

// RunMigrations applies any pending database migrations and records the
// schema version.
func (s *Store) RunMigrations() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS store_schema_version (
		version INTEGER PRIMARY KEY
	)`); err != nil {
		return fmt.Errorf("failed to create schema version table: %w", err)
	}

	version, err := s.getSchemaVersion()
	if err != nil {
		return err
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("store schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	_, err = s.db.Exec("INSERT OR REPLACE INTO store_schema_version (version) VALUES (?)", currentSchemaVersion)
	return err
}

// getSchemaVersion returns the recorded schema version, 0 if none
func (s *Store) getSchemaVersion() (int, error) {
	var version sql.NullInt64
	if err := s.db.QueryRow("SELECT MAX(version) FROM store_schema_version").Scan(&version); err != nil {
		return 0, err
	}
	return int(version.Int64), nil
}
