package store

import (
	"fmt"
)

func (s *Store) migrate() error {
	if err := s.migrateV1(); err != nil {
		return err
	}
	return s.migrateV2()
}

func (s *Store) migrateV1() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		url         TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		tags        TEXT NOT NULL DEFAULT '[]',
		jira_key    TEXT NOT NULL DEFAULT '',
		updated_at  INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS project_metrics (
		project_id TEXT NOT NULL,
		month      TEXT NOT NULL,
		perf       TEXT NOT NULL,
		flow       TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (project_id, month)
	);

	CREATE TABLE IF NOT EXISTS suggestions (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		id         TEXT NOT NULL UNIQUE,
		project_id TEXT NOT NULL,
		text       TEXT NOT NULL,
		rationale  TEXT NOT NULL DEFAULT '',
		source     TEXT NOT NULL,
		status     TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE (project_id, text)
	);

	CREATE INDEX IF NOT EXISTS idx_suggestions_project ON suggestions(project_id, seq);

	CREATE TABLE IF NOT EXISTS quality_incidents (
		project_id  TEXT NOT NULL,
		key         TEXT NOT NULL,
		category    TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL,
		detected_at INTEGER NOT NULL,
		resolved_at INTEGER,
		PRIMARY KEY (project_id, key)
	);

	CREATE INDEX IF NOT EXISTS idx_incidents_detected ON quality_incidents(project_id, detected_at);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO meta(key, value) VALUES ('schema_version', '1');
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v1: %w", err)
	}

	return nil
}

func (s *Store) migrateV2() error {
	var version string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version)
	if err != nil || version >= "2" {
		return nil
	}

	schema := `
	CREATE INDEX IF NOT EXISTS idx_metrics_month ON project_metrics(month);
	CREATE INDEX IF NOT EXISTS idx_projects_name ON projects(name, id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v2: %w", err)
	}

	if _, err := s.db.Exec(`INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', '2')`); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}

	return nil
}

// SchemaVersion returns the applied schema version.
func (s *Store) SchemaVersion() (string, error) {
	var version string
	if err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version); err != nil {
		return "", fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}
