// SPDX-License-Identifier: MIT

// Package store is the tracking store: durable, transactional persistence of
// media files, per-stage processing status, the error log and quality
// evaluations, backed by a single embedded SQLite database.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver
)

const schemaVersion = 1

// Sentinel errors. Callers branch with errors.Is.
var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicatePath = errors.New("original path already tracked")
	ErrConstraint    = errors.New("constraint violation")
)

// Store wraps the SQLite database. Writes serialize through an internal
// mutex; reads go straight to the pool and may run concurrently with one
// writer under WAL.
type Store struct {
	db *sql.DB

	// targets is the configured set of translation languages; AddMedia seeds
	// one translation_status row per target.
	targets []string

	writeMu sync.Mutex
}

// Open initializes the store at dbPath and runs migrations. targets is the
// configured list of translation target languages.
func Open(dbPath string, targets []string) (*Store, error) {
	// Pragmas go into the DSN so they apply to every pooled connection.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, targets: append([]string(nil), targets...)}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Targets returns the configured translation target languages.
func (s *Store) Targets() []string {
	return append([]string(nil), s.targets...)
}

func (s *Store) migrate() error {
	var currentVersion int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS media_files (
		file_id TEXT PRIMARY KEY,
		original_path TEXT NOT NULL UNIQUE,
		safe_filename TEXT NOT NULL,
		file_size INTEGER NOT NULL DEFAULT 0,
		duration_seconds REAL,
		checksum TEXT NOT NULL DEFAULT '',
		media_type TEXT NOT NULL CHECK(media_type IN ('audio', 'video')),
		detected_language TEXT NOT NULL DEFAULT '',
		parent_id TEXT REFERENCES media_files(file_id),
		segmented INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS processing_status (
		file_id TEXT PRIMARY KEY REFERENCES media_files(file_id),
		overall_status TEXT NOT NULL DEFAULT 'pending'
			CHECK(overall_status IN ('pending', 'in_progress', 'completed', 'failed')),
		transcription_status TEXT NOT NULL DEFAULT 'not_started'
			CHECK(transcription_status IN ('not_started', 'in_progress', 'completed', 'failed', 'qa_failed')),
		started_at TEXT,
		completed_at TEXT,
		last_updated TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS translation_status (
		file_id TEXT NOT NULL REFERENCES media_files(file_id),
		language TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'not_started'
			CHECK(status IN ('not_started', 'in_progress', 'completed', 'failed', 'qa_failed')),
		last_updated TEXT NOT NULL,
		PRIMARY KEY (file_id, language)
	);

	CREATE TABLE IF NOT EXISTS error_log (
		error_id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id TEXT NOT NULL REFERENCES media_files(file_id),
		process_stage TEXT NOT NULL,
		error_message TEXT NOT NULL,
		error_details TEXT NOT NULL DEFAULT '',
		timestamp TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS quality_evaluations (
		eval_id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id TEXT NOT NULL REFERENCES media_files(file_id),
		language TEXT NOT NULL,
		model TEXT NOT NULL,
		score REAL NOT NULL,
		issues TEXT NOT NULL DEFAULT '[]',
		comment TEXT NOT NULL DEFAULT '',
		evaluated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_status_transcription ON processing_status(transcription_status);
	CREATE INDEX IF NOT EXISTS idx_status_overall ON processing_status(overall_status);
	CREATE INDEX IF NOT EXISTS idx_status_updated ON processing_status(last_updated);
	CREATE INDEX IF NOT EXISTS idx_translation_status ON translation_status(language, status);
	CREATE INDEX IF NOT EXISTS idx_error_log_file ON error_log(file_id);
	`

	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// classify maps driver errors onto the store's sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "CHECK constraint") ||
		strings.Contains(msg, "FOREIGN KEY constraint") {
		return fmt.Errorf("%v: %w", err, ErrConstraint)
	}
	return err
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
