// Package store keeps the portal's own view state in SQLite: login sessions,
// open questionnaires and assistant conversations. Backend records are never
// stored here.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a view session does not exist or belongs
	// to another student.
	ErrNotFound = errors.New("not found")
	// ErrSessionBusy is returned when a session is already claimed by another request.
	ErrSessionBusy = errors.New("session busy")
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// each connection to :memory: opens a separate database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		student_id TEXT NOT NULL,
		student_name TEXT NOT NULL DEFAULT '',
		semester TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS questionnaires (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		feedback_id TEXT NOT NULL,
		teacher_id TEXT NOT NULL,
		teacher_name TEXT NOT NULL DEFAULT '',
		questions TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		answers TEXT NOT NULL DEFAULT '{}',
		phase TEXT NOT NULL DEFAULT 'answering',
		error TEXT NOT NULL DEFAULT '',
		strict_gating INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS drafting_sessions (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		student_name TEXT NOT NULL DEFAULT '',
		teacher_id TEXT NOT NULL,
		teacher_name TEXT NOT NULL DEFAULT '',
		subject TEXT NOT NULL DEFAULT '',
		draft TEXT NOT NULL DEFAULT '',
		busy INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES drafting_sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_questionnaires_student ON questionnaires(student_id);
	CREATE INDEX IF NOT EXISTS idx_drafting_student ON drafting_sessions(student_id);
	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id);
	`
	_, err := s.db.Exec(schema)
	return err
}
