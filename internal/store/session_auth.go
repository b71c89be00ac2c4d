package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/pavelanni/feedbackportal/internal/model"
)

const authSessionTTL = 24 * time.Hour

// CreateAuthSession creates a new login session for a resolved student.
func (s *Store) CreateAuthSession(email string, student model.Student) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	now := time.Now()
	_, err = s.db.Exec(
		`INSERT INTO auth_sessions (id, email, student_id, student_name, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		token, email, student.ID, student.Name, now, now.Add(authSessionTTL),
	)
	if err != nil {
		return "", err
	}
	return token, nil
}

// GetAuthSession returns the auth session for the given token, or nil if not found/expired.
func (s *Store) GetAuthSession(token string) (*model.AuthSession, error) {
	var sess model.AuthSession
	err := s.db.QueryRow(
		`SELECT id, email, student_id, student_name, semester, created_at, expires_at
		 FROM auth_sessions WHERE id = ?`, token,
	).Scan(&sess.ID, &sess.Email, &sess.StudentID, &sess.StudentName, &sess.Semester, &sess.CreatedAt, &sess.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if time.Now().After(sess.ExpiresAt) {
		_ = s.DeleteAuthSession(token)
		return nil, nil
	}
	return &sess, nil
}

// SetAuthSemester records the semester the student picked.
func (s *Store) SetAuthSemester(token, semester string) error {
	res, err := s.db.Exec(`UPDATE auth_sessions SET semester = ? WHERE id = ?`, semester, token)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAuthSession removes a session token.
func (s *Store) DeleteAuthSession(token string) error {
	_, err := s.db.Exec(`DELETE FROM auth_sessions WHERE id = ?`, token)
	return err
}

// CleanupExpiredSessions removes expired auth sessions and view sessions
// untouched for longer than the auth TTL.
func (s *Store) CleanupExpiredSessions() error {
	now := time.Now()
	if _, err := s.db.Exec(`DELETE FROM auth_sessions WHERE expires_at < ?`, now); err != nil {
		return err
	}
	stale := now.Add(-authSessionTTL)
	if _, err := s.db.Exec(`DELETE FROM questionnaires WHERE updated_at < ?`, stale); err != nil {
		return err
	}
	if _, err := s.db.Exec(
		`DELETE FROM turns WHERE session_id IN (SELECT id FROM drafting_sessions WHERE updated_at < ?)`, stale,
	); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM drafting_sessions WHERE updated_at < ?`, stale)
	return err
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
