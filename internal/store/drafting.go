package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/feedbackportal/internal/model"
)

type querier interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

// CreateDrafting stores a new assistant session with its opening turns.
func (s *Store) CreateDrafting(d *model.DraftingSession) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO drafting_sessions (id, student_id, student_name, teacher_id, teacher_name, subject,
		 draft, busy, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		d.ID, d.StudentID, d.StudentName, d.TeacherID, d.TeacherName, d.Subject, d.Draft, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if err := insertNewTurns(tx, d); err != nil {
		return err
	}
	return tx.Commit()
}

// GetDrafting loads an assistant session owned by studentID with its transcript.
func (s *Store) GetDrafting(id, studentID string) (*model.DraftingSession, error) {
	var d model.DraftingSession
	err := s.db.QueryRow(
		`SELECT id, student_id, student_name, teacher_id, teacher_name, subject, draft, busy, created_at, updated_at
		 FROM drafting_sessions WHERE id = ? AND student_id = ?`, id, studentID,
	).Scan(&d.ID, &d.StudentID, &d.StudentName, &d.TeacherID, &d.TeacherName, &d.Subject, &d.Draft, &d.Busy,
		&d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.Turns, err = listTurns(s.db, d.ID)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// AcquireDrafting claims an assistant session for one round trip. It returns
// ErrSessionBusy when another request holds it. The returned session is owned
// by the caller and must be handed back with ReleaseDrafting.
func (s *Store) AcquireDrafting(id, studentID string) (*model.DraftingSession, error) {
	res, err := s.db.Exec(
		`UPDATE drafting_sessions SET busy = 1 WHERE id = ? AND student_id = ? AND busy = 0`, id, studentID,
	)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetDrafting(id, studentID); err != nil {
			return nil, err
		}
		return nil, ErrSessionBusy
	}
	d, err := s.GetDrafting(id, studentID)
	if err != nil {
		return nil, err
	}
	d.Busy = false
	return d, nil
}

// ReleaseDrafting saves the new turns and draft of an acquired session and
// frees it for the next request.
func (s *Store) ReleaseDrafting(d *model.DraftingSession) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertNewTurns(tx, d); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`UPDATE drafting_sessions SET draft = ?, busy = 0, updated_at = ? WHERE id = ?`,
		d.Draft, time.Now(), d.ID,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// UnlockDrafting frees an acquired session without saving anything. Handlers
// call it when a round trip ends before ReleaseDrafting succeeded.
func (s *Store) UnlockDrafting(id string) error {
	_, err := s.db.Exec(`UPDATE drafting_sessions SET busy = 0 WHERE id = ?`, id)
	return err
}

// ListDraftings returns a student's assistant sessions, newest first, with transcripts.
func (s *Store) ListDraftings(studentID string) ([]model.DraftingSession, error) {
	rows, err := s.db.Query(
		`SELECT id, student_id, student_name, teacher_id, teacher_name, subject, draft, busy, created_at, updated_at
		 FROM drafting_sessions WHERE student_id = ? ORDER BY created_at DESC`, studentID,
	)
	if err != nil {
		return nil, err
	}
	var sessions []model.DraftingSession
	for rows.Next() {
		var d model.DraftingSession
		if err := rows.Scan(&d.ID, &d.StudentID, &d.StudentName, &d.TeacherID, &d.TeacherName, &d.Subject,
			&d.Draft, &d.Busy, &d.CreatedAt, &d.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		sessions = append(sessions, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sessions {
		sessions[i].Turns, err = listTurns(s.db, sessions[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

func listTurns(q querier, sessionID string) ([]model.Turn, error) {
	rows, err := q.Query(
		`SELECT id, role, text, created_at FROM turns WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var turns []model.Turn
	for rows.Next() {
		var t model.Turn
		if err := rows.Scan(&t.ID, &t.Role, &t.Text, &t.CreatedAt); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// insertNewTurns appends the turns that have not been stored yet (ID zero).
func insertNewTurns(tx *sql.Tx, d *model.DraftingSession) error {
	for i := range d.Turns {
		t := &d.Turns[i]
		if t.ID != 0 {
			continue
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now()
		}
		res, err := tx.Exec(
			`INSERT INTO turns (session_id, role, text, created_at) VALUES (?, ?, ?, ?)`,
			d.ID, t.Role, t.Text, t.CreatedAt,
		)
		if err != nil {
			return err
		}
		if t.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}
