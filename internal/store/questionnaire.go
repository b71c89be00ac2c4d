package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/feedbackportal/internal/questionnaire"
)

// CreateQuestionnaire stores a new questionnaire view session and assigns its ID.
func (s *Store) CreateQuestionnaire(sess *questionnaire.Session) error {
	questions, err := json.Marshal(sess.Questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	answers, err := json.Marshal(sess.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	sess.ID = uuid.NewString()
	now := time.Now()
	_, err = s.db.Exec(
		`INSERT INTO questionnaires (id, student_id, feedback_id, teacher_id, teacher_name, questions,
		 position, answers, phase, error, strict_gating, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Target.StudentID, sess.Target.FeedbackID, sess.Target.TeacherID, sess.TeacherName,
		string(questions), sess.Position, string(answers), sess.Phase, sess.Err, sess.StrictGating, now, now,
	)
	return err
}

// GetQuestionnaire loads a questionnaire owned by studentID.
func (s *Store) GetQuestionnaire(id, studentID string) (*questionnaire.Session, error) {
	var (
		sess      questionnaire.Session
		questions string
		answers   string
	)
	err := s.db.QueryRow(
		`SELECT id, student_id, feedback_id, teacher_id, teacher_name, questions, position, answers,
		 phase, error, strict_gating
		 FROM questionnaires WHERE id = ? AND student_id = ?`, id, studentID,
	).Scan(&sess.ID, &sess.Target.StudentID, &sess.Target.FeedbackID, &sess.Target.TeacherID, &sess.TeacherName,
		&questions, &sess.Position, &answers, &sess.Phase, &sess.Err, &sess.StrictGating)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(questions), &sess.Questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	if err := json.Unmarshal([]byte(answers), &sess.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	if sess.Answers == nil {
		sess.Answers = make(map[string]string)
	}
	return &sess, nil
}

// SaveProgress stores the position and answers of a questionnaire that is not
// being submitted. It returns ErrSessionBusy if a submission holds the row.
func (s *Store) SaveProgress(sess *questionnaire.Session) error {
	answers, err := json.Marshal(sess.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	res, err := s.db.Exec(
		`UPDATE questionnaires SET position = ?, answers = ?, updated_at = ?
		 WHERE id = ? AND phase != ?`,
		sess.Position, string(answers), time.Now(), sess.ID, questionnaire.PhaseSubmitting,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionBusy
	}
	return nil
}

// ClaimSubmission moves a questionnaire to the submitting phase unless another
// request already did. Only the caller that gets nil may call the backend.
func (s *Store) ClaimSubmission(id string) error {
	res, err := s.db.Exec(
		`UPDATE questionnaires SET phase = ?, error = '', updated_at = ? WHERE id = ? AND phase != ?`,
		questionnaire.PhaseSubmitting, time.Now(), id, questionnaire.PhaseSubmitting,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionBusy
	}
	return nil
}

// FinishSubmission records the outcome of a claimed submission.
func (s *Store) FinishSubmission(sess *questionnaire.Session) error {
	_, err := s.db.Exec(
		`UPDATE questionnaires SET phase = ?, error = ?, updated_at = ? WHERE id = ?`,
		sess.Phase, sess.Err, time.Now(), sess.ID,
	)
	return err
}

// AbandonSubmission marks a claimed submission as failed with msg when its
// outcome was never recorded, so the student can submit again.
func (s *Store) AbandonSubmission(id, msg string) error {
	_, err := s.db.Exec(
		`UPDATE questionnaires SET phase = ?, error = ?, updated_at = ? WHERE id = ? AND phase = ?`,
		questionnaire.PhaseFailed, msg, time.Now(), id, questionnaire.PhaseSubmitting,
	)
	return err
}

// DeleteQuestionnaire removes a questionnaire view session.
func (s *Store) DeleteQuestionnaire(id string) error {
	_, err := s.db.Exec(`DELETE FROM questionnaires WHERE id = ?`, id)
	return err
}
