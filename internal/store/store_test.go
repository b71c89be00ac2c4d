package store

import (
	"errors"
	"testing"
	"time"

	"github.com/pavelanni/feedbackportal/internal/model"
	"github.com/pavelanni/feedbackportal/internal/questionnaire"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestQuestionnaire(t *testing.T, s *Store) *questionnaire.Session {
	t.Helper()
	sess, err := questionnaire.New(
		questionnaire.Target{StudentID: "s1", FeedbackID: "f1", TeacherID: "t1"},
		[]model.FeedbackQuestion{
			{ID: "q1", Text: "Clear?", Options: []string{"Yes", "No"}},
			{ID: "q2", Text: "Kind?", Options: []string{"Yes", "No"}},
		}, false)
	if err != nil {
		t.Fatalf("questionnaire.New: %v", err)
	}
	sess.TeacherName = "Dr. Rao"
	if err := s.CreateQuestionnaire(sess); err != nil {
		t.Fatalf("CreateQuestionnaire: %v", err)
	}
	return sess
}

func TestAuthSessionLifecycle(t *testing.T) {
	s := newTestStore(t)

	token, err := s.CreateAuthSession("ann@uni.edu", model.Student{ID: "s1", Name: "Ann"})
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("token length = %d, want 64", len(token))
	}

	sess, err := s.GetAuthSession(token)
	if err != nil || sess == nil {
		t.Fatalf("GetAuthSession: %v, %v", sess, err)
	}
	if sess.Email != "ann@uni.edu" || sess.StudentID != "s1" || sess.StudentName != "Ann" || sess.Semester != "" {
		t.Errorf("session = %+v", sess)
	}

	if err := s.SetAuthSemester(token, "3"); err != nil {
		t.Fatalf("SetAuthSemester: %v", err)
	}
	sess, _ = s.GetAuthSession(token)
	if sess.Semester != "3" {
		t.Errorf("semester = %q, want 3", sess.Semester)
	}
	if err := s.SetAuthSemester("nope", "3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetAuthSemester unknown token: %v", err)
	}

	if err := s.DeleteAuthSession(token); err != nil {
		t.Fatalf("DeleteAuthSession: %v", err)
	}
	if sess, _ := s.GetAuthSession(token); sess != nil {
		t.Error("deleted session should be gone")
	}
}

func TestAuthSessionExpiry(t *testing.T) {
	s := newTestStore(t)
	past := time.Now().Add(-time.Hour)
	_, err := s.db.Exec(
		`INSERT INTO auth_sessions (id, email, student_id, created_at, expires_at) VALUES ('old', 'a@b', 's1', ?, ?)`,
		past.Add(-authSessionTTL), past,
	)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if sess, err := s.GetAuthSession("old"); err != nil || sess != nil {
		t.Errorf("expired session = %+v, %v", sess, err)
	}
}

func TestQuestionnaireRoundTrip(t *testing.T) {
	s := newTestStore(t)
	sess := newTestQuestionnaire(t, s)
	if sess.ID == "" {
		t.Fatal("CreateQuestionnaire should assign an ID")
	}

	if err := sess.SelectOption("q1", "Yes"); err != nil {
		t.Fatal(err)
	}
	sess.Advance()
	if err := s.SaveProgress(sess); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}

	got, err := s.GetQuestionnaire(sess.ID, "s1")
	if err != nil {
		t.Fatalf("GetQuestionnaire: %v", err)
	}
	if got.Position != 1 || got.Answers["q1"] != "Yes" || got.TeacherName != "Dr. Rao" {
		t.Errorf("loaded = %+v", got)
	}
	if got.Phase != questionnaire.PhaseAnswering || len(got.Questions) != 2 {
		t.Errorf("phase %q, %d questions", got.Phase, len(got.Questions))
	}

	if _, err := s.GetQuestionnaire(sess.ID, "someone-else"); !errors.Is(err, ErrNotFound) {
		t.Errorf("other student's questionnaire: %v", err)
	}
}

func TestClaimSubmissionIsExclusive(t *testing.T) {
	s := newTestStore(t)
	sess := newTestQuestionnaire(t, s)

	if err := s.ClaimSubmission(sess.ID); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := s.ClaimSubmission(sess.ID); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("second claim = %v, want ErrSessionBusy", err)
	}
	if err := s.SaveProgress(sess); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("progress during submission = %v, want ErrSessionBusy", err)
	}

	sess.Phase = questionnaire.PhaseFailed
	sess.Err = "Already submitted"
	if err := s.FinishSubmission(sess); err != nil {
		t.Fatalf("FinishSubmission: %v", err)
	}
	got, _ := s.GetQuestionnaire(sess.ID, "s1")
	if got.Phase != questionnaire.PhaseFailed || got.Err != "Already submitted" {
		t.Errorf("after finish = %q %q", got.Phase, got.Err)
	}
	if err := s.ClaimSubmission(sess.ID); err != nil {
		t.Errorf("claim after failure should succeed: %v", err)
	}
}

func TestDraftingAcquireRelease(t *testing.T) {
	s := newTestStore(t)
	d := &model.DraftingSession{
		StudentID: "s1", TeacherID: "t1", TeacherName: "Dr. Rao",
		Turns: []model.Turn{{Role: model.RoleAssistant, Text: "Hello!"}},
	}
	if err := s.CreateDrafting(d); err != nil {
		t.Fatalf("CreateDrafting: %v", err)
	}
	if d.ID == "" || d.Turns[0].ID == 0 {
		t.Fatal("CreateDrafting should assign session and turn IDs")
	}

	owned, err := s.AcquireDrafting(d.ID, "s1")
	if err != nil {
		t.Fatalf("AcquireDrafting: %v", err)
	}
	if owned.Busy {
		t.Error("acquired session should be handed over idle")
	}
	if _, err := s.AcquireDrafting(d.ID, "s1"); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("second acquire = %v, want ErrSessionBusy", err)
	}
	if shown, _ := s.GetDrafting(d.ID, "s1"); !shown.Busy {
		t.Error("GetDrafting should report busy while acquired")
	}

	owned.Turns = append(owned.Turns,
		model.Turn{Role: model.RoleUser, Text: "write something"},
		model.Turn{Role: model.RoleAssistant, Text: "Great teacher"},
	)
	owned.Draft = "Great teacher"
	if err := s.ReleaseDrafting(owned); err != nil {
		t.Fatalf("ReleaseDrafting: %v", err)
	}

	got, err := s.GetDrafting(d.ID, "s1")
	if err != nil {
		t.Fatalf("GetDrafting: %v", err)
	}
	if got.Busy || got.Draft != "Great teacher" || len(got.Turns) != 3 {
		t.Errorf("released = busy %v draft %q turns %d", got.Busy, got.Draft, len(got.Turns))
	}
	if got.Turns[1].Role != model.RoleUser || got.Turns[2].Text != "Great teacher" {
		t.Errorf("turn order = %+v", got.Turns)
	}

	if _, err := s.AcquireDrafting("missing", "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("acquire missing = %v, want ErrNotFound", err)
	}
	if _, err := s.AcquireDrafting(d.ID, "s2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("acquire as other student = %v, want ErrNotFound", err)
	}
}

func TestExportDrafts(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"Dr. Rao", "Ms. Iyer"} {
		d := &model.DraftingSession{
			StudentID: "s1", TeacherName: name, Draft: "pending for " + name,
			Turns: []model.Turn{{Role: model.RoleAssistant, Text: "Hello!"}, {Role: model.RoleUser, Text: "hi"}},
		}
		if err := s.CreateDrafting(d); err != nil {
			t.Fatal(err)
		}
	}

	records, err := s.ExportDrafts("s1")
	if err != nil {
		t.Fatalf("ExportDrafts: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	for _, r := range records {
		if len(r.Conversation) != 2 || r.Conversation[1].Role != "user" {
			t.Errorf("record %+v", r)
		}
	}
	if other, _ := s.ExportDrafts("s2"); len(other) != 0 {
		t.Errorf("other student sees %d records", len(other))
	}
}

func TestCleanupExpiredSessions(t *testing.T) {
	s := newTestStore(t)
	sess := newTestQuestionnaire(t, s)
	old := time.Now().Add(-2 * authSessionTTL)
	if _, err := s.db.Exec(`UPDATE questionnaires SET updated_at = ? WHERE id = ?`, old, sess.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.CleanupExpiredSessions(); err != nil {
		t.Fatalf("CleanupExpiredSessions: %v", err)
	}
	if _, err := s.GetQuestionnaire(sess.ID, "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("stale questionnaire should be removed, got %v", err)
	}
}

func TestAbandonSubmission(t *testing.T) {
	s := newTestStore(t)
	sess := newTestQuestionnaire(t, s)

	if err := s.ClaimSubmission(sess.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := s.AbandonSubmission(sess.ID, "interrupted"); err != nil {
		t.Fatalf("AbandonSubmission: %v", err)
	}
	got, _ := s.GetQuestionnaire(sess.ID, "s1")
	if got.Phase != questionnaire.PhaseFailed || got.Err != "interrupted" {
		t.Errorf("after abandon = %q %q", got.Phase, got.Err)
	}
	if err := s.ClaimSubmission(sess.ID); err != nil {
		t.Errorf("claim after abandon should succeed: %v", err)
	}

	sess.Phase = questionnaire.PhaseSubmitted
	if err := s.FinishSubmission(sess); err != nil {
		t.Fatalf("FinishSubmission: %v", err)
	}
	if err := s.AbandonSubmission(sess.ID, "late"); err != nil {
		t.Fatalf("AbandonSubmission: %v", err)
	}
	if got, _ := s.GetQuestionnaire(sess.ID, "s1"); got.Phase != questionnaire.PhaseSubmitted {
		t.Errorf("abandon must not overwrite a recorded outcome, phase = %q", got.Phase)
	}
}

func TestDeleteQuestionnaire(t *testing.T) {
	s := newTestStore(t)
	sess := newTestQuestionnaire(t, s)
	if err := s.DeleteQuestionnaire(sess.ID); err != nil {
		t.Fatalf("DeleteQuestionnaire: %v", err)
	}
	if _, err := s.GetQuestionnaire(sess.ID, "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete = %v, want ErrNotFound", err)
	}
}

func TestUnlockDrafting(t *testing.T) {
	s := newTestStore(t)
	d := &model.DraftingSession{StudentID: "s1", TeacherID: "t1"}
	if err := s.CreateDrafting(d); err != nil {
		t.Fatalf("CreateDrafting: %v", err)
	}
	if _, err := s.AcquireDrafting(d.ID, "s1"); err != nil {
		t.Fatalf("AcquireDrafting: %v", err)
	}
	if err := s.UnlockDrafting(d.ID); err != nil {
		t.Fatalf("UnlockDrafting: %v", err)
	}
	if _, err := s.AcquireDrafting(d.ID, "s1"); err != nil {
		t.Errorf("acquire after unlock: %v", err)
	}
}
