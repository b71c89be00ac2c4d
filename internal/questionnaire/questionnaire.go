// Package questionnaire steps a student through a fixed-choice feedback
// questionnaire one question at a time and submits all answers at the end.
package questionnaire

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/pavelanni/feedbackportal/internal/model"
)

// Phase is the submission phase of a session.
type Phase string

const (
	PhaseAnswering  Phase = "answering"
	PhaseSubmitting Phase = "submitting"
	PhaseSubmitted  Phase = "submitted"
	PhaseFailed     Phase = "failed"
)

// RedirectDelay is how long the success message stays up before the
// student is sent back to the dashboard.
const RedirectDelay = 2 * time.Second

// GenericSubmitError is shown when the backend gives no usable message.
const GenericSubmitError = "An error occurred while submitting feedback"

var (
	ErrNoQuestions     = errors.New("questionnaire has no questions")
	ErrUnknownQuestion = errors.New("unknown question")
	ErrInvalidOption   = errors.New("option is not offered by the question")
	ErrNotAnswered     = errors.New("current question is not answered")
	ErrIncomplete      = errors.New("not every question is answered")
	ErrSubmitting      = errors.New("submission already in progress")
)

// Submitter delivers a finished questionnaire to the backend.
type Submitter interface {
	SubmitResponses(ctx context.Context, s model.FeedbackSubmission) error
}

// Target identifies the student, feedback session and teacher a
// questionnaire belongs to.
type Target struct {
	StudentID  string
	FeedbackID string
	TeacherID  string
}

// Session is the state of one questionnaire view. Position is only
// meaningful while the phase is answering or failed; submitting freezes it.
type Session struct {
	ID           string
	Target       Target
	TeacherName  string
	Questions    []model.FeedbackQuestion
	Position     int
	Answers      map[string]string
	Phase        Phase
	Err          string
	StrictGating bool
}

// New creates a session positioned at the first question.
func New(target Target, questions []model.FeedbackQuestion, strict bool) (*Session, error) {
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	return &Session{
		Target:       target,
		Questions:    questions,
		Answers:      make(map[string]string),
		Phase:        PhaseAnswering,
		StrictGating: strict,
	}, nil
}

// Current returns the question at the current position.
func (s *Session) Current() model.FeedbackQuestion {
	return s.Questions[s.Position]
}

// IsLast reports whether the current question is the final one.
func (s *Session) IsLast() bool {
	return s.Position == len(s.Questions)-1
}

// Answered reports whether the current question has an answer.
func (s *Session) Answered() bool {
	_, ok := s.Answers[s.Current().ID]
	return ok
}

// Complete reports whether every question has an answer.
func (s *Session) Complete() bool {
	return lo.EveryBy(s.Questions, func(q model.FeedbackQuestion) bool {
		_, ok := s.Answers[q.ID]
		return ok
	})
}

// CanSubmit reports whether Submit would pass its gating checks.
func (s *Session) CanSubmit() bool {
	if s.Phase == PhaseSubmitting || !s.Answered() {
		return false
	}
	return !s.StrictGating || s.Complete()
}

// SelectOption records option as the answer to questionID, replacing any
// earlier answer. It does not move the position.
func (s *Session) SelectOption(questionID, option string) error {
	if s.Phase == PhaseSubmitting {
		return ErrSubmitting
	}
	q, ok := lo.Find(s.Questions, func(q model.FeedbackQuestion) bool { return q.ID == questionID })
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	if !slices.Contains(q.Options, option) {
		return fmt.Errorf("%w: %q", ErrInvalidOption, option)
	}
	s.Answers[questionID] = option
	return nil
}

// Advance moves to the next question if the current one is answered and it
// is not the last. It returns false and leaves the position unchanged otherwise.
func (s *Session) Advance() bool {
	if s.Phase == PhaseSubmitting || !s.Answered() || s.IsLast() {
		return false
	}
	s.Position++
	return true
}

// Retreat moves to the previous question. Going back never needs an answer.
func (s *Session) Retreat() bool {
	if s.Phase == PhaseSubmitting || s.Position == 0 {
		return false
	}
	s.Position--
	return true
}

// Submission builds the payload for every question in order. Unanswered
// questions carry an empty selected option.
func (s *Session) Submission() model.FeedbackSubmission {
	return model.FeedbackSubmission{
		StudentID:  s.Target.StudentID,
		FeedbackID: s.Target.FeedbackID,
		TeacherID:  s.Target.TeacherID,
		Responses: lo.Map(s.Questions, func(q model.FeedbackQuestion, _ int) model.QuestionResponse {
			return model.QuestionResponse{QuestionID: q.ID, SelectedOption: s.Answers[q.ID]}
		}),
	}
}

// Begin checks the submit preconditions, moves the session to submitting and
// returns the payload to send. Callers must report the outcome with Finish.
func (s *Session) Begin() (model.FeedbackSubmission, error) {
	if s.Phase == PhaseSubmitting {
		return model.FeedbackSubmission{}, ErrSubmitting
	}
	if !s.Answered() {
		return model.FeedbackSubmission{}, ErrNotAnswered
	}
	if s.StrictGating && !s.Complete() {
		return model.FeedbackSubmission{}, ErrIncomplete
	}
	s.Phase = PhaseSubmitting
	s.Err = ""
	return s.Submission(), nil
}

// Finish records the outcome of the network call started after Begin.
func (s *Session) Finish(err error) {
	if err != nil {
		s.Phase = PhaseFailed
		s.Err = FailureMessage(err)
		return
	}
	s.Phase = PhaseSubmitted
	s.Err = ""
}

// Submit sends all answers in one call. On failure the session is left in
// the failed phase with a readable message and the error is returned; the
// student may call Submit again. There is no automatic retry.
func (s *Session) Submit(ctx context.Context, sub Submitter) error {
	payload, err := s.Begin()
	if err != nil {
		return err
	}
	err = sub.SubmitResponses(ctx, payload)
	s.Finish(err)
	if err != nil {
		return fmt.Errorf("submit responses: %w", err)
	}
	return nil
}

// userMessager is implemented by errors that carry a message meant for the student.
type userMessager interface {
	UserMessage() string
}

// FailureMessage extracts the remote message from err, falling back to
// GenericSubmitError.
func FailureMessage(err error) string {
	var um userMessager
	if errors.As(err, &um) {
		if msg := um.UserMessage(); msg != "" {
			return msg
		}
	}
	return GenericSubmitError
}
