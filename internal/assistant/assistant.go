// Package assistant drives the conversational comment-drafting session: the
// transcript, the pending draft, and the function-calling exchange with the
// model.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/pavelanni/feedbackportal/internal/llm"
	"github.com/pavelanni/feedbackportal/internal/llm/prompts"
	"github.com/pavelanni/feedbackportal/internal/model"
)

// Messages shown to the student as assistant turns.
const (
	Greeting            = "Hello! I'm here to help you create meaningful feedback for your teacher. How can I assist you today?"
	SubmittedMessage    = "Feedback submitted successfully!"
	SubmitFailedMessage = "Failed to submit feedback. Please try again."
	ErrorMessage        = "Sorry, I encountered an error. Please try again."
)

var (
	// ErrBusy is returned when a session already has a round trip in flight.
	ErrBusy = errors.New("assistant is busy")
	// ErrEmptyMessage is returned for blank user input.
	ErrEmptyMessage = errors.New("empty message")
	// ErrMalformedCall marks a function call the assistant cannot dispatch.
	ErrMalformedCall = errors.New("malformed function call")
)

// CommentPoster posts a finished comment to the backend.
type CommentPoster interface {
	PostComment(ctx context.Context, c model.NewComment) error
}

// Assistant runs drafting turns against a chat model.
type Assistant struct {
	model       llm.ChatModel
	poster      CommentPoster
	tone        prompts.Tone
	temperature float32
	functions   map[string]function
}

// New creates an Assistant. The prompt templates must already be loaded.
func New(m llm.ChatModel, poster CommentPoster, tone prompts.Tone) *Assistant {
	if tone == "" {
		tone = prompts.ToneWarm
	}
	a := &Assistant{
		model:       m,
		poster:      poster,
		tone:        tone,
		temperature: 0.7,
	}
	a.functions = a.functionTable()
	return a
}

// NewSession starts a drafting session with the greeting turn.
func NewSession(id string, student model.Identity, teacher model.Teacher, subject string) *model.DraftingSession {
	now := time.Now().UTC()
	s := &model.DraftingSession{
		ID:          id,
		StudentID:   student.StudentID,
		StudentName: student.StudentName,
		TeacherID:   teacher.ID,
		TeacherName: teacher.Name,
		Subject:     subject,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	appendTurn(s, model.RoleAssistant, Greeting)
	return s
}

// Send appends the student's message and the assistant's response to s.
// Model and dispatch failures are logged and surface as an apology turn, so
// the only errors returned are ErrEmptyMessage and ErrBusy.
func (a *Assistant) Send(ctx context.Context, s *model.DraftingSession, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if s.Busy {
		return ErrBusy
	}
	s.Busy = true
	defer func() { s.Busy = false }()

	appendTurn(s, model.RoleUser, text)

	if err := a.respond(ctx, s); err != nil {
		slog.Error("assistant turn failed", "session", s.ID, "error", err)
		appendTurn(s, model.RoleAssistant, ErrorMessage)
	}
	return nil
}

func (a *Assistant) respond(ctx context.Context, s *model.DraftingSession) error {
	system, err := prompts.BuildDraftingPrompt(a.tone, prompts.DraftingData{
		StudentName: s.StudentName,
		TeacherName: s.TeacherName,
		Subject:     s.Subject,
	})
	if err != nil {
		return fmt.Errorf("build system prompt: %w", err)
	}

	req := llm.ChatRequest{
		System:      system,
		Messages:    history(s.Turns),
		Tools:       a.toolSpecs(),
		Temperature: a.temperature,
	}
	reply, err := a.model.Complete(ctx, req)
	if err != nil {
		return err
	}

	if reply.ToolCall == nil {
		if strings.TrimSpace(reply.Text) == "" {
			return errors.New("empty model reply")
		}
		appendTurn(s, model.RoleAssistant, reply.Text)
		return nil
	}

	call := reply.ToolCall
	fn, ok := a.functions[call.Name]
	if !ok {
		return fmt.Errorf("%w: unknown function %q", ErrMalformedCall, call.Name)
	}
	slog.Debug("dispatching function call", "session", s.ID, "function", call.Name)

	result, err := fn.call(ctx, s, call.Arguments)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode %s result: %w", call.Name, err)
	}

	req.Messages = append(req.Messages,
		llm.Message{Role: llm.RoleAssistant, Content: reply.Text, ToolCall: call},
		llm.Message{Role: llm.RoleTool, Content: string(payload), ToolCallID: call.ID, Name: call.Name},
	)
	final, err := a.model.Complete(ctx, req)
	if err != nil {
		return fmt.Errorf("function result round trip: %w", err)
	}
	if text := strings.TrimSpace(final.Text); text != "" {
		appendTurn(s, model.RoleAssistant, text)
	}
	return nil
}

func (a *Assistant) toolSpecs() []llm.ToolSpec {
	names := []string{"generatecomments", "submitcomment"}
	return lo.Map(names, func(name string, _ int) llm.ToolSpec {
		return a.functions[name].spec()
	})
}

// history replays the transcript from the first student turn onward, which
// leaves out the greeting.
func history(turns []model.Turn) []llm.Message {
	start := slices.IndexFunc(turns, func(t model.Turn) bool { return t.Role == model.RoleUser })
	if start < 0 {
		return nil
	}
	return lo.Map(turns[start:], func(t model.Turn, _ int) llm.Message {
		role := llm.RoleUser
		if t.Role == model.RoleAssistant {
			role = llm.RoleAssistant
		}
		return llm.Message{Role: role, Content: t.Text}
	})
}

func appendTurn(s *model.DraftingSession, role model.Role, text string) {
	now := time.Now().UTC()
	s.Turns = append(s.Turns, model.Turn{Role: role, Text: text, CreatedAt: now})
	s.UpdatedAt = now
}
