package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/feedbackportal/internal/llm"
	"github.com/pavelanni/feedbackportal/internal/model"
)

// GenerateCommentsArgs are the arguments of the generatecomments function.
type GenerateCommentsArgs struct {
	Comments string `json:"comments" jsonschema:"description=A set of positive feedback comments from a BTech student for their teacher. Separate multiple comments with a + symbol."`
}

// SubmitCommentArgs are the arguments of the submitcomment function.
type SubmitCommentArgs struct {
	SubmitOption bool `json:"submitoption" jsonschema:"description=True if the user confirms submitting the comment."`
}

type generateCommentsResult struct {
	Comments string `json:"comments"`
}

type submitCommentResult struct {
	SubmitOption bool `json:"submitoption"`
}

// function is a declared model function with a typed argument struct.
type function interface {
	spec() llm.ToolSpec
	call(ctx context.Context, s *model.DraftingSession, args json.RawMessage) (any, error)
}

type typedFunction[T any] struct {
	name        string
	description string
	run         func(ctx context.Context, s *model.DraftingSession, args T) (any, error)
}

func (f typedFunction[T]) spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        f.name,
		Description: f.description,
		Parameters:  llm.SchemaFor[T](),
	}
}

func (f typedFunction[T]) call(ctx context.Context, s *model.DraftingSession, raw json.RawMessage) (any, error) {
	var args T
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("%w: %s arguments: %v", ErrMalformedCall, f.name, err)
	}
	return f.run(ctx, s, args)
}

func (a *Assistant) functionTable() map[string]function {
	return map[string]function{
		"generatecomments": typedFunction[GenerateCommentsArgs]{
			name:        "generatecomments",
			description: "Generate multiple nice and appreciative comments for the teacher. Separate them with a + symbol.",
			run:         a.generateComments,
		},
		"submitcomment": typedFunction[SubmitCommentArgs]{
			name:        "submitcomment",
			description: "If the user wants to submit a comment, set submitoption to true.",
			run:         a.submitComment,
		},
	}
}

// SplitComments turns the model's +-separated comments into one comment per
// line. Only the separator is replaced; surrounding text is kept as written.
func SplitComments(raw string) string {
	return strings.ReplaceAll(raw, "+", "\n")
}

func (a *Assistant) generateComments(_ context.Context, s *model.DraftingSession, args GenerateCommentsArgs) (any, error) {
	draft := SplitComments(args.Comments)
	s.Draft = draft
	appendTurn(s, model.RoleAssistant, draft)
	return generateCommentsResult{Comments: draft}, nil
}

func (a *Assistant) submitComment(ctx context.Context, s *model.DraftingSession, args SubmitCommentArgs) (any, error) {
	if !args.SubmitOption || s.Draft == "" {
		return submitCommentResult{SubmitOption: false}, nil
	}

	err := a.poster.PostComment(ctx, model.NewComment{
		TeacherID: s.TeacherID,
		StudentID: s.StudentID,
		Comment:   s.Draft,
	})
	if err != nil {
		slog.Error("post drafted comment", "session", s.ID, "teacher", s.TeacherID, "error", err)
		appendTurn(s, model.RoleAssistant, SubmitFailedMessage)
		return submitCommentResult{SubmitOption: true}, nil
	}

	s.Draft = ""
	appendTurn(s, model.RoleAssistant, SubmittedMessage)
	return submitCommentResult{SubmitOption: true}, nil
}
