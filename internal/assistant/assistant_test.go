package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/pavelanni/feedbackportal/internal/llm"
	"github.com/pavelanni/feedbackportal/internal/llm/prompts"
	"github.com/pavelanni/feedbackportal/internal/model"
)

// scriptedModel returns its replies in order and records every request.
type scriptedModel struct {
	replies  []*llm.Reply
	errs     []error
	requests []llm.ChatRequest
}

func (m *scriptedModel) Complete(_ context.Context, req llm.ChatRequest) (*llm.Reply, error) {
	i := len(m.requests)
	m.requests = append(m.requests, req)
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i >= len(m.replies) {
		return &llm.Reply{}, nil
	}
	return m.replies[i], nil
}

func (m *scriptedModel) Ping(context.Context) error { return nil }

type fakePoster struct {
	posted []model.NewComment
	err    error
}

func (p *fakePoster) PostComment(_ context.Context, c model.NewComment) error {
	p.posted = append(p.posted, c)
	return p.err
}

func toolReply(name, args string) *llm.Reply {
	return &llm.Reply{ToolCall: &llm.ToolCall{ID: "call_" + name, Name: name, Arguments: json.RawMessage(args)}}
}

func newTestAssistant(t *testing.T, m *scriptedModel, p *fakePoster) (*Assistant, *model.DraftingSession) {
	t.Helper()
	if err := prompts.Load(prompts.FS); err != nil {
		t.Fatalf("load prompts: %v", err)
	}
	s := NewSession("d1",
		model.Identity{StudentID: "s1", StudentName: "Ann"},
		model.Teacher{ID: "t1", Name: "Dr. Rao"}, "Compilers")
	return New(m, p, prompts.ToneWarm), s
}

func lastTurn(s *model.DraftingSession) model.Turn {
	return s.Turns[len(s.Turns)-1]
}

func TestSplitComments(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Great teacher+Very helpful", "Great teacher\nVery helpful"},
		{"A + B", "A \n B"},
		{"Only one", "Only one"},
		{"a++b", "a\n\nb"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SplitComments(tt.in); got != tt.want {
			t.Errorf("SplitComments(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewSessionGreets(t *testing.T) {
	s := NewSession("d1", model.Identity{StudentID: "s1"}, model.Teacher{ID: "t1"}, "")
	if len(s.Turns) != 1 || s.Turns[0].Text != Greeting || s.Turns[0].Role != model.RoleAssistant {
		t.Errorf("turns = %+v", s.Turns)
	}
}

func TestSendPlainText(t *testing.T) {
	m := &scriptedModel{replies: []*llm.Reply{{Text: "What did you like about the class?"}}}
	a, s := newTestAssistant(t, m, &fakePoster{})

	if err := a.Send(context.Background(), s, "  help me  "); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(s.Turns) != 3 {
		t.Fatalf("got %d turns, want 3", len(s.Turns))
	}
	if s.Turns[1].Role != model.RoleUser || s.Turns[1].Text != "help me" {
		t.Errorf("user turn = %+v", s.Turns[1])
	}
	if lastTurn(s).Text != "What did you like about the class?" {
		t.Errorf("assistant turn = %+v", lastTurn(s))
	}

	req := m.requests[0]
	if len(req.Messages) != 1 || req.Messages[0].Content != "help me" {
		t.Errorf("history should start at the first user turn: %+v", req.Messages)
	}
	if len(req.Tools) != 2 || req.Tools[0].Name != "generatecomments" || req.Tools[1].Name != "submitcomment" {
		t.Errorf("tools = %+v", req.Tools)
	}
	if req.System == "" {
		t.Error("system instruction should be set")
	}
	if s.Busy {
		t.Error("session should not stay busy")
	}
}

func TestSendGenerateComments(t *testing.T) {
	m := &scriptedModel{replies: []*llm.Reply{
		toolReply("generatecomments", `{"comments":"Clear lectures + Always helpful"}`),
		{Text: "Shall I submit these?"},
	}}
	a, s := newTestAssistant(t, m, &fakePoster{})

	if err := a.Send(context.Background(), s, "write something nice"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if s.Draft != "Clear lectures\nAlways helpful" {
		t.Errorf("draft = %q", s.Draft)
	}
	if len(m.requests) != 2 {
		t.Fatalf("model called %d times, want 2", len(m.requests))
	}

	second := m.requests[1].Messages
	result := second[len(second)-1]
	if result.Role != llm.RoleTool || result.ToolCallID != "call_generatecomments" {
		t.Errorf("tool result message = %+v", result)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(result.Content), &got); err != nil || got["comments"] != s.Draft {
		t.Errorf("tool result = %s", result.Content)
	}
	if call := second[len(second)-2]; call.ToolCall == nil || call.ToolCall.Name != "generatecomments" {
		t.Errorf("assistant call message = %+v", call)
	}

	// greeting, user, draft, follow-up
	if len(s.Turns) != 4 || s.Turns[2].Text != s.Draft || lastTurn(s).Text != "Shall I submit these?" {
		t.Errorf("turns = %+v", s.Turns)
	}
}

func TestSubmitCommentPostsDraft(t *testing.T) {
	m := &scriptedModel{replies: []*llm.Reply{toolReply("submitcomment", `{"submitoption":true}`)}}
	p := &fakePoster{}
	a, s := newTestAssistant(t, m, p)
	s.Draft = "Clear lectures"

	if err := a.Send(context.Background(), s, "yes, submit"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(p.posted) != 1 {
		t.Fatalf("posted %d comments, want 1", len(p.posted))
	}
	want := model.NewComment{TeacherID: "t1", StudentID: "s1", Comment: "Clear lectures"}
	if p.posted[0] != want {
		t.Errorf("posted %+v, want %+v", p.posted[0], want)
	}
	if s.Draft != "" {
		t.Error("draft should be cleared after a successful submission")
	}
	if lastTurn(s).Text != SubmittedMessage {
		t.Errorf("last turn = %q", lastTurn(s).Text)
	}

	var ack map[string]bool
	res := m.requests[1].Messages[len(m.requests[1].Messages)-1]
	if err := json.Unmarshal([]byte(res.Content), &ack); err != nil || !ack["submitoption"] {
		t.Errorf("ack = %s", res.Content)
	}
}

func TestSubmitCommentFailureKeepsDraft(t *testing.T) {
	m := &scriptedModel{replies: []*llm.Reply{toolReply("submitcomment", `{"submitoption":true}`)}}
	p := &fakePoster{err: errors.New("backend down")}
	a, s := newTestAssistant(t, m, p)
	s.Draft = "Clear lectures"

	if err := a.Send(context.Background(), s, "submit"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if lastTurn(s).Text != SubmitFailedMessage {
		t.Errorf("last turn = %q", lastTurn(s).Text)
	}
	if s.Draft != "Clear lectures" {
		t.Error("draft should survive a failed submission")
	}
}

func TestSubmitCommentWithoutDraft(t *testing.T) {
	tests := []struct {
		name  string
		draft string
		args  string
	}{
		{"no draft", "", `{"submitoption":true}`},
		{"not confirmed", "Clear lectures", `{"submitoption":false}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &scriptedModel{replies: []*llm.Reply{toolReply("submitcomment", tt.args)}}
			p := &fakePoster{}
			a, s := newTestAssistant(t, m, p)
			s.Draft = tt.draft

			if err := a.Send(context.Background(), s, "submit"); err != nil {
				t.Fatalf("Send: %v", err)
			}
			if len(p.posted) != 0 {
				t.Error("no comment should be posted")
			}
			res := m.requests[1].Messages[len(m.requests[1].Messages)-1]
			if res.Content != `{"submitoption":false}` {
				t.Errorf("ack = %s", res.Content)
			}
		})
	}
}

func TestSendBusy(t *testing.T) {
	m := &scriptedModel{}
	a, s := newTestAssistant(t, m, &fakePoster{})
	s.Busy = true

	if err := a.Send(context.Background(), s, "hello"); !errors.Is(err, ErrBusy) {
		t.Errorf("error = %v, want ErrBusy", err)
	}
	if len(m.requests) != 0 || len(s.Turns) != 1 {
		t.Error("busy session should not change")
	}
}

func TestSendEmpty(t *testing.T) {
	a, s := newTestAssistant(t, &scriptedModel{}, &fakePoster{})
	if err := a.Send(context.Background(), s, "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("error = %v, want ErrEmptyMessage", err)
	}
}

func TestSendFailuresBecomeApology(t *testing.T) {
	tests := []struct {
		name string
		m    *scriptedModel
	}{
		{"model error", &scriptedModel{errs: []error{errors.New("quota exceeded")}}},
		{"empty reply", &scriptedModel{replies: []*llm.Reply{{Text: "  "}}}},
		{"unknown function", &scriptedModel{replies: []*llm.Reply{toolReply("deletecomments", `{}`)}}},
		{"malformed arguments", &scriptedModel{replies: []*llm.Reply{toolReply("generatecomments", `{"comments":42}`)}}},
		{"second round trip error", &scriptedModel{
			replies: []*llm.Reply{toolReply("generatecomments", `{"comments":"Nice"}`)},
			errs:    []error{nil, errors.New("timeout")},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, s := newTestAssistant(t, tt.m, &fakePoster{})
			if err := a.Send(context.Background(), s, "hello"); err != nil {
				t.Fatalf("Send: %v", err)
			}
			if lastTurn(s).Text != ErrorMessage {
				t.Errorf("last turn = %q, want apology", lastTurn(s).Text)
			}
			if s.Busy {
				t.Error("session should be usable after a failure")
			}
		})
	}
}
