package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"
)

type weatherArgs struct {
	City string `json:"city" jsonschema:"description=City name"`
	Days int    `json:"days,omitempty"`
}

func TestSchemaFor(t *testing.T) {
	s := SchemaFor[weatherArgs]()
	if s.Version != "" {
		t.Errorf("schema version = %q, want empty", s.Version)
	}
	if s.Properties == nil {
		t.Fatal("schema has no properties")
	}
	if _, ok := s.Properties.Get("city"); !ok {
		t.Error("schema should declare city")
	}

	m, err := schemaMap(s)
	if err != nil {
		t.Fatalf("schemaMap: %v", err)
	}
	if _, ok := m["additionalProperties"]; ok {
		t.Error("schemaMap should drop additionalProperties")
	}
	req, ok := m["required"].([]string)
	if !ok || len(req) != 1 || req[0] != "city" {
		t.Errorf("required = %#v, want [city]", m["required"])
	}
}

func TestNewUnknownProvider(t *testing.T) {
	if _, err := New(context.Background(), Config{Provider: "llama-on-a-toaster"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNewDefaultsToOpenAI(t *testing.T) {
	m, err := New(context.Background(), Config{BaseURL: "http://localhost:1/v1", Model: "m"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := m.(*OpenAI); !ok {
		t.Errorf("default provider = %T, want *OpenAI", m)
	}
}

// fakeOpenAI serves /v1/chat/completions with the given assistant message and
// records the last request body.
func fakeOpenAI(t *testing.T, message string) (*OpenAI, *map[string]any) {
	t.Helper()
	var last map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/chat/completions":
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &last)
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","model":"m","choices":[{"index":0,"finish_reason":"stop","message":`+message+`}]}`)
		case "/v1/models":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"object":"list","data":[{"id":"m","object":"model"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return NewOpenAI(srv.URL+"/v1", "test-key", "m"), &last
}

func TestOpenAICompleteText(t *testing.T) {
	c, last := fakeOpenAI(t, `{"role":"assistant","content":"Hi there"}`)

	reply, err := c.Complete(context.Background(), ChatRequest{
		System:   "be nice",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if reply.Text != "Hi there" || reply.ToolCall != nil {
		t.Errorf("reply = %+v", reply)
	}

	msgs := (*last)["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("sent %d messages, want 2", len(msgs))
	}
	if role := msgs[0].(map[string]any)["role"]; role != "system" {
		t.Errorf("first role = %v, want system", role)
	}
}

func TestOpenAICompleteToolCall(t *testing.T) {
	c, last := fakeOpenAI(t, `{"role":"assistant","content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":"weather","arguments":"{\"city\":\"Pune\"}"}}]}`)

	reply, err := c.Complete(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "weather?"}},
		Tools:    []ToolSpec{{Name: "weather", Description: "Look up weather", Parameters: SchemaFor[weatherArgs]()}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if reply.ToolCall == nil {
		t.Fatal("expected a tool call")
	}
	if reply.ToolCall.ID != "call_1" || reply.ToolCall.Name != "weather" {
		t.Errorf("tool call = %+v", reply.ToolCall)
	}
	var args weatherArgs
	if err := json.Unmarshal(reply.ToolCall.Arguments, &args); err != nil || args.City != "Pune" {
		t.Errorf("arguments = %s (%v)", reply.ToolCall.Arguments, err)
	}

	tools := (*last)["tools"].([]any)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	if fn["name"] != "weather" {
		t.Errorf("declared tool = %v", fn["name"])
	}
	if params, _ := json.Marshal(fn["parameters"]); !strings.Contains(string(params), `"city"`) {
		t.Errorf("parameters = %s", params)
	}
}

func TestOpenAIPing(t *testing.T) {
	c, _ := fakeOpenAI(t, `{"role":"assistant","content":""}`)
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestToOpenAIMessageToolRoundTrip(t *testing.T) {
	call := &ToolCall{ID: "call_1", Name: "weather", Arguments: json.RawMessage(`{"city":"Pune"}`)}

	asst := toOpenAIMessage(Message{Role: RoleAssistant, ToolCall: call})
	if len(asst.ToolCalls) != 1 || asst.ToolCalls[0].Function.Arguments != `{"city":"Pune"}` {
		t.Errorf("assistant message = %+v", asst)
	}

	res := toOpenAIMessage(Message{Role: RoleTool, Content: `{"ok":true}`, ToolCallID: "call_1", Name: "weather"})
	if res.Role != "tool" || res.ToolCallID != "call_1" {
		t.Errorf("tool message = %+v", res)
	}
}

func TestToLangchainMessage(t *testing.T) {
	call := &ToolCall{ID: "c", Name: "weather", Arguments: json.RawMessage(`{}`)}
	tests := []struct {
		name string
		msg  Message
		role llms.ChatMessageType
		n    int
	}{
		{"user", Message{Role: RoleUser, Content: "hi"}, llms.ChatMessageTypeHuman, 1},
		{"assistant text", Message{Role: RoleAssistant, Content: "hello"}, llms.ChatMessageTypeAI, 1},
		{"assistant call", Message{Role: RoleAssistant, ToolCall: call}, llms.ChatMessageTypeAI, 1},
		{"tool", Message{Role: RoleTool, Content: "{}", ToolCallID: "c", Name: "weather"}, llms.ChatMessageTypeTool, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toLangchainMessage(tt.msg)
			if got.Role != tt.role || len(got.Parts) != tt.n {
				t.Errorf("got role %v with %d parts, want %v with %d", got.Role, len(got.Parts), tt.role, tt.n)
			}
		})
	}
}

func TestToAnthropicMessages(t *testing.T) {
	call := &ToolCall{ID: "toolu_1", Name: "weather", Arguments: json.RawMessage(`{"city":"Pune"}`)}
	out := toAnthropicMessages([]Message{
		{Role: RoleUser, Content: "weather?"},
		{Role: RoleAssistant, Content: "checking", ToolCall: call},
		{Role: RoleTool, Content: `{"temp":31}`, ToolCallID: "toolu_1"},
	})
	if len(out) != 3 {
		t.Fatalf("got %d messages, want 3", len(out))
	}
	if out[0].Role != "user" || out[1].Role != "assistant" || out[2].Role != "user" {
		t.Errorf("roles = %s %s %s", out[0].Role, out[1].Role, out[2].Role)
	}
	if len(out[1].Content) != 2 || out[1].Content[1].OfToolUse == nil {
		t.Errorf("assistant content = %+v", out[1].Content)
	}
	if out[2].Content[0].OfToolResult == nil || out[2].Content[0].OfToolResult.ToolUseID != "toolu_1" {
		t.Errorf("tool result = %+v", out[2].Content)
	}
}

func TestToAnthropicToolsKeepsRequired(t *testing.T) {
	tools := toAnthropicTools([]ToolSpec{{Name: "weather", Description: "Look up weather", Parameters: SchemaFor[weatherArgs]()}})
	if len(tools) != 1 || tools[0].OfTool == nil {
		t.Fatalf("tools = %+v", tools)
	}
	data, err := json.Marshal(tools[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := string(data)
	for _, want := range []string{`"name":"weather"`, `"required":["city"]`, `"city":`} {
		if !strings.Contains(got, want) {
			t.Errorf("tool JSON missing %s: %s", want, got)
		}
	}
}
