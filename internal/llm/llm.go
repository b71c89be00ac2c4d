// Package llm adapts chat-completion providers to the function-calling
// exchange the drafting assistant needs.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
)

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model's request to run a declared function.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Message is one entry of the replayed conversation. An assistant message may
// carry the tool call it made; a tool message carries the call's result.
type Message struct {
	Role       Role
	Content    string
	ToolCall   *ToolCall
	ToolCallID string
	Name       string
}

// ToolSpec declares a function the model may call.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

// ChatRequest is a single model round trip.
type ChatRequest struct {
	System      string
	Messages    []Message
	Tools       []ToolSpec
	Temperature float32
}

// Reply is the model's answer: a function call, plain text, or both.
type Reply struct {
	Text     string
	ToolCall *ToolCall
}

// ChatModel is a conversational model that supports function calling.
type ChatModel interface {
	Complete(ctx context.Context, req ChatRequest) (*Reply, error)
	Ping(ctx context.Context) error
}

// Provider names accepted by New.
const (
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// Config selects and configures a provider.
type Config struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
}

// New creates the ChatModel for cfg.Provider.
func New(ctx context.Context, cfg Config) (ChatModel, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		return NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	case ProviderGemini:
		return NewGemini(ctx, cfg.APIKey, cfg.Model)
	case ProviderAnthropic:
		return NewAnthropic(cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

// SchemaFor reflects the JSON schema of a function's argument struct.
func SchemaFor[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	schema.Version = ""
	schema.ID = ""
	return schema
}

// schemaMap converts a schema to the plain map form some providers require.
func schemaMap(s *jsonschema.Schema) (map[string]any, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	delete(m, "additionalProperties")
	if req, ok := m["required"].([]any); ok {
		names := make([]string, 0, len(req))
		for _, r := range req {
			if name, ok := r.(string); ok {
				names = append(names, name)
			}
		}
		m["required"] = names
	}
	return m, nil
}
