package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI wraps an OpenAI-compatible API client.
type OpenAI struct {
	api   *openai.Client
	model string
}

// NewOpenAI creates a client for an OpenAI-compatible endpoint.
func NewOpenAI(baseURL, apiKey, modelName string) *OpenAI {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAI{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Ping checks that the endpoint answers and knows the configured model.
func (c *OpenAI) Ping(ctx context.Context) error {
	models, err := c.api.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	for _, m := range models.Models {
		if m.ID == c.model {
			return nil
		}
	}
	slog.Warn("configured model not listed by endpoint", "model", c.model)
	return nil
}

// Complete runs one chat completion with the declared tools.
func (c *OpenAI) Complete(ctx context.Context, req ChatRequest) (*Reply, error) {
	var chatMsgs []openai.ChatCompletionMessage
	if req.System != "" {
		chatMsgs = append(chatMsgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		chatMsgs = append(chatMsgs, toOpenAIMessage(m))
	}

	var tools []openai.Tool
	for _, t := range req.Tools {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    chatMsgs,
		Tools:       tools,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	msg := resp.Choices[0].Message
	slog.Debug("LLM response", "content", msg.Content, "tool_calls", len(msg.ToolCalls))

	reply := &Reply{Text: msg.Content}
	if len(msg.ToolCalls) > 0 {
		tc := msg.ToolCalls[0]
		reply.ToolCall = &ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		}
	}
	return reply, nil
}

func toOpenAIMessage(m Message) openai.ChatCompletionMessage {
	switch m.Role {
	case RoleAssistant:
		out := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
		if m.ToolCall != nil {
			out.ToolCalls = []openai.ToolCall{{
				ID:   m.ToolCall.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      m.ToolCall.Name,
					Arguments: string(m.ToolCall.Arguments),
				},
			}}
		}
		return out
	case RoleTool:
		return openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
	default:
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content}
	}
}
