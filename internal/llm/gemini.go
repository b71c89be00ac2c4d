package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

// Gemini wraps a Google AI model through langchaingo.
type Gemini struct {
	llm llms.Model
}

// NewGemini creates a Gemini client for the given model.
func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	opts := []googleai.Option{googleai.WithAPIKey(apiKey)}
	if modelName != "" {
		opts = append(opts, googleai.WithDefaultModel(modelName))
	}
	client, err := googleai.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{llm: client}, nil
}

// Ping issues a one-token generation to confirm the key and model work.
func (g *Gemini) Ping(ctx context.Context) error {
	if _, err := llms.GenerateFromSinglePrompt(ctx, g.llm, "ping", llms.WithMaxTokens(1)); err != nil {
		return fmt.Errorf("gemini ping: %w", err)
	}
	return nil
}

// Complete runs one generation with the declared tools.
func (g *Gemini) Complete(ctx context.Context, req ChatRequest) (*Reply, error) {
	var history []llms.MessageContent
	if req.System != "" {
		history = append(history, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	for _, m := range req.Messages {
		history = append(history, toLangchainMessage(m))
	}

	tools := make([]llms.Tool, 0, len(req.Tools))
	for _, t := range req.Tools {
		params, err := schemaMap(t.Parameters)
		if err != nil {
			return nil, fmt.Errorf("tool %s schema: %w", t.Name, err)
		}
		tools = append(tools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}

	opts := []llms.CallOption{llms.WithTemperature(float64(req.Temperature))}
	if len(tools) > 0 {
		opts = append(opts, llms.WithTools(tools))
	}
	resp, err := g.llm.GenerateContent(ctx, history, opts...)
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	choice := resp.Choices[0]
	slog.Debug("LLM response", "content", choice.Content, "tool_calls", len(choice.ToolCalls))

	reply := &Reply{Text: choice.Content}
	if len(choice.ToolCalls) > 0 && choice.ToolCalls[0].FunctionCall != nil {
		tc := choice.ToolCalls[0]
		reply.ToolCall = &ToolCall{
			ID:        tc.ID,
			Name:      tc.FunctionCall.Name,
			Arguments: json.RawMessage(tc.FunctionCall.Arguments),
		}
	}
	return reply, nil
}

func toLangchainMessage(m Message) llms.MessageContent {
	switch m.Role {
	case RoleAssistant:
		msg := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		if m.Content != "" {
			msg.Parts = append(msg.Parts, llms.TextContent{Text: m.Content})
		}
		if m.ToolCall != nil {
			msg.Parts = append(msg.Parts, llms.ToolCall{
				ID:   m.ToolCall.ID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      m.ToolCall.Name,
					Arguments: string(m.ToolCall.Arguments),
				},
			})
		}
		return msg
	case RoleTool:
		return llms.MessageContent{
			Role: llms.ChatMessageTypeTool,
			Parts: []llms.ContentPart{llms.ToolCallResponse{
				ToolCallID: m.ToolCallID,
				Name:       m.Name,
				Content:    m.Content,
			}},
		}
	default:
		return llms.TextParts(llms.ChatMessageTypeHuman, m.Content)
	}
}
