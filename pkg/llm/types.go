// Package llm is a thin OpenAI-compatible chat completions client. It speaks
// the raw HTTP+SSE wire format so the streaming engine can reassemble chunks
// that arrive split across network reads.
package llm

import (
	"encoding/json"
	"fmt"

	"github.com/starfleetai/bridge/pkg/models"
)

// WireMessage is a chat message in the provider's wire format.
type WireMessage struct {
	Role       string          `json:"role"`
	Content    *string         `json:"content,omitempty"`
	Name       *string         `json:"name,omitempty"`
	ToolCalls  json.RawMessage `json:"tool_calls,omitempty"`
	ToolCallID *string         `json:"tool_call_id,omitempty"`
}

// Tool is a function definition offered to the model.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction describes one callable function.
type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// FunctionTool wraps a function definition in the standard envelope.
func FunctionTool(name, description string, parameters json.RawMessage) Tool {
	return Tool{
		Type: "function",
		Function: ToolFunction{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}

// CompletionRequest is the chat/completions request body.
type CompletionRequest struct {
	Model    string        `json:"model"`
	Messages []WireMessage `json:"messages"`
	Tools    []Tool        `json:"tools,omitempty"`
	Stream   bool          `json:"stream"`
}

// Usage reports token consumption for a non-streaming completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Choice is one completion alternative.
type Choice struct {
	Index        int         `json:"index"`
	Message      WireMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// Completion is the chat/completions response body.
type Completion struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// ChunkDelta is the incremental part of a streaming frame. Content and tool
// call fragments accrete across frames.
type ChunkDelta struct {
	Role      *string         `json:"role,omitempty"`
	Content   *string         `json:"content,omitempty"`
	ToolCalls []ChunkToolCall `json:"tool_calls,omitempty"`
}

// ChunkToolCall is a tool call fragment inside a streaming delta. Only the
// opening fragment carries an id and name; later fragments append argument
// text.
type ChunkToolCall struct {
	Index    int            `json:"index"`
	ID       *string        `json:"id,omitempty"`
	Type     *string        `json:"type,omitempty"`
	Function *ChunkFunction `json:"function,omitempty"`
}

// ChunkFunction is the function fragment of a streaming tool call.
type ChunkFunction struct {
	Name      *string `json:"name,omitempty"`
	Arguments *string `json:"arguments,omitempty"`
}

// ChunkChoice is one streaming alternative.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason,omitempty"`
}

// CompletionChunk is one parsed SSE frame.
type CompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// WireMessageFrom converts a stored message to the wire format. Roles map to
// the provider's lowercase names; code interpreter output is presented as a
// named user message.
func WireMessageFrom(m *models.Message) (WireMessage, error) {
	switch m.Role {
	case models.RoleSystem:
		if m.Content == nil {
			return WireMessage{}, fmt.Errorf("system message %s has no content", m.ID)
		}
		return WireMessage{Role: "system", Content: m.Content}, nil
	case models.RoleUser:
		if m.Content == nil {
			return WireMessage{}, fmt.Errorf("user message %s has no content", m.ID)
		}
		return WireMessage{Role: "user", Content: m.Content}, nil
	case models.RoleCodeInterpreter:
		if m.Content == nil {
			return WireMessage{}, fmt.Errorf("code interpreter message %s has no content", m.ID)
		}
		name := "Code-Interpreter"
		return WireMessage{Role: "user", Content: m.Content, Name: &name}, nil
	case models.RoleAssistant:
		return WireMessage{Role: "assistant", Content: m.Content, ToolCalls: m.ToolCalls}, nil
	case models.RoleTool:
		if m.Content == nil {
			return WireMessage{}, fmt.Errorf("tool message %s has no content", m.ID)
		}
		if m.ToolCallID == nil {
			return WireMessage{}, fmt.Errorf("tool message %s has no tool call id", m.ID)
		}
		return WireMessage{Role: "tool", Content: m.Content, ToolCallID: m.ToolCallID}, nil
	default:
		return WireMessage{}, fmt.Errorf("unknown message role %q", m.Role)
	}
}

// ToolCallList decodes the tool calls carried by a wire message.
func (m *WireMessage) ToolCallList() []models.ToolCall {
	if len(m.ToolCalls) == 0 {
		return nil
	}
	var calls []models.ToolCall
	if err := json.Unmarshal(m.ToolCalls, &calls); err != nil {
		return nil
	}
	return calls
}
