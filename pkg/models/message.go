package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageRole is the author role of a message.
type MessageRole string

// Message roles.
const (
	RoleSystem          MessageRole = "System"
	RoleUser            MessageRole = "User"
	RoleAssistant       MessageRole = "Assistant"
	RoleTool            MessageRole = "Tool"
	RoleCodeInterpreter MessageRole = "CodeInterpreter"
)

// MessageStatus is the lifecycle state of a message.
type MessageStatus string

// Message status values. Messages are inserted Writing, mutated in place by
// streaming updates, and closed as Completed, WaitingForToolCall or Failed.
const (
	MessageStatusWriting            MessageStatus = "Writing"
	MessageStatusWaitingForToolCall MessageStatus = "WaitingForToolCall"
	MessageStatusCompleted          MessageStatus = "Completed"
	MessageStatusFailed             MessageStatus = "Failed"
	MessageStatusToolCallDenied     MessageStatus = "ToolCallDenied"
)

// ToolCall is a structured request from the LLM to invoke a named function.
// Arguments is a JSON-encoded string, accreted fragment by fragment during
// streaming.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall is the function part of a tool call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is a single chat message. Only Assistant messages carry tool
// calls; Tool messages carry the tool_call_id they answer.
type Message struct {
	ID                   uuid.UUID       `json:"id"`
	TenantID             uuid.UUID       `json:"tenant_id"`
	ChatID               uuid.UUID       `json:"chat_id"`
	AgentID              *uuid.UUID      `json:"agent_id,omitempty"`
	UserID               *uuid.UUID      `json:"user_id,omitempty"`
	Status               MessageStatus   `json:"status"`
	Role                 MessageRole     `json:"role"`
	Content              *string         `json:"content,omitempty"`
	PromptTokens         *int            `json:"prompt_tokens,omitempty"`
	CompletionTokens     *int            `json:"completion_tokens,omitempty"`
	ToolCalls            json.RawMessage `json:"tool_calls,omitempty"`
	ToolCallID           *string         `json:"tool_call_id,omitempty"`
	IsSelfReflection     bool            `json:"is_self_reflection"`
	IsInternalToolOutput bool            `json:"is_internal_tool_output"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// ToolCallList decodes the persisted tool calls. Malformed or absent JSON
// yields an empty list: streaming rebuilds in-memory state from this column
// between chunks, so it must tolerate partial writes.
func (m *Message) ToolCallList() []ToolCall {
	if len(m.ToolCalls) == 0 {
		return nil
	}
	var calls []ToolCall
	if err := json.Unmarshal(m.ToolCalls, &calls); err != nil {
		return nil
	}
	return calls
}

// SetToolCalls encodes calls into the persisted column. An empty list
// clears it.
func (m *Message) SetToolCalls(calls []ToolCall) error {
	if len(calls) == 0 {
		m.ToolCalls = nil
		return nil
	}
	raw, err := json.Marshal(calls)
	if err != nil {
		return err
	}
	m.ToolCalls = raw
	return nil
}

// ContentOrEmpty returns the content, or "" when nil.
func (m *Message) ContentOrEmpty() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}
