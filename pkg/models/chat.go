package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatKind distinguishes what a chat is for.
type ChatKind string

// Chat kinds. Execution chats are created lazily by the task executor, one
// per task; Control chats sit between the orchestrator and the user; Direct
// chats are plain user↔agent conversations.
const (
	ChatKindDirect    ChatKind = "Direct"
	ChatKindControl   ChatKind = "Control"
	ChatKindExecution ChatKind = "Execution"
)

// Chat is an ordered sequence of messages.
type Chat struct {
	ID        uuid.UUID  `json:"id"`
	TenantID  uuid.UUID  `json:"tenant_id"`
	ModelID   *uuid.UUID `json:"model_id,omitempty"`
	Title     string     `json:"title"`
	IsPinned  bool       `json:"is_pinned"`
	Kind      ChatKind   `json:"kind"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
