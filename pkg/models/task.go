// Package models contains the domain types shared across the orchestration
// core: tasks, chats, messages, agents, abilities, models, task results and
// per-tenant settings.
package models

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

// Task status values. A task advances monotonically:
// Draft → ToDo → InProgress → {Done, Failed, WaitingForUser}.
// WaitingForUser and Failed tasks may be re-planned and re-executed.
const (
	TaskStatusDraft          TaskStatus = "Draft"
	TaskStatusToDo           TaskStatus = "ToDo"
	TaskStatusInProgress     TaskStatus = "InProgress"
	TaskStatusWaitingForUser TaskStatus = "WaitingForUser"
	TaskStatusDone           TaskStatus = "Done"
	TaskStatusFailed         TaskStatus = "Failed"
)

// Task is a unit of work assigned to an agent. Tasks form a forest: the
// ancestry column encodes the root-to-parent path as slash-joined ids, nil
// for root tasks. No parent pointers are stored besides the ancestry string.
type Task struct {
	ID              uuid.UUID  `json:"id"`
	TenantID        uuid.UUID  `json:"tenant_id"`
	UserID          uuid.UUID  `json:"user_id"`
	AgentID         uuid.UUID  `json:"agent_id"`
	OriginChatID    *uuid.UUID `json:"origin_chat_id,omitempty"`
	ControlChatID   *uuid.UUID `json:"control_chat_id,omitempty"`
	ExecutionChatID *uuid.UUID `json:"execution_chat_id,omitempty"`
	Title           string     `json:"title"`
	Summary         string     `json:"summary"`
	Status          TaskStatus `json:"status"`
	Ancestry        *string    `json:"ancestry,omitempty"`
	AncestryLevel   int        `json:"ancestry_level"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ParentID returns the id of the direct parent, or uuid.Nil for root tasks.
func (t *Task) ParentID() (uuid.UUID, error) {
	if t.Ancestry == nil {
		return uuid.Nil, nil
	}
	segments := strings.Split(*t.Ancestry, "/")
	last := segments[len(segments)-1]
	id, err := uuid.Parse(last)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parsing parent id from ancestry segment %q: %w", last, err)
	}
	return id, nil
}

// ParentIDs returns all ancestor ids, root first. Nil for root tasks.
func (t *Task) ParentIDs() ([]uuid.UUID, error) {
	if t.Ancestry == nil {
		return nil, nil
	}
	segments := strings.Split(*t.Ancestry, "/")
	ids := make([]uuid.UUID, 0, len(segments))
	for _, segment := range segments {
		id, err := uuid.Parse(segment)
		if err != nil {
			return nil, fmt.Errorf("parsing ancestry segment %q: %w", segment, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ChildrenAncestry returns the ancestry string the task's children carry.
func (t *Task) ChildrenAncestry() string {
	if t.Ancestry == nil {
		return t.ID.String()
	}
	return *t.Ancestry + "/" + t.ID.String()
}

// Workdir returns the task's sandbox working directory under root. The
// directory is shared across the whole tree: it is derived from the top
// ancestor's id.
func (t *Task) Workdir(root string) string {
	return filepath.Join(root, "wd-task-"+t.workdirID())
}

func (t *Task) workdirID() string {
	if t.Ancestry == nil {
		return t.ID.String()
	}
	return strings.SplitN(*t.Ancestry, "/", 2)[0]
}

// AncestryLevelFor computes the level invariant: the number of segments in
// ancestry, zero when nil.
func AncestryLevelFor(ancestry *string) int {
	if ancestry == nil {
		return 0
	}
	return strings.Count(*ancestry, "/") + 1
}

// TaskResultKind distinguishes task result payloads.
type TaskResultKind string

// Task result kinds.
const (
	TaskResultKindText TaskResultKind = "Text"
	TaskResultKindURL  TaskResultKind = "Url"
)

// TaskResult is an artifact produced by an agent while executing a task.
type TaskResult struct {
	ID        uuid.UUID      `json:"id"`
	TenantID  uuid.UUID      `json:"tenant_id"`
	AgentID   uuid.UUID      `json:"agent_id"`
	TaskID    uuid.UUID      `json:"task_id"`
	Kind      TaskResultKind `json:"kind"`
	Data      string         `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
