// Package executor runs tasks to a terminal state. A root task is claimed
// from the queue, its execution chat is driven as a dialog with the assigned
// agent, and tool calls from the model either steer the task lifecycle or
// fan out into ability code.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/starfleetai/bridge/pkg/abilities"
	"github.com/starfleetai/bridge/pkg/chat"
	"github.com/starfleetai/bridge/pkg/codeblocks"
	"github.com/starfleetai/bridge/pkg/events"
	"github.com/starfleetai/bridge/pkg/models"
	"github.com/starfleetai/bridge/pkg/repo"
)

// Executor errors.
var (
	ErrNotAnExecutionChat = errors.New("task chat is not an execution chat")
	ErrUnexpectedRole     = errors.New("unexpected message role in execution chat")
)

// CodeRunner executes code in the sandbox. Satisfied by *sandbox.Runner.
type CodeRunner interface {
	RunCommand(ctx context.Context, cmd, workdir string) (string, error)
	RunPythonCode(ctx context.Context, code, workdir string) (string, error)
}

// WebBrowser runs a browsing session toward an objective and returns what it
// found. Satisfied by *browser.Runner.
type WebBrowser interface {
	Browse(ctx context.Context, objective, workdir string, model *models.Model, apiKey string) (string, error)
}

// Executor drives task execution for all tenants.
type Executor struct {
	store       *repo.Store
	emitter     events.Emitter
	engine      *chat.Engine
	abilities   *abilities.Service
	runner      CodeRunner
	browser     WebBrowser
	workdirRoot string
}

// New builds an executor.
func New(
	store *repo.Store,
	emitter events.Emitter,
	engine *chat.Engine,
	abilityService *abilities.Service,
	runner CodeRunner,
	webBrowser WebBrowser,
	workdirRoot string,
) *Executor {
	return &Executor{
		store:       store,
		emitter:     emitter,
		engine:      engine,
		abilities:   abilityService,
		runner:      runner,
		browser:     webBrowser,
		workdirRoot: workdirRoot,
	}
}

// ExecuteRoot runs an already claimed root task to a terminal state. A task
// with sub-tasks is executed as a tree walk, a leaf root directly.
func (x *Executor) ExecuteRoot(ctx context.Context, task *models.Task) error {
	slog.Info("Executing root task", "task_id", task.ID, "title", task.Title)

	children, err := x.store.Tasks.ListAllChildren(ctx, task.TenantID, task.ChildrenAncestry())
	if err != nil {
		x.failTask(ctx, task)
		return err
	}

	if len(children) > 0 {
		if err := x.executeChildrenTaskTree(ctx, task); err != nil {
			x.failTask(ctx, task)
			return err
		}
		return nil
	}

	status, err := x.executeTask(ctx, task)
	if err != nil {
		x.failTask(ctx, task)
		return err
	}
	x.transitionTask(ctx, task, status)
	return nil
}

// executeChildrenTaskTree walks the root's subtree, executing one candidate
// at a time, until no candidate remains or a child stops the walk.
func (x *Executor) executeChildrenTaskTree(ctx context.Context, root *models.Task) error {
	for {
		child, err := x.getChildTaskForExecution(ctx, root)
		if err != nil {
			return err
		}
		if child == nil {
			return nil
		}
		x.emitter.Emit(ctx, child.TenantID, events.KindTaskUpdated, *child)

		status, err := x.executeTask(ctx, child)
		if err != nil {
			x.failTask(ctx, child)
			x.failParentTasks(ctx, child)
			return err
		}

		switch status {
		case models.TaskStatusDone:
			x.transitionTask(ctx, child, models.TaskStatusDone)
			if err := x.completeFinishedParents(ctx, child); err != nil {
				return err
			}
		case models.TaskStatusWaitingForUser:
			x.transitionTask(ctx, child, models.TaskStatusWaitingForUser)
			x.transitionTask(ctx, root, models.TaskStatusWaitingForUser)
			return nil
		case models.TaskStatusFailed:
			x.failTask(ctx, child)
			x.failParentTasks(ctx, child)
			return nil
		}
	}
}

// getChildTaskForExecution picks the next executable descendant of the root,
// moves it to InProgress and returns it. Nil when the subtree has nothing
// left to run.
func (x *Executor) getChildTaskForExecution(ctx context.Context, root *models.Task) (*models.Task, error) {
	children, err := x.store.Tasks.ListAllChildren(ctx, root.TenantID, root.ChildrenAncestry())
	if err != nil {
		return nil, err
	}
	if len(children) == 0 {
		return nil, nil
	}

	tree, err := buildTaskTree(root, children)
	if err != nil {
		return nil, err
	}
	candidate := tree.findExecutionCandidate()
	if candidate == nil {
		return nil, nil
	}

	started, err := x.store.Tasks.UpdateStatus(ctx, root.TenantID, candidate.ID, models.TaskStatusInProgress)
	if err != nil {
		return nil, err
	}
	return &started, nil
}

// executeTask drives the execution chat as a dialog until the model settles
// the task with one of the lifecycle tools, or the steps limit runs out.
func (x *Executor) executeTask(ctx context.Context, task *models.Task) (models.TaskStatus, error) {
	slog.Info("Executing task", "task_id", task.ID, "title", task.Title)

	execChat, err := x.getTaskExecutionChat(ctx, task)
	if err != nil {
		return "", err
	}

	settings, err := x.store.Settings.Get(ctx, task.TenantID)
	if err != nil {
		return "", err
	}
	agent, err := x.store.Agents.Get(ctx, task.TenantID, task.AgentID)
	if err != nil {
		return "", fmt.Errorf("loading task agent: %w", err)
	}
	model, err := x.store.Models.GetByFullName(ctx, task.TenantID, settings.DefaultModel)
	if err != nil {
		return "", fmt.Errorf("loading model %q: %w", settings.DefaultModel, err)
	}
	apiKey, ok := settings.APIKeys[model.Provider]
	if !ok {
		return "", fmt.Errorf("no api key configured for provider %s", model.Provider)
	}

	stepsLimit := settings.Agents.ExecutionStepsLimit
	if agent.ExecutionStepsLimit != nil {
		stepsLimit = *agent.ExecutionStepsLimit
	}

	for {
		steps, err := x.store.Messages.CountExecutionSteps(ctx, task.TenantID, execChat.ID)
		if err != nil {
			return "", err
		}
		if steps >= stepsLimit {
			slog.Info("Execution steps limit reached, failing task",
				"task_id", task.ID, "steps", steps, "limit", stepsLimit)
			return models.TaskStatusFailed, nil
		}

		last, err := x.store.Messages.GetLast(ctx, task.TenantID, execChat.ID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return "", err
		}
		hasLast := err == nil

		switch {
		case !hasLast,
			last.Role == models.RoleUser,
			last.Role == models.RoleTool,
			last.Role == models.RoleCodeInterpreter:
			if err := x.sendToAgent(ctx, task, &execChat, &agent, &model, apiKey); err != nil {
				return "", err
			}

		case last.Role == models.RoleAssistant:
			if len(last.ToolCallList()) > 0 {
				status, err := x.callTools(ctx, task, &execChat, &last, &model, apiKey)
				if err != nil {
					x.failMessage(ctx, &last)
					return "", err
				}
				x.completeMessage(ctx, &last)
				if status != "" {
					return status, nil
				}
				continue
			}

			switch {
			case last.IsSelfReflection:
				if err := x.sendToAgent(ctx, task, &execChat, &agent, &model, apiKey); err != nil {
					return "", err
				}
			case len(codeblocks.Parse(last.ContentOrEmpty())) > 0:
				if err := x.runCodeInterpreter(ctx, task, &execChat); err != nil {
					return "", err
				}
			default:
				if err := x.selfReflect(ctx, task, &execChat, &agent, &model, apiKey); err != nil {
					return "", err
				}
			}

		default:
			return "", fmt.Errorf("%w: message %s is %s", ErrUnexpectedRole, last.ID, last.Role)
		}
	}
}

// getTaskExecutionChat returns the task's execution chat, creating and
// linking one on first use.
func (x *Executor) getTaskExecutionChat(ctx context.Context, task *models.Task) (models.Chat, error) {
	if task.ExecutionChatID != nil {
		c, err := x.store.Chats.Get(ctx, task.TenantID, *task.ExecutionChatID)
		if err != nil {
			return models.Chat{}, err
		}
		if c.Kind != models.ChatKindExecution {
			return models.Chat{}, fmt.Errorf("%w: chat %s is %s", ErrNotAnExecutionChat, c.ID, c.Kind)
		}
		return c, nil
	}

	c := models.Chat{
		TenantID: task.TenantID,
		Title:    task.Title,
		Kind:     models.ChatKindExecution,
	}
	if err := x.store.Chats.Create(ctx, &c); err != nil {
		return models.Chat{}, err
	}
	x.emitter.Emit(ctx, c.TenantID, events.KindChatCreated, c)

	if err := x.store.Chats.AddAgent(ctx, task.AgentID, c.ID); err != nil {
		return models.Chat{}, err
	}

	task.ExecutionChatID = &c.ID
	if err := x.store.Tasks.Update(ctx, task); err != nil {
		return models.Chat{}, err
	}
	x.emitter.Emit(ctx, task.TenantID, events.KindTaskUpdated, *task)

	return c, nil
}

// completeFinishedParents walks up the ancestry, completing each parent
// whose children are all Done.
func (x *Executor) completeFinishedParents(ctx context.Context, task *models.Task) error {
	current := *task
	for {
		done, err := x.store.Tasks.IsAllSiblingsDone(ctx, &current)
		if err != nil {
			return err
		}
		if !done {
			return nil
		}
		parentID, err := current.ParentID()
		if err != nil {
			return err
		}
		if parentID == uuid.Nil {
			return nil
		}
		parent, err := x.store.Tasks.Get(ctx, task.TenantID, parentID)
		if err != nil {
			return err
		}
		x.transitionTask(ctx, &parent, models.TaskStatusDone)
		current = parent
	}
}

// failParentTasks fails every ancestor of the task.
func (x *Executor) failParentTasks(ctx context.Context, task *models.Task) {
	ids, err := task.ParentIDs()
	if err != nil {
		slog.Error("Failed to resolve task ancestors", "task_id", task.ID, "error", err)
		return
	}
	for _, id := range ids {
		updated, err := x.store.Tasks.UpdateStatus(ctx, task.TenantID, id, models.TaskStatusFailed)
		if err != nil {
			slog.Error("Failed to fail ancestor task", "task_id", id, "error", err)
			continue
		}
		x.emitter.Emit(ctx, updated.TenantID, events.KindTaskUpdated, updated)
	}
}

// transitionTask moves a task to a status. Best effort: execution errors
// take precedence over bookkeeping errors.
func (x *Executor) transitionTask(ctx context.Context, task *models.Task, status models.TaskStatus) {
	updated, err := x.store.Tasks.UpdateStatus(ctx, task.TenantID, task.ID, status)
	if err != nil {
		slog.Error("Failed to transition task", "task_id", task.ID, "status", status, "error", err)
		task.Status = status
	} else {
		*task = updated
	}
	x.emitter.Emit(ctx, task.TenantID, events.KindTaskUpdated, *task)
}

func (x *Executor) failTask(ctx context.Context, task *models.Task) {
	x.transitionTask(ctx, task, models.TaskStatusFailed)
}

func (x *Executor) completeMessage(ctx context.Context, message *models.Message) {
	x.transitionMessage(ctx, message, models.MessageStatusCompleted)
}

func (x *Executor) failMessage(ctx context.Context, message *models.Message) {
	x.transitionMessage(ctx, message, models.MessageStatusFailed)
}

func (x *Executor) transitionMessage(ctx context.Context, message *models.Message, status models.MessageStatus) {
	updated, err := x.store.Messages.UpdateStatus(ctx, message.TenantID, message.ID, status)
	if err != nil {
		slog.Error("Failed to transition message", "message_id", message.ID, "status", status, "error", err)
		message.Status = status
	} else {
		*message = updated
	}
	x.emitter.Emit(ctx, message.TenantID, events.KindMessageUpdated, *message)
}
