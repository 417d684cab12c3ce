package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/starfleetai/bridge/pkg/abilities"
	"github.com/starfleetai/bridge/pkg/codeblocks"
	"github.com/starfleetai/bridge/pkg/events"
	"github.com/starfleetai/bridge/pkg/models"
	"github.com/starfleetai/bridge/pkg/repo"
)

// Internal lifecycle tools the executor handles itself.
const (
	toolDone              = "sfai_done"
	toolFail              = "sfai_fail"
	toolWaitForUser       = "sfai_wait_for_user"
	toolCodeInterpreter   = "sfai_code_interpreter"
	toolProvideTextResult = "sfai_provide_text_result"
	toolWebBrowsing       = "sfai_web_browsing"
)

// provideTextResultArgs are the arguments of sfai_provide_text_result.
type provideTextResultArgs struct {
	Text   string `json:"text"`
	IsDone bool   `json:"is_done"`
}

func parseProvideTextResultArgs(arguments string) (provideTextResultArgs, error) {
	var args provideTextResultArgs
	if arguments == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return args, fmt.Errorf("parsing %s arguments: %w", toolProvideTextResult, err)
	}
	return args, nil
}

// callTools dispatches the message's tool calls. Lifecycle tools settle the
// task and return its next status; everything else is validated against the
// ability's parameters schema and handed to the ability service.
func (x *Executor) callTools(
	ctx context.Context,
	task *models.Task,
	execChat *models.Chat,
	message *models.Message,
	model *models.Model,
	apiKey string,
) (models.TaskStatus, error) {
	var status models.TaskStatus
	var external []models.ToolCall

	for _, toolCall := range message.ToolCallList() {
		switch toolCall.Function.Name {
		case toolDone:
			if err := x.createInternalToolOutput(ctx, execChat, toolCall.ID, "Task has been marked as done"); err != nil {
				return "", err
			}
			if err := x.provideTextResult(ctx, task, execChat); err != nil {
				return "", err
			}
			status = models.TaskStatusDone
		case toolFail:
			if err := x.createInternalToolOutput(ctx, execChat, toolCall.ID, "Task has been marked as failed"); err != nil {
				return "", err
			}
			status = models.TaskStatusFailed
		case toolWaitForUser:
			if err := x.createInternalToolOutput(ctx, execChat, toolCall.ID, "Waiting for user input"); err != nil {
				return "", err
			}
			status = models.TaskStatusWaitingForUser
		case toolCodeInterpreter:
			if err := x.runCodeInterpreter(ctx, task, execChat); err != nil {
				return "", err
			}
		case toolProvideTextResult:
			args, err := parseProvideTextResultArgs(toolCall.Function.Arguments)
			if err != nil {
				return "", err
			}
			if err := x.recordTextResult(ctx, task, args.Text); err != nil {
				return "", err
			}
			if err := x.createInternalToolOutput(ctx, execChat, toolCall.ID, "Task result has been recorded"); err != nil {
				return "", err
			}
			if args.IsDone {
				status = models.TaskStatusDone
			}
		case toolWebBrowsing:
			output, err := x.browseWeb(ctx, task, model, apiKey, toolCall.Function.Arguments)
			if err != nil {
				return "", err
			}
			if err := x.createInternalToolOutput(ctx, execChat, toolCall.ID, output); err != nil {
				return "", err
			}
		default:
			if strings.HasPrefix(toolCall.Function.Name, abilities.InternalToolPrefix) {
				return "", fmt.Errorf("unknown internal tool %q", toolCall.Function.Name)
			}
			external = append(external, toolCall)
		}
	}

	if len(external) > 0 {
		if err := x.validateToolCalls(ctx, message, external); err != nil {
			return "", err
		}
		if err := x.abilities.ExecuteForMessage(ctx, message); err != nil {
			return "", err
		}
	}

	return status, nil
}

// runCodeInterpreter interprets the code blocks of the last substantive
// assistant message and persists the outputs as a CodeInterpreter message.
func (x *Executor) runCodeInterpreter(ctx context.Context, task *models.Task, execChat *models.Chat) error {
	source, err := x.store.Messages.GetLastNonSelfReflection(ctx, task.TenantID, execChat.ID)
	if err != nil {
		return err
	}

	output, err := x.interpretCode(ctx, task, &source)
	if err != nil {
		return err
	}

	result := models.Message{
		TenantID: task.TenantID,
		ChatID:   execChat.ID,
		AgentID:  source.AgentID,
		Status:   models.MessageStatusCompleted,
		Role:     models.RoleCodeInterpreter,
		Content:  &output,
	}
	if err := x.store.Messages.Create(ctx, &result); err != nil {
		return err
	}
	x.emitter.Emit(ctx, result.TenantID, events.KindMessageCreated, result)
	return nil
}

// interpretCode acts on the message's code blocks: Execute blocks run in the
// task workdir, Save blocks are written into it. Each block yields one
// fenced output section.
func (x *Executor) interpretCode(ctx context.Context, task *models.Task, message *models.Message) (string, error) {
	blocks := codeblocks.Parse(message.ContentOrEmpty())

	workdir := task.Workdir(x.workdirRoot)
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return "", fmt.Errorf("creating task workdir: %w", err)
	}

	sections := make([]string, 0, len(blocks))
	for _, block := range blocks {
		switch block.Action {
		case codeblocks.ActionSave:
			path := filepath.Join(workdir, block.Filename)
			if err := os.WriteFile(path, []byte(block.Code), 0o644); err != nil {
				sections = append(sections, fmt.Sprintf("```\nFailed to save file `%s`: %s\n```", block.Filename, err))
				continue
			}
			sections = append(sections, fmt.Sprintf("```\nFile `%s` has been saved\n```", block.Filename))

		case codeblocks.ActionExecute:
			var output string
			var err error
			switch block.Language {
			case codeblocks.LanguageShell:
				output, err = x.runner.RunCommand(ctx, block.Code, workdir)
			case codeblocks.LanguagePython:
				output, err = x.runner.RunPythonCode(ctx, abilities.PreprocessCode(block.Code), workdir)
			default:
				sections = append(sections, fmt.Sprintf("Error: language `%s` is not supported for code execution", block.Language))
				continue
			}
			if err != nil {
				return "", fmt.Errorf("running code block: %w", err)
			}
			sections = append(sections, "```\n"+output+"\n```")
		}
	}

	return strings.Join(sections, "\n\n"), nil
}

// createInternalToolOutput persists the acknowledgement a lifecycle tool
// leaves in the chat.
func (x *Executor) createInternalToolOutput(ctx context.Context, execChat *models.Chat, toolCallID, text string) error {
	content := "```\n" + text + "\n```"
	id := toolCallID
	message := models.Message{
		TenantID:             execChat.TenantID,
		ChatID:               execChat.ID,
		Status:               models.MessageStatusCompleted,
		Role:                 models.RoleTool,
		Content:              &content,
		ToolCallID:           &id,
		IsInternalToolOutput: true,
	}
	if err := x.store.Messages.Create(ctx, &message); err != nil {
		return err
	}
	x.emitter.Emit(ctx, message.TenantID, events.KindMessageCreated, message)
	return nil
}

// provideTextResult records the last substantive assistant message as the
// task's text result. A task finished without any assistant output simply
// has no result.
func (x *Executor) provideTextResult(ctx context.Context, task *models.Task, execChat *models.Chat) error {
	source, err := x.store.Messages.GetLastNonSelfReflection(ctx, task.TenantID, execChat.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return x.recordTextResult(ctx, task, source.ContentOrEmpty())
}

// recordTextResult persists a text result for the task.
func (x *Executor) recordTextResult(ctx context.Context, task *models.Task, text string) error {
	result := models.TaskResult{
		TenantID: task.TenantID,
		AgentID:  task.AgentID,
		TaskID:   task.ID,
		Kind:     models.TaskResultKindText,
		Data:     text,
	}
	if err := x.store.TaskResults.Create(ctx, &result); err != nil {
		return err
	}
	x.emitter.Emit(ctx, result.TenantID, events.KindTaskResultCreated, result)
	return nil
}

// validateToolCalls checks each external call against the parameters schema
// of the ability providing it.
func (x *Executor) validateToolCalls(ctx context.Context, message *models.Message, calls []models.ToolCall) error {
	if message.AgentID == nil {
		return errors.New("agent is not set for the message")
	}
	list, err := x.store.Abilities.ListForAgent(ctx, message.TenantID, *message.AgentID)
	if err != nil {
		return err
	}

	byName := make(map[string]*models.Ability, len(list))
	for i := range list {
		byName[abilityFunctionName(&list[i])] = &list[i]
	}

	for _, toolCall := range calls {
		ability, ok := byName[toolCall.Function.Name]
		if !ok {
			return fmt.Errorf("no ability provides tool %q", toolCall.Function.Name)
		}
		if err := validateArguments(ability, toolCall.Function.Arguments); err != nil {
			return fmt.Errorf("invalid arguments for tool %q: %w", toolCall.Function.Name, err)
		}
	}
	return nil
}

// abilityFunctionName extracts the function name from the ability's stored
// definition.
func abilityFunctionName(ability *models.Ability) string {
	var def struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(ability.ParametersJSON, &def); err != nil {
		return ""
	}
	return def.Name
}

// validateArguments validates a call's JSON arguments against the ability's
// parameters schema. Abilities without a schema accept anything.
func validateArguments(ability *models.Ability, arguments string) error {
	var def struct {
		Parameters json.RawMessage `json:"parameters"`
	}
	if err := json.Unmarshal(ability.ParametersJSON, &def); err != nil {
		return fmt.Errorf("parsing function definition: %w", err)
	}
	if len(def.Parameters) == 0 || string(def.Parameters) == "null" {
		return nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("arguments.json", bytes.NewReader(def.Parameters)); err != nil {
		return fmt.Errorf("loading parameters schema: %w", err)
	}
	schema, err := compiler.Compile("arguments.json")
	if err != nil {
		return fmt.Errorf("compiling parameters schema: %w", err)
	}

	if arguments == "" {
		arguments = "{}"
	}
	var value any
	if err := json.Unmarshal([]byte(arguments), &value); err != nil {
		return fmt.Errorf("parsing arguments: %w", err)
	}
	return schema.Validate(value)
}
