// Package abilities executes user-defined Python abilities in the sandbox
// and probes their function definitions.
package abilities

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"github.com/starfleetai/bridge/pkg/events"
	"github.com/starfleetai/bridge/pkg/llm"
	"github.com/starfleetai/bridge/pkg/models"
	"github.com/starfleetai/bridge/pkg/repo"
	"github.com/starfleetai/bridge/pkg/sandbox"
)

// InternalToolPrefix marks tool calls handled by the executor itself rather
// than by ability code.
const InternalToolPrefix = "sfai_"

//go:embed templates/*.py.tmpl
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.py.tmpl"))

// Service runs abilities for tool calls.
type Service struct {
	store       *repo.Store
	emitter     events.Emitter
	runner      *sandbox.Runner
	workdirRoot string
}

// NewService builds an ability service.
func NewService(store *repo.Store, emitter events.Emitter, runner *sandbox.Runner, workdirRoot string) *Service {
	return &Service{store: store, emitter: emitter, runner: runner, workdirRoot: workdirRoot}
}

// GetFunctionDefinition determines an ability's function definition by
// running a reflection script over its code in the sandbox.
func (s *Service) GetFunctionDefinition(ctx context.Context, code string) (llm.ToolFunction, error) {
	script, err := renderTemplate("get_function_definition.py.tmpl", map[string]string{"Code": code})
	if err != nil {
		return llm.ToolFunction{}, err
	}

	output, err := s.runner.RunPythonCode(ctx, script, "")
	if err != nil {
		return llm.ToolFunction{}, fmt.Errorf("running function definition script: %w", err)
	}

	slog.Debug("Function definition script output", "output", output)

	var tool llm.Tool
	if err := json.Unmarshal([]byte(output), &tool); err != nil {
		return llm.ToolFunction{}, fmt.Errorf("parsing function definition script output: %w", err)
	}
	return tool.Function, nil
}

// PreprocessCode trims trailing whitespace from each line and surrounding
// whitespace from the whole snippet.
func PreprocessCode(code string) string {
	var b strings.Builder
	for _, line := range strings.Split(code, "\n") {
		b.WriteString(strings.TrimRight(line, " \t\r"))
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}

// ExecuteForMessage runs every external tool call on the message, each in
// its own goroutine, persists the outputs as Tool messages and completes the
// assistant message.
func (s *Service) ExecuteForMessage(ctx context.Context, message *models.Message) error {
	if message.AgentID == nil {
		return errors.New("agent is not set for the message")
	}
	abilities, err := s.store.Abilities.ListForAgent(ctx, message.TenantID, *message.AgentID)
	if err != nil {
		return err
	}

	toolCalls := message.ToolCallList()
	if len(toolCalls) == 0 {
		return errors.New("tool calls are not set for the message")
	}

	type result struct {
		toolCallID string
		output     string
		err        error
	}

	var external []models.ToolCall
	for _, tc := range toolCalls {
		if strings.HasPrefix(tc.Function.Name, InternalToolPrefix) {
			continue
		}
		external = append(external, tc)
	}

	results := make([]result, len(external))
	var wg sync.WaitGroup
	for i, tc := range external {
		wg.Add(1)
		go func(i int, tc models.ToolCall) {
			defer wg.Done()
			output, err := s.execute(ctx, abilities, message, &tc)
			results[i] = result{toolCallID: tc.ID, output: output, err: err}
		}(i, tc)
	}
	wg.Wait()

	for _, res := range results {
		if res.err != nil {
			return fmt.Errorf("executing tool call %s: %w", res.toolCallID, res.err)
		}

		content := "```\n" + res.output + "\n```"
		toolCallID := res.toolCallID
		resultsMessage := models.Message{
			TenantID:   message.TenantID,
			ChatID:     message.ChatID,
			Status:     models.MessageStatusCompleted,
			Role:       models.RoleTool,
			Content:    &content,
			ToolCallID: &toolCallID,
		}
		if err := s.store.Messages.Create(ctx, &resultsMessage); err != nil {
			return err
		}
		s.emitter.Emit(ctx, resultsMessage.TenantID, events.KindMessageCreated, resultsMessage)
	}

	if _, err := s.store.Messages.UpdateStatus(ctx, message.TenantID, message.ID, models.MessageStatusCompleted); err != nil {
		return err
	}
	return nil
}

// execute runs one tool call: the joined ability code plus a dispatch stub
// is written into the chat workdir, executed in the sandbox and removed.
func (s *Service) execute(ctx context.Context, abilities []models.Ability, message *models.Message, toolCall *models.ToolCall) (string, error) {
	slog.Debug("Executing tool call", "tool_call_id", toolCall.ID, "message_id", message.ID)

	codes := make([]string, 0, len(abilities))
	for _, ability := range abilities {
		codes = append(codes, ability.Code)
	}
	code := strings.Join(codes, "\n\n")

	workdir := filepath.Join(s.workdirRoot, "wd-"+message.ChatID.String())
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return "", fmt.Errorf("creating workdir: %w", err)
	}

	toolCallJSON, err := json.Marshal(toolCall)
	if err != nil {
		return "", fmt.Errorf("serializing tool call: %w", err)
	}

	script, err := renderTemplate("call_tools.py.tmpl", map[string]string{
		"Code":     code,
		"ToolCall": string(toolCallJSON),
	})
	if err != nil {
		return "", err
	}

	scriptName := fmt.Sprintf("tc-%s-%s.py", message.ID, toolCall.ID)
	scriptPath := filepath.Join(workdir, scriptName)
	if err := os.WriteFile(scriptPath, []byte(script), 0o644); err != nil {
		return "", fmt.Errorf("writing script to workdir: %w", err)
	}

	output, runErr := s.runner.RunPythonScript(ctx, workdir, scriptName)

	if err := os.Remove(scriptPath); err != nil {
		slog.Warn("Failed to remove tool call script", "path", scriptPath, "error", err)
	}

	if runErr != nil {
		return "", runErr
	}
	return output, nil
}

func renderTemplate(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return buf.String(), nil
}
