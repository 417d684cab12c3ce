package executor

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"text/template"

	"github.com/starfleetai/bridge/pkg/chat"
	"github.com/starfleetai/bridge/pkg/models"
)

//go:embed templates/*.md.tmpl
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.md.tmpl"))

// sendToAgent asks the agent for the next move in the execution chat.
func (x *Executor) sendToAgent(
	ctx context.Context,
	task *models.Task,
	execChat *models.Chat,
	agent *models.Agent,
	model *models.Model,
	apiKey string,
) error {
	prelude, err := executionPrelude(task, execChat, agent, false)
	if err != nil {
		return err
	}
	params := chat.CompletionParams{MessagesPre: prelude}
	if agent.IsWebBrowserEnabled {
		params.Abilities = []models.Ability{webBrowsingAbility()}
	}
	_, err = x.engine.CreateCompletion(ctx, task.TenantID, execChat.ID, model, apiKey, params)
	return err
}

// selfReflect asks the agent to judge the task's state. The reflection turn
// offers the lifecycle tools so the agent can settle the task.
func (x *Executor) selfReflect(
	ctx context.Context,
	task *models.Task,
	execChat *models.Chat,
	agent *models.Agent,
	model *models.Model,
	apiKey string,
) error {
	prelude, err := executionPrelude(task, execChat, agent, true)
	if err != nil {
		return err
	}
	reflection, err := renderExecutorTemplate("self_reflection_message.md.tmpl", nil)
	if err != nil {
		return err
	}

	post := []models.Message{{
		TenantID: task.TenantID,
		ChatID:   execChat.ID,
		Status:   models.MessageStatusCompleted,
		Role:     models.RoleUser,
		Content:  &reflection,
	}}

	_, err = x.engine.CreateCompletion(ctx, task.TenantID, execChat.ID, model, apiKey, chat.CompletionParams{
		MessagesPre:      prelude,
		MessagesPost:     post,
		Abilities:        internalTaskAbilities(),
		IsSelfReflection: true,
	})
	return err
}

// executionPrelude builds the unpersisted system and task messages every
// completion round starts with.
func executionPrelude(task *models.Task, execChat *models.Chat, agent *models.Agent, isSelfReflection bool) ([]models.Message, error) {
	system, err := renderExecutorTemplate("system_message.md.tmpl", map[string]any{
		"Agent":            agent,
		"IsSelfReflection": isSelfReflection,
	})
	if err != nil {
		return nil, err
	}
	user, err := renderExecutorTemplate("task_message.md.tmpl", map[string]any{"Task": task})
	if err != nil {
		return nil, err
	}

	return []models.Message{
		{
			TenantID: task.TenantID,
			ChatID:   execChat.ID,
			Status:   models.MessageStatusCompleted,
			Role:     models.RoleSystem,
			Content:  &system,
		},
		{
			TenantID: task.TenantID,
			ChatID:   execChat.ID,
			Status:   models.MessageStatusCompleted,
			Role:     models.RoleUser,
			Content:  &user,
		},
	}, nil
}

// internalTaskAbilities are the lifecycle verbs offered on self-reflection
// turns.
func internalTaskAbilities() []models.Ability {
	return []models.Ability{
		models.AbilityForFn("Mark current task as done", `{"name":"sfai_done"}`),
		models.AbilityForFn("Mark current task as failed", `{"name":"sfai_fail"}`),
		models.AbilityForFn("Wait for additional user input", `{"name":"sfai_wait_for_user"}`),
		models.AbilityForFn("Record a text result for the current task",
			`{"name":"sfai_provide_text_result","parameters":{"type":"object","properties":{"text":{"type":"string","description":"The result text"},"is_done":{"type":"boolean","description":"Also mark the task as done"}},"required":["text"]}}`),
	}
}

// webBrowsingAbility is offered on regular turns when the agent may browse.
func webBrowsingAbility() models.Ability {
	return models.AbilityForFn("Browse the web to achieve an objective",
		`{"name":"sfai_web_browsing","parameters":{"type":"object","properties":{"objective":{"type":"string","description":"What to find out or accomplish on the web"}},"required":["objective"]}}`)
}

func renderExecutorTemplate(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return buf.String(), nil
}
