package executor

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starfleetai/bridge/pkg/chat"
	"github.com/starfleetai/bridge/pkg/models"
)

func TestExecutionPrelude(t *testing.T) {
	task := models.Task{
		ID:       uuid.New(),
		TenantID: uuid.New(),
		Title:    "Summarize the report",
		Summary:  "Focus on the conclusions.",
	}
	execChat := models.Chat{ID: uuid.New(), TenantID: task.TenantID, Kind: models.ChatKindExecution}
	agent := models.Agent{ID: uuid.New(), SystemMessage: "You are a meticulous analyst."}

	messages, err := executionPrelude(&task, &execChat, &agent, false)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	assert.Equal(t, models.RoleSystem, messages[0].Role)
	assert.Equal(t, execChat.ID, messages[0].ChatID)
	assert.Contains(t, *messages[0].Content, "You are a meticulous analyst.")
	assert.Contains(t, *messages[0].Content, "## Execution Notes")
	assert.NotContains(t, *messages[0].Content, "Review the conversation so far")

	assert.Equal(t, models.RoleUser, messages[1].Role)
	assert.Contains(t, *messages[1].Content, "# Task: Summarize the report")
	assert.Contains(t, *messages[1].Content, "Focus on the conclusions.")
}

func TestExecutionPreludeSelfReflection(t *testing.T) {
	task := models.Task{ID: uuid.New(), TenantID: uuid.New(), Title: "T"}
	execChat := models.Chat{ID: uuid.New(), TenantID: task.TenantID}
	agent := models.Agent{ID: uuid.New(), SystemMessage: "Sys"}

	messages, err := executionPrelude(&task, &execChat, &agent, true)
	require.NoError(t, err)
	assert.Contains(t, *messages[0].Content, "Review the conversation so far")
}

func TestExecutionPreludeNoSummary(t *testing.T) {
	task := models.Task{ID: uuid.New(), TenantID: uuid.New(), Title: "Just a title"}
	execChat := models.Chat{ID: uuid.New(), TenantID: task.TenantID}
	agent := models.Agent{ID: uuid.New()}

	messages, err := executionPrelude(&task, &execChat, &agent, false)
	require.NoError(t, err)
	assert.Equal(t, "# Task: Just a title\n", *messages[1].Content)
}

func TestSelfReflectionMessageTemplate(t *testing.T) {
	content, err := renderExecutorTemplate("self_reflection_message.md.tmpl", nil)
	require.NoError(t, err)
	assert.Contains(t, content, "sfai_done")
	assert.Contains(t, content, "sfai_fail")
	assert.Contains(t, content, "sfai_wait_for_user")
}

func TestInternalTaskAbilities(t *testing.T) {
	tools, err := chat.ConstructTools(internalTaskAbilities())
	require.NoError(t, err)
	require.Len(t, tools, 4)
	assert.Equal(t, "sfai_done", tools[0].Function.Name)
	assert.Equal(t, "sfai_fail", tools[1].Function.Name)
	assert.Equal(t, "sfai_wait_for_user", tools[2].Function.Name)
	assert.Equal(t, "sfai_provide_text_result", tools[3].Function.Name)
	assert.Equal(t, "Mark current task as done", tools[0].Function.Description)
	assert.NotEmpty(t, tools[3].Function.Parameters)
}

func TestWebBrowsingAbility(t *testing.T) {
	tools, err := chat.ConstructTools([]models.Ability{webBrowsingAbility()})
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "sfai_web_browsing", tools[0].Function.Name)
	assert.Contains(t, string(tools[0].Function.Parameters), "objective")
}
