package executor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starfleetai/bridge/pkg/models"
)

type fakeRunner struct {
	commands []string
	python   []string
	workdirs []string
}

func (f *fakeRunner) RunCommand(_ context.Context, cmd, workdir string) (string, error) {
	f.commands = append(f.commands, cmd)
	f.workdirs = append(f.workdirs, workdir)
	return "command output", nil
}

func (f *fakeRunner) RunPythonCode(_ context.Context, code, workdir string) (string, error) {
	f.python = append(f.python, code)
	f.workdirs = append(f.workdirs, workdir)
	return "python output", nil
}

func TestInterpretCode(t *testing.T) {
	runner := &fakeRunner{}
	x := &Executor{runner: runner, workdirRoot: t.TempDir()}
	task := models.Task{ID: uuid.New(), TenantID: uuid.New()}

	content := "Running it now.\n\n" +
		"> Execute\n\n```shell\nls -la\n```\n\n" +
		"> Save: `notes.txt`\n\n```\nhello\n```\n\n" +
		"> Execute\n\n```python\nprint(1)\n```\n\n" +
		"> Execute\n\n```ruby\nputs 1\n```\n"
	message := models.Message{Content: &content}

	output, err := x.interpretCode(context.Background(), &task, &message)
	require.NoError(t, err)

	expected := "```\ncommand output\n```\n\n" +
		"```\nFile `notes.txt` has been saved\n```\n\n" +
		"```\npython output\n```\n\n" +
		"Error: language `other` is not supported for code execution"
	assert.Equal(t, expected, output)

	assert.Equal(t, []string{"ls -la"}, runner.commands)
	assert.Equal(t, []string{"print(1)"}, runner.python)

	saved, err := os.ReadFile(filepath.Join(task.Workdir(x.workdirRoot), "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(saved))
}

func TestInterpretCodeNoBlocks(t *testing.T) {
	x := &Executor{runner: &fakeRunner{}, workdirRoot: t.TempDir()}
	task := models.Task{ID: uuid.New(), TenantID: uuid.New()}

	content := "All done, nothing to run."
	output, err := x.interpretCode(context.Background(), &task, &models.Message{Content: &content})
	require.NoError(t, err)
	assert.Empty(t, output)
}

func TestInterpretCodeSharedTreeWorkdir(t *testing.T) {
	runner := &fakeRunner{}
	x := &Executor{runner: runner, workdirRoot: t.TempDir()}

	root := models.Task{ID: uuid.New(), TenantID: uuid.New()}
	ancestry := root.ChildrenAncestry()
	child := models.Task{ID: uuid.New(), TenantID: root.TenantID, Ancestry: &ancestry}

	content := "> Execute\n\n```shell\npwd\n```\n"
	_, err := x.interpretCode(context.Background(), &child, &models.Message{Content: &content})
	require.NoError(t, err)

	require.Len(t, runner.workdirs, 1)
	assert.Equal(t, root.Workdir(x.workdirRoot), runner.workdirs[0])
}

func abilityWithSchema(t *testing.T, definition string) models.Ability {
	t.Helper()
	require.True(t, json.Valid([]byte(definition)))
	return models.Ability{
		ID:             uuid.New(),
		Name:           "Forecast",
		ParametersJSON: json.RawMessage(definition),
	}
}

func TestValidateArguments(t *testing.T) {
	ability := abilityWithSchema(t, `{
		"name": "get_forecast",
		"parameters": {
			"type": "object",
			"properties": {
				"city": {"type": "string"}
			},
			"required": ["city"]
		}
	}`)

	assert.NoError(t, validateArguments(&ability, `{"city":"Oslo"}`))

	err := validateArguments(&ability, `{}`)
	require.Error(t, err)

	err = validateArguments(&ability, `{"city":42}`)
	require.Error(t, err)
}

func TestValidateArgumentsNoSchema(t *testing.T) {
	ability := abilityWithSchema(t, `{"name":"sfai_done"}`)
	assert.NoError(t, validateArguments(&ability, ""))
	assert.NoError(t, validateArguments(&ability, `{"anything":"goes"}`))
}

func TestValidateArgumentsMalformedJSON(t *testing.T) {
	ability := abilityWithSchema(t, `{
		"name": "get_forecast",
		"parameters": {"type": "object"}
	}`)
	assert.Error(t, validateArguments(&ability, `{"city":`))
}

func TestParseProvideTextResultArgs(t *testing.T) {
	t.Run("empty arguments", func(t *testing.T) {
		args, err := parseProvideTextResultArgs("")
		require.NoError(t, err)
		assert.Empty(t, args.Text)
		assert.False(t, args.IsDone)
	})

	t.Run("text and is_done", func(t *testing.T) {
		args, err := parseProvideTextResultArgs(`{"text":"Paris","is_done":true}`)
		require.NoError(t, err)
		assert.Equal(t, "Paris", args.Text)
		assert.True(t, args.IsDone)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := parseProvideTextResultArgs(`{"text":`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sfai_provide_text_result")
	})
}

func TestAbilityFunctionName(t *testing.T) {
	ability := abilityWithSchema(t, `{"name":"get_forecast","parameters":{"type":"object"}}`)
	assert.Equal(t, "get_forecast", abilityFunctionName(&ability))
}
