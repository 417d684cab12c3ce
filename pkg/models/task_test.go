package models

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskParentID(t *testing.T) {
	t.Run("root task has no parent", func(t *testing.T) {
		task := Task{ID: uuid.New()}
		parent, err := task.ParentID()
		require.NoError(t, err)
		assert.Equal(t, uuid.Nil, parent)
	})

	t.Run("nested task returns last segment", func(t *testing.T) {
		root := uuid.New()
		mid := uuid.New()
		ancestry := root.String() + "/" + mid.String()
		task := Task{ID: uuid.New(), Ancestry: &ancestry, AncestryLevel: 2}

		parent, err := task.ParentID()
		require.NoError(t, err)
		assert.Equal(t, mid, parent)
	})

	t.Run("malformed segment fails", func(t *testing.T) {
		ancestry := "not-a-uuid"
		task := Task{ID: uuid.New(), Ancestry: &ancestry}
		_, err := task.ParentID()
		require.Error(t, err)
	})
}

func TestTaskParentIDs(t *testing.T) {
	root := uuid.New()
	mid := uuid.New()
	ancestry := root.String() + "/" + mid.String()
	task := Task{ID: uuid.New(), Ancestry: &ancestry}

	ids, err := task.ParentIDs()
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{root, mid}, ids)

	rootTask := Task{ID: uuid.New()}
	ids, err = rootTask.ParentIDs()
	require.NoError(t, err)
	assert.Nil(t, ids)
}

func TestTaskChildrenAncestry(t *testing.T) {
	task := Task{ID: uuid.New()}
	assert.Equal(t, task.ID.String(), task.ChildrenAncestry())

	ancestry := uuid.New().String()
	child := Task{ID: uuid.New(), Ancestry: &ancestry}
	assert.Equal(t, ancestry+"/"+child.ID.String(), child.ChildrenAncestry())
}

func TestTaskWorkdir(t *testing.T) {
	root := uuid.New()

	t.Run("root task uses own id", func(t *testing.T) {
		task := Task{ID: root}
		assert.Equal(t, filepath.Join("/wd", "wd-task-"+root.String()), task.Workdir("/wd"))
	})

	t.Run("nested task uses top ancestor id", func(t *testing.T) {
		ancestry := root.String() + "/" + uuid.New().String()
		task := Task{ID: uuid.New(), Ancestry: &ancestry}
		assert.Equal(t, filepath.Join("/wd", "wd-task-"+root.String()), task.Workdir("/wd"))
	})
}

func TestAncestryLevelFor(t *testing.T) {
	assert.Equal(t, 0, AncestryLevelFor(nil))

	one := uuid.New().String()
	assert.Equal(t, 1, AncestryLevelFor(&one))

	two := one + "/" + uuid.New().String()
	assert.Equal(t, 2, AncestryLevelFor(&two))
}

func TestMessageToolCallList(t *testing.T) {
	m := Message{}
	assert.Nil(t, m.ToolCallList())

	require.NoError(t, m.SetToolCalls([]ToolCall{{
		ID:   "call_1",
		Type: "function",
		Function: FunctionCall{
			Name:      "sfai_done",
			Arguments: "{}",
		},
	}}))

	calls := m.ToolCallList()
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "sfai_done", calls[0].Function.Name)

	// Partial writes from streaming must not panic the reader.
	m.ToolCalls = []byte(`[{"id":"x","function":{"name":"f","arguments":"{\"a\":`)
	assert.Nil(t, m.ToolCallList())
}

func TestParseSettings(t *testing.T) {
	t.Run("empty input yields defaults", func(t *testing.T) {
		s, err := ParseSettings(nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultModel, s.DefaultModel)
		assert.Equal(t, 1, s.Tasks.ExecutionConcurrency)
		assert.Equal(t, DefaultPlanningDepthLimit, s.Tasks.PlanningDepthLimit)
		assert.Equal(t, DefaultExecutionStepsLimit, s.Agents.ExecutionStepsLimit)
	})

	t.Run("partial input keeps defaults for the rest", func(t *testing.T) {
		s, err := ParseSettings([]byte(`{"default_model":"Groq/llama3-70b-8192","tasks":{"execution_concurrency":4}}`))
		require.NoError(t, err)
		assert.Equal(t, "Groq/llama3-70b-8192", s.DefaultModel)
		assert.Equal(t, 4, s.Tasks.ExecutionConcurrency)
		assert.Equal(t, DefaultPlanningDepthLimit, s.Tasks.PlanningDepthLimit)
	})

	t.Run("invalid json fails", func(t *testing.T) {
		_, err := ParseSettings([]byte(`{`))
		require.Error(t, err)
	})
}

func TestModelAPIURLOrDefault(t *testing.T) {
	m := Model{Provider: ProviderOpenAI}
	assert.Equal(t, OpenAIAPIURL, m.APIURLOrDefault())

	m.Provider = ProviderGroq
	assert.Equal(t, GroqAPIURL, m.APIURLOrDefault())

	custom := "http://localhost:8000/v1/"
	m.APIURL = &custom
	assert.Equal(t, custom, m.APIURLOrDefault())
}
