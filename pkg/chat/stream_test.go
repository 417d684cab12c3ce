package chat

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starfleetai/bridge/pkg/models"
)

func TestApplyCompletionChunkContent(t *testing.T) {
	var m models.Message

	require.NoError(t, applyCompletionChunk(&m, `data: {"choices":[{"delta":{"content":"Hel"}}]}`))
	require.NoError(t, applyCompletionChunk(&m, `data: {"choices":[{"delta":{"content":"lo"}}]}`))

	assert.Equal(t, "Hello", m.ContentOrEmpty())
	assert.Nil(t, m.ToolCallList())
}

func TestApplyCompletionChunkToolCallAccretion(t *testing.T) {
	var m models.Message

	frames := []string{
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"sfai_done","arguments":""}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"a\""}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":": 1}"}}]}}]}`,
	}
	for _, frame := range frames {
		require.NoError(t, applyCompletionChunk(&m, frame))
	}

	calls := m.ToolCallList()
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "sfai_done", calls[0].Function.Name)
	assert.Equal(t, `{"a": 1}`, calls[0].Function.Arguments)
}

func TestApplyCompletionChunkSecondToolCall(t *testing.T) {
	var m models.Message

	require.NoError(t, applyCompletionChunk(&m,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"f1","arguments":"{}"}}]}}]}`))
	require.NoError(t, applyCompletionChunk(&m,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":1,"id":"call_2","function":{"name":"f2","arguments":"{}"}}]}}]}`))

	calls := m.ToolCallList()
	require.Len(t, calls, 2)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "call_2", calls[1].ID)
}

func TestApplyCompletionChunkSplitFrameRetries(t *testing.T) {
	var m models.Message

	first := `data: {"choices":[{"delta":{"con`
	second := `tent":"Hi"}}]}`

	err := applyCompletionChunk(&m, first)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errChunkDecode))
	assert.Equal(t, "", m.ContentOrEmpty())

	// The engine pushes the failed frame back and retries once the rest of
	// the bytes arrive.
	require.NoError(t, applyCompletionChunk(&m, first+second))
	assert.Equal(t, "Hi", m.ContentOrEmpty())
}

func TestApplyCompletionChunkNoPrefix(t *testing.T) {
	var m models.Message
	err := applyCompletionChunk(&m, `{"choices":[]}`)
	assert.True(t, errors.Is(err, errNoChunkPrefix))
}

func TestCleanupJSONStringNewlines(t *testing.T) {
	t.Run("escapes newlines inside strings, drops them outside", func(t *testing.T) {
		in := "{\n\"text\": \"line one\nline two\",\n\"done\": true\n}"
		out := cleanupJSONStringNewlines(in)
		assert.Equal(t, `{"text": "line one\nline two","done": true}`, out)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &decoded))
		assert.Equal(t, "line one\nline two", decoded["text"])
	})

	t.Run("idempotent", func(t *testing.T) {
		in := "{\n\"text\": \"a\nb\"\n}"
		once := cleanupJSONStringNewlines(in)
		assert.Equal(t, once, cleanupJSONStringNewlines(once))
	})

	t.Run("escaped quotes do not toggle string state", func(t *testing.T) {
		in := "{\"text\": \"say \\\"hi\\\"\nok\"}"
		out := cleanupJSONStringNewlines(in)
		assert.Equal(t, `{"text": "say \"hi\"\nok"}`, out)
	})

	t.Run("already clean input unchanged", func(t *testing.T) {
		in := `{"text": "plain"}`
		assert.Equal(t, in, cleanupJSONStringNewlines(in))
	})
}

func TestConstructTools(t *testing.T) {
	t.Run("empty abilities yield no tools", func(t *testing.T) {
		tools, err := ConstructTools(nil)
		require.NoError(t, err)
		assert.Nil(t, tools)
	})

	t.Run("ability description wins", func(t *testing.T) {
		abilities := []models.Ability{{
			Name:           "greet",
			Description:    "Greets people",
			ParametersJSON: json.RawMessage(`{"name":"greet","description":"old","parameters":{"type":"object","properties":{}}}`),
		}}
		tools, err := ConstructTools(abilities)
		require.NoError(t, err)
		require.Len(t, tools, 1)
		assert.Equal(t, "function", tools[0].Type)
		assert.Equal(t, "greet", tools[0].Function.Name)
		assert.Equal(t, "Greets people", tools[0].Function.Description)
	})

	t.Run("missing function definition fails", func(t *testing.T) {
		_, err := ConstructTools([]models.Ability{{Name: "broken"}})
		require.Error(t, err)
	})
}
