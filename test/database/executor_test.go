package database

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starfleetai/bridge/pkg/abilities"
	"github.com/starfleetai/bridge/pkg/chat"
	"github.com/starfleetai/bridge/pkg/events"
	"github.com/starfleetai/bridge/pkg/executor"
	"github.com/starfleetai/bridge/pkg/llm"
	"github.com/starfleetai/bridge/pkg/models"
	"github.com/starfleetai/bridge/pkg/repo"
	"github.com/starfleetai/bridge/pkg/sandbox"
)

// scriptedInference serves canned SSE completion bodies in order, the way the
// streaming engine consumes them.
func scriptedInference(t *testing.T, bodies []string) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	served := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if served >= len(bodies) {
			t.Errorf("inference request %d exceeds the %d scripted replies", served+1, len(bodies))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(bodies[served]))
		served++
	}))
	t.Cleanup(server.Close)
	return server
}

func sseBody(t *testing.T, chunks ...llm.CompletionChunk) string {
	t.Helper()
	var b strings.Builder
	for _, chunk := range chunks {
		raw, err := json.Marshal(chunk)
		require.NoError(t, err)
		b.WriteString("data: " + string(raw) + "\n\n")
	}
	b.WriteString("data: [DONE]\n\n")
	return b.String()
}

func textReply(t *testing.T, content string) string {
	return sseBody(t, llm.CompletionChunk{Choices: []llm.ChunkChoice{{
		Delta: llm.ChunkDelta{Content: &content},
	}}})
}

func toolCallReply(t *testing.T, name, arguments string) string {
	id := "call_" + name
	kind := "function"
	return sseBody(t, llm.CompletionChunk{Choices: []llm.ChunkChoice{{
		Delta: llm.ChunkDelta{ToolCalls: []llm.ChunkToolCall{{
			Index:    0,
			ID:       &id,
			Type:     &kind,
			Function: &llm.ChunkFunction{Name: &name, Arguments: &arguments},
		}}},
	}}})
}

// newTestExecutor wires an executor over a real store and the scripted
// inference endpoint. Agent, model and settings are seeded for the tenant.
func newTestExecutor(t *testing.T, inferenceURL string) (*executor.Executor, *repo.Store, uuid.UUID, models.Agent) {
	t.Helper()
	ctx := context.Background()

	store := newTestStore(t)
	tenant := uuid.New()

	agent := models.Agent{
		TenantID:      tenant,
		Name:          "Researcher",
		Description:   "Answers research questions",
		SystemMessage: "You are a careful researcher.",
		IsEnabled:     true,
	}
	require.NoError(t, store.Agents.Create(ctx, &agent))

	apiURL := inferenceURL + "/"
	model := models.Model{
		TenantID:        tenant,
		Provider:        models.ProviderOpenAI,
		Name:            "gpt-4o",
		ContextLength:   128000,
		MaxTokens:       4096,
		TextIn:          true,
		TextOut:         true,
		FunctionCalling: true,
		APIURL:          &apiURL,
	}
	require.NoError(t, store.Models.Create(ctx, &model))

	settings := models.DefaultSettings()
	settings.DefaultModel = model.FullName()
	settings.APIKeys[models.ProviderOpenAI] = "test-key"
	require.NoError(t, store.Settings.Put(ctx, tenant, settings))

	emitter := events.NopEmitter{}
	engine := chat.NewEngine(store, emitter, "bridge-test")
	runner := sandbox.NewRunnerWithClient(nil)
	abilityService := abilities.NewService(store, emitter, runner, t.TempDir())
	exec := executor.New(store, emitter, engine, abilityService, runner, nil, t.TempDir())

	return exec, store, tenant, agent
}

func createAgentTask(t *testing.T, store *repo.Store, tenant uuid.UUID, agent models.Agent, status models.TaskStatus) models.Task {
	t.Helper()
	task := models.Task{
		TenantID: tenant,
		UserID:   uuid.New(),
		AgentID:  agent.ID,
		Title:    "research question",
		Summary:  "Find the answer",
		Status:   status,
	}
	require.NoError(t, store.Tasks.Create(context.Background(), &task))
	return task
}

func createAgentChildTask(t *testing.T, store *repo.Store, parent models.Task, status models.TaskStatus) models.Task {
	t.Helper()
	ancestry := parent.ChildrenAncestry()
	task := models.Task{
		TenantID: parent.TenantID,
		UserID:   parent.UserID,
		AgentID:  parent.AgentID,
		Title:    "sub-question",
		Summary:  "Answer part of the question",
		Status:   status,
		Ancestry: &ancestry,
	}
	require.NoError(t, store.Tasks.Create(context.Background(), &task))
	return task
}

func TestExecuteRootSettlesOnDone(t *testing.T) {
	ctx := context.Background()
	server := scriptedInference(t, []string{
		textReply(t, "The answer is 42."),
		toolCallReply(t, "sfai_done", "{}"),
	})

	exec, store, tenant, agent := newTestExecutor(t, server.URL)
	task := createAgentTask(t, store, tenant, agent, models.TaskStatusInProgress)

	require.NoError(t, exec.ExecuteRoot(ctx, &task))

	updated, err := store.Tasks.Get(ctx, tenant, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusDone, updated.Status)

	// Settling on done records the last substantive reply as the result.
	results, err := store.TaskResults.ListByTask(ctx, tenant, task.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.TaskResultKindText, results[0].Kind)
	assert.Equal(t, "The answer is 42.", results[0].Data)

	require.NotNil(t, updated.ExecutionChatID)
	messages, err := store.Messages.ListByChat(ctx, tenant, *updated.ExecutionChatID)
	require.NoError(t, err)

	var acks []string
	for _, m := range messages {
		if m.IsInternalToolOutput {
			acks = append(acks, m.ContentOrEmpty())
		}
	}
	assert.Contains(t, acks, "```\nTask has been marked as done\n```")
}

func TestExecuteRootRecordsProvidedTextResult(t *testing.T) {
	ctx := context.Background()
	server := scriptedInference(t, []string{
		textReply(t, "I looked it up."),
		toolCallReply(t, "sfai_provide_text_result", `{"text":"Paris is the capital of France","is_done":true}`),
	})

	exec, store, tenant, agent := newTestExecutor(t, server.URL)
	task := createAgentTask(t, store, tenant, agent, models.TaskStatusInProgress)

	require.NoError(t, exec.ExecuteRoot(ctx, &task))

	updated, err := store.Tasks.Get(ctx, tenant, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusDone, updated.Status)

	results, err := store.TaskResults.ListByTask(ctx, tenant, task.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.TaskResultKindText, results[0].Kind)
	assert.Equal(t, "Paris is the capital of France", results[0].Data)
}

func TestExecuteRootProvidedTextResultWithoutDoneKeepsGoing(t *testing.T) {
	ctx := context.Background()
	server := scriptedInference(t, []string{
		textReply(t, "Partial finding."),
		toolCallReply(t, "sfai_provide_text_result", `{"text":"Interim note"}`),
		textReply(t, "All done now."),
		toolCallReply(t, "sfai_done", "{}"),
	})

	exec, store, tenant, agent := newTestExecutor(t, server.URL)
	task := createAgentTask(t, store, tenant, agent, models.TaskStatusInProgress)

	require.NoError(t, exec.ExecuteRoot(ctx, &task))

	updated, err := store.Tasks.Get(ctx, tenant, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusDone, updated.Status)

	results, err := store.TaskResults.ListByTask(ctx, tenant, task.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestExecuteRootFailsAtStepsLimit(t *testing.T) {
	ctx := context.Background()
	server := scriptedInference(t, []string{
		textReply(t, "Still thinking."),
	})

	exec, store, tenant, agent := newTestExecutor(t, server.URL)

	limit := 1
	agent.ExecutionStepsLimit = &limit
	require.NoError(t, store.Agents.Update(ctx, &agent))

	task := createAgentTask(t, store, tenant, agent, models.TaskStatusInProgress)

	require.NoError(t, exec.ExecuteRoot(ctx, &task))

	updated, err := store.Tasks.Get(ctx, tenant, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, updated.Status)
}

func TestExecuteRootChildFailureStopsSiblings(t *testing.T) {
	ctx := context.Background()
	server := scriptedInference(t, []string{
		textReply(t, "This cannot be done."),
		toolCallReply(t, "sfai_fail", "{}"),
	})

	exec, store, tenant, agent := newTestExecutor(t, server.URL)
	root := createAgentTask(t, store, tenant, agent, models.TaskStatusInProgress)
	first := createAgentChildTask(t, store, root, models.TaskStatusToDo)
	second := createAgentChildTask(t, store, root, models.TaskStatusToDo)

	require.NoError(t, exec.ExecuteRoot(ctx, &root))

	updatedRoot, err := store.Tasks.Get(ctx, tenant, root.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, updatedRoot.Status)

	updatedFirst, err := store.Tasks.Get(ctx, tenant, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, updatedFirst.Status)

	// The failing child stops the walk; its sibling is never started.
	updatedSecond, err := store.Tasks.Get(ctx, tenant, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusToDo, updatedSecond.Status)
}

func TestExecuteRootRollsUpDoneChildren(t *testing.T) {
	ctx := context.Background()
	server := scriptedInference(t, []string{
		textReply(t, "First part answered."),
		toolCallReply(t, "sfai_done", "{}"),
		textReply(t, "Second part answered."),
		toolCallReply(t, "sfai_done", "{}"),
	})

	exec, store, tenant, agent := newTestExecutor(t, server.URL)
	root := createAgentTask(t, store, tenant, agent, models.TaskStatusInProgress)
	first := createAgentChildTask(t, store, root, models.TaskStatusToDo)
	second := createAgentChildTask(t, store, root, models.TaskStatusToDo)

	require.NoError(t, exec.ExecuteRoot(ctx, &root))

	for _, id := range []uuid.UUID{root.ID, first.ID, second.ID} {
		updated, err := store.Tasks.Get(ctx, tenant, id)
		require.NoError(t, err)
		assert.Equal(t, models.TaskStatusDone, updated.Status, "task %s", id)
	}
}
