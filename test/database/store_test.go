package database

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starfleetai/bridge/pkg/models"
	"github.com/starfleetai/bridge/pkg/repo"
)

func newTestStore(t *testing.T) *repo.Store {
	t.Helper()
	return repo.NewStore(NewTestClient(t).Pool())
}

func createRootTask(t *testing.T, store *repo.Store, tenant uuid.UUID, status models.TaskStatus) models.Task {
	t.Helper()
	task := models.Task{
		TenantID: tenant,
		UserID:   uuid.New(),
		AgentID:  uuid.New(),
		Title:    "root",
		Status:   status,
	}
	require.NoError(t, store.Tasks.Create(context.Background(), &task))
	return task
}

func createChildTask(t *testing.T, store *repo.Store, parent models.Task, status models.TaskStatus) models.Task {
	t.Helper()
	ancestry := parent.ChildrenAncestry()
	task := models.Task{
		TenantID: parent.TenantID,
		UserID:   parent.UserID,
		AgentID:  parent.AgentID,
		Title:    "child",
		Status:   status,
		Ancestry: &ancestry,
	}
	require.NoError(t, store.Tasks.Create(context.Background(), &task))
	return task
}

func TestClaimRootOrdersByCreation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tenant := uuid.New()

	first := createRootTask(t, store, tenant, models.TaskStatusToDo)
	second := createRootTask(t, store, tenant, models.TaskStatusToDo)
	createRootTask(t, store, tenant, models.TaskStatusDraft)

	claimed, err := store.Tasks.ClaimRoot(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, claimed.ID)
	assert.Equal(t, models.TaskStatusInProgress, claimed.Status)

	claimed, err = store.Tasks.ClaimRoot(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, claimed.ID)

	// Draft tasks are not ready; nothing left to claim.
	_, err = store.Tasks.ClaimRoot(ctx)
	assert.ErrorIs(t, err, repo.ErrNoRootTasks)
}

func TestClaimRootSkipsLockedRows(t *testing.T) {
	ctx := context.Background()
	client := NewTestClient(t)
	store := repo.NewStore(client.Pool())
	tenant := uuid.New()

	first := createRootTask(t, store, tenant, models.TaskStatusToDo)
	second := createRootTask(t, store, tenant, models.TaskStatusToDo)

	// Hold the first task's row lock in an open transaction, as a worker
	// mid-claim would.
	tx, err := client.Pool().Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	var lockedID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id FROM tasks
		WHERE ancestry IS NULL AND status = $1
		ORDER BY created_at LIMIT 1
		FOR UPDATE SKIP LOCKED`, models.TaskStatusToDo).Scan(&lockedID)
	require.NoError(t, err)
	require.Equal(t, first.ID, lockedID)

	// A concurrent claim must skip past the locked row without blocking.
	claimed, err := store.Tasks.ClaimRoot(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, claimed.ID)

	_, err = store.Tasks.ClaimRoot(ctx)
	assert.ErrorIs(t, err, repo.ErrNoRootTasks)
}

func TestClaimRootIgnoresChildTasks(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tenant := uuid.New()

	root := createRootTask(t, store, tenant, models.TaskStatusDone)
	createChildTask(t, store, root, models.TaskStatusToDo)

	_, err := store.Tasks.ClaimRoot(ctx)
	assert.ErrorIs(t, err, repo.ErrNoRootTasks)
}

func TestListChildrenByAncestry(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tenant := uuid.New()

	root := createRootTask(t, store, tenant, models.TaskStatusInProgress)
	child := createChildTask(t, store, root, models.TaskStatusToDo)
	grandchild := createChildTask(t, store, child, models.TaskStatusToDo)
	assert.Equal(t, 2, grandchild.AncestryLevel)

	// Another tree in the same tenant must not leak in.
	other := createRootTask(t, store, tenant, models.TaskStatusToDo)
	createChildTask(t, store, other, models.TaskStatusToDo)

	all, err := store.Tasks.ListAllChildren(ctx, tenant, root.ChildrenAncestry())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, child.ID, all[0].ID)
	assert.Equal(t, grandchild.ID, all[1].ID)

	direct, err := store.Tasks.ListDirectChildren(ctx, tenant, root.ChildrenAncestry())
	require.NoError(t, err)
	require.Len(t, direct, 1)
	assert.Equal(t, child.ID, direct[0].ID)
}

func TestIsAllSiblingsDone(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tenant := uuid.New()

	root := createRootTask(t, store, tenant, models.TaskStatusInProgress)
	a := createChildTask(t, store, root, models.TaskStatusDone)
	b := createChildTask(t, store, root, models.TaskStatusToDo)

	done, err := store.Tasks.IsAllSiblingsDone(ctx, &a)
	require.NoError(t, err)
	assert.False(t, done)

	_, err = store.Tasks.UpdateStatus(ctx, tenant, b.ID, models.TaskStatusDone)
	require.NoError(t, err)

	done, err = store.Tasks.IsAllSiblingsDone(ctx, &a)
	require.NoError(t, err)
	assert.True(t, done)

	// Root tasks have no siblings to be done.
	done, err = store.Tasks.IsAllSiblingsDone(ctx, &root)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestDeleteTaskRemovesSubtree(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tenant := uuid.New()

	root := createRootTask(t, store, tenant, models.TaskStatusDraft)
	child := createChildTask(t, store, root, models.TaskStatusDraft)
	createChildTask(t, store, child, models.TaskStatusDraft)

	require.NoError(t, store.Tasks.Delete(ctx, tenant, &root))

	_, err := store.Tasks.Get(ctx, tenant, root.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	_, err = store.Tasks.Get(ctx, tenant, child.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestTasksTransitionAll(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tenant := uuid.New()

	createRootTask(t, store, tenant, models.TaskStatusInProgress)
	createRootTask(t, store, tenant, models.TaskStatusInProgress)
	done := createRootTask(t, store, tenant, models.TaskStatusDone)

	n, err := store.Tasks.TransitionAll(ctx, models.TaskStatusInProgress, models.TaskStatusToDo)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	fresh, err := store.Tasks.Get(ctx, tenant, done.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusDone, fresh.Status)
}

func TestTaskGetIsTenantScoped(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tenant := uuid.New()

	task := createRootTask(t, store, tenant, models.TaskStatusDraft)

	_, err := store.Tasks.Get(ctx, uuid.New(), task.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestSettingsDefaultsAndUpsert(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tenant := uuid.New()

	settings, err := store.Settings.Get(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSettings(), settings)

	settings.DefaultModel = "OpenAI/gpt-4o"
	settings.Agents.ExecutionStepsLimit = 20
	settings.APIKeys[models.ProviderOpenAI] = "sk-test"
	require.NoError(t, store.Settings.Put(ctx, tenant, settings))

	stored, err := store.Settings.Get(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, settings, stored)

	// Upsert overwrites in place.
	settings.Agents.ExecutionStepsLimit = 30
	require.NoError(t, store.Settings.Put(ctx, tenant, settings))

	stored, err = store.Settings.Get(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 30, stored.Agents.ExecutionStepsLimit)
}

func createTestChat(t *testing.T, store *repo.Store, tenant uuid.UUID) models.Chat {
	t.Helper()
	chat := models.Chat{TenantID: tenant, Title: "execution", Kind: models.ChatKindExecution}
	require.NoError(t, store.Chats.Create(context.Background(), &chat))
	return chat
}

func createTestMessage(t *testing.T, store *repo.Store, chat models.Chat, role models.MessageRole, mutate func(*models.Message)) models.Message {
	t.Helper()
	content := "hello"
	msg := models.Message{
		TenantID: chat.TenantID,
		ChatID:   chat.ID,
		Status:   models.MessageStatusCompleted,
		Role:     role,
		Content:  &content,
	}
	if mutate != nil {
		mutate(&msg)
	}
	require.NoError(t, store.Messages.Create(context.Background(), &msg))
	return msg
}

func TestCountExecutionSteps(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	chat := createTestChat(t, store, uuid.New())

	createTestMessage(t, store, chat, models.RoleUser, nil)
	createTestMessage(t, store, chat, models.RoleAssistant, nil)
	createTestMessage(t, store, chat, models.RoleAssistant, nil)
	createTestMessage(t, store, chat, models.RoleTool, func(m *models.Message) {
		m.IsInternalToolOutput = true
	})
	createTestMessage(t, store, chat, models.RoleAssistant, func(m *models.Message) {
		m.IsInternalToolOutput = true
	})

	n, err := store.Messages.CountExecutionSteps(ctx, chat.TenantID, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestGetLastNonSelfReflection(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	chat := createTestChat(t, store, uuid.New())

	_, err := store.Messages.GetLastNonSelfReflection(ctx, chat.TenantID, chat.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	answer := createTestMessage(t, store, chat, models.RoleAssistant, nil)
	createTestMessage(t, store, chat, models.RoleAssistant, func(m *models.Message) {
		m.IsSelfReflection = true
	})
	createTestMessage(t, store, chat, models.RoleUser, nil)

	last, err := store.Messages.GetLastNonSelfReflection(ctx, chat.TenantID, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, answer.ID, last.ID)
}

func TestMessagesTransitionAll(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	chat := createTestChat(t, store, uuid.New())

	writing := createTestMessage(t, store, chat, models.RoleAssistant, func(m *models.Message) {
		m.Status = models.MessageStatusWriting
	})
	completed := createTestMessage(t, store, chat, models.RoleAssistant, nil)

	n, err := store.Messages.TransitionAll(ctx, models.MessageStatusWriting, models.MessageStatusFailed)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	fresh, err := store.Messages.Get(ctx, chat.TenantID, writing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusFailed, fresh.Status)

	fresh, err = store.Messages.Get(ctx, chat.TenantID, completed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusCompleted, fresh.Status)
}

func TestStoreWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tenant := uuid.New()

	sentinel := errors.New("boom")
	var created uuid.UUID
	err := store.WithTx(ctx, func(tx *repo.Store) error {
		task := models.Task{TenantID: tenant, UserID: uuid.New(), AgentID: uuid.New(), Title: "doomed", Status: models.TaskStatusDraft}
		if err := tx.Tasks.Create(ctx, &task); err != nil {
			return err
		}
		created = task.ID
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	_, err = store.Tasks.Get(ctx, tenant, created)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}
