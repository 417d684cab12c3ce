package executor

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starfleetai/bridge/pkg/models"
)

func rootTask(status models.TaskStatus) models.Task {
	return models.Task{ID: uuid.New(), TenantID: uuid.New(), Status: status}
}

func childTask(parent *models.Task, status models.TaskStatus) models.Task {
	ancestry := parent.ChildrenAncestry()
	return models.Task{
		ID:       uuid.New(),
		TenantID: parent.TenantID,
		Status:   status,
		Ancestry: &ancestry,
	}
}

func TestFindExecutionCandidateChildrenFirst(t *testing.T) {
	root := rootTask(models.TaskStatusInProgress)
	first := childTask(&root, models.TaskStatusToDo)
	grandchild := childTask(&first, models.TaskStatusDraft)
	second := childTask(&root, models.TaskStatusDraft)

	tree, err := buildTaskTree(&root, []models.Task{first, grandchild, second})
	require.NoError(t, err)

	candidate := tree.findExecutionCandidate()
	require.NotNil(t, candidate)
	assert.Equal(t, grandchild.ID, candidate.ID)
}

func TestFindExecutionCandidateParentAfterChildren(t *testing.T) {
	root := rootTask(models.TaskStatusInProgress)
	first := childTask(&root, models.TaskStatusToDo)
	grandchild := childTask(&first, models.TaskStatusDone)

	tree, err := buildTaskTree(&root, []models.Task{first, grandchild})
	require.NoError(t, err)

	candidate := tree.findExecutionCandidate()
	require.NotNil(t, candidate)
	assert.Equal(t, first.ID, candidate.ID)
}

func TestFindExecutionCandidateSkipsSettledTasks(t *testing.T) {
	root := rootTask(models.TaskStatusInProgress)
	done := childTask(&root, models.TaskStatusDone)
	running := childTask(&root, models.TaskStatusInProgress)
	failed := childTask(&root, models.TaskStatusFailed)

	tree, err := buildTaskTree(&root, []models.Task{done, running, failed})
	require.NoError(t, err)

	candidate := tree.findExecutionCandidate()
	require.NotNil(t, candidate)
	assert.Equal(t, failed.ID, candidate.ID)
}

func TestFindExecutionCandidateNoneLeft(t *testing.T) {
	root := rootTask(models.TaskStatusInProgress)
	first := childTask(&root, models.TaskStatusDone)
	second := childTask(&root, models.TaskStatusDone)

	tree, err := buildTaskTree(&root, []models.Task{first, second})
	require.NoError(t, err)
	assert.Nil(t, tree.findExecutionCandidate())
}

func TestFindExecutionCandidateRootNeverCandidate(t *testing.T) {
	root := rootTask(models.TaskStatusInProgress)
	tree, err := buildTaskTree(&root, nil)
	require.NoError(t, err)
	assert.Nil(t, tree.findExecutionCandidate())
}

func TestBuildTaskTreeOrderPreserved(t *testing.T) {
	root := rootTask(models.TaskStatusInProgress)
	first := childTask(&root, models.TaskStatusDraft)
	second := childTask(&root, models.TaskStatusDraft)

	tree, err := buildTaskTree(&root, []models.Task{first, second})
	require.NoError(t, err)
	require.Len(t, tree.children, 2)
	assert.Equal(t, first.ID, tree.children[0].task.ID)
	assert.Equal(t, second.ID, tree.children[1].task.ID)
}
