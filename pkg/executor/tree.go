package executor

import (
	"github.com/starfleetai/bridge/pkg/models"
)

// taskNode is one node of an in-memory task tree built from ancestry
// strings.
type taskNode struct {
	task     *models.Task
	children []*taskNode
}

// buildTaskTree assembles the subtree rooted at root from a flat list of its
// descendants, preserving the list's creation order at every level.
func buildTaskTree(root *models.Task, descendants []models.Task) (*taskNode, error) {
	byParent := make(map[string][]*models.Task, len(descendants))
	for i := range descendants {
		parentID, err := descendants[i].ParentID()
		if err != nil {
			return nil, err
		}
		key := parentID.String()
		byParent[key] = append(byParent[key], &descendants[i])
	}
	return collectNode(root, byParent), nil
}

func collectNode(task *models.Task, byParent map[string][]*models.Task) *taskNode {
	node := &taskNode{task: task}
	for _, child := range byParent[task.ID.String()] {
		node.children = append(node.children, collectNode(child, byParent))
	}
	return node
}

// findExecutionCandidate returns the first executable task in the tree,
// children before parents, so a parent only runs once its subtree is
// settled. InProgress and Done tasks are never candidates.
func (n *taskNode) findExecutionCandidate() *models.Task {
	for _, child := range n.children {
		if candidate := child.findExecutionCandidate(); candidate != nil {
			return candidate
		}
	}
	switch n.task.Status {
	case models.TaskStatusDraft, models.TaskStatusToDo,
		models.TaskStatusWaitingForUser, models.TaskStatusFailed:
		return n.task
	}
	return nil
}
