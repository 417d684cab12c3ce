package queue

import (
	"context"
	"log/slog"

	"github.com/starfleetai/bridge/pkg/models"
	"github.com/starfleetai/bridge/pkg/repo"
)

// Recover returns work orphaned by a crash to a consistent state: messages
// stuck Writing are failed, tasks stuck InProgress go back to the queue.
// Called once at startup, before the pool starts.
func Recover(ctx context.Context, store *repo.Store) error {
	failedMessages, err := store.Messages.TransitionAll(ctx,
		models.MessageStatusWriting, models.MessageStatusFailed)
	if err != nil {
		return err
	}

	requeuedTasks, err := store.Tasks.TransitionAll(ctx,
		models.TaskStatusInProgress, models.TaskStatusToDo)
	if err != nil {
		return err
	}

	if failedMessages > 0 || requeuedTasks > 0 {
		slog.Info("Recovered orphaned work",
			"failed_messages", failedMessages, "requeued_tasks", requeuedTasks)
	}
	return nil
}
