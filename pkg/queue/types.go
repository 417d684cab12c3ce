// Package queue polls for ready root tasks and hands them to the executor,
// with a bounded pool of workers and crash recovery at startup.
package queue

import (
	"context"

	"github.com/google/uuid"

	"github.com/starfleetai/bridge/pkg/models"
)

// TaskExecutor runs one claimed root task to a terminal state.
type TaskExecutor interface {
	ExecuteRoot(ctx context.Context, task *models.Task) error
}

// TaskRegistry is the subset of WorkerPool used by Worker for cancellation
// bookkeeping.
type TaskRegistry interface {
	RegisterTask(taskID uuid.UUID, cancel context.CancelFunc)
	UnregisterTask(taskID uuid.UUID)
}

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)
