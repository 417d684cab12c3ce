package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/starfleetai/bridge/pkg/models"
)

// ErrNoRootTasks is returned by ClaimRoot when no root task is ready.
var ErrNoRootTasks = errors.New("no root tasks ready for execution")

// TaskRepo persists tasks.
type TaskRepo struct {
	db Querier
}

const taskColumns = `id, tenant_id, user_id, agent_id, origin_chat_id, control_chat_id,
	execution_chat_id, title, summary, status, ancestry, ancestry_level, created_at, updated_at`

func scanTask(row pgx.Row) (models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.TenantID, &t.UserID, &t.AgentID, &t.OriginChatID,
		&t.ControlChatID, &t.ExecutionChatID, &t.Title, &t.Summary, &t.Status,
		&t.Ancestry, &t.AncestryLevel, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func scanTasks(rows pgx.Rows) ([]models.Task, error) {
	defer rows.Close()
	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Create inserts a task. The id is generated here so callers can reference
// it before the row round-trips.
func (r *TaskRepo) Create(ctx context.Context, t *models.Task) error {
	t.ID = uuid.New()
	t.AncestryLevel = models.AncestryLevelFor(t.Ancestry)
	row := r.db.QueryRow(ctx, `
		INSERT INTO tasks (id, tenant_id, user_id, agent_id, origin_chat_id, control_chat_id,
			execution_chat_id, title, summary, status, ancestry, ancestry_level)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+taskColumns,
		t.ID, t.TenantID, t.UserID, t.AgentID, t.OriginChatID, t.ControlChatID,
		t.ExecutionChatID, t.Title, t.Summary, t.Status, t.Ancestry, t.AncestryLevel)
	created, err := scanTask(row)
	if err != nil {
		return fmt.Errorf("creating task: %w", err)
	}
	*t = created
	return nil
}

// Get returns one task by id.
func (r *TaskRepo) Get(ctx context.Context, tenantID, id uuid.UUID) (models.Task, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)
	t, err := scanTask(row)
	if err != nil {
		return models.Task{}, notFoundOr(err, "getting task")
	}
	return t, nil
}

// ListRoots returns root tasks for a tenant, newest first.
func (r *TaskRepo) ListRoots(ctx context.Context, tenantID uuid.UUID) ([]models.Task, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE tenant_id = $1 AND ancestry IS NULL
		 ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing root tasks: %w", err)
	}
	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, fmt.Errorf("listing root tasks: %w", err)
	}
	return tasks, nil
}

// ListAllChildren returns every descendant of the task owning the given
// ancestry prefix, ordered by creation time.
func (r *TaskRepo) ListAllChildren(ctx context.Context, tenantID uuid.UUID, childrenAncestry string) ([]models.Task, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE tenant_id = $1 AND (ancestry = $2 OR ancestry LIKE $3)
		 ORDER BY created_at`,
		tenantID, childrenAncestry, childrenAncestry+"/%")
	if err != nil {
		return nil, fmt.Errorf("listing child tasks: %w", err)
	}
	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, fmt.Errorf("listing child tasks: %w", err)
	}
	return tasks, nil
}

// ListDirectChildren returns the immediate children only.
func (r *TaskRepo) ListDirectChildren(ctx context.Context, tenantID uuid.UUID, childrenAncestry string) ([]models.Task, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE tenant_id = $1 AND ancestry = $2
		 ORDER BY created_at`, tenantID, childrenAncestry)
	if err != nil {
		return nil, fmt.Errorf("listing direct children: %w", err)
	}
	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, fmt.Errorf("listing direct children: %w", err)
	}
	return tasks, nil
}

// ClaimRoot picks the oldest ready root task and moves it to InProgress in a
// single transaction. SKIP LOCKED lets concurrent workers claim distinct
// tasks without blocking each other.
func (r *TaskRepo) ClaimRoot(ctx context.Context) (models.Task, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return models.Task{}, fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE ancestry IS NULL AND status = $1
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, models.TaskStatusToDo)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Task{}, ErrNoRootTasks
		}
		return models.Task{}, fmt.Errorf("claiming root task: %w", err)
	}

	row = tx.QueryRow(ctx, `
		UPDATE tasks SET status = $1, updated_at = now()
		WHERE tenant_id = $2 AND id = $3
		RETURNING `+taskColumns,
		models.TaskStatusInProgress, t.TenantID, t.ID)
	t, err = scanTask(row)
	if err != nil {
		return models.Task{}, fmt.Errorf("starting claimed task: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Task{}, fmt.Errorf("committing claim: %w", err)
	}
	return t, nil
}

// UpdateStatus transitions a task and returns the fresh row.
func (r *TaskRepo) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status models.TaskStatus) (models.Task, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE tasks SET status = $1, updated_at = now()
		WHERE tenant_id = $2 AND id = $3
		RETURNING `+taskColumns, status, tenantID, id)
	t, err := scanTask(row)
	if err != nil {
		return models.Task{}, notFoundOr(err, "updating task status")
	}
	return t, nil
}

// Update rewrites the mutable columns of a task.
func (r *TaskRepo) Update(ctx context.Context, t *models.Task) error {
	row := r.db.QueryRow(ctx, `
		UPDATE tasks SET agent_id = $1, origin_chat_id = $2, control_chat_id = $3,
			execution_chat_id = $4, title = $5, summary = $6, status = $7,
			ancestry = $8, ancestry_level = $9, updated_at = now()
		WHERE tenant_id = $10 AND id = $11
		RETURNING `+taskColumns,
		t.AgentID, t.OriginChatID, t.ControlChatID, t.ExecutionChatID,
		t.Title, t.Summary, t.Status, t.Ancestry, t.AncestryLevel,
		t.TenantID, t.ID)
	updated, err := scanTask(row)
	if err != nil {
		return notFoundOr(err, "updating task")
	}
	*t = updated
	return nil
}

// Delete removes a task and, via ancestry, its whole subtree.
func (r *TaskRepo) Delete(ctx context.Context, tenantID uuid.UUID, t *models.Task) error {
	children := t.ChildrenAncestry()
	_, err := r.db.Exec(ctx, `
		DELETE FROM tasks
		WHERE tenant_id = $1 AND (id = $2 OR ancestry = $3 OR ancestry LIKE $4)`,
		tenantID, t.ID, children, children+"/%")
	if err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	return nil
}

// IsAllSiblingsDone reports whether every task sharing the given task's
// ancestry is Done.
func (r *TaskRepo) IsAllSiblingsDone(ctx context.Context, t *models.Task) (bool, error) {
	if t.Ancestry == nil {
		return false, nil
	}
	var pending int
	err := r.db.QueryRow(ctx, `
		SELECT count(*) FROM tasks
		WHERE tenant_id = $1 AND ancestry = $2 AND status <> $3`,
		t.TenantID, *t.Ancestry, models.TaskStatusDone).Scan(&pending)
	if err != nil {
		return false, fmt.Errorf("counting unfinished siblings: %w", err)
	}
	return pending == 0, nil
}

// TransitionAll moves every task in one status to another. Used at startup
// to return tasks orphaned by a crash to the queue.
func (r *TaskRepo) TransitionAll(ctx context.Context, from, to models.TaskStatus) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE tasks SET status = $1, updated_at = now() WHERE status = $2`, to, from)
	if err != nil {
		return 0, fmt.Errorf("transitioning tasks %s to %s: %w", from, to, err)
	}
	return tag.RowsAffected(), nil
}
