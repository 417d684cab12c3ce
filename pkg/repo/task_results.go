package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/starfleetai/bridge/pkg/models"
)

// TaskResultRepo persists task results.
type TaskResultRepo struct {
	db Querier
}

const taskResultColumns = `id, tenant_id, agent_id, task_id, kind, data, created_at, updated_at`

func scanTaskResult(row pgx.Row) (models.TaskResult, error) {
	var tr models.TaskResult
	err := row.Scan(&tr.ID, &tr.TenantID, &tr.AgentID, &tr.TaskID, &tr.Kind,
		&tr.Data, &tr.CreatedAt, &tr.UpdatedAt)
	return tr, err
}

// Create inserts a task result.
func (r *TaskResultRepo) Create(ctx context.Context, tr *models.TaskResult) error {
	tr.ID = uuid.New()
	row := r.db.QueryRow(ctx, `
		INSERT INTO task_results (id, tenant_id, agent_id, task_id, kind, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+taskResultColumns,
		tr.ID, tr.TenantID, tr.AgentID, tr.TaskID, tr.Kind, tr.Data)
	created, err := scanTaskResult(row)
	if err != nil {
		return fmt.Errorf("creating task result: %w", err)
	}
	*tr = created
	return nil
}

// ListByTask returns a task's results, oldest first.
func (r *TaskResultRepo) ListByTask(ctx context.Context, tenantID, taskID uuid.UUID) ([]models.TaskResult, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+taskResultColumns+` FROM task_results
		 WHERE tenant_id = $1 AND task_id = $2
		 ORDER BY created_at`, tenantID, taskID)
	if err != nil {
		return nil, fmt.Errorf("listing task results: %w", err)
	}
	defer rows.Close()
	var results []models.TaskResult
	for rows.Next() {
		tr, err := scanTaskResult(rows)
		if err != nil {
			return nil, fmt.Errorf("listing task results: %w", err)
		}
		results = append(results, tr)
	}
	return results, rows.Err()
}
