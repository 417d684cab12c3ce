package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/starfleetai/bridge/pkg/models"
)

// AgentRepo persists agents.
type AgentRepo struct {
	db Querier
}

const agentColumns = `id, tenant_id, name, description, system_message, is_enabled,
	is_code_interpreter_enabled, is_web_browser_enabled, execution_steps_limit,
	created_at, updated_at`

func scanAgent(row pgx.Row) (models.Agent, error) {
	var a models.Agent
	err := row.Scan(&a.ID, &a.TenantID, &a.Name, &a.Description, &a.SystemMessage,
		&a.IsEnabled, &a.IsCodeInterpreterEnabled, &a.IsWebBrowserEnabled,
		&a.ExecutionStepsLimit, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// Create inserts an agent.
func (r *AgentRepo) Create(ctx context.Context, a *models.Agent) error {
	a.ID = uuid.New()
	row := r.db.QueryRow(ctx, `
		INSERT INTO agents (id, tenant_id, name, description, system_message, is_enabled,
			is_code_interpreter_enabled, is_web_browser_enabled, execution_steps_limit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+agentColumns,
		a.ID, a.TenantID, a.Name, a.Description, a.SystemMessage, a.IsEnabled,
		a.IsCodeInterpreterEnabled, a.IsWebBrowserEnabled, a.ExecutionStepsLimit)
	created, err := scanAgent(row)
	if err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}
	*a = created
	return nil
}

// Get returns one agent by id.
func (r *AgentRepo) Get(ctx context.Context, tenantID, id uuid.UUID) (models.Agent, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)
	a, err := scanAgent(row)
	if err != nil {
		return models.Agent{}, notFoundOr(err, "getting agent")
	}
	return a, nil
}

// List returns all of a tenant's agents, oldest first.
func (r *AgentRepo) List(ctx context.Context, tenantID uuid.UUID) ([]models.Agent, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+agentColumns+` FROM agents
		 WHERE tenant_id = $1
		 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	defer rows.Close()
	var agents []models.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("listing agents: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// ListEnabled returns a tenant's enabled agents, oldest first. The planner
// offers these as assignment candidates.
func (r *AgentRepo) ListEnabled(ctx context.Context, tenantID uuid.UUID) ([]models.Agent, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+agentColumns+` FROM agents
		 WHERE tenant_id = $1 AND is_enabled = TRUE
		 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing enabled agents: %w", err)
	}
	defer rows.Close()
	var agents []models.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("listing enabled agents: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// Update rewrites an agent's mutable columns.
func (r *AgentRepo) Update(ctx context.Context, a *models.Agent) error {
	row := r.db.QueryRow(ctx, `
		UPDATE agents SET name = $1, description = $2, system_message = $3,
			is_enabled = $4, is_code_interpreter_enabled = $5,
			is_web_browser_enabled = $6, execution_steps_limit = $7, updated_at = now()
		WHERE tenant_id = $8 AND id = $9
		RETURNING `+agentColumns,
		a.Name, a.Description, a.SystemMessage, a.IsEnabled,
		a.IsCodeInterpreterEnabled, a.IsWebBrowserEnabled, a.ExecutionStepsLimit,
		a.TenantID, a.ID)
	updated, err := scanAgent(row)
	if err != nil {
		return notFoundOr(err, "updating agent")
	}
	*a = updated
	return nil
}

// Delete removes an agent.
func (r *AgentRepo) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM agents WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("deleting agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deleting agent: %w", ErrNotFound)
	}
	return nil
}

// SetAbilities replaces the agent's curated ability set.
func (r *AgentRepo) SetAbilities(ctx context.Context, agentID uuid.UUID, abilityIDs []uuid.UUID) error {
	if _, err := r.db.Exec(ctx,
		`DELETE FROM agent_abilities WHERE agent_id = $1`, agentID); err != nil {
		return fmt.Errorf("clearing agent abilities: %w", err)
	}
	for _, abilityID := range abilityIDs {
		if _, err := r.db.Exec(ctx, `
			INSERT INTO agent_abilities (agent_id, ability_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, agentID, abilityID); err != nil {
			return fmt.Errorf("linking ability %s: %w", abilityID, err)
		}
	}
	return nil
}
