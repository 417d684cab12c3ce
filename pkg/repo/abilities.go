package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/starfleetai/bridge/pkg/models"
)

// AbilityRepo persists abilities.
type AbilityRepo struct {
	db Querier
}

const abilityColumns = `id, tenant_id, name, description, code, parameters_json,
	created_at, updated_at`

func scanAbility(row pgx.Row) (models.Ability, error) {
	var a models.Ability
	err := row.Scan(&a.ID, &a.TenantID, &a.Name, &a.Description, &a.Code,
		&a.ParametersJSON, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func scanAbilities(rows pgx.Rows) ([]models.Ability, error) {
	defer rows.Close()
	var abilities []models.Ability
	for rows.Next() {
		a, err := scanAbility(rows)
		if err != nil {
			return nil, err
		}
		abilities = append(abilities, a)
	}
	return abilities, rows.Err()
}

// Create inserts an ability.
func (r *AbilityRepo) Create(ctx context.Context, a *models.Ability) error {
	a.ID = uuid.New()
	row := r.db.QueryRow(ctx, `
		INSERT INTO abilities (id, tenant_id, name, description, code, parameters_json)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+abilityColumns,
		a.ID, a.TenantID, a.Name, a.Description, a.Code, a.ParametersJSON)
	created, err := scanAbility(row)
	if err != nil {
		return fmt.Errorf("creating ability: %w", err)
	}
	*a = created
	return nil
}

// Get returns one ability by id.
func (r *AbilityRepo) Get(ctx context.Context, tenantID, id uuid.UUID) (models.Ability, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+abilityColumns+` FROM abilities WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)
	a, err := scanAbility(row)
	if err != nil {
		return models.Ability{}, notFoundOr(err, "getting ability")
	}
	return a, nil
}

// List returns a tenant's abilities, oldest first.
func (r *AbilityRepo) List(ctx context.Context, tenantID uuid.UUID) ([]models.Ability, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+abilityColumns+` FROM abilities
		 WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing abilities: %w", err)
	}
	abilities, err := scanAbilities(rows)
	if err != nil {
		return nil, fmt.Errorf("listing abilities: %w", err)
	}
	return abilities, nil
}

// ListForAgent returns the abilities curated for an agent, oldest first.
func (r *AbilityRepo) ListForAgent(ctx context.Context, tenantID, agentID uuid.UUID) ([]models.Ability, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+abilityColumns+` FROM abilities a
		JOIN agent_abilities aa ON aa.ability_id = a.id
		WHERE a.tenant_id = $1 AND aa.agent_id = $2
		ORDER BY a.created_at`, tenantID, agentID)
	if err != nil {
		return nil, fmt.Errorf("listing agent abilities: %w", err)
	}
	abilities, err := scanAbilities(rows)
	if err != nil {
		return nil, fmt.Errorf("listing agent abilities: %w", err)
	}
	return abilities, nil
}

// Update rewrites an ability's mutable columns.
func (r *AbilityRepo) Update(ctx context.Context, a *models.Ability) error {
	row := r.db.QueryRow(ctx, `
		UPDATE abilities SET name = $1, description = $2, code = $3,
			parameters_json = $4, updated_at = now()
		WHERE tenant_id = $5 AND id = $6
		RETURNING `+abilityColumns,
		a.Name, a.Description, a.Code, a.ParametersJSON, a.TenantID, a.ID)
	updated, err := scanAbility(row)
	if err != nil {
		return notFoundOr(err, "updating ability")
	}
	*a = updated
	return nil
}

// Delete removes an ability.
func (r *AbilityRepo) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM abilities WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("deleting ability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deleting ability: %w", ErrNotFound)
	}
	return nil
}
