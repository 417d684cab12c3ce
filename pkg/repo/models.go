package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/starfleetai/bridge/pkg/models"
)

// ModelRepo persists LLM model definitions.
type ModelRepo struct {
	db Querier
}

const modelColumns = `id, tenant_id, provider, name, context_length, max_tokens,
	text_in, text_out, image_in, image_out, audio_in, audio_out,
	function_calling, api_url, api_key, created_at, updated_at`

func scanModel(row pgx.Row) (models.Model, error) {
	var m models.Model
	err := row.Scan(&m.ID, &m.TenantID, &m.Provider, &m.Name, &m.ContextLength,
		&m.MaxTokens, &m.TextIn, &m.TextOut, &m.ImageIn, &m.ImageOut,
		&m.AudioIn, &m.AudioOut, &m.FunctionCalling, &m.APIURL, &m.APIKey,
		&m.CreatedAt, &m.UpdatedAt)
	return m, err
}

// Create inserts a model.
func (r *ModelRepo) Create(ctx context.Context, m *models.Model) error {
	m.ID = uuid.New()
	row := r.db.QueryRow(ctx, `
		INSERT INTO models (id, tenant_id, provider, name, context_length, max_tokens,
			text_in, text_out, image_in, image_out, audio_in, audio_out,
			function_calling, api_url, api_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING `+modelColumns,
		m.ID, m.TenantID, m.Provider, m.Name, m.ContextLength, m.MaxTokens,
		m.TextIn, m.TextOut, m.ImageIn, m.ImageOut, m.AudioIn, m.AudioOut,
		m.FunctionCalling, m.APIURL, m.APIKey)
	created, err := scanModel(row)
	if err != nil {
		return fmt.Errorf("creating model: %w", err)
	}
	*m = created
	return nil
}

// List returns a tenant's models.
func (r *ModelRepo) List(ctx context.Context, tenantID uuid.UUID) ([]models.Model, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+modelColumns+` FROM models
		 WHERE tenant_id = $1 ORDER BY provider, name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	defer rows.Close()
	var out []models.Model
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("listing models: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetByFullName resolves a "Provider/name" reference, the form used by
// settings.default_model.
func (r *ModelRepo) GetByFullName(ctx context.Context, tenantID uuid.UUID, fullName string) (models.Model, error) {
	provider, name, ok := strings.Cut(fullName, "/")
	if !ok {
		return models.Model{}, fmt.Errorf("malformed model name %q, want Provider/name", fullName)
	}
	row := r.db.QueryRow(ctx,
		`SELECT `+modelColumns+` FROM models
		 WHERE tenant_id = $1 AND provider = $2 AND name = $3`,
		tenantID, provider, name)
	m, err := scanModel(row)
	if err != nil {
		return models.Model{}, notFoundOr(err, fmt.Sprintf("getting model %q", fullName))
	}
	return m, nil
}

// Get returns one model by id.
func (r *ModelRepo) Get(ctx context.Context, tenantID, id uuid.UUID) (models.Model, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+modelColumns+` FROM models WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)
	m, err := scanModel(row)
	if err != nil {
		return models.Model{}, notFoundOr(err, "getting model")
	}
	return m, nil
}

// Delete removes a model.
func (r *ModelRepo) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM models WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("deleting model: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deleting model: %w", ErrNotFound)
	}
	return nil
}
