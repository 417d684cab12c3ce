package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/starfleetai/bridge/pkg/models"
)

// SettingsRepo persists the per-tenant settings blob.
type SettingsRepo struct {
	db Querier
}

// Get returns a tenant's settings, falling back to defaults when none are
// stored yet.
func (r *SettingsRepo) Get(ctx context.Context, tenantID uuid.UUID) (models.Settings, error) {
	var raw []byte
	err := r.db.QueryRow(ctx,
		`SELECT data FROM settings WHERE tenant_id = $1`, tenantID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.DefaultSettings(), nil
		}
		return models.Settings{}, fmt.Errorf("getting settings: %w", err)
	}
	s, err := models.ParseSettings(raw)
	if err != nil {
		return models.Settings{}, fmt.Errorf("parsing settings: %w", err)
	}
	return s, nil
}

// Put upserts a tenant's settings.
func (r *SettingsRepo) Put(ctx context.Context, tenantID uuid.UUID, s models.Settings) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO settings (tenant_id, data)
		VALUES ($1, $2)
		ON CONFLICT (tenant_id) DO UPDATE SET data = $2, updated_at = now()`,
		tenantID, raw)
	if err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}
