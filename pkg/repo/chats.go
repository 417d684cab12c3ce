package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/starfleetai/bridge/pkg/models"
)

// ChatRepo persists chats.
type ChatRepo struct {
	db Querier
}

const chatColumns = `id, tenant_id, model_id, title, is_pinned, kind, created_at, updated_at`

func scanChat(row pgx.Row) (models.Chat, error) {
	var c models.Chat
	err := row.Scan(&c.ID, &c.TenantID, &c.ModelID, &c.Title, &c.IsPinned,
		&c.Kind, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// Create inserts a chat.
func (r *ChatRepo) Create(ctx context.Context, c *models.Chat) error {
	c.ID = uuid.New()
	if c.Kind == "" {
		c.Kind = models.ChatKindDirect
	}
	row := r.db.QueryRow(ctx, `
		INSERT INTO chats (id, tenant_id, model_id, title, is_pinned, kind)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+chatColumns,
		c.ID, c.TenantID, c.ModelID, c.Title, c.IsPinned, c.Kind)
	created, err := scanChat(row)
	if err != nil {
		return fmt.Errorf("creating chat: %w", err)
	}
	*c = created
	return nil
}

// Get returns one chat by id.
func (r *ChatRepo) Get(ctx context.Context, tenantID, id uuid.UUID) (models.Chat, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+chatColumns+` FROM chats WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)
	c, err := scanChat(row)
	if err != nil {
		return models.Chat{}, notFoundOr(err, "getting chat")
	}
	return c, nil
}

// List returns a tenant's chats of a kind, pinned first, newest first.
func (r *ChatRepo) List(ctx context.Context, tenantID uuid.UUID, kind models.ChatKind) ([]models.Chat, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+chatColumns+` FROM chats
		 WHERE tenant_id = $1 AND kind = $2
		 ORDER BY is_pinned DESC, created_at DESC`, tenantID, kind)
	if err != nil {
		return nil, fmt.Errorf("listing chats: %w", err)
	}
	defer rows.Close()
	var chats []models.Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("listing chats: %w", err)
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// Update rewrites a chat's mutable columns.
func (r *ChatRepo) Update(ctx context.Context, c *models.Chat) error {
	row := r.db.QueryRow(ctx, `
		UPDATE chats SET model_id = $1, title = $2, is_pinned = $3, updated_at = now()
		WHERE tenant_id = $4 AND id = $5
		RETURNING `+chatColumns,
		c.ModelID, c.Title, c.IsPinned, c.TenantID, c.ID)
	updated, err := scanChat(row)
	if err != nil {
		return notFoundOr(err, "updating chat")
	}
	*c = updated
	return nil
}

// Delete removes a chat and its messages.
func (r *ChatRepo) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM chats WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("deleting chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deleting chat: %w", ErrNotFound)
	}
	return nil
}

// AddAgent links an agent to a chat.
func (r *ChatRepo) AddAgent(ctx context.Context, agentID, chatID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO agents_chats (agent_id, chat_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, agentID, chatID)
	if err != nil {
		return fmt.Errorf("linking agent to chat: %w", err)
	}
	return nil
}

// AgentID returns the agent linked to a chat, if any.
func (r *ChatRepo) AgentID(ctx context.Context, chatID uuid.UUID) (*uuid.UUID, error) {
	var agentID uuid.UUID
	err := r.db.QueryRow(ctx,
		`SELECT agent_id FROM agents_chats WHERE chat_id = $1 LIMIT 1`, chatID).Scan(&agentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting chat agent: %w", err)
	}
	return &agentID, nil
}
