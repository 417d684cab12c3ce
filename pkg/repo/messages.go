package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/starfleetai/bridge/pkg/models"
)

// MessageRepo persists chat messages.
type MessageRepo struct {
	db Querier
}

const messageColumns = `id, tenant_id, chat_id, agent_id, user_id, status, role, content,
	prompt_tokens, completion_tokens, tool_calls, tool_call_id,
	is_self_reflection, is_internal_tool_output, created_at, updated_at`

func scanMessage(row pgx.Row) (models.Message, error) {
	var m models.Message
	err := row.Scan(&m.ID, &m.TenantID, &m.ChatID, &m.AgentID, &m.UserID, &m.Status,
		&m.Role, &m.Content, &m.PromptTokens, &m.CompletionTokens, &m.ToolCalls,
		&m.ToolCallID, &m.IsSelfReflection, &m.IsInternalToolOutput,
		&m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func scanMessages(rows pgx.Rows) ([]models.Message, error) {
	defer rows.Close()
	var msgs []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Create inserts a message.
func (r *MessageRepo) Create(ctx context.Context, m *models.Message) error {
	m.ID = uuid.New()
	row := r.db.QueryRow(ctx, `
		INSERT INTO messages (id, tenant_id, chat_id, agent_id, user_id, status, role,
			content, prompt_tokens, completion_tokens, tool_calls, tool_call_id,
			is_self_reflection, is_internal_tool_output)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING `+messageColumns,
		m.ID, m.TenantID, m.ChatID, m.AgentID, m.UserID, m.Status, m.Role,
		m.Content, m.PromptTokens, m.CompletionTokens, m.ToolCalls, m.ToolCallID,
		m.IsSelfReflection, m.IsInternalToolOutput)
	created, err := scanMessage(row)
	if err != nil {
		return fmt.Errorf("creating message: %w", err)
	}
	*m = created
	return nil
}

// Get returns one message by id.
func (r *MessageRepo) Get(ctx context.Context, tenantID, id uuid.UUID) (models.Message, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)
	m, err := scanMessage(row)
	if err != nil {
		return models.Message{}, notFoundOr(err, "getting message")
	}
	return m, nil
}

// ListByChat returns a chat's messages in creation order.
func (r *MessageRepo) ListByChat(ctx context.Context, tenantID, chatID uuid.UUID) ([]models.Message, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE tenant_id = $1 AND chat_id = $2
		 ORDER BY created_at`, tenantID, chatID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return msgs, nil
}

// GetLast returns the newest message in a chat.
func (r *MessageRepo) GetLast(ctx context.Context, tenantID, chatID uuid.UUID) (models.Message, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE tenant_id = $1 AND chat_id = $2
		 ORDER BY created_at DESC LIMIT 1`, tenantID, chatID)
	m, err := scanMessage(row)
	if err != nil {
		return models.Message{}, notFoundOr(err, "getting last message")
	}
	return m, nil
}

// GetLastNonSelfReflection returns the newest assistant message that was not
// produced by a self-reflection turn.
func (r *MessageRepo) GetLastNonSelfReflection(ctx context.Context, tenantID, chatID uuid.UUID) (models.Message, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE tenant_id = $1 AND chat_id = $2 AND role = $3 AND is_self_reflection = FALSE
		 ORDER BY created_at DESC LIMIT 1`,
		tenantID, chatID, models.RoleAssistant)
	m, err := scanMessage(row)
	if err != nil {
		return models.Message{}, notFoundOr(err, "getting last non-self-reflection message")
	}
	return m, nil
}

// CountExecutionSteps counts assistant messages that were not internal tool
// output. The executor compares this against the steps limit.
func (r *MessageRepo) CountExecutionSteps(ctx context.Context, tenantID, chatID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT count(*) FROM messages
		WHERE tenant_id = $1 AND chat_id = $2 AND role = $3 AND is_internal_tool_output = FALSE`,
		tenantID, chatID, models.RoleAssistant).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting execution steps: %w", err)
	}
	return n, nil
}

// Update rewrites the mutable columns of a message. Streaming calls this
// once, to close the assembled assistant message.
func (r *MessageRepo) Update(ctx context.Context, m *models.Message) error {
	row := r.db.QueryRow(ctx, `
		UPDATE messages SET status = $1, content = $2, prompt_tokens = $3,
			completion_tokens = $4, tool_calls = $5, updated_at = now()
		WHERE tenant_id = $6 AND id = $7
		RETURNING `+messageColumns,
		m.Status, m.Content, m.PromptTokens, m.CompletionTokens, m.ToolCalls,
		m.TenantID, m.ID)
	updated, err := scanMessage(row)
	if err != nil {
		return notFoundOr(err, "updating message")
	}
	*m = updated
	return nil
}

// UpdateStatus transitions a message.
func (r *MessageRepo) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status models.MessageStatus) (models.Message, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE messages SET status = $1, updated_at = now()
		WHERE tenant_id = $2 AND id = $3
		RETURNING `+messageColumns, status, tenantID, id)
	m, err := scanMessage(row)
	if err != nil {
		return models.Message{}, notFoundOr(err, "updating message status")
	}
	return m, nil
}

// Delete removes a message.
func (r *MessageRepo) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM messages WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deleting message: %w", ErrNotFound)
	}
	return nil
}

// TransitionAll moves every message in one status to another. Used at
// startup to fail messages left Writing by a crash.
func (r *MessageRepo) TransitionAll(ctx context.Context, from, to models.MessageStatus) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE messages SET status = $1, updated_at = now() WHERE status = $2`, to, from)
	if err != nil {
		return 0, fmt.Errorf("transitioning messages %s to %s: %w", from, to, err)
	}
	return tag.RowsAffected(), nil
}
