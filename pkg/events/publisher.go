package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Channel is the pg_notify channel all events are broadcast on. Listeners
// filter by the envelope's event kind.
const Channel = "bridge_events"

// notifyLimit keeps payloads under PostgreSQL's 8000-byte NOTIFY cap, with
// headroom for quoting.
const notifyLimit = 7900

// NotifyPublisher broadcasts events via Postgres NOTIFY. Payloads are
// transient: a listener that was not connected when the event fired re-reads
// state through the API instead.
type NotifyPublisher struct {
	pool *pgxpool.Pool
}

// NewNotifyPublisher creates a publisher over the shared connection pool.
func NewNotifyPublisher(pool *pgxpool.Pool) *NotifyPublisher {
	return &NotifyPublisher{pool: pool}
}

// Emit marshals the envelope and broadcasts it. Failures are logged, never
// propagated.
func (p *NotifyPublisher) Emit(ctx context.Context, tenantID uuid.UUID, kind Kind, data any) {
	payload, err := json.Marshal(Envelope{TenantID: tenantID, Event: kind, Data: data})
	if err != nil {
		slog.Error("Failed to encode event", "kind", kind, "error", err)
		return
	}

	notifyPayload, err := fitPayload(tenantID, kind, payload)
	if err != nil {
		slog.Error("Failed to truncate event", "kind", kind, "error", err)
		return
	}

	if _, err := p.pool.Exec(ctx, "SELECT pg_notify($1, $2)", Channel, notifyPayload); err != nil {
		slog.Warn("Failed to broadcast event", "kind", kind, "error", err)
	}
}

// fitPayload returns the payload as-is when it fits the NOTIFY limit,
// otherwise a minimal envelope carrying only the tenant, the event kind and
// the entity id so clients can re-fetch.
func fitPayload(tenantID uuid.UUID, kind Kind, payload []byte) (string, error) {
	if len(payload) <= notifyLimit {
		return string(payload), nil
	}

	var probe struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return "", fmt.Errorf("extracting id for truncation: %w", err)
	}

	truncated, err := json.Marshal(map[string]any{
		"tenant_id": tenantID,
		"event":     kind,
		"truncated": true,
		"data":      map[string]any{"id": probe.Data.ID},
	})
	if err != nil {
		return "", fmt.Errorf("encoding truncated event: %w", err)
	}
	return string(truncated), nil
}
