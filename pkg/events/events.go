// Package events broadcasts entity lifecycle events to interested clients.
// Events are fire-and-forget snapshots: a failure to deliver never fails the
// operation that produced it.
package events

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Kind names an event variant on the wire.
type Kind string

// Event kinds.
const (
	KindTaskCreated       Kind = "TaskCreated"
	KindTaskUpdated       Kind = "TaskUpdated"
	KindTaskResultCreated Kind = "TaskResultCreated"
	KindMessageCreated    Kind = "MessageCreated"
	KindMessageUpdated    Kind = "MessageUpdated"
	KindChatCreated       Kind = "ChatCreated"
	KindChatUpdated       Kind = "ChatUpdated"
)

// Envelope is the wire form of every event: the owning tenant, the variant
// name and a full snapshot of the entity after the change. Listeners filter
// on tenant_id.
type Envelope struct {
	TenantID uuid.UUID `json:"tenant_id"`
	Event    Kind      `json:"event"`
	Data     any       `json:"data"`
}

// Emitter delivers entity snapshots scoped to one tenant. Emit never returns
// an error; delivery problems are logged by implementations.
type Emitter interface {
	Emit(ctx context.Context, tenantID uuid.UUID, kind Kind, data any)
}

// NopEmitter discards everything. Used in tests and one-shot tools.
type NopEmitter struct{}

// Emit discards the event.
func (NopEmitter) Emit(context.Context, uuid.UUID, Kind, any) {}

// LogEmitter writes events to the process log instead of a broker. Useful
// when running without listeners.
type LogEmitter struct{}

// Emit logs the event kind.
func (LogEmitter) Emit(_ context.Context, tenantID uuid.UUID, kind Kind, _ any) {
	slog.Debug("Event emitted", "tenant_id", tenantID, "kind", kind)
}
