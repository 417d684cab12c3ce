package database

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starfleetai/bridge/pkg/events"
	"github.com/starfleetai/bridge/pkg/models"
	"github.com/starfleetai/bridge/test/util"
)

// TestNotifyPublisherDelivers verifies an emitted event arrives on a separate
// listening connection, the way SSE fan-out consumes it in production.
func TestNotifyPublisherDelivers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := NewTestClient(t)

	// Listen on a dedicated connection. NOTIFY is database-wide, so the
	// base connection string is fine here.
	listener, err := pgx.Connect(ctx, util.GetBaseConnectionString(t))
	require.NoError(t, err)
	defer func() { _ = listener.Close(context.Background()) }()

	_, err = listener.Exec(ctx, "LISTEN "+events.Channel)
	require.NoError(t, err)

	publisher := events.NewNotifyPublisher(client.Pool())
	tenant := uuid.New()
	task := models.Task{ID: uuid.New(), TenantID: tenant, Title: "notify me", Status: models.TaskStatusToDo}
	publisher.Emit(ctx, tenant, events.KindTaskCreated, task)

	notification, err := listener.WaitForNotification(ctx)
	require.NoError(t, err)
	assert.Equal(t, events.Channel, notification.Channel)

	var envelope struct {
		TenantID uuid.UUID   `json:"tenant_id"`
		Event    events.Kind `json:"event"`
		Data     models.Task `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(notification.Payload), &envelope))
	assert.Equal(t, tenant, envelope.TenantID)
	assert.Equal(t, events.KindTaskCreated, envelope.Event)
	assert.Equal(t, task.ID, envelope.Data.ID)
	assert.Equal(t, "notify me", envelope.Data.Title)
}
