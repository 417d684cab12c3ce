// Package database provides a migrated Postgres client for integration
// tests. Each test gets its own schema inside a shared database, so tests
// run in parallel without stepping on each other.
package database

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/starfleetai/bridge/pkg/database"
	"github.com/starfleetai/bridge/test/util"
)

// NewTestClient creates a database client bound to a fresh schema with all
// migrations applied. The schema is dropped and the pool closed when the
// test ends.
func NewTestClient(t *testing.T) *database.Client {
	t.Helper()
	ctx := context.Background()

	baseConnStr := util.GetBaseConnectionString(t)
	schemaName := util.GenerateSchemaName(t)

	createSchema(t, baseConnStr, schemaName)

	client, err := database.NewClient(ctx, database.Config{
		URL:      util.AddSearchPathToConnString(baseConnStr, schemaName),
		PoolSize: 5,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		dropSchema(t, baseConnStr, schemaName)
	})

	return client
}

func createSchema(t *testing.T, connStr, schemaName string) {
	t.Helper()
	ctx := context.Background()

	conn, err := pgx.Connect(ctx, connStr)
	require.NoError(t, err)
	defer func() { _ = conn.Close(ctx) }()

	_, err = conn.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", schemaName))
	require.NoError(t, err)
	t.Logf("Created test schema %s", schemaName)
}

func dropSchema(t *testing.T, connStr, schemaName string) {
	ctx := context.Background()

	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		t.Logf("Warning: could not connect to drop schema %s: %v", schemaName, err)
		return
	}
	defer func() { _ = conn.Close(ctx) }()

	if _, err := conn.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName)); err != nil {
		t.Logf("Warning: failed to drop schema %s: %v", schemaName, err)
	}
}
