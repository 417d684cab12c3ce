// Package repo implements Postgres persistence for the orchestration core.
// All queries are tenant scoped.
package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a tenant-scoped lookup matches no row.
var ErrNotFound = errors.New("not found")

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx. Every
// repository runs against it, so the same code works inside and outside a
// transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store bundles all repositories over one Querier.
type Store struct {
	db Querier

	Tasks       *TaskRepo
	TaskResults *TaskResultRepo
	Chats       *ChatRepo
	Messages    *MessageRepo
	Agents      *AgentRepo
	Abilities   *AbilityRepo
	Models      *ModelRepo
	Settings    *SettingsRepo
}

// NewStore builds a store over a pool or transaction.
func NewStore(db Querier) *Store {
	return &Store{
		db:          db,
		Tasks:       &TaskRepo{db: db},
		TaskResults: &TaskResultRepo{db: db},
		Chats:       &ChatRepo{db: db},
		Messages:    &MessageRepo{db: db},
		Agents:      &AgentRepo{db: db},
		Abilities:   &AbilityRepo{db: db},
		Models:      &ModelRepo{db: db},
		Settings:    &SettingsRepo{db: db},
	}
}

// WithTx runs fn against a store bound to a single transaction, committing
// on success and rolling back on error.
func (s *Store) WithTx(ctx context.Context, fn func(*Store) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(NewStore(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}
