// Package sqlite implements flow.Store on SQLite through database/sql.
//
// It expects an *sql.DB opened with the "modernc.org/sqlite" driver. Open
// does that and limits the pool to one connection, which keeps :memory:
// databases shared and serializes writers the way SQLite wants.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/meikuraledutech/flow"
)

// Store implements flow.Store using SQLite.
type Store struct {
	db *sql.DB
}

var _ flow.Store = (*Store)(nil)

// New wraps an already opened database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens dsn with the modernc driver and creates the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("flow: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := New(db)
	if err := s.CreateSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS flows (
	id               TEXT PRIMARY KEY,
	chatbot_id       TEXT NOT NULL,
	start_node_id    TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'draft',
	version          INTEGER NOT NULL DEFAULT 0,
	published_at     INTEGER NOT NULL DEFAULT 0,
	lock_owner       TEXT NOT NULL DEFAULT '',
	lock_acquired_at INTEGER NOT NULL DEFAULT 0,
	lock_expires_at  INTEGER NOT NULL DEFAULT 0,
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS flow_nodes (
	id       TEXT PRIMARY KEY,
	flow_id  TEXT NOT NULL,
	position INTEGER NOT NULL,
	type     TEXT NOT NULL,
	draft    INTEGER NOT NULL DEFAULT 1,
	data     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_flow_nodes_flow_id ON flow_nodes(flow_id, position);
`

// CreateSchema creates the flows and flow_nodes tables if they don't exist.
func (s *Store) CreateSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return wrap("create schema", err)
}

// DropSchema drops the flow_nodes and flows tables.
func (s *Store) DropSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS flow_nodes; DROP TABLE IF EXISTS flows;`)
	return wrap("drop schema", err)
}
