package postgres

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS flows (
    id               TEXT PRIMARY KEY,
    chatbot_id       TEXT NOT NULL,
    start_node_id    TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL DEFAULT 'draft',
    version          INTEGER NOT NULL DEFAULT 0,
    published_at     TIMESTAMPTZ,
    lock_owner       TEXT NOT NULL DEFAULT '',
    lock_acquired_at TIMESTAMPTZ,
    lock_expires_at  TIMESTAMPTZ,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS flow_nodes (
    id         TEXT PRIMARY KEY,
    flow_id    TEXT NOT NULL REFERENCES flows(id) ON DELETE CASCADE,
    position   INTEGER NOT NULL,
    type       TEXT NOT NULL,
    draft      BOOLEAN NOT NULL DEFAULT TRUE,
    data       JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_flows_chatbot_id    ON flows(chatbot_id);
CREATE INDEX IF NOT EXISTS idx_flow_nodes_flow_id  ON flow_nodes(flow_id, position);
`

// CreateSchema creates the flows and flow_nodes tables if they don't exist.
func (s *PGStore) CreateSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaSQL)
	return err
}

// DropSchema drops the flow_nodes and flows tables.
func (s *PGStore) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DROP TABLE IF EXISTS flow_nodes, flows CASCADE;`)
	return err
}
