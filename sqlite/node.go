package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/meikuraledutech/flow"
)

func listNodes(ctx context.Context, q querier, flowID string) ([]flow.Node, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT data FROM flow_nodes WHERE flow_id = ? ORDER BY position`, flowID)
	if err != nil {
		return nil, wrap("list nodes", err)
	}
	defer rows.Close()

	nodes := []flow.Node{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, wrap("scan node", err)
		}
		var n flow.Node
		if err := json.Unmarshal([]byte(data), &n); err != nil {
			return nil, wrap("decode node", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("rows nodes", err)
	}
	return nodes, nil
}

// WithTx runs fn in a single transaction. The transaction is rolled back
// unless fn returns nil and the commit succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(tx flow.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin tx", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{tx: tx}); err != nil {
		return err
	}
	return wrap("commit", tx.Commit())
}

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) ListNodes(ctx context.Context, flowID string) ([]flow.Node, error) {
	return listNodes(ctx, t.tx, flowID)
}

func (t *sqlTx) DeleteNodes(ctx context.Context, flowID string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM flow_nodes WHERE flow_id = ?`, flowID)
	return wrap("delete nodes", err)
}

func (t *sqlTx) DeleteNodesByID(ctx context.Context, flowID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, flowID)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	_, err := t.tx.ExecContext(ctx,
		`DELETE FROM flow_nodes WHERE flow_id = ? AND id IN (`+placeholders+`)`, args...)
	return wrap("delete nodes by id", err)
}

func (t *sqlTx) InsertNodes(ctx context.Context, flowID string, nodes []flow.Node) error {
	stmt, err := t.tx.PrepareContext(ctx,
		`INSERT INTO flow_nodes (id, flow_id, position, type, draft, data) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return wrap("prepare insert node", err)
	}
	defer stmt.Close()

	for i := range nodes {
		n := nodes[i]
		n.FlowID = flowID
		data, err := json.Marshal(n)
		if err != nil {
			return wrap("encode node", err)
		}
		if _, err := stmt.ExecContext(ctx, n.ID, flowID, n.Order, string(n.Type), n.Draft, string(data)); err != nil {
			return wrap("insert node "+n.ID, err)
		}
	}
	return nil
}

func (t *sqlTx) UpdateNode(ctx context.Context, flowID string, n *flow.Node) error {
	data, err := json.Marshal(n)
	if err != nil {
		return wrap("encode node", err)
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE flow_nodes SET type = ?, draft = ?, data = ? WHERE flow_id = ? AND id = ?`,
		string(n.Type), n.Draft, string(data), flowID, n.ID,
	)
	ok, err := affectedOne("update node", res, err)
	if err != nil {
		return err
	}
	if !ok {
		return flow.ErrNodeNotFound
	}
	return nil
}

func (t *sqlTx) CommitFlow(ctx context.Context, f *flow.Flow, owner string) error {
	updated := f.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE flows
		SET start_node_id = ?, status = ?, version = ?, published_at = ?, updated_at = ?,
		    lock_owner = '', lock_acquired_at = 0, lock_expires_at = 0
		WHERE id = ? AND lock_owner = ?`,
		f.StartNodeID, string(f.Status), f.Version, toNanos(f.PublishedAt), updated.UnixNano(), f.ID, owner,
	)
	ok, err := affectedOne("update flow", res, err)
	if err != nil {
		return err
	}
	if !ok {
		return flow.ErrLockConflict
	}
	return nil
}
