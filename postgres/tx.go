package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/meikuraledutech/flow"
)

// WithTx runs fn in a single transaction. The transaction is rolled back
// unless fn returns nil and the commit succeeds.
func (s *PGStore) WithTx(ctx context.Context, fn func(tx flow.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return wrap("begin tx", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return wrap("commit", tx.Commit(ctx))
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) ListNodes(ctx context.Context, flowID string) ([]flow.Node, error) {
	return listNodes(ctx, t.tx, flowID)
}

func (t *pgTx) DeleteNodes(ctx context.Context, flowID string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM flow_nodes WHERE flow_id = $1`, flowID)
	return wrap("delete nodes", err)
}

func (t *pgTx) DeleteNodesByID(ctx context.Context, flowID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := t.tx.Exec(ctx, `DELETE FROM flow_nodes WHERE flow_id = $1 AND id = ANY($2)`, flowID, ids)
	return wrap("delete nodes by id", err)
}

func (t *pgTx) InsertNodes(ctx context.Context, flowID string, nodes []flow.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	return insertNodes(ctx, t.tx, flowID, nodes)
}

func (t *pgTx) UpdateNode(ctx context.Context, flowID string, n *flow.Node) error {
	data, err := json.Marshal(n)
	if err != nil {
		return wrap("encode node", err)
	}
	ct, err := t.tx.Exec(ctx,
		`UPDATE flow_nodes SET type = $3, draft = $4, data = $5 WHERE flow_id = $1 AND id = $2`,
		flowID, n.ID, string(n.Type), n.Draft, data,
	)
	if err != nil {
		return wrap("update node", err)
	}
	if ct.RowsAffected() == 0 {
		return flow.ErrNodeNotFound
	}
	return nil
}

func (t *pgTx) CommitFlow(ctx context.Context, f *flow.Flow, owner string) error {
	ct, err := t.tx.Exec(ctx,
		`UPDATE flows
		 SET start_node_id = $2, status = $3, version = $4, published_at = $5, updated_at = $6,
		     lock_owner = '', lock_acquired_at = NULL, lock_expires_at = NULL
		 WHERE id = $1 AND lock_owner = $7`,
		f.ID, f.StartNodeID, string(f.Status), f.Version, f.PublishedAt, f.UpdatedAt, owner,
	)
	if err != nil {
		return wrap("update flow", err)
	}
	if ct.RowsAffected() == 0 {
		return flow.ErrLockConflict
	}
	return nil
}
