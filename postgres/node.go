package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/meikuraledutech/flow"
)

const insertNodeSQL = `INSERT INTO flow_nodes (id, flow_id, position, type, draft, data) VALUES ($1, $2, $3, $4, $5, $6)`

func listNodes(ctx context.Context, q querier, flowID string) ([]flow.Node, error) {
	rows, err := q.Query(ctx,
		`SELECT data FROM flow_nodes WHERE flow_id = $1 ORDER BY position, created_at`, flowID)
	if err != nil {
		return nil, wrap("list nodes", err)
	}
	defer rows.Close()

	nodes := []flow.Node{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, wrap("scan node", err)
		}
		var n flow.Node
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, wrap("decode node", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("rows nodes", err)
	}
	return nodes, nil
}

// insertNodes queues every insert into one batch round trip.
func insertNodes(ctx context.Context, tx pgx.Tx, flowID string, nodes []flow.Node) error {
	batch := &pgx.Batch{}
	for i := range nodes {
		n := nodes[i]
		n.FlowID = flowID
		data, err := json.Marshal(n)
		if err != nil {
			return wrap("encode node", err)
		}
		batch.Queue(insertNodeSQL, n.ID, flowID, n.Order, string(n.Type), n.Draft, data)
	}
	br := tx.SendBatch(ctx, batch)
	for range nodes {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return wrap("insert node", err)
		}
	}
	return wrap("insert nodes", br.Close())
}
