package flow_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/flow"
	"github.com/meikuraledutech/flow/sqlite"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "flow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newFlow(t *testing.T, s flow.Store, chatbotID string) *flow.Flow {
	t.Helper()
	f, err := s.CreateFlow(context.Background(), &flow.Flow{ChatbotID: chatbotID})
	require.NoError(t, err)
	return f
}

func newCompiler(s flow.Store, opts ...flow.CompilerOption) (*flow.Compiler, *flow.EditLock) {
	lock := flow.NewEditLock(s)
	return flow.NewCompiler(s, lock, zerolog.Nop(), opts...), lock
}

func textNode(id, next string) flow.Node {
	return flow.Node{ID: id, Type: flow.TypeText, Content: []byte(`"` + id + `"`), NextNodeID: next}
}

func endNode(id string) flow.Node {
	return flow.Node{ID: id, Type: flow.TypeText, EndConversation: true}
}

// onboarding is a publishable graph: welcome, consent, email capture, goodbye.
func onboarding() []flow.Node {
	return []flow.Node{
		textNode("welcome", "policy"),
		{ID: "policy", Type: flow.TypeDataPolicy, NextNodeID: "email", Policy: &flow.PolicyLabels{Accept: "I agree"}},
		{ID: "email", Type: flow.TypeEmail, VariableKey: "email", NextNodeID: "bye"},
		endNode("bye"),
	}
}

// shape renders a node set with durable ids replaced by positions, so two
// saves of the same graph can be compared.
func shape(nodes []flow.Node) []flow.Node {
	pos := make(map[string]string, len(nodes))
	for i, n := range nodes {
		pos[n.ID] = string(rune('A' + i))
	}
	out := make([]flow.Node, len(nodes))
	for i, n := range nodes {
		n.ID = pos[n.ID]
		n.FlowID = ""
		if n.NextNodeID != "" {
			n.NextNodeID = pos[n.NextNodeID]
		}
		opts := make([]flow.Option, len(n.Options))
		for j, o := range n.Options {
			if o.NextNodeID != "" {
				o.NextNodeID = pos[o.NextNodeID]
			}
			opts[j] = o
		}
		if n.Options != nil {
			n.Options = opts
		}
		out[i] = n
	}
	return out
}

// failingStore injects errors into transactions of an underlying store.
type failingStore struct {
	flow.Store
	// insertErr returns the error for the n-th InsertNodes call, or nil.
	insertErr func(n int) error
	inserts   int
}

func (s *failingStore) WithTx(ctx context.Context, fn func(tx flow.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx flow.Tx) error {
		return fn(&failingTx{Tx: tx, store: s})
	})
}

type failingTx struct {
	flow.Tx
	store *failingStore
}

func (t *failingTx) InsertNodes(ctx context.Context, flowID string, nodes []flow.Node) error {
	t.store.inserts++
	if err := t.store.insertErr(t.store.inserts); err != nil {
		return err
	}
	return t.Tx.InsertNodes(ctx, flowID, nodes)
}
