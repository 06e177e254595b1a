package flow

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func text(id, next string) Node { return Node{ID: id, Type: TypeText, NextNodeID: next} }

func end(id string) Node { return Node{ID: id, Type: TypeText, EndConversation: true} }

func email(id, next string) Node {
	return Node{ID: id, Type: TypeEmail, VariableKey: "email", NextNodeID: next}
}

func policy(id, next string) Node { return Node{ID: id, Type: TypeDataPolicy, NextNodeID: next} }

func requireKind(t *testing.T, err error, kind IntegrityKind, nodeID string) {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrGraphIntegrity), "expected integrity error, got %v", err)
	var ie *IntegrityError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, kind, ie.Kind)
	if nodeID != "" {
		assert.Equal(t, nodeID, ie.NodeID)
	}
}

func TestValidate_CaptureWithoutConsentIsRejected(t *testing.T) {
	nodes := []Node{text("start", "q"), email("q", "end"), end("end")}

	err := Validate(nodes, "start", true)
	requireKind(t, err, KindConsentViolation, "q")
}

func TestValidate_CaptureBehindPolicyIsAccepted(t *testing.T) {
	nodes := []Node{text("start", "policy"), policy("policy", "q"), email("q", "end"), end("end")}

	require.NoError(t, Validate(nodes, "start", true))
}

func TestValidate_ConsentRequiredOnEveryPath(t *testing.T) {
	// start branches to q directly and through the policy node.
	start := Node{ID: "start", Type: TypeOptions, Options: []Option{
		{Label: "Agree", NextNodeID: "policy"},
		{Label: "Skip", NextNodeID: "q"},
	}}
	nodes := []Node{start, policy("policy", "q"), email("q", "end"), end("end")}
	requireKind(t, Validate(nodes, "start", true), KindConsentViolation, "q")

	// Same diamond with the consented branch discovered second.
	start.Options[0], start.Options[1] = start.Options[1], start.Options[0]
	nodes[0] = start
	requireKind(t, Validate(nodes, "start", true), KindConsentViolation, "q")

	// Both branches through consent.
	start.Options = []Option{{Label: "A", NextNodeID: "policy"}, {Label: "B", NextNodeID: "policy2"}}
	nodes = []Node{start, policy("policy", "q"), policy("policy2", "q"), email("q", "end"), end("end")}
	require.NoError(t, Validate(nodes, "start", true))
}

func TestValidate_Cycle(t *testing.T) {
	nodes := []Node{text("start", "a"), text("a", "b"), text("b", "a")}
	requireKind(t, Validate(nodes, "start", true), KindCycle, "a")

	nodes[1].AllowLoop = true
	require.NoError(t, Validate(nodes, "start", true))
}

func TestValidate_DanglingEdge(t *testing.T) {
	nodes := []Node{text("start", "ghost")}
	requireKind(t, Validate(nodes, "start", true), KindDanglingEdge, "start")

	nodes = []Node{{ID: "start", Type: TypeOptions, Options: []Option{{Label: "x", NextNodeID: "ghost"}}}}
	requireKind(t, Validate(nodes, "start", true), KindDanglingEdge, "start")
}

func TestValidate_Roots(t *testing.T) {
	t.Run("no start", func(t *testing.T) {
		nodes := []Node{text("a", "b"), text("b", "a")}
		requireKind(t, Validate(nodes, "", true), KindNoStart, "")
	})
	t.Run("multiple starts", func(t *testing.T) {
		nodes := []Node{text("a", "end"), text("b", "end"), end("end")}
		requireKind(t, Validate(nodes, "a", true), KindMultipleStarts, "b")
	})
	t.Run("start mismatch", func(t *testing.T) {
		nodes := []Node{text("a", "b"), text("b", "end"), end("end")}
		requireKind(t, Validate(nodes, "b", true), KindStartMismatch, "b")
	})
	t.Run("undeclared start uses root", func(t *testing.T) {
		nodes := []Node{text("a", "b"), text("b", "end"), end("end")}
		require.NoError(t, Validate(nodes, "", true))
	})
}

func TestValidate_Orphan(t *testing.T) {
	// c and d only point at each other, so they have incoming edges but no path from start.
	nodes := []Node{text("start", "end"), end("end"), text("c", "d"), text("d", "c")}
	requireKind(t, Validate(nodes, "start", true), KindOrphan, "c")
}

func TestValidate_Exits(t *testing.T) {
	t.Run("dead end", func(t *testing.T) {
		nodes := []Node{text("start", "mid"), text("mid", "")}
		requireKind(t, Validate(nodes, "start", true), KindDeadEnd, "mid")
	})
	t.Run("terminal with exit", func(t *testing.T) {
		stop := end("stop")
		stop.NextNodeID = "after"
		nodes := []Node{text("start", "stop"), stop, end("after")}
		requireKind(t, Validate(nodes, "start", true), KindTerminalHasExit, "stop")
	})
	t.Run("link is an exit", func(t *testing.T) {
		nodes := []Node{text("start", "out"), {ID: "out", Type: TypeLink, Link: &LinkAction{URL: "https://example.com"}}}
		require.NoError(t, Validate(nodes, "start", true))
	})
	t.Run("option target is an exit", func(t *testing.T) {
		nodes := []Node{
			{ID: "start", Type: TypeOptions, Options: []Option{{Label: "a", NextNodeID: "end"}, {Label: "b"}}},
			end("end"),
		}
		require.NoError(t, Validate(nodes, "start", true))
	})
}

func TestValidate_DraftChecksShapeOnly(t *testing.T) {
	// Dangling edge, dead end and missing consent are all fine while drafting.
	nodes := []Node{text("start", "ghost"), email("q", "")}
	require.NoError(t, Validate(nodes, "start", false))

	tests := []struct {
		name  string
		nodes []Node
		start string
	}{
		{"empty", nil, ""},
		{"missing id", []Node{{Type: TypeText}}, ""},
		{"duplicate id", []Node{end("a"), end("a")}, "a"},
		{"unknown type", []Node{{ID: "a", Type: "carousel"}}, "a"},
		{"blank option", []Node{{ID: "a", Type: TypeOptions, Options: []Option{{}}}}, "a"},
		{"start outside set", []Node{end("a")}, "b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, strict := range []bool{false, true} {
				err := Validate(tt.nodes, tt.start, strict)
				require.ErrorIs(t, err, ErrValidation)
				var ve *ValidationError
				require.ErrorAs(t, err, &ve)
			}
		})
	}
}

func TestValidate_DoesNotMutate(t *testing.T) {
	nodes := []Node{text("start", "policy"), policy("policy", "q"), email("q", "end"), end("end")}
	before := cloneNodes(nodes)
	require.NoError(t, Validate(nodes, "start", true))
	assert.Equal(t, before, nodes)
}

func TestValidate_LongChainIsIterative(t *testing.T) {
	const n = 200000
	nodes := make([]Node, n)
	nodes[0] = policy("n0", "n1")
	for i := 1; i < n-1; i++ {
		nodes[i] = email(fmt.Sprintf("n%d", i), fmt.Sprintf("n%d", i+1))
	}
	nodes[n-1] = end(fmt.Sprintf("n%d", n-1))

	require.NoError(t, Validate(nodes, "n0", true))
}
