package flow

import (
	"fmt"
	"strings"
)

// Validate checks a candidate node set before it is persisted.
//
// In draft mode only the shape of the set is checked, so authors can save
// half-wired graphs. In strict mode the graph must also be ready to execute:
// every edge resolves, there is exactly one root matching startID, every node
// is reachable and has an exit, cycles only pass through loop-allowed nodes,
// and every data-capturing node sits behind a consent node on every path.
//
// The first violation in declared node order is returned as a
// *ValidationError or *IntegrityError. Validate never mutates nodes.
func Validate(nodes []Node, startID string, strict bool) error {
	if err := checkShape(nodes, startID); err != nil {
		return err
	}
	if !strict {
		return nil
	}

	a := newArena(nodes)
	if len(a.dangling) > 0 {
		d := a.dangling[0]
		return &IntegrityError{
			Kind:   KindDanglingEdge,
			NodeID: a.id(d.from),
			Detail: fmt.Sprintf("edge points at unknown node %q", d.target),
		}
	}

	root, err := checkRoot(a, startID)
	if err != nil {
		return err
	}

	seen := a.reachable(root)
	for i, ok := range seen {
		if !ok {
			return &IntegrityError{Kind: KindOrphan, NodeID: a.id(i), Detail: "not reachable from the start node"}
		}
	}

	if err := checkExits(nodes); err != nil {
		return err
	}
	if err := checkCycles(a, root); err != nil {
		return err
	}
	return checkConsent(a, root)
}

func checkShape(nodes []Node, startID string) error {
	if len(nodes) == 0 {
		return &ValidationError{Field: "nodes", Reason: "at least one node is required"}
	}
	ids := make(map[string]struct{}, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		if strings.TrimSpace(n.ID) == "" {
			return &ValidationError{Field: fmt.Sprintf("nodes[%d].id", i), Reason: "missing"}
		}
		if _, dup := ids[n.ID]; dup {
			return &ValidationError{NodeID: n.ID, Field: "id", Reason: "duplicate"}
		}
		ids[n.ID] = struct{}{}
		if !n.Type.Valid() {
			return &ValidationError{NodeID: n.ID, Field: "type", Reason: fmt.Sprintf("unknown node type %q", n.Type)}
		}
		for j, o := range n.Options {
			if o.Label == "" && o.Value == "" {
				return &ValidationError{NodeID: n.ID, Field: fmt.Sprintf("options[%d]", j), Reason: "label or value required"}
			}
		}
	}
	if startID != "" {
		if _, ok := ids[startID]; !ok {
			return &ValidationError{Field: "start_node_id", Reason: fmt.Sprintf("%q is not in the node set", startID)}
		}
	}
	return nil
}

func checkRoot(a *arena, startID string) (int, error) {
	roots := a.roots()
	switch {
	case len(roots) == 0:
		return 0, &IntegrityError{Kind: KindNoStart, Detail: "every node has an incoming edge"}
	case len(roots) > 1:
		ids := make([]string, len(roots))
		for i, r := range roots {
			ids[i] = a.id(r)
		}
		return 0, &IntegrityError{Kind: KindMultipleStarts, NodeID: ids[1], Detail: "candidate starts: " + strings.Join(ids, ", ")}
	}
	root := roots[0]
	if startID != "" && a.id(root) != startID {
		return 0, &IntegrityError{
			Kind:   KindStartMismatch,
			NodeID: startID,
			Detail: fmt.Sprintf("declared start differs from graph root %q", a.id(root)),
		}
	}
	return root, nil
}

func checkExits(nodes []Node) error {
	for i := range nodes {
		n := &nodes[i]
		if n.EndConversation && (n.NextNodeID != "" || n.hasOptionTarget()) {
			return &IntegrityError{Kind: KindTerminalHasExit, NodeID: n.ID, Detail: "end_conversation node must not have outgoing edges"}
		}
		if !n.HasExit() {
			return &IntegrityError{Kind: KindDeadEnd, NodeID: n.ID, Detail: "node has no exit and does not end the conversation"}
		}
	}
	return nil
}

const (
	white = iota
	grey
	black
)

// checkCycles walks the graph depth-first with an explicit stack.
// An edge into a grey (in-progress) vertex closes a cycle, which is only
// allowed when that vertex carries the loop-allowed marker.
func checkCycles(a *arena, root int) error {
	type frame struct{ v, next int }
	color := make([]uint8, len(a.nodes))
	stack := []frame{{v: root}}
	color[root] = grey

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next == len(a.out[top.v]) {
			color[top.v] = black
			stack = stack[:len(stack)-1]
			continue
		}
		w := a.out[top.v][top.next]
		top.next++
		switch color[w] {
		case white:
			color[w] = grey
			stack = append(stack, frame{v: w})
		case grey:
			if !a.nodes[w].AllowLoop {
				return &IntegrityError{
					Kind:   KindCycle,
					NodeID: a.id(w),
					Detail: fmt.Sprintf("reached again from %q without allow_loop", a.id(top.v)),
				}
			}
		}
	}
	return nil
}

// checkConsent requires a consent node on every path from root to each
// data-capturing node. States are (vertex, consentSeen) pairs, each explored
// once, so the walk is linear and a path without consent is never masked by
// another path that had it.
func checkConsent(a *arena, root int) error {
	type state struct {
		v       int
		consent bool
	}
	var visited [2][]bool
	visited[0] = make([]bool, len(a.nodes))
	visited[1] = make([]bool, len(a.nodes))
	flag := func(b bool) int {
		if b {
			return 1
		}
		return 0
	}

	violation := -1
	queue := []state{{v: root}}
	visited[0][root] = true
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		n := &a.nodes[s.v]
		if !s.consent && n.Type.CapturesData() && (violation < 0 || s.v < violation) {
			violation = s.v
		}
		next := s.consent || n.Type.IsConsent()
		for _, w := range a.out[s.v] {
			if !visited[flag(next)][w] {
				visited[flag(next)][w] = true
				queue = append(queue, state{v: w, consent: next})
			}
		}
	}
	if violation >= 0 {
		return &IntegrityError{
			Kind:   KindConsentViolation,
			NodeID: a.id(violation),
			Detail: "data is captured on a path without a prior data_policy node",
		}
	}
	return nil
}
