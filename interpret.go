package flow

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Turn is the input of one interpreter step.
type Turn struct {
	Nodes []Node
	// CurrentNodeID is the session's position. Empty means the conversation
	// has not started and StartNodeID is used.
	CurrentNodeID string
	StartNodeID   string
	// Input is the end user's answer; nil means no input was supplied.
	Input     any
	Variables map[string]string
	SessionID string
}

// Step is the outcome of one interpreter step.
type Step struct {
	Current   Node
	Next      *Node
	Variables map[string]string
	Completed bool
}

// Advance computes a single transition of the conversation state machine.
// It is deterministic and has no side effects: the returned variable bag is
// a fresh copy and nodes are never modified.
func Advance(t Turn) (Step, error) {
	id := t.CurrentNodeID
	if id == "" {
		id = t.StartNodeID
	}
	pos := -1
	for i := range t.Nodes {
		if t.Nodes[i].ID == id {
			pos = i
			break
		}
	}
	if pos < 0 {
		return Step{}, &StateCorruptionError{SessionID: t.SessionID, NodeID: id}
	}
	cur := t.Nodes[pos]

	vars := make(map[string]string, len(t.Variables)+1)
	for k, v := range t.Variables {
		vars[k] = v
	}

	input, hasInput := stringify(t.Input)
	if hasInput && cur.Type.CapturesData() && cur.VariableKey != "" {
		vars[cur.VariableKey] = input
	}

	step := Step{Current: cur, Variables: vars}
	if cur.EndConversation {
		step.Completed = true
		return step, nil
	}

	if next := resolve(t.Nodes, pos, input, hasInput); next >= 0 {
		n := t.Nodes[next]
		step.Next = &n
		return step, nil
	}
	step.Completed = true
	return step, nil
}

// resolve picks the next node index: a matching option's target, then the
// direct pointer. A node whose options lead somewhere but whose input matched
// none of them resolves to itself so it is asked again. Only a node without
// any usable edge falls through to the next node by declared order, and a
// link node without one ends the conversation. It returns -1 when nothing
// resolves.
func resolve(nodes []Node, pos int, input string, hasInput bool) int {
	cur := &nodes[pos]
	find := func(id string) int {
		if id == "" {
			return -1
		}
		for i := range nodes {
			if nodes[i].ID == id {
				return i
			}
		}
		return -1
	}

	if hasInput && len(cur.Options) > 0 {
		if o := matchOption(cur.Options, input); o != nil {
			if i := find(o.NextNodeID); i >= 0 {
				return i
			}
		}
	}
	if i := find(cur.NextNodeID); i >= 0 {
		return i
	}
	for _, o := range cur.Options {
		if find(o.NextNodeID) >= 0 {
			return pos
		}
	}
	if cur.Type == TypeLink {
		return -1
	}
	if pos+1 < len(nodes) {
		return pos + 1
	}
	return -1
}

// matchOption returns the first option whose value equals input or whose
// label equals it ignoring case.
func matchOption(opts []Option, input string) *Option {
	for i := range opts {
		o := &opts[i]
		if (o.Value != "" && o.Value == input) || (o.Label != "" && strings.EqualFold(o.Label, input)) {
			return o
		}
	}
	return nil
}

func stringify(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case fmt.Stringer:
		return x.String(), true
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v), true
	}
	return string(b), true
}
