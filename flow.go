package flow

import (
	"encoding/json"
	"time"
)

// NodeType is the fixed vocabulary of dialog steps.
type NodeType string

const (
	TypeText       NodeType = "text"
	TypeQuestion   NodeType = "question"
	TypeEmail      NodeType = "email"
	TypePhone      NodeType = "phone"
	TypeNumber     NodeType = "number"
	TypeTextInput  NodeType = "text_input"
	TypeOptions    NodeType = "options"
	TypeJump       NodeType = "jump"
	TypeLink       NodeType = "link"
	TypeDataPolicy NodeType = "data_policy"
)

// Valid reports whether t is part of the node type vocabulary.
func (t NodeType) Valid() bool {
	switch t {
	case TypeText, TypeQuestion, TypeEmail, TypePhone, TypeNumber, TypeTextInput,
		TypeOptions, TypeJump, TypeLink, TypeDataPolicy:
		return true
	}
	return false
}

// CapturesData reports whether nodes of this type store end-user input.
func (t NodeType) CapturesData() bool {
	switch t {
	case TypeQuestion, TypeEmail, TypePhone, TypeNumber, TypeTextInput:
		return true
	}
	return false
}

// IsConsent reports whether the type is a legal-acceptance gate.
func (t NodeType) IsConsent() bool { return t == TypeDataPolicy }

// InputType is the hint sent to the chat widget for data-capturing nodes.
func (t NodeType) InputType() string {
	switch t {
	case TypeEmail:
		return "email"
	case TypePhone:
		return "tel"
	case TypeNumber:
		return "number"
	case TypeQuestion, TypeTextInput:
		return "text"
	}
	return ""
}

// Status is the persistence state of a flow.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// Flow is the graph container. The node set lives in the store, keyed by ID.
type Flow struct {
	ID          string     `json:"id"`
	ChatbotID   string     `json:"chatbot_id"`
	StartNodeID string     `json:"start_node_id,omitempty"`
	Status      Status     `json:"status"`
	Version     int        `json:"version"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Lock        *Lock      `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Lock is the cooperative edit lock held on a flow.
type Lock struct {
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Node is a single step in a flow.
// Outgoing edges are NextNodeID and Options[].NextNodeID; an empty string is a null edge.
type Node struct {
	ID              string          `json:"id"`
	FlowID          string          `json:"flow_id,omitempty"`
	Type            NodeType        `json:"type"`
	Order           int             `json:"order"`
	Content         json.RawMessage `json:"content,omitempty"`
	VariableKey     string          `json:"variable_key,omitempty"`
	Options         []Option        `json:"options,omitempty"`
	NextNodeID      string          `json:"next_node_id,omitempty"`
	EndConversation bool            `json:"end_conversation,omitempty"`
	AllowLoop       bool            `json:"allow_loop,omitempty"`
	Draft           bool            `json:"draft,omitempty"`
	TypingTime      int             `json:"typing_time,omitempty"`
	Link            *LinkAction     `json:"link,omitempty"`
	Policy          *PolicyLabels   `json:"policy,omitempty"`
	Notify          *NotifyMeta     `json:"notify,omitempty"`
}

// Option is one branch of an options node.
type Option struct {
	Label      string `json:"label"`
	Value      string `json:"value,omitempty"`
	NextNodeID string `json:"next_node_id,omitempty"`
}

// LinkAction is the payload of a link node.
type LinkAction struct {
	URL    string `json:"url"`
	Target string `json:"target,omitempty"`
}

// PolicyLabels are the button captions of a data_policy node.
type PolicyLabels struct {
	Accept string `json:"accept,omitempty"`
	Reject string `json:"reject,omitempty"`
	URL    string `json:"url,omitempty"`
}

// NotifyMeta asks the platform to notify the owner once the node is reached.
type NotifyMeta struct {
	Email   string `json:"email,omitempty"`
	Subject string `json:"subject,omitempty"`
}

// Targets returns every non-null outgoing edge of n, options first.
func (n *Node) Targets() []string {
	var out []string
	for _, o := range n.Options {
		if o.NextNodeID != "" {
			out = append(out, o.NextNodeID)
		}
	}
	if n.NextNodeID != "" {
		out = append(out, n.NextNodeID)
	}
	return out
}

// HasExit reports whether the node can leave its position on its own.
func (n *Node) HasExit() bool {
	return n.NextNodeID != "" || n.hasOptionTarget() || n.EndConversation || n.Type == TypeLink
}

func (n *Node) hasOptionTarget() bool {
	for _, o := range n.Options {
		if o.NextNodeID != "" {
			return true
		}
	}
	return false
}

// cloneNodes deep-copies the slices that the compiler rewrites.
func cloneNodes(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = n
		if n.Options != nil {
			out[i].Options = append([]Option(nil), n.Options...)
		}
	}
	return out
}

// Mode selects where a conversation's state is kept.
type Mode string

const (
	ModeProduction Mode = "production"
	ModePreview    Mode = "preview"
)

// Session is one live walk of a flow.
type Session struct {
	ID            string            `json:"id"`
	FlowID        string            `json:"flow_id,omitempty"`
	Mode          Mode              `json:"mode"`
	CurrentNodeID string            `json:"current_node_id"`
	Variables     map[string]string `json:"variables"`
	Completed     bool              `json:"completed"`
	// StartNodeID and Nodes are only carried by preview sessions.
	StartNodeID string    `json:"start_node_id,omitempty"`
	Nodes       []Node    `json:"nodes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
