package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/meikuraledutech/flow/internal/metrics"
)

// Payload is what the chat surface renders for one turn.
type Payload struct {
	SessionID  string            `json:"session_id"`
	NodeID     string            `json:"node_id,omitempty"`
	Type       NodeType          `json:"type,omitempty"`
	Content    json.RawMessage   `json:"content,omitempty"`
	TypingTime int               `json:"typing_time"`
	Options    []PayloadOption   `json:"options,omitempty"`
	InputType  string            `json:"input_type,omitempty"`
	Link       *LinkAction       `json:"link,omitempty"`
	Policy     *PolicyLabels     `json:"policy,omitempty"`
	Completed  bool              `json:"completed,omitempty"`
	Variables  map[string]string `json:"variables,omitempty"`
}

// PayloadOption is an option as shown to the end user.
type PayloadOption struct {
	Label string `json:"label"`
	Value string `json:"value,omitempty"`
}

func render(sessionID string, n *Node) *Payload {
	p := &Payload{
		SessionID:  sessionID,
		NodeID:     n.ID,
		Type:       n.Type,
		Content:    n.Content,
		TypingTime: n.TypingTime,
		InputType:  n.Type.InputType(),
		Link:       n.Link,
		Policy:     n.Policy,
	}
	for _, o := range n.Options {
		p.Options = append(p.Options, PayloadOption{Label: o.Label, Value: o.Value})
	}
	return p
}

// Runtime drives live and preview conversations one turn at a time.
// Turns of the same session are serialized; distinct sessions run freely.
type Runtime struct {
	store    Store
	sessions SessionStore
	previews SessionStore
	log      zerolog.Logger
	loads    singleflight.Group
	turns    turnLocks
	newID    func() string
	now      func() time.Time
}

// NewRuntime wires a Runtime. sessions holds production conversations and
// previews holds the bounded cache of editor previews.
func NewRuntime(store Store, sessions, previews SessionStore, log zerolog.Logger) *Runtime {
	return &Runtime{
		store:    store,
		sessions: sessions,
		previews: previews,
		log:      log.With().Str("component", "runtime").Logger(),
		turns:    turnLocks{m: make(map[string]*turnLock)},
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Start opens a production conversation on a published flow.
func (r *Runtime) Start(ctx context.Context, flowID string) (*Payload, error) {
	f, err := r.store.GetFlow(ctx, flowID)
	if err != nil {
		return nil, fmt.Errorf("flow: get flow: %w", err)
	}
	if f == nil {
		return nil, ErrFlowNotFound
	}
	if f.Status != StatusPublished || f.StartNodeID == "" {
		return nil, ErrFlowNotPublished
	}
	nodes, err := r.liveNodes(ctx, flowID)
	if err != nil {
		return nil, err
	}
	return r.open(ctx, r.sessions, &Session{FlowID: flowID, Mode: ModeProduction, CurrentNodeID: f.StartNodeID}, nodes)
}

// StartPreview opens an ephemeral conversation over an unpersisted node set.
// The set only has to pass draft validation.
func (r *Runtime) StartPreview(ctx context.Context, nodes []Node, startID string) (*Payload, error) {
	if startID == "" {
		return nil, &ValidationError{Field: "start_node_id", Reason: "missing"}
	}
	if err := Validate(nodes, startID, false); err != nil {
		return nil, err
	}
	s := &Session{
		Mode:          ModePreview,
		CurrentNodeID: startID,
		StartNodeID:   startID,
		Nodes:         cloneNodes(nodes),
	}
	return r.open(ctx, r.previews, s, s.Nodes)
}

func (r *Runtime) open(ctx context.Context, store SessionStore, s *Session, nodes []Node) (*Payload, error) {
	start := findNode(nodes, s.CurrentNodeID)
	if start == nil {
		return nil, &StateCorruptionError{NodeID: s.CurrentNodeID}
	}
	now := r.now().UTC()
	s.ID = r.newID()
	s.Variables = map[string]string{}
	s.Completed = start.EndConversation
	s.CreatedAt, s.UpdatedAt = now, now
	if err := store.CreateSession(ctx, s); err != nil {
		return nil, fmt.Errorf("flow: create session: %w", err)
	}
	r.log.Debug().Str("session_id", s.ID).Str("mode", string(s.Mode)).Msg("conversation started")
	return reply(s, start), nil
}

// reply renders n for s. Reaching an end_conversation node completes the
// session in the same turn, so its content and the captured variables go out together.
func reply(s *Session, n *Node) *Payload {
	p := render(s.ID, n)
	if s.Completed {
		p.Completed = true
		p.Variables = s.Variables
	}
	return p
}

// Next feeds input into a production session and returns the next payload.
func (r *Runtime) Next(ctx context.Context, sessionID string, input any) (*Payload, error) {
	return r.next(ctx, r.sessions, ModeProduction, sessionID, input)
}

// NextPreview is Next for preview sessions.
func (r *Runtime) NextPreview(ctx context.Context, sessionID string, input any) (*Payload, error) {
	return r.next(ctx, r.previews, ModePreview, sessionID, input)
}

func (r *Runtime) next(ctx context.Context, store SessionStore, mode Mode, sessionID string, input any) (*Payload, error) {
	unlock := r.turns.lock(sessionID)
	defer unlock()

	p, err := r.turn(ctx, store, mode, sessionID, input)
	result := "ok"
	switch {
	case errors.Is(err, ErrStateCorruption):
		result = "corrupted"
	case err != nil:
		result = "error"
	case p.Completed:
		result = "completed"
	}
	metrics.ObserveTurn(string(mode), result)
	return p, err
}

func (r *Runtime) turn(ctx context.Context, store SessionStore, mode Mode, sessionID string, input any) (*Payload, error) {
	log := r.log.With().Str("session_id", sessionID).Str("mode", string(mode)).Logger()

	s, err := store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("flow: get session: %w", err)
	}
	if s == nil {
		return nil, ErrSessionNotFound
	}
	if s.Completed {
		return nil, ErrSessionCompleted
	}

	nodes := s.Nodes
	if mode == ModeProduction {
		if nodes, err = r.liveNodes(ctx, s.FlowID); err != nil {
			return nil, err
		}
	}

	step, err := Advance(Turn{
		Nodes:         nodes,
		CurrentNodeID: s.CurrentNodeID,
		StartNodeID:   s.StartNodeID,
		Input:         input,
		Variables:     s.Variables,
		SessionID:     s.ID,
	})
	if err != nil {
		if errors.Is(err, ErrStateCorruption) {
			log.Error().Err(err).Str("flow_id", s.FlowID).Msg("terminating corrupted session")
			if derr := store.DeleteSession(ctx, s.ID); derr != nil {
				log.Error().Err(derr).Msg("delete corrupted session")
			}
		}
		return nil, err
	}

	s.Variables = step.Variables
	s.UpdatedAt = r.now().UTC()
	if step.Completed {
		s.Completed = true
	} else {
		s.CurrentNodeID = step.Next.ID
		s.Completed = step.Next.EndConversation
	}
	if err := store.SaveSession(ctx, s); err != nil {
		return nil, fmt.Errorf("flow: save session: %w", err)
	}

	if s.Completed {
		log.Debug().Msg("conversation completed")
	}
	if step.Completed {
		return &Payload{SessionID: s.ID, Completed: true, Variables: s.Variables}, nil
	}
	return reply(s, step.Next), nil
}

// liveNodes returns the node set end users may walk. A set holding any node
// that only passed draft validation is refused.
func (r *Runtime) liveNodes(ctx context.Context, flowID string) ([]Node, error) {
	nodes, err := r.loadNodes(ctx, flowID)
	if err != nil {
		return nil, err
	}
	for i := range nodes {
		if nodes[i].Draft {
			return nil, ErrFlowNotPublished
		}
	}
	return nodes, nil
}

// loadNodes coalesces concurrent loads of the same flow's node set. The
// shared load outlives any single caller's cancellation.
func (r *Runtime) loadNodes(ctx context.Context, flowID string) ([]Node, error) {
	v, err, _ := r.loads.Do(flowID, func() (any, error) {
		return r.store.ListNodes(context.WithoutCancel(ctx), flowID)
	})
	if err != nil {
		return nil, fmt.Errorf("flow: list nodes: %w", err)
	}
	return v.([]Node), nil
}

func findNode(nodes []Node, id string) *Node {
	for i := range nodes {
		if nodes[i].ID == id {
			return &nodes[i]
		}
	}
	return nil
}

// turnLocks is a reference-counted mutex per session id.
type turnLocks struct {
	mu sync.Mutex
	m  map[string]*turnLock
}

type turnLock struct {
	sync.Mutex
	refs int
}

func (t *turnLocks) lock(id string) func() {
	t.mu.Lock()
	l, ok := t.m[id]
	if !ok {
		l = &turnLock{}
		t.m[id] = l
	}
	l.refs++
	t.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.m, id)
		}
		t.mu.Unlock()
	}
}
