package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meikuraledutech/flow/internal/metrics"
)

// Compiler owns every authoring mutation of a flow's node set.
// Each entry point takes the EditLock before opening a transaction.
type Compiler struct {
	store   Store
	lock    *EditLock
	log     zerolog.Logger
	now     func() time.Time
	newID   func() string
	retries uint64
	backoff func() backoff.BackOff
}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithIDGenerator replaces uuid.NewString for durable node ids.
func WithIDGenerator(fn func() string) CompilerOption {
	return func(c *Compiler) { c.newID = fn }
}

// WithRetries bounds how often a transient storage failure is retried.
func WithRetries(n uint64) CompilerOption {
	return func(c *Compiler) { c.retries = n }
}

// WithCompilerClock replaces time.Now for publish timestamps.
func WithCompilerClock(now func() time.Time) CompilerOption {
	return func(c *Compiler) { c.now = now }
}

// NewCompiler wires a Compiler to its store and lock.
func NewCompiler(store Store, lock *EditLock, log zerolog.Logger, opts ...CompilerOption) *Compiler {
	c := &Compiler{
		store:   store,
		lock:    lock,
		log:     log.With().Str("component", "compiler").Logger(),
		now:     time.Now,
		newID:   uuid.NewString,
		retries: 3,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = time.Second
			b.MaxElapsedTime = 5 * time.Second
			return b
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SaveRequest is a full replacement of a flow's node set.
// Node ids and StartNodeID are caller-local temporary identifiers.
type SaveRequest struct {
	FlowID      string
	ChatbotID   string
	User        string
	Nodes       []Node
	StartNodeID string
	Publish     bool
}

// SaveResult is the persisted outcome of a Save.
type SaveResult struct {
	Flow  *Flow
	Nodes []Node
	// IDs maps each temporary id to its durable id.
	IDs map[string]string
}

// Save validates the submitted graph, takes the edit lock and atomically
// replaces the persisted node set. A rejected save leaves the stored flow
// untouched.
func (c *Compiler) Save(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	res, err := c.save(ctx, req)
	result := "ok"
	var ie *IntegrityError
	switch {
	case errors.As(err, &ie):
		result = "integrity"
		metrics.ValidationFailure(string(ie.Kind))
	case errors.Is(err, ErrValidation):
		result = "invalid"
		metrics.ValidationFailure("shape")
	case errors.Is(err, ErrLockConflict):
		result = "locked"
		metrics.LockConflict()
	case err != nil:
		result = "error"
	}
	metrics.ObserveSave(req.Publish, result)
	return res, err
}

func (c *Compiler) save(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	log := c.log.With().Str("flow_id", req.FlowID).Bool("publish", req.Publish).Logger()

	if req.StartNodeID == "" {
		return nil, &ValidationError{Field: "start_node_id", Reason: "missing"}
	}

	ids := make(map[string]string, len(req.Nodes))
	for _, n := range req.Nodes {
		if _, ok := ids[n.ID]; !ok {
			ids[n.ID] = c.newID()
		}
	}

	if err := Validate(req.Nodes, req.StartNodeID, req.Publish); err != nil {
		log.Info().Err(err).Msg("save rejected")
		return nil, err
	}

	f, err := c.loadFlow(ctx, req.FlowID)
	if err != nil {
		return nil, err
	}
	if req.ChatbotID != "" && f.ChatbotID != req.ChatbotID {
		return nil, &ValidationError{Field: "chatbot_id", Reason: "does not own this flow"}
	}

	fresh, err := c.lock.hold(ctx, f, req.User)
	if err != nil {
		return nil, err
	}

	now := c.now().UTC()
	nodes := translate(req.Nodes, ids, req.FlowID, !req.Publish)

	next := *f
	next.StartNodeID = ids[req.StartNodeID]
	next.Lock = nil
	next.UpdatedAt = now
	if req.Publish {
		next.Status = StatusPublished
		next.Version++
		next.PublishedAt = &now
	} else {
		next.Status = StatusDraft
	}

	err = c.inTx(ctx, log, func(tx Tx) error {
		if err := tx.DeleteNodes(ctx, req.FlowID); err != nil {
			return err
		}
		if err := tx.InsertNodes(ctx, req.FlowID, nodes); err != nil {
			return err
		}
		return tx.CommitFlow(ctx, &next, req.User)
	})
	if err != nil {
		c.releaseQuietly(ctx, req.FlowID, req.User, fresh)
		log.Error().Err(err).Msg("save failed, rolled back")
		return nil, err
	}

	log.Info().Int("nodes", len(nodes)).Int("version", next.Version).Msg("flow saved")
	return &SaveResult{Flow: &next, Nodes: nodes, IDs: ids}, nil
}

// translate rewrites temporary ids to durable ones. Edges whose target is
// outside the submitted set are nulled instead of failing the save.
func translate(in []Node, ids map[string]string, flowID string, draft bool) []Node {
	out := cloneNodes(in)
	mapRef := func(ref string) string {
		if ref == "" {
			return ""
		}
		return ids[ref]
	}
	for i := range out {
		n := &out[i]
		n.ID = ids[n.ID]
		n.FlowID = flowID
		n.Order = i
		n.Draft = draft
		n.NextNodeID = mapRef(n.NextNodeID)
		for j := range n.Options {
			n.Options[j].NextNodeID = mapRef(n.Options[j].NextNodeID)
		}
	}
	return out
}

// DeleteResult lists the ids removed by DeleteNode.
type DeleteResult struct {
	Deleted []string
}

// DeleteNode removes a node together with every descendant that becomes
// unreachable without it. Children shared with a surviving parent are kept,
// and edges into deleted nodes are nulled. The flow drops back to draft.
func (c *Compiler) DeleteNode(ctx context.Context, flowID, nodeID, user string) (*DeleteResult, error) {
	log := c.log.With().Str("flow_id", flowID).Str("node_id", nodeID).Logger()

	f, err := c.loadFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	fresh, err := c.lock.hold(ctx, f, user)
	if err != nil {
		if errors.Is(err, ErrLockConflict) {
			metrics.LockConflict()
		}
		return nil, err
	}

	var res DeleteResult
	err = c.inTx(ctx, log, func(tx Tx) error {
		res = DeleteResult{}
		nodes, err := tx.ListNodes(ctx, flowID)
		if err != nil {
			return err
		}
		a := newArena(nodes)
		target, ok := a.index[nodeID]
		if !ok {
			return ErrNodeNotFound
		}

		deleted := cascade(a, target)
		gone := make(map[string]struct{})
		for i, d := range deleted {
			if d {
				res.Deleted = append(res.Deleted, a.id(i))
				gone[a.id(i)] = struct{}{}
			}
		}

		for i := range nodes {
			if deleted[i] {
				continue
			}
			n := &nodes[i]
			if !detach(n, gone) {
				continue
			}
			n.Draft = true
			if err := tx.UpdateNode(ctx, flowID, n); err != nil {
				return err
			}
		}
		if err := tx.DeleteNodesByID(ctx, flowID, res.Deleted); err != nil {
			return err
		}

		next := *f
		if _, ok := gone[next.StartNodeID]; ok {
			next.StartNodeID = ""
		}
		next.Status = StatusDraft
		next.Lock = nil
		next.UpdatedAt = c.now().UTC()
		return tx.CommitFlow(ctx, &next, user)
	})
	if err != nil {
		c.releaseQuietly(ctx, flowID, user, fresh)
		return nil, err
	}
	log.Info().Strs("deleted", res.Deleted).Msg("node deleted")
	return &res, nil
}

// cascade marks target and every descendant of it that can no longer be
// reached once target is gone. Nodes outside target's subtree seed the walk,
// so a child shared with a surviving parent is kept while a cycle hanging
// only off target goes with it.
func cascade(a *arena, target int) []bool {
	below := a.reachable(target)
	var seeds []int
	for v, b := range below {
		if !b {
			seeds = append(seeds, v)
		}
	}
	alive := a.walk(seeds, target)
	deleted := make([]bool, len(a.nodes))
	for v := range deleted {
		deleted[v] = !alive[v]
	}
	return deleted
}

// detach nulls every edge of n that points into gone and reports whether n changed.
func detach(n *Node, gone map[string]struct{}) bool {
	changed := false
	if _, ok := gone[n.NextNodeID]; ok && n.NextNodeID != "" {
		n.NextNodeID = ""
		changed = true
	}
	for j := range n.Options {
		if _, ok := gone[n.Options[j].NextNodeID]; ok && n.Options[j].NextNodeID != "" {
			n.Options[j].NextNodeID = ""
			changed = true
		}
	}
	return changed
}

// UpdateNode replaces the payload of one persisted node. Its edges must
// resolve inside the persisted node set. The flow drops back to draft.
func (c *Compiler) UpdateNode(ctx context.Context, flowID, user string, node Node) (*Node, error) {
	log := c.log.With().Str("flow_id", flowID).Str("node_id", node.ID).Logger()

	if err := checkShape([]Node{node}, ""); err != nil {
		return nil, err
	}
	f, err := c.loadFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	fresh, err := c.lock.hold(ctx, f, user)
	if err != nil {
		if errors.Is(err, ErrLockConflict) {
			metrics.LockConflict()
		}
		return nil, err
	}

	var saved Node
	err = c.inTx(ctx, log, func(tx Tx) error {
		nodes, err := tx.ListNodes(ctx, flowID)
		if err != nil {
			return err
		}
		a := newArena(nodes)
		i, ok := a.index[node.ID]
		if !ok {
			return ErrNodeNotFound
		}
		for _, t := range node.Targets() {
			if _, ok := a.index[t]; !ok {
				return &IntegrityError{Kind: KindDanglingEdge, NodeID: node.ID, Detail: fmt.Sprintf("edge points at unknown node %q", t)}
			}
		}
		saved = node
		saved.FlowID = flowID
		saved.Order = nodes[i].Order
		saved.Draft = true
		if err := tx.UpdateNode(ctx, flowID, &saved); err != nil {
			return err
		}
		next := *f
		next.Status = StatusDraft
		next.Lock = nil
		next.UpdatedAt = c.now().UTC()
		return tx.CommitFlow(ctx, &next, user)
	})
	if err != nil {
		c.releaseQuietly(ctx, flowID, user, fresh)
		return nil, err
	}
	log.Debug().Msg("node updated")
	return &saved, nil
}

func (c *Compiler) loadFlow(ctx context.Context, flowID string) (*Flow, error) {
	f, err := c.store.GetFlow(ctx, flowID)
	if err != nil {
		return nil, fmt.Errorf("flow: get flow: %w", err)
	}
	if f == nil {
		return nil, ErrFlowNotFound
	}
	return f, nil
}

// inTx runs fn in a transaction, retrying transient storage failures with
// bounded exponential backoff.
func (c *Compiler) inTx(ctx context.Context, log zerolog.Logger, fn func(tx Tx) error) error {
	op := func() error {
		err := c.store.WithTx(ctx, fn)
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(c.backoff(), c.retries), ctx)
	return backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("wait", wait).Msg("transient storage failure, retrying")
	})
}

// releaseQuietly gives back a lock taken by the failed call. A lock the user
// already held before the call stays with them.
func (c *Compiler) releaseQuietly(ctx context.Context, flowID, user string, fresh bool) {
	if !fresh {
		return
	}
	if err := c.lock.Release(ctx, flowID, user); err != nil {
		c.log.Warn().Err(err).Str("flow_id", flowID).Msg("release lock after failure")
	}
}
