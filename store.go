package flow

import (
	"context"
	"time"
)

// Store is the persistence collaborator for flows and their node sets.
type Store interface {
	// Schema
	CreateSchema(ctx context.Context) error
	DropSchema(ctx context.Context) error

	// Flows
	CreateFlow(ctx context.Context, f *Flow) (*Flow, error)
	GetFlow(ctx context.Context, flowID string) (*Flow, error)
	ListNodes(ctx context.Context, flowID string) ([]Node, error)

	// Edit lock. Each call is a single conditional update.
	// AcquireLock succeeds when the lock is empty, expired at now, or held by owner.
	AcquireLock(ctx context.Context, flowID, owner string, now, expires time.Time) (bool, error)
	RefreshLock(ctx context.Context, flowID, owner string, expires time.Time) (bool, error)
	ReleaseLock(ctx context.Context, flowID, owner string) error

	// WithTx runs fn inside one transactional scope. Any error rolls the scope back.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of writes allowed inside a transactional scope.
type Tx interface {
	ListNodes(ctx context.Context, flowID string) ([]Node, error)
	DeleteNodes(ctx context.Context, flowID string) error
	DeleteNodesByID(ctx context.Context, flowID string, ids []string) error
	InsertNodes(ctx context.Context, flowID string, nodes []Node) error
	UpdateNode(ctx context.Context, flowID string, n *Node) error
	// CommitFlow writes the flow's pointer fields and clears its lock,
	// provided owner still holds the lock. It returns ErrLockConflict otherwise.
	CommitFlow(ctx context.Context, f *Flow, owner string) error
}

// SessionStore keeps the running state of conversations.
type SessionStore interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	SaveSession(ctx context.Context, s *Session) error
	DeleteSession(ctx context.Context, sessionID string) error
}
