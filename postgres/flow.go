package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/meikuraledutech/flow"
)

// CreateFlow inserts an empty draft flow.
// If f.ID is empty, a UUID is auto-generated.
func (s *PGStore) CreateFlow(ctx context.Context, f *flow.Flow) (*flow.Flow, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Status == "" {
		f.Status = flow.StatusDraft
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO flows (id, chatbot_id, start_node_id, status, version)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at, updated_at`,
		f.ID, f.ChatbotID, f.StartNodeID, string(f.Status), f.Version,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, wrap("insert flow", err)
	}
	return f, nil
}

// GetFlow fetches a flow by its ID.
// Returns nil, nil if not found.
func (s *PGStore) GetFlow(ctx context.Context, flowID string) (*flow.Flow, error) {
	var (
		f                 flow.Flow
		status, lockOwner string
		acquired, expires *time.Time
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, chatbot_id, start_node_id, status, version, published_at,
		        lock_owner, lock_acquired_at, lock_expires_at, created_at, updated_at
		 FROM flows WHERE id = $1`, flowID,
	).Scan(&f.ID, &f.ChatbotID, &f.StartNodeID, &status, &f.Version, &f.PublishedAt,
		&lockOwner, &acquired, &expires, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, wrap("get flow", err)
	}
	f.Status = flow.Status(status)
	if lockOwner != "" && acquired != nil && expires != nil {
		f.Lock = &flow.Lock{Owner: lockOwner, AcquiredAt: *acquired, ExpiresAt: *expires}
	}
	return &f, nil
}

// AcquireLock is a single compare-and-set: it only matches when the lock is
// free, expired at now, or already held by owner.
func (s *PGStore) AcquireLock(ctx context.Context, flowID, owner string, now, expires time.Time) (bool, error) {
	ct, err := s.db.Exec(ctx,
		`UPDATE flows
		 SET lock_owner = $2, lock_acquired_at = $3, lock_expires_at = $4
		 WHERE id = $1
		 AND (lock_owner = '' OR lock_expires_at <= $3 OR lock_owner = $2)`,
		flowID, owner, now, expires,
	)
	if err != nil {
		return false, wrap("acquire lock", err)
	}
	return ct.RowsAffected() == 1, nil
}

// RefreshLock extends the expiry of a lock held by owner.
func (s *PGStore) RefreshLock(ctx context.Context, flowID, owner string, expires time.Time) (bool, error) {
	ct, err := s.db.Exec(ctx,
		`UPDATE flows SET lock_expires_at = $3 WHERE id = $1 AND lock_owner = $2`,
		flowID, owner, expires,
	)
	if err != nil {
		return false, wrap("refresh lock", err)
	}
	return ct.RowsAffected() == 1, nil
}

// ReleaseLock clears the lock if owner holds it. No error otherwise.
func (s *PGStore) ReleaseLock(ctx context.Context, flowID, owner string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE flows
		 SET lock_owner = '', lock_acquired_at = NULL, lock_expires_at = NULL
		 WHERE id = $1 AND lock_owner = $2`,
		flowID, owner,
	)
	return wrap("release lock", err)
}

// ListNodes returns all nodes for a flow in declared order.
// Returns an empty slice (not nil) if none found.
func (s *PGStore) ListNodes(ctx context.Context, flowID string) ([]flow.Node, error) {
	return listNodes(ctx, s.db, flowID)
}
