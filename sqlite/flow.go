package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/meikuraledutech/flow"
)

// CreateFlow inserts an empty draft flow.
// If f.ID is empty, a UUID is auto-generated.
func (s *Store) CreateFlow(ctx context.Context, f *flow.Flow) (*flow.Flow, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Status == "" {
		f.Status = flow.StatusDraft
	}
	now := time.Now().UTC()
	f.CreatedAt, f.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flows (id, chatbot_id, start_node_id, status, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.ChatbotID, f.StartNodeID, string(f.Status), f.Version, now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return nil, wrap("insert flow", err)
	}
	return f, nil
}

// GetFlow fetches a flow by its ID.
// Returns nil, nil if not found.
func (s *Store) GetFlow(ctx context.Context, flowID string) (*flow.Flow, error) {
	var (
		f                           flow.Flow
		status, lockOwner           string
		published, acquired, expire int64
		created, updated            int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, chatbot_id, start_node_id, status, version, published_at,
		       lock_owner, lock_acquired_at, lock_expires_at, created_at, updated_at
		FROM flows WHERE id = ?`, flowID,
	).Scan(&f.ID, &f.ChatbotID, &f.StartNodeID, &status, &f.Version, &published,
		&lockOwner, &acquired, &expire, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrap("get flow", err)
	}
	f.Status = flow.Status(status)
	f.CreatedAt = fromNanos(created)
	f.UpdatedAt = fromNanos(updated)
	if published != 0 {
		t := fromNanos(published)
		f.PublishedAt = &t
	}
	if lockOwner != "" {
		f.Lock = &flow.Lock{Owner: lockOwner, AcquiredAt: fromNanos(acquired), ExpiresAt: fromNanos(expire)}
	}
	return &f, nil
}

// AcquireLock is a single conditional UPDATE, so concurrent callers cannot
// both see a free lock.
func (s *Store) AcquireLock(ctx context.Context, flowID, owner string, now, expires time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE flows
		SET lock_owner = ?, lock_acquired_at = ?, lock_expires_at = ?
		WHERE id = ?
		AND (lock_owner = '' OR lock_expires_at <= ? OR lock_owner = ?)`,
		owner, now.UnixNano(), expires.UnixNano(), flowID, now.UnixNano(), owner,
	)
	return affectedOne("acquire lock", res, err)
}

// RefreshLock extends the expiry of a lock held by owner.
func (s *Store) RefreshLock(ctx context.Context, flowID, owner string, expires time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE flows SET lock_expires_at = ? WHERE id = ? AND lock_owner = ?`,
		expires.UnixNano(), flowID, owner,
	)
	return affectedOne("refresh lock", res, err)
}

// ReleaseLock clears the lock if owner holds it. No error otherwise.
func (s *Store) ReleaseLock(ctx context.Context, flowID, owner string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE flows SET lock_owner = '', lock_acquired_at = 0, lock_expires_at = 0
		WHERE id = ? AND lock_owner = ?`,
		flowID, owner,
	)
	return wrap("release lock", err)
}

// ListNodes returns all nodes for a flow in declared order.
func (s *Store) ListNodes(ctx context.Context, flowID string) ([]flow.Node, error) {
	return listNodes(ctx, s.db, flowID)
}

func affectedOne(op string, res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, wrap(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrap(op, err)
	}
	return n == 1, nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func toNanos(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixNano()
}
