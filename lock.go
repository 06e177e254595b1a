package flow

import (
	"context"
	"fmt"
	"time"
)

// DefaultLockTTL is how long an acquired edit lock stays valid.
const DefaultLockTTL = 15 * time.Minute

// EditLock is the advisory, single-owner lock that serializes authors of a flow.
// Expiry is lazy: an expired lock is only taken over at the next Acquire.
type EditLock struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// LockOption configures an EditLock.
type LockOption func(*EditLock)

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(d time.Duration) LockOption {
	return func(l *EditLock) {
		if d > 0 {
			l.ttl = d
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) LockOption {
	return func(l *EditLock) { l.now = now }
}

// NewEditLock returns an EditLock backed by store.
func NewEditLock(store Store, opts ...LockOption) *EditLock {
	l := &EditLock{store: store, ttl: DefaultLockTTL, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Acquire takes the lock for user when it is free, expired, or already theirs.
// It returns ErrLockConflict otherwise, without naming the current holder.
func (l *EditLock) Acquire(ctx context.Context, flowID, user string) error {
	if user == "" {
		return &ValidationError{Field: "user", Reason: "missing"}
	}
	now := l.now()
	ok, err := l.store.AcquireLock(ctx, flowID, user, now, now.Add(l.ttl))
	if err != nil {
		return fmt.Errorf("flow: acquire lock: %w", err)
	}
	if !ok {
		return l.missingOr(ctx, flowID, ErrLockConflict)
	}
	return nil
}

// hold acquires the lock on f for user and reports whether this call took it
// fresh rather than finding it already held by user.
func (l *EditLock) hold(ctx context.Context, f *Flow, user string) (fresh bool, err error) {
	held := f.Lock != nil && f.Lock.Owner == user && l.now().Before(f.Lock.ExpiresAt)
	if err := l.Acquire(ctx, f.ID, user); err != nil {
		return false, err
	}
	return !held, nil
}

// Release clears the lock if user holds it. Anything else is a silent no-op.
func (l *EditLock) Release(ctx context.Context, flowID, user string) error {
	if err := l.store.ReleaseLock(ctx, flowID, user); err != nil {
		return fmt.Errorf("flow: release lock: %w", err)
	}
	return nil
}

// Refresh extends the expiry of a lock held by user.
func (l *EditLock) Refresh(ctx context.Context, flowID, user string) error {
	ok, err := l.store.RefreshLock(ctx, flowID, user, l.now().Add(l.ttl))
	if err != nil {
		return fmt.Errorf("flow: refresh lock: %w", err)
	}
	if !ok {
		return l.missingOr(ctx, flowID, ErrLockConflict)
	}
	return nil
}

// missingOr distinguishes "no such flow" from a failed conditional update.
func (l *EditLock) missingOr(ctx context.Context, flowID string, err error) error {
	f, gerr := l.store.GetFlow(ctx, flowID)
	if gerr != nil {
		return fmt.Errorf("flow: get flow: %w", gerr)
	}
	if f == nil {
		return ErrFlowNotFound
	}
	return err
}
