// Package memstore is a bounded in-process session store.
//
// It backs editor previews, whose state must never reach durable storage,
// and serves as the production fallback when no Redis is configured.
// Sessions are evicted least-recently-used once Size is reached and expire
// TTL after their last write.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/meikuraledutech/flow"
)

// SessionStore implements flow.SessionStore on an expirable LRU.
type SessionStore struct {
	// mu makes the existence check and the write of Create and Save one step.
	mu    sync.Mutex
	cache *expirable.LRU[string, flow.Session]
}

var _ flow.SessionStore = (*SessionStore)(nil)

// New returns a store holding at most size sessions for ttl each.
func New(size int, ttl time.Duration) *SessionStore {
	return &SessionStore{cache: expirable.NewLRU[string, flow.Session](size, nil, ttl)}
}

// Len reports how many sessions are cached.
func (s *SessionStore) Len() int { return s.cache.Len() }

func (s *SessionStore) CreateSession(_ context.Context, sess *flow.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache.Contains(sess.ID) {
		return fmt.Errorf("create session: id %q already exists", sess.ID)
	}
	s.cache.Add(sess.ID, copySession(sess))
	return nil
}

// GetSession returns nil, nil for missing or evicted sessions.
func (s *SessionStore) GetSession(_ context.Context, id string) (*flow.Session, error) {
	sess, ok := s.cache.Get(id)
	if !ok {
		return nil, nil
	}
	out := copySession(&sess)
	return &out, nil
}

func (s *SessionStore) SaveSession(_ context.Context, sess *flow.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cache.Contains(sess.ID) {
		return flow.ErrSessionNotFound
	}
	s.cache.Add(sess.ID, copySession(sess))
	return nil
}

func (s *SessionStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Remove(id)
	return nil
}

// copySession detaches the variable bag so callers cannot mutate cached state.
// The node slice is shared; the runtime never writes to it.
func copySession(sess *flow.Session) flow.Session {
	out := *sess
	out.Variables = make(map[string]string, len(sess.Variables))
	for k, v := range sess.Variables {
		out.Variables[k] = v
	}
	return out
}
