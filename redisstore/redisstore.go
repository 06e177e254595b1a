// Package redisstore keeps conversation sessions in Redis with a sliding TTL.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meikuraledutech/flow"
)

// DefaultTTL is how long an idle session survives.
const DefaultTTL = 40 * time.Minute

// SessionStore implements flow.SessionStore on a Redis client.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

var _ flow.SessionStore = (*SessionStore)(nil)

// New returns a SessionStore. A non-positive ttl selects DefaultTTL.
func New(client *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SessionStore{client: client, ttl: ttl, prefix: "flow:session:"}
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

func (s *SessionStore) key(id string) string { return s.prefix + id }

// CreateSession stores a new session; it fails if the id is taken.
func (s *SessionStore) CreateSession(ctx context.Context, sess *flow.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(sess.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !ok {
		return fmt.Errorf("create session: id %q already exists", sess.ID)
	}
	return nil
}

// GetSession returns nil, nil when the session is missing or expired.
func (s *SessionStore) GetSession(ctx context.Context, id string) (*flow.Session, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	var sess flow.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}

// SaveSession overwrites an existing session and refreshes its TTL.
func (s *SessionStore) SaveSession(ctx context.Context, sess *flow.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ok, err := s.client.SetXX(ctx, s.key(sess.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if !ok {
		return flow.ErrSessionNotFound
	}
	return nil
}

// DeleteSession removes a session. Missing sessions are not an error.
func (s *SessionStore) DeleteSession(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
