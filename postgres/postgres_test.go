package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/flow"
)

func TestWrap_Classification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"connection failure", &pgconn.PgError{Code: "08006"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wrap("op", tt.err)
			assert.Equal(t, tt.transient, flow.IsTransient(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
	assert.NoError(t, wrap("op", nil))
	assert.True(t, isNoRows(pgx.ErrNoRows))
}

// newTestStore connects to FLOW_TEST_DATABASE_URL and starts from a clean schema.
func newTestStore(t *testing.T) *PGStore {
	t.Helper()
	url := os.Getenv("FLOW_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("FLOW_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := New(pool)
	require.NoError(t, s.DropSchema(ctx))
	require.NoError(t, s.CreateSchema(ctx))
	return s
}

func TestPGStore_LockAndCommit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	f, err := s.CreateFlow(ctx, &flow.Flow{ChatbotID: "bot"})
	require.NoError(t, err)

	now := time.Now().UTC()
	ok, err := s.AcquireLock(ctx, f.ID, "alice", now, now.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.AcquireLock(ctx, f.ID, "bob", now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	nodes := []flow.Node{
		{ID: "n1", Type: flow.TypeText, Order: 0, NextNodeID: "n2"},
		{ID: "n2", Type: flow.TypeText, Order: 1, EndConversation: true},
	}
	next := *f
	next.StartNodeID = "n1"
	next.Status = flow.StatusPublished
	next.Version = 1
	next.PublishedAt = &now
	next.UpdatedAt = now

	err = s.WithTx(ctx, func(tx flow.Tx) error {
		if err := tx.DeleteNodes(ctx, f.ID); err != nil {
			return err
		}
		if err := tx.InsertNodes(ctx, f.ID, nodes); err != nil {
			return err
		}
		return tx.CommitFlow(ctx, &next, "bob")
	})
	require.ErrorIs(t, err, flow.ErrLockConflict)
	got, err := s.ListNodes(ctx, f.ID)
	require.NoError(t, err)
	assert.Empty(t, got)

	err = s.WithTx(ctx, func(tx flow.Tx) error {
		if err := tx.InsertNodes(ctx, f.ID, nodes); err != nil {
			return err
		}
		return tx.CommitFlow(ctx, &next, "alice")
	})
	require.NoError(t, err)

	got, err = s.ListNodes(ctx, f.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "n2", got[0].NextNodeID)

	stored, err := s.GetFlow(ctx, f.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Lock)
	assert.Equal(t, 1, stored.Version)
	assert.Equal(t, "n1", stored.StartNodeID)
}
