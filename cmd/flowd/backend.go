package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/meikuraledutech/flow"
	"github.com/meikuraledutech/flow/internal/config"
	"github.com/meikuraledutech/flow/memstore"
	"github.com/meikuraledutech/flow/postgres"
	"github.com/meikuraledutech/flow/redisstore"
	"github.com/meikuraledutech/flow/sqlite"
)

// backend bundles the opened stores and how to close them.
type backend struct {
	store    flow.Store
	sessions flow.SessionStore
	closers  []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openGraphStore picks Postgres when DATABASE_URL is set, SQLite otherwise.
func openGraphStore(ctx context.Context, cfg *config.Config, b *backend) error {
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		b.store = postgres.New(pool)
		return nil
	}
	s, err := sqlite.Open(ctx, cfg.SQLitePath)
	if err != nil {
		return err
	}
	b.closers = append(b.closers, func() { s.Close() })
	b.store = s
	return nil
}

func openBackend(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*backend, error) {
	b := &backend{}
	if err := openGraphStore(ctx, cfg, b); err != nil {
		return nil, err
	}

	if cfg.RedisURL == "" {
		log.Warn().Msg("REDIS_URL not set, production sessions are kept in memory")
		b.sessions = memstore.New(cfg.PreviewSessions*10, cfg.SessionTTL)
		return b, nil
	}
	client, err := redisstore.Connect(ctx, cfg.RedisURL)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.closers = append(b.closers, func() { client.Close() })
	b.sessions = redisstore.New(client, cfg.SessionTTL)
	return b, nil
}
