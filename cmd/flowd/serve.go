package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/meikuraledutech/flow"
	"github.com/meikuraledutech/flow/internal/config"
	"github.com/meikuraledutech/flow/internal/logging"
	"github.com/meikuraledutech/flow/memstore"
	"github.com/meikuraledutech/flow/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()
	if err := b.store.CreateSchema(ctx); err != nil {
		return err
	}

	lock := flow.NewEditLock(b.store, flow.WithLockTTL(cfg.LockTTL))
	app := server.New(server.Deps{
		Store:    b.store,
		Compiler: flow.NewCompiler(b.store, lock, log),
		Lock:     lock,
		Runtime:  flow.NewRuntime(b.store, b.sessions, memstore.New(cfg.PreviewSessions, cfg.PreviewTTL), log),
		Log:      log,
	})

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		_ = app.ShutdownWithContext(context.Background())
	}()

	log.Info().Str("addr", cfg.Addr).Msg("listening")
	return app.Listen(cfg.Addr)
}
