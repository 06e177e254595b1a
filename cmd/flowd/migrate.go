package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meikuraledutech/flow/internal/config"
	"github.com/meikuraledutech/flow/internal/logging"
)

var dropSchema bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create (or with --drop, drop) the flow tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		log, err := logging.New(cfg.Log)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		b := &backend{}
		if err := openGraphStore(ctx, cfg, b); err != nil {
			return err
		}
		defer b.Close()

		if dropSchema {
			if err := b.store.DropSchema(ctx); err != nil {
				return fmt.Errorf("drop schema: %w", err)
			}
			log.Info().Msg("schema dropped")
			return nil
		}
		if err := b.store.CreateSchema(ctx); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		log.Info().Msg("schema created")
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&dropSchema, "drop", false, "drop the tables instead of creating them")
}
