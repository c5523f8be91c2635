package main

import (
	"errors"
	"fmt"

	migrations "github.com/PaulFidika/tpayhook/migrations/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply notification and job queue migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("TPAY_DATABASE_URL is required")
			}
			ctx := cmd.Context()
			pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			riverMigrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
			if err != nil {
				return err
			}
			res, err := riverMigrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
			if err != nil {
				return fmt.Errorf("river migrations: %w", err)
			}
			for _, v := range res.Versions {
				log.WithField("version", v.Version).Info("applied river migration")
			}

			db := stdlib.OpenDBFromPool(pool)
			defer db.Close()
			applied, err := migrations.Up(ctx, db)
			if err != nil {
				return err
			}
			for _, name := range applied {
				log.WithField("migration", name).Info("applied migration")
			}
			if len(applied) == 0 {
				log.Info("notification schema up to date")
			}
			return nil
		},
	}
}
