package main

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"staking-ledger/internal/logging"
	"staking-ledger/internal/storage/migrations"
	pgstore "staking-ledger/internal/storage/postgres"
)

var cmdMigrate = &cobra.Command{
	Use:   "migrate",
	Short: "Apply postgres and clickhouse schema migrations and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(v)
		if err != nil {
			return err
		}
		logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx := cmd.Context()
		if cfg.Postgres.DSN == "" && cfg.Clickhouse.DSN == "" {
			return errors.New("nothing to migrate: set postgres.dsn and/or clickhouse.dsn")
		}

		if cfg.Postgres.DSN != "" {
			pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
			if err != nil {
				return err
			}
			defer pool.Close()
			applied, err := migrations.RunPostgresMigrations(ctx, pool)
			if err != nil {
				return err
			}
			logApplied(logger, "postgres", applied)
		}

		if cfg.Clickhouse.DSN != "" {
			conn, applied, err := migrations.RunClickhouseMigrations(ctx, cfg.Clickhouse.DSN)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()
			logApplied(logger, "clickhouse", applied)
		}

		return nil
	},
}

// logApplied reports which migration files a run applied.
func logApplied(logger *zap.Logger, database string, applied []migrations.Migration) {
	if len(applied) == 0 {
		logger.Info("schema up to date", zap.String("database", database))
		return
	}
	for _, m := range applied {
		logger.Info("migration applied",
			zap.String("database", database),
			zap.Uint32("version", m.Version),
			zap.String("file", m.Name))
	}
}
