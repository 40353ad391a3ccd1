package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"solana-pool-trader/internal/config"
	"solana-pool-trader/internal/storage/migrations"
	"solana-pool-trader/internal/storage/postgres"
	"solana-pool-trader/internal/storage/sqlite"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations for the configured storage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadWithLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return migrate(cmd.Context(), cfg.Storage, logger)
		},
	}
}

func migrate(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := postgres.NewPoolWithConfig(ctx, cfg.PostgresDSN, postgres.PoolConfig{MaxConns: cfg.MaxConns})
		if err != nil {
			return err
		}
		defer pool.Close()
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			return err
		}
		logger.Info("postgres migrations applied", zap.Strings("versions", applied))
	case config.DriverSQLite:
		// Open migrates the schema.
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return err
		}
		if err := db.Close(); err != nil {
			return fmt.Errorf("close sqlite: %w", err)
		}
		logger.Info("sqlite schema migrated", zap.String("path", cfg.SQLitePath))
	default:
		logger.Info("storage driver needs no migrations", zap.String("driver", cfg.Driver))
	}

	if cfg.ClickhouseDSN != "" {
		conn, applied, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return err
		}
		if err := conn.Close(); err != nil {
			return fmt.Errorf("close clickhouse: %w", err)
		}
		logger.Info("clickhouse migrations applied", zap.Strings("versions", applied))
	}
	return nil
}
