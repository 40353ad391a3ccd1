package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"solana-pool-trader/internal/agent"
	"solana-pool-trader/internal/config"
)

func newRunCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Trade new pools and manage open positions until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrader(cmd.Context(), watch)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", true, "reload the strategy section when the config file changes")
	return cmd
}

func runTrader(parent context.Context, watch bool) error {
	cfg, logger, err := loadWithLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := agent.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("shutdown cleanup failed", zap.Error(err))
		}
	}()

	if watch && cfgFile != "" {
		w, err := config.Watch(cfgFile, logger)
		if err != nil {
			return err
		}
		w.OnStrategyChange(rt.Agent.Reload)
		logger.Info("watching config for strategy changes", zap.String("file", cfgFile))
	}

	logger.Info("trader running",
		zap.String("storage", cfg.Storage.Driver),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.Bool("api", cfg.API.Enabled),
	)
	if err := rt.Agent.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("trader stopped with error", zap.Error(err))
		return err
	}
	logger.Info("trader stopped")
	return nil
}
