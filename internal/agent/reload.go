package agent

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"solana-pool-trader/internal/config"
	"solana-pool-trader/internal/domain"
	"solana-pool-trader/internal/strategy"
)

// ApplyStrategy reconciles the evaluator with cfg: strategies missing from
// cfg.Entry are removed, new ones added, and the error policy replaced.
// Exit thresholds apply to positions opened afterwards.
// The evaluator is left untouched when cfg names an unknown strategy.
func (a *Agent) ApplyStrategy(cfg config.StrategyConfig) error {
	policy, err := strategy.ParseErrorPolicy(cfg.ErrorPolicy)
	if err != nil {
		return fmt.Errorf("agent: apply strategy: %w", err)
	}
	wanted, err := strategy.FromNames(cfg.Entry)
	if err != nil {
		return fmt.Errorf("agent: apply strategy: %w", err)
	}

	ev := a.opts.Evaluator
	current := ev.Strategies()

	var added, removed []string
	for _, name := range current {
		if !slices.Contains(cfg.Entry, name) {
			ev.RemoveStrategy(name)
			removed = append(removed, name)
		}
	}
	for _, s := range wanted {
		if !slices.Contains(current, s.Name()) {
			ev.AddStrategy(s)
			added = append(added, s.Name())
		}
	}
	ev.SetErrorPolicy(policy)
	if a.opts.Positions != nil {
		a.opts.Positions.SetExitConfig(cfg.Exit)
	}

	a.logger.Info("strategies reloaded",
		zap.Strings("added", added),
		zap.Strings("removed", removed),
		zap.String("error_policy", cfg.ErrorPolicy),
		zap.Strings("active", ev.Strategies()),
	)
	return nil
}

// SetTrading replaces the trading parameters used for subsequent evaluations.
func (a *Agent) SetTrading(cfg domain.TradingConfig) {
	a.mu.Lock()
	a.trading = cfg
	a.mu.Unlock()
}

// Reload is a config.StrategyListener.
func (a *Agent) Reload(cfg config.StrategyConfig) {
	if err := a.ApplyStrategy(cfg); err != nil {
		a.logger.Error("strategy reload rejected", zap.Error(err))
	}
}
