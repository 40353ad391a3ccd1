package strategy

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Factory errors
var (
	ErrUnknownStrategyType = errors.New("unknown strategy type")
	ErrDuplicateStrategy   = errors.New("strategy listed more than once")
	ErrNoStrategies        = errors.New("at least one strategy is required")
)

// FromName creates an entry Strategy by name.
func FromName(name string) (Strategy, error) {
	switch name {
	case NameLiquidity:
		return LiquidityStrategy{}, nil
	case NameTokenRisk:
		return TokenRiskStrategy{}, nil
	case NameTokenSupply:
		return TokenSupplyStrategy{}, nil
	case NameMinPrice:
		return MinPriceStrategy{}, nil
	case NamePositionSizing:
		return PositionSizingStrategy{MaxPoolShare: DefaultMaxPoolShare}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategyType, name)
	}
}

// FromNames creates entry strategies for each name.
// Returns clear errors for unknown or repeated names.
func FromNames(names []string) ([]Strategy, error) {
	if len(names) == 0 {
		return nil, ErrNoStrategies
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]Strategy, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateStrategy, n)
		}
		seen[n] = struct{}{}
		s, err := FromName(n)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// DefaultEntryNames lists all built-in entry strategies.
func DefaultEntryNames() []string {
	return []string{NameLiquidity, NameTokenRisk, NameTokenSupply, NameMinPrice, NamePositionSizing}
}

// DefaultExitStrategies returns the exit strategies in evaluation order:
// time, profit, loss, liquidity, developer activity.
func DefaultExitStrategies(now func() time.Time) []ExitStrategy {
	return SortExitStrategies([]ExitStrategy{
		NewTimeExitStrategy(now),
		NewProfitStrategy(),
		NewStopLossStrategy(),
		NewLiquidityGuardStrategy(),
		NewDeveloperActivityStrategy(),
	})
}

// SortExitStrategies orders exit strategies by ascending priority, then name.
func SortExitStrategies(s []ExitStrategy) []ExitStrategy {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Priority() != s[j].Priority() {
			return s[i].Priority() < s[j].Priority()
		}
		return s[i].Name() < s[j].Name()
	})
	return s
}
