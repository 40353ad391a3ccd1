package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"solana-pool-trader/internal/agent"
	"solana-pool-trader/internal/config"
	"solana-pool-trader/internal/domain"
)

func newPositionsCmd() *cobra.Command {
	var (
		openOnly bool
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "positions",
		Short: "List persisted positions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStores(cmd.Context(), func(ctx context.Context, s agent.Stores) error {
				var (
					positions []*domain.Position
					err       error
				)
				if openOnly {
					positions, err = s.Positions.GetOpenPositions(ctx)
				} else {
					positions, err = s.Positions.List(ctx, limit)
				}
				if err != nil {
					return err
				}
				return printPositions(os.Stdout, positions)
			})
		},
	}
	cmd.Flags().BoolVar(&openOnly, "open", false, "only OPEN positions")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows (0 = all)")
	return cmd
}

func newTradesCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "List persisted trades, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStores(cmd.Context(), func(ctx context.Context, s agent.Stores) error {
				trades, err := s.Trades.List(ctx, limit)
				if err != nil {
					return err
				}
				return printTrades(os.Stdout, trades)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows (0 = all)")
	return cmd
}

// withStores opens the configured stores, runs fn and closes them.
func withStores(ctx context.Context, fn func(context.Context, agent.Stores) error) error {
	cfg, logger, err := loadWithLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Storage.Driver == config.DriverMemory {
		return fmt.Errorf("storage driver %q keeps nothing between runs", config.DriverMemory)
	}

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}()
	stores, err := agent.OpenStores(ctx, cfg.Storage, logger, func(fn func() error) {
		closers = append(closers, fn)
	})
	if err != nil {
		return err
	}
	return fn(ctx, stores)
}

func printPositions(w io.Writer, positions []*domain.Position) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTOKEN\tSTATUS\tSTATE\tENTRY\tAMOUNT\tPNL%\tOPENED\tREASON")
	for _, p := range positions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%g\t%g\t%s\t%s\t%s\n",
			p.PositionID,
			p.TokenAddress,
			p.Status,
			p.State,
			p.EntryPrice,
			p.Amount,
			optFloat(p.PnLPercent),
			formatMs(p.OpenedAt),
			p.ExitReason,
		)
	}
	return tw.Flush()
}

func printTrades(w io.Writer, trades []*domain.Trade) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSIDE\tSTATUS\tUSD\tIN\tOUT\tSIGNATURE\tCREATED\tERROR")
	for _, t := range trades {
		out := "-"
		if t.ActualAmountOut != nil {
			out = strconv.FormatUint(*t.ActualAmountOut, 10)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%d\t%s\t%s\t%s\t%s\n",
			t.TradeID,
			t.Side,
			t.Status,
			t.TradeAmountUSD,
			t.AmountIn,
			out,
			t.Signature,
			formatMs(t.CreatedAt),
			t.Error,
		)
	}
	return tw.Flush()
}

func optFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func formatMs(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
