package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/gapfill/config"
	"github.com/rustyeddy/gapfill/engine"
	"github.com/rustyeddy/gapfill/indicators"
	"github.com/rustyeddy/gapfill/marketdata"
	"github.com/rustyeddy/gapfill/marketdata/alpaca"
	"github.com/rustyeddy/gapfill/session"
	"github.com/rustyeddy/gapfill/strategy"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Evaluate the universe once without trading",
	Long: `Scan the configured universe and print each instrument's gap, momentum and
signal decision. No orders are placed and no brokerage credentials are needed;
only the Alpaca market-data keys (APCA_*) are used.

Run it shortly after the open to see what the bot would do.

Example:
  gapfill scan -f gapfill.yaml`,
	RunE: runScan,
}

var scanConfigPath string

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVarP(&scanConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	scanCmd.MarkFlagRequired("config")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(scanConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	clock, err := session.NewClock(cfg.Session)
	if err != nil {
		return fmt.Errorf("session clock: %w", err)
	}

	data := alpaca.NewProvider()
	params := engine.ParamsFromConfig(cfg.Strategy)
	ctx := context.Background()
	now := clock.Now()

	fmt.Printf("Scanning %d instruments at %s\n\n", len(cfg.Strategy.Universe), now.Format("2006-01-02 15:04:05 MST"))

	for _, symbol := range cfg.Strategy.Universe {
		bars, err := data.DailyBars(ctx, symbol, cfg.MarketData.LookbackDays)
		if err != nil {
			fmt.Printf("  %-6s no daily bars: %v\n", symbol, err)
			continue
		}

		completed := marketdata.CompletedBars(bars, now, clock.Location())
		if len(completed) < cfg.Strategy.RSIPeriod+1 {
			fmt.Printf("  %-6s not enough history (%d completed bars)\n", symbol, len(completed))
			continue
		}

		prevClose := completed[len(completed)-1].Close
		rsi, err := indicators.RSIFunc(completed, cfg.Strategy.RSIPeriod)
		if err != nil {
			fmt.Printf("  %-6s rsi: %v\n", symbol, err)
			continue
		}

		// One attempt only; a dry scan should not sit in a poll loop.
		open, err := data.OpeningPrice(ctx, symbol, clock.OpenToday(now))
		if err != nil {
			fmt.Printf("  %-6s no opening candle yet (prev_close=%.2f rsi=%.1f)\n", symbol, prevClose, rsi)
			continue
		}

		gap := strategy.Gap(open, prevClose)
		sig := params.Evaluate(strategy.Snapshot{
			Symbol: symbol, PrevClose: prevClose, RSI: rsi, OpenPrice: open,
		})
		if sig == nil {
			fmt.Printf("  %-6s gap=%+.2f%% rsi=%.1f  no signal\n", symbol, gap*100, rsi)
			continue
		}

		fmt.Printf("  %-6s gap=%+.2f%% rsi=%.1f  SIGNAL entry=%.2f target=%.2f stop=%.2f\n",
			symbol, gap*100, rsi, sig.Entry, params.Target(sig.PrevClose), params.Stop(sig.Entry, sig.Gap))
	}

	return nil
}
