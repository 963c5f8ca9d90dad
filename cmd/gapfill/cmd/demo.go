package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/gapfill/broker/sim"
	"github.com/rustyeddy/gapfill/config"
	"github.com/rustyeddy/gapfill/engine"
	"github.com/rustyeddy/gapfill/journal"
	"github.com/rustyeddy/gapfill/pricing"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run one simulated session with canned prices",
	Long: `Run a complete session against an in-memory brokerage and a canned price
series: a -2% overnight gap down on an oversold series that fills within a
few ticks. No credentials, network access or configuration file are needed.

Shows the full lifecycle:
  1. Scan finds the qualifying gap
  2. Position is sized from the risk and cash budgets
  3. Entry fills and the protective stop is attached
  4. Monitoring sells when the gap fills

Example:
  gapfill demo`,
	RunE: runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

// demoClock is always open so the demo never waits for a real bell.
type demoClock struct {
	loc *time.Location
}

func (c demoClock) Now() time.Time                       { return time.Now().In(c.loc) }
func (c demoClock) IsOpen(time.Time) bool                { return true }
func (c demoClock) Location() *time.Location             { return c.loc }
func (c demoClock) WaitUntilOpen(ctx context.Context) error { return ctx.Err() }

func (c demoClock) OpenToday(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 9, 30, 0, 0, c.loc)
}

func (c demoClock) SessionDate(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}

// demoData serves a falling daily series ending at 100, an open of 98, and
// last prices that climb through the target after a few polls.
type demoData struct {
	mu    sync.Mutex
	loc   *time.Location
	polls int
}

func (d *demoData) DailyBars(_ context.Context, symbol string, _ int) ([]pricing.Candle, error) {
	today := time.Now().In(d.loc)
	bars := make([]pricing.Candle, 16)
	for i := range bars {
		c := 100.0 + float64(len(bars)-1-i)
		day := today.AddDate(0, 0, -(len(bars) - i))
		bars[i] = pricing.Candle{
			Symbol: symbol, Time: day,
			Open: c, High: c + 0.5, Low: c - 0.5, Close: c,
			Volume: 1_000_000,
		}
	}
	return bars, nil
}

func (d *demoData) OpeningPrice(context.Context, string, time.Time) (float64, error) {
	return 98.0, nil
}

func (d *demoData) LastPrice(context.Context, string) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.polls++
	px := 98.0 + 0.5*float64(d.polls)
	fmt.Printf("  tick %d: last price %.2f\n", d.polls, px)
	return px, nil
}

func runDemo(cmd *cobra.Command, args []string) error {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return err
	}

	cfg := config.Default()
	cfg.Strategy.Universe = []string{"DEMO"}
	cfg.Strategy.TotalBudget = 2000
	cfg.Strategy.MonitorInterval = "300ms"
	cfg.Strategy.MonitorCeiling = "30s"
	cfg.MarketData.OpenWait = "1s"
	cfg.Journal.Type = "none"

	brk := sim.New(10_000)
	brk.SetMark("DEMO", 98)

	eng, err := engine.New(cfg, demoClock{loc: loc}, brk, &demoData{loc: loc}, journal.Noop{})
	if err != nil {
		return err
	}

	fmt.Println("Running one simulated session: prev close 100.00, open 98.00 (gap -2.00%)")
	fmt.Println()

	if err := eng.RunDay(context.Background()); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Orders placed:")
	for _, o := range brk.Orders() {
		fmt.Printf("  market %s %+.0f\n", o.Instrument, o.Quantity)
	}
	for _, s := range brk.Stops() {
		fmt.Printf("  stop   %s %+.0f @ %.2f\n", s.Instrument, s.Quantity, s.StopPrice)
	}
	return nil
}
