// Package engine runs the trading loop: one scan-and-monitor pass per
// session, a forced close of whatever is still held at the end, and an outer
// supervisor that survives panics and keeps the process alive across days.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/rustyeddy/gapfill/broker"
	"github.com/rustyeddy/gapfill/config"
	"github.com/rustyeddy/gapfill/journal"
	"github.com/rustyeddy/gapfill/marketdata"
	"github.com/rustyeddy/gapfill/metrics"
	"github.com/rustyeddy/gapfill/session"
	"github.com/rustyeddy/gapfill/strategy"
)

const (
	// defaultCooldown is how long the supervisor pauses after an aborted
	// session before trying again.
	defaultCooldown = 5 * time.Minute

	// defaultIdle is the extra sleep after a completed session, past the
	// venue close, so the next wait targets the following day.
	defaultIdle = time.Hour

	// defaultOpenPoll is the cadence for polling the first intraday candle.
	defaultOpenPoll = 15 * time.Second

	// defaultPacing is the pause between consecutive order submissions.
	defaultPacing = time.Second
)

// VenueClock is the market-hours view the engine needs. *session.Clock
// satisfies it; tests substitute a fixed clock.
type VenueClock interface {
	Now() time.Time
	IsOpen(t time.Time) bool
	OpenToday(t time.Time) time.Time
	SessionDate(t time.Time) time.Time
	WaitUntilOpen(ctx context.Context) error
	Location() *time.Location
}

// Engine wires the strategy, sizing, execution and journaling together.
// All session state lives in the per-day ledger, never on the Engine, so
// each day starts clean.
type Engine struct {
	cfg    *config.Config
	params strategy.Params

	clock   VenueClock
	broker  broker.Broker
	data    marketdata.Provider
	journal journal.Journal

	monitorInterval time.Duration
	monitorCeiling  time.Duration
	openWait        time.Duration
	openPoll        time.Duration
	pacing          time.Duration
	cooldown        time.Duration
	idleAfterDay    time.Duration
}

// New builds an engine from a validated configuration and its collaborators.
func New(cfg *config.Config, clk VenueClock, b broker.Broker, data marketdata.Provider, jnl journal.Journal) (*Engine, error) {
	interval, err := cfg.Strategy.MonitorIntervalDuration()
	if err != nil {
		return nil, fmt.Errorf("monitor interval: %w", err)
	}
	ceiling, err := cfg.Strategy.MonitorCeilingDuration()
	if err != nil {
		return nil, fmt.Errorf("monitor ceiling: %w", err)
	}
	openWait, err := cfg.MarketData.OpenWaitDuration()
	if err != nil {
		return nil, fmt.Errorf("open wait: %w", err)
	}

	return &Engine{
		cfg:             cfg,
		params:          ParamsFromConfig(cfg.Strategy),
		clock:           clk,
		broker:          b,
		data:            data,
		journal:         jnl,
		monitorInterval: interval,
		monitorCeiling:  ceiling,
		openWait:        openWait,
		openPoll:        defaultOpenPoll,
		pacing:          defaultPacing,
		cooldown:        defaultCooldown,
		idleAfterDay:    defaultIdle,
	}, nil
}

// ParamsFromConfig maps the strategy configuration onto evaluator parameters.
func ParamsFromConfig(sc config.StrategyConfig) strategy.Params {
	return strategy.Params{
		MinGap:      sc.MinGap,
		MaxGap:      sc.MaxGap,
		RSIMax:      sc.RSIMax,
		SlippageBP:  sc.SlippageBP,
		StopCap:     sc.StopCap,
		StopDamping: sc.StopDamping,
	}
}

// Run is the supervisor loop. A session that returns an error (or panics)
// is logged and retried after a cooldown; a completed session is followed by
// an idle stretch past the close. Run only returns when ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := e.safeDay(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if err != nil {
			log.Printf("[RECOVER] session aborted: %v (cooldown %s)", err, e.cooldown)
			if serr := session.Sleep(ctx, e.cooldown); serr != nil {
				return serr
			}
			continue
		}

		if err := e.idle(ctx); err != nil {
			return err
		}
	}
}

// safeDay runs one session, converting a panic anywhere inside it into an
// error so the supervisor can cool down and continue.
func (e *Engine) safeDay(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return e.RunDay(ctx)
}

// idle waits out the rest of the open window after a completed session,
// then sleeps a little longer so the next open wait lands on the next day.
func (e *Engine) idle(ctx context.Context) error {
	for e.clock.IsOpen(e.clock.Now()) {
		if err := session.Sleep(ctx, time.Minute); err != nil {
			return err
		}
	}
	return session.Sleep(ctx, e.idleAfterDay)
}

// RunDay executes one full session: wait for the open, scan the universe and
// enter qualifying instruments, monitor each position concurrently, then
// force-close whatever is still held.
func (e *Engine) RunDay(ctx context.Context) error {
	if err := e.clock.WaitUntilOpen(ctx); err != nil {
		return err
	}

	d := &day{
		e:      e,
		ledger: NewLedger(e.cfg.Strategy.TotalBudget),
		plans:  make(map[string]strategy.Plan),
	}

	// Rebuild committed spend from the journal so a restart mid-session
	// cannot overspend the budget.
	today := e.clock.SessionDate(e.clock.Now())
	if spent, err := e.journal.SessionSpent(today); err != nil {
		log.Printf("[JOURNAL] session spend lookup failed: %v", err)
	} else if spent > 0 {
		log.Printf("[RECOVER] journal shows %.2f already committed today", spent)
		d.ledger.SeedSpent(spent)
	}
	metrics.SetSessionSpent(d.ledger.Spent())

	log.Printf("[SESSION] %s open: universe=%v budget=%.2f",
		today.Format("2006-01-02"), e.cfg.Strategy.Universe, e.cfg.Strategy.TotalBudget)

	d.scanUniverse(ctx)
	d.wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	d.closeAll(ctx)

	log.Printf("[SESSION] done: spent=%.2f open=%d", d.ledger.Spent(), d.ledger.OpenCount())
	return nil
}
