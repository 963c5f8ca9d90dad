package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/rustyeddy/gapfill/broker"
	"github.com/rustyeddy/gapfill/indicators"
	"github.com/rustyeddy/gapfill/journal"
	"github.com/rustyeddy/gapfill/marketdata"
	"github.com/rustyeddy/gapfill/metrics"
	"github.com/rustyeddy/gapfill/pkg/id"
	"github.com/rustyeddy/gapfill/risk"
	"github.com/rustyeddy/gapfill/session"
	"github.com/rustyeddy/gapfill/strategy"
)

// errBudgetSpent stops the scan early: the remaining session budget cannot
// afford a single share of the current candidate.
var errBudgetSpent = errors.New("session budget spent")

// day holds the state of one trading session. The scan loop is the only
// writer of plans; monitors touch only the mutex-guarded ledger.
type day struct {
	e      *Engine
	ledger *Ledger
	plans  map[string]strategy.Plan // instrument -> entered plan
	wg     sync.WaitGroup
}

// scanUniverse walks the configured universe once, in order, entering every
// instrument that qualifies and spawning a monitor goroutine for each entry.
func (d *day) scanUniverse(ctx context.Context) {
	universe := d.e.cfg.Strategy.Universe
	budgetEach := d.e.cfg.Strategy.TotalBudget / float64(len(universe))

	for _, symbol := range universe {
		if ctx.Err() != nil {
			return
		}
		if !d.e.clock.IsOpen(d.e.clock.Now()) {
			log.Printf("[SCAN] market closed, abandoning remaining universe")
			return
		}
		if d.ledger.Remaining() <= 0 {
			log.Printf("[BUDGET] session budget spent, abandoning remaining universe")
			return
		}

		instrument := d.e.cfg.Broker.Instrument(symbol)
		if d.ledger.Entered(instrument) {
			log.Printf("[SCAN] %s already entered today, skipping", symbol)
			metrics.IncScan("skipped")
			continue
		}

		if err := d.scanSymbol(ctx, symbol, instrument, budgetEach); err != nil {
			if errors.Is(err, errBudgetSpent) {
				log.Printf("[BUDGET] %v, abandoning remaining universe", err)
				return
			}
			return // context gone
		}
	}
}

// scanSymbol evaluates one instrument and, on a qualifying signal, sizes and
// enters it. Data problems and failed submissions skip the instrument; only
// budget exhaustion or a dead context stop the whole scan.
func (d *day) scanSymbol(ctx context.Context, symbol, instrument string, budgetEach float64) error {
	snap, err := d.snapshot(ctx, symbol)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[SCAN] %s: %v", symbol, err)
		metrics.IncScan("no_data")
		return nil
	}

	sig := d.e.params.Evaluate(*snap)
	if sig == nil {
		log.Printf("[SCAN] %s: gap=%.4f rsi=%.1f, no signal",
			symbol, strategy.Gap(snap.OpenPrice, snap.PrevClose), snap.RSI)
		metrics.IncScan("no_signal")
		return nil
	}
	log.Printf("[SIGNAL] %s: gap=%.4f rsi=%.1f prev_close=%.2f open=%.2f",
		symbol, sig.Gap, sig.RSI, sig.PrevClose, sig.Entry)

	cash, err := d.e.broker.AvailableCash(ctx)
	if err != nil {
		log.Printf("[SCAN] %s: cash lookup failed: %v", symbol, err)
		metrics.IncScan("skipped")
		return nil
	}

	sized := risk.Shares(risk.Inputs{
		Cash:          cash,
		RiskFrac:      d.e.cfg.Strategy.PerTradeRisk,
		EntryPrice:    sig.Entry,
		StopPrice:     d.e.params.Stop(sig.Entry, sig.Gap),
		BudgetEach:    budgetEach,
		RiskFloorFrac: d.e.cfg.Strategy.RiskFloorFrac,
	})
	if sized.Shares <= 0 {
		log.Printf("[SIZE] %s: zero quantity (risk/share %.4f), skipping", symbol, sized.RiskPerShare)
		metrics.IncScan("skipped")
		return nil
	}

	qty := risk.CapToRemaining(sized.Shares, sig.Entry, d.ledger.Remaining())
	if qty <= 0 {
		return errBudgetSpent
	}

	plan := d.e.params.BuildPlan(*sig, instrument, qty)
	metrics.IncScan("signal")

	if !d.enter(ctx, plan) {
		return nil
	}

	d.plans[instrument] = plan
	d.wg.Add(1)
	go d.monitor(ctx, plan, d.e.clock.Now())
	return nil
}

// snapshot assembles the market view for one symbol: previous close and
// momentum from completed daily bars, plus today's opening price.
func (d *day) snapshot(ctx context.Context, symbol string) (*strategy.Snapshot, error) {
	bars, err := d.e.data.DailyBars(ctx, symbol, d.e.cfg.MarketData.LookbackDays)
	if err != nil {
		return nil, err
	}

	now := d.e.clock.Now()
	completed := marketdata.CompletedBars(bars, now, d.e.clock.Location())
	if len(completed) < d.e.cfg.Strategy.RSIPeriod+1 {
		return nil, marketdata.ErrNoData
	}

	prevClose := completed[len(completed)-1].Close
	rsi, err := indicators.RSIFunc(completed, d.e.cfg.Strategy.RSIPeriod)
	if err != nil {
		return nil, marketdata.ErrNoData
	}

	open, err := marketdata.AwaitOpeningPrice(ctx, d.e.data, symbol,
		d.e.clock.OpenToday(now), d.e.openWait, d.e.openPoll)
	if err != nil {
		return nil, err
	}

	return &strategy.Snapshot{
		Symbol:    symbol,
		PrevClose: prevClose,
		RSI:       rsi,
		OpenPrice: open,
	}, nil
}

// enter submits the entry order and, once it is acknowledged, records the
// position and attaches the protective stop. A failed entry leaves the
// ledger untouched. A failed stop leaves the position open without one;
// monitoring and the end-of-day close still cover it.
func (d *day) enter(ctx context.Context, plan strategy.Plan) bool {
	clientID := id.New()
	conf, err := d.e.broker.PlaceMarketOrder(ctx, broker.MarketOrderRequest{
		Instrument: plan.Instrument,
		Quantity:   float64(plan.Quantity),
		ClientID:   clientID,
	})
	if err != nil {
		log.Printf("[ORDER] %s: entry failed: %v", plan.Instrument, err)
		metrics.IncOrderFailure("entry")
		return false
	}
	log.Printf("[ORDER] %s: bought %d @ ~%.2f target=%.2f stop=%.2f order=%s",
		plan.Instrument, plan.Quantity, plan.Entry, plan.Target, plan.Stop, conf.OrderID)

	d.ledger.Open(plan.Instrument, plan.Quantity, plan.Entry)
	metrics.IncOrder("entry")
	metrics.SetOpenPositions(d.ledger.OpenCount())
	metrics.SetSessionSpent(d.ledger.Spent())
	d.recordOrder(clientID, plan.Instrument, "entry", float64(plan.Quantity), plan.Entry)

	d.pace(ctx)

	stopID := id.New()
	_, err = d.e.broker.PlaceStopOrder(ctx, broker.StopOrderRequest{
		Instrument: plan.Instrument,
		Quantity:   -float64(plan.Quantity),
		StopPrice:  plan.Stop,
		ClientID:   stopID,
	})
	if err != nil {
		log.Printf("[ORDER] %s: stop attach failed, position unprotected: %v", plan.Instrument, err)
		metrics.IncOrderFailure("stop")
	} else {
		metrics.IncOrder("stop")
		d.recordOrder(stopID, plan.Instrument, "stop", -float64(plan.Quantity), plan.Stop)
	}

	d.pace(ctx)
	return true
}

// monitor polls the last traded price until the target is reached, the
// monitoring ceiling elapses, or the market closes. On target it sells the
// full held quantity; on ceiling or close it leaves the position for the
// end-of-day pass. The first check happens right away: a gap that fills at
// the open should not wait out a whole interval.
func (d *day) monitor(ctx context.Context, plan strategy.Plan, opened time.Time) {
	defer d.wg.Done()

	deadline := opened.Add(d.e.monitorCeiling)
	ticker := time.NewTicker(d.e.monitorInterval)
	defer ticker.Stop()

	for {
		now := d.e.clock.Now()
		if !now.Before(deadline) {
			log.Printf("[MONITOR] %s: ceiling reached, leaving position for end of day", plan.Instrument)
			return
		}
		if !d.e.clock.IsOpen(now) {
			return
		}

		if d.checkTarget(ctx, plan, opened) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// checkTarget reads the last price and sells the full position when it is at
// or above the target. Read errors and failed sells are skipped ticks; a
// true result means the monitor is finished.
func (d *day) checkTarget(ctx context.Context, plan strategy.Plan, opened time.Time) bool {
	px, err := d.e.data.LastPrice(ctx, plan.Symbol)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		log.Printf("[MONITOR] %s: price read failed: %v", plan.Symbol, err)
		return false
	}
	if px < plan.Target {
		return false
	}

	qty := d.ledger.Held(plan.Instrument)
	if qty <= 0 {
		return true
	}

	clientID := id.New()
	_, err = d.e.broker.PlaceMarketOrder(ctx, broker.MarketOrderRequest{
		Instrument: plan.Instrument,
		Quantity:   -float64(qty),
		ClientID:   clientID,
	})
	if err != nil {
		// Position stays on the books; try again on the next tick.
		log.Printf("[MONITOR] %s: target sell failed: %v", plan.Instrument, err)
		metrics.IncOrderFailure("target")
		return false
	}

	d.ledger.CloseOut(plan.Instrument)
	metrics.IncOrder("target")
	metrics.SetOpenPositions(d.ledger.OpenCount())
	log.Printf("[MONITOR] %s: target %.2f reached at %.2f, sold %d", plan.Instrument, plan.Target, px, qty)

	d.recordOrder(clientID, plan.Instrument, "target", -float64(qty), px)
	d.recordTrade(plan, qty, px, opened, d.e.clock.Now(), "target")
	return true
}

// closeAll force-closes every residual position. Each close is independent:
// one failure is logged and the rest still go out. Already-flat instruments
// are skipped, so running it again is harmless.
func (d *day) closeAll(ctx context.Context) {
	positions := d.ledger.Positions()
	if len(positions) == 0 {
		log.Printf("[EOD] no residual positions")
		return
	}

	for instrument, qty := range positions {
		clientID := id.New()
		_, err := d.e.broker.PlaceMarketOrder(ctx, broker.MarketOrderRequest{
			Instrument: instrument,
			Quantity:   -float64(qty),
			ClientID:   clientID,
		})
		if err != nil {
			log.Printf("[EOD] %s: close failed: %v", instrument, err)
			metrics.IncOrderFailure("eod")
			d.pace(ctx)
			continue
		}

		d.ledger.CloseOut(instrument)
		metrics.IncOrder("eod")
		log.Printf("[EOD] %s: closed %d", instrument, qty)

		plan, havePlan := d.plans[instrument]
		exit := 0.0
		if havePlan {
			if px, perr := d.e.data.LastPrice(ctx, plan.Symbol); perr == nil {
				exit = px
			}
		}
		d.recordOrder(clientID, instrument, "eod", -float64(qty), exit)
		if havePlan {
			d.recordTrade(plan, qty, exit, d.e.clock.SessionDate(d.e.clock.Now()), d.e.clock.Now(), "eod")
		}

		d.pace(ctx)
	}

	metrics.SetOpenPositions(d.ledger.OpenCount())
}

// pace pauses between consecutive order submissions.
func (d *day) pace(ctx context.Context) {
	if d.e.pacing > 0 {
		_ = session.Sleep(ctx, d.e.pacing)
	}
}

// recordOrder journals one acknowledged order. Journal failures are logged,
// never fatal: the brokerage already holds the order.
func (d *day) recordOrder(clientID, instrument, kind string, qty, price float64) {
	err := d.e.journal.RecordOrder(journal.OrderRecord{
		ClientID:   clientID,
		Instrument: instrument,
		Kind:       kind,
		Quantity:   qty,
		Price:      price,
		Time:       d.e.clock.Now(),
	})
	if err != nil {
		log.Printf("[JOURNAL] %s %s record failed: %v", instrument, kind, err)
	}
}

// recordTrade journals one completed round trip.
func (d *day) recordTrade(plan strategy.Plan, qty int, exit float64, opened, closed time.Time, reason string) {
	err := d.e.journal.RecordTrade(journal.TradeRecord{
		TradeID:    id.New(),
		Instrument: plan.Instrument,
		Quantity:   float64(qty),
		EntryPrice: plan.Entry,
		ExitPrice:  exit,
		OpenTime:   opened,
		CloseTime:  closed,
		Reason:     reason,
	})
	if err != nil {
		log.Printf("[JOURNAL] %s trade record failed: %v", plan.Instrument, err)
	}
}
