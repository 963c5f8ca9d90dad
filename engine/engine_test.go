package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/gapfill/broker"
	"github.com/rustyeddy/gapfill/broker/sim"
	"github.com/rustyeddy/gapfill/config"
	"github.com/rustyeddy/gapfill/journal"
	"github.com/rustyeddy/gapfill/marketdata"
	"github.com/rustyeddy/gapfill/pricing"
	"github.com/rustyeddy/gapfill/strategy"
)

// fakeClock reports a fixed venue date with real elapsed time layered on
// top, so monitor ceilings and tickers behave while the trading date stays
// deterministic.
type fakeClock struct {
	loc  *time.Location
	base time.Time
	t0   time.Time
}

func newFakeClock(t *testing.T) *fakeClock {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return &fakeClock{
		loc:  loc,
		base: time.Date(2026, 8, 19, 9, 31, 0, 0, loc), // Wednesday, just after the bell
		t0:   time.Now(),
	}
}

func (c *fakeClock) Now() time.Time            { return c.base.Add(time.Since(c.t0)) }
func (c *fakeClock) IsOpen(time.Time) bool     { return true }
func (c *fakeClock) Location() *time.Location  { return c.loc }
func (c *fakeClock) WaitUntilOpen(ctx context.Context) error { return ctx.Err() }

func (c *fakeClock) OpenToday(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 9, 30, 0, 0, c.loc)
}

func (c *fakeClock) SessionDate(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}

// stubData serves canned bars and a scripted last-price sequence per symbol.
// lastErrOnce injects a single read failure before the sequence resumes.
type stubData struct {
	mu          sync.Mutex
	bars        map[string][]pricing.Candle
	open        map[string]float64
	last        map[string][]float64
	lastErrOnce map[string]error
	dailyCalls  map[string]int
	panicDaily  bool
}

func newStubData() *stubData {
	return &stubData{
		bars:        make(map[string][]pricing.Candle),
		open:        make(map[string]float64),
		last:        make(map[string][]float64),
		lastErrOnce: make(map[string]error),
		dailyCalls:  make(map[string]int),
	}
}

func (s *stubData) DailyBars(_ context.Context, symbol string, _ int) ([]pricing.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dailyCalls[symbol]++
	if s.panicDaily {
		panic("stub: daily bars blew up")
	}
	bars, ok := s.bars[symbol]
	if !ok {
		return nil, marketdata.ErrNoData
	}
	return bars, nil
}

func (s *stubData) OpeningPrice(_ context.Context, symbol string, _ time.Time) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	px, ok := s.open[symbol]
	if !ok {
		return 0, marketdata.ErrNoData
	}
	return px, nil
}

func (s *stubData) LastPrice(_ context.Context, symbol string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lastErrOnce[symbol]; err != nil {
		delete(s.lastErrOnce, symbol)
		return 0, err
	}
	seq := s.last[symbol]
	switch len(seq) {
	case 0:
		return s.open[symbol], nil
	case 1:
		return seq[0], nil
	default:
		px := seq[0]
		s.last[symbol] = seq[1:]
		return px, nil
	}
}

// recJournal records everything in memory and can report a pre-seeded
// session spend, standing in for a journal that survived a restart.
type recJournal struct {
	mu     sync.Mutex
	spent  float64
	orders []journal.OrderRecord
	trades []journal.TradeRecord
}

func (j *recJournal) RecordOrder(o journal.OrderRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.orders = append(j.orders, o)
	return nil
}

func (j *recJournal) RecordTrade(t journal.TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trades = append(j.trades, t)
	return nil
}

func (j *recJournal) SessionSpent(time.Time) (float64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.spent, nil
}

func (j *recJournal) Close() error { return nil }

func (j *recJournal) tradeReasons() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, 0, len(j.trades))
	for _, t := range j.trades {
		out = append(out, t.Reason)
	}
	return out
}

// scriptBroker fails entry orders for chosen instruments and records the rest.
type scriptBroker struct {
	mu        sync.Mutex
	cash      float64
	failEntry map[string]error
	orders    []broker.MarketOrderRequest
	stops     []broker.StopOrderRequest
}

func (b *scriptBroker) AvailableCash(context.Context) (float64, error) {
	return b.cash, nil
}

func (b *scriptBroker) PlaceMarketOrder(_ context.Context, req broker.MarketOrderRequest) (broker.Confirmation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failEntry[req.Instrument]; err != nil && req.Quantity > 0 {
		return broker.Confirmation{}, err
	}
	b.orders = append(b.orders, req)
	return broker.Confirmation{OrderID: "ok", Instrument: req.Instrument, Quantity: req.Quantity, Status: "FILLED"}, nil
}

func (b *scriptBroker) PlaceStopOrder(_ context.Context, req broker.StopOrderRequest) (broker.Confirmation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stops = append(b.stops, req)
	return broker.Confirmation{OrderID: "ok", Instrument: req.Instrument, Quantity: req.Quantity, Status: "SUBMITTED"}, nil
}

func (b *scriptBroker) marketOrders() []broker.MarketOrderRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]broker.MarketOrderRequest, len(b.orders))
	copy(out, b.orders)
	return out
}

// makeBars builds n strictly falling daily closes ending at prevClose on
// lastDay, which keeps the RSI pinned at zero (maximally oversold).
func makeBars(symbol string, n int, prevClose float64, lastDay time.Time) []pricing.Candle {
	bars := make([]pricing.Candle, n)
	for i := 0; i < n; i++ {
		c := prevClose + float64(n-1-i)
		day := lastDay.AddDate(0, 0, -(n - 1 - i))
		bars[i] = pricing.Candle{
			Symbol: symbol, Time: day,
			Open: c, High: c + 0.5, Low: c - 0.5, Close: c,
			Volume: 1000,
		}
	}
	return bars
}

func newTestEngine(t *testing.T, universe []string, budget float64, b broker.Broker, data marketdata.Provider, jnl journal.Journal) *Engine {
	t.Helper()

	cfg := config.Default()
	cfg.Strategy.Universe = universe
	cfg.Strategy.TotalBudget = budget
	cfg.Strategy.MonitorInterval = "2ms"
	cfg.Strategy.MonitorCeiling = "250ms"
	cfg.MarketData.OpenWait = "20ms"

	e, err := New(cfg, newFakeClock(t), b, data, jnl)
	require.NoError(t, err)

	e.pacing = 0
	e.openPoll = time.Millisecond
	e.cooldown = time.Millisecond
	e.idleAfterDay = time.Millisecond
	return e
}

// seedGapDown arranges a -2% gap on a falling series: prev close 100,
// open 98, target 99.95, stop 97.412.
func seedGapDown(data *stubData, clk time.Time, symbol string) {
	data.bars[symbol] = makeBars(symbol, 16, 100, clk.AddDate(0, 0, -1))
	data.open[symbol] = 98
}

func TestRunDayTargetExit(t *testing.T) {
	b := sim.New(10000)
	b.SetMark("TSLA", 98)

	data := newStubData()
	seedGapDown(data, time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC), "TSLA")
	data.last["TSLA"] = []float64{99.0, 99.96}

	jnl := &recJournal{}
	e := newTestEngine(t, []string{"TSLA"}, 2000, b, data, jnl)

	require.NoError(t, e.RunDay(context.Background()))

	orders := b.Orders()
	require.Len(t, orders, 2)

	// Entry sized to 20 shares: budget 2000 / 1 symbol at 98 wins over the
	// risk budget (10000 * 0.005 / 0.588).
	assert.Equal(t, "TSLA", orders[0].Instrument)
	assert.Equal(t, 20.0, orders[0].Quantity)
	assert.NotEmpty(t, orders[0].ClientID)

	// Target sell of the full position.
	assert.Equal(t, -20.0, orders[1].Quantity)

	stops := b.Stops()
	require.Len(t, stops, 1)
	assert.Equal(t, -20.0, stops[0].Quantity)
	assert.InDelta(t, 97.412, stops[0].StopPrice, 1e-9)

	assert.Equal(t, []string{"target"}, jnl.tradeReasons())
}

func TestRunDayStopAttachFailureProceedsUnprotected(t *testing.T) {
	b := sim.New(10000)
	b.SetMark("TSLA", 98)
	b.FailStop = errors.New("rejected")

	data := newStubData()
	seedGapDown(data, time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC), "TSLA")
	data.last["TSLA"] = []float64{99.0, 99.96}

	jnl := &recJournal{}
	e := newTestEngine(t, []string{"TSLA"}, 2000, b, data, jnl)

	require.NoError(t, e.RunDay(context.Background()))

	// The stop never made it onto the books, but the entry stands and the
	// monitor still sells at target.
	assert.Empty(t, b.Stops())

	orders := b.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, 20.0, orders[0].Quantity)
	assert.Equal(t, -20.0, orders[1].Quantity)
	assert.Equal(t, []string{"target"}, jnl.tradeReasons())
}

func TestMonitorPriceReadErrorIsSkippedTick(t *testing.T) {
	b := sim.New(10000)
	b.SetMark("TSLA", 98)

	data := newStubData()
	seedGapDown(data, time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC), "TSLA")
	data.lastErrOnce["TSLA"] = errors.New("feed hiccup")
	data.last["TSLA"] = []float64{99.96}

	jnl := &recJournal{}
	e := newTestEngine(t, []string{"TSLA"}, 2000, b, data, jnl)

	require.NoError(t, e.RunDay(context.Background()))

	// The failed read cost one tick, nothing more: the position still sold
	// at target on the next one.
	orders := b.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, -20.0, orders[1].Quantity)
	assert.Equal(t, []string{"target"}, jnl.tradeReasons())
}

func TestMonitorChecksPriceBeforeFirstTick(t *testing.T) {
	b := sim.New(10000)
	b.SetMark("TSLA", 98)

	data := newStubData()
	seedGapDown(data, time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC), "TSLA")
	data.last["TSLA"] = []float64{99.96} // at target from the first read

	e := newTestEngine(t, []string{"TSLA"}, 2000, b, data, &recJournal{})
	e.monitorInterval = 10 * time.Second

	start := time.Now()
	require.NoError(t, e.RunDay(context.Background()))
	assert.Less(t, time.Since(start), 2*time.Second)

	orders := b.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, -20.0, orders[1].Quantity)
}

func TestRunDayCeilingLeavesPositionForEOD(t *testing.T) {
	b := sim.New(10000)
	b.SetMark("TSLA", 98)

	data := newStubData()
	seedGapDown(data, time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC), "TSLA")
	data.last["TSLA"] = []float64{99.0} // never reaches the 99.95 target

	jnl := &recJournal{}
	e := newTestEngine(t, []string{"TSLA"}, 2000, b, data, jnl)
	e.monitorCeiling = 30 * time.Millisecond

	require.NoError(t, e.RunDay(context.Background()))

	orders := b.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, 20.0, orders[0].Quantity)
	assert.Equal(t, -20.0, orders[1].Quantity)

	assert.Equal(t, []string{"eod"}, jnl.tradeReasons())
}

func TestRunDayEntryFailureKeepsScanning(t *testing.T) {
	b := &scriptBroker{
		cash:      10000,
		failEntry: map[string]error{"AAA": errors.New("rejected")},
	}

	data := newStubData()
	day := time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC)
	seedGapDown(data, day, "AAA")
	seedGapDown(data, day, "BBB")
	data.last["BBB"] = []float64{99.0}

	jnl := &recJournal{}
	e := newTestEngine(t, []string{"AAA", "BBB"}, 2000, b, data, jnl)
	e.monitorCeiling = 20 * time.Millisecond

	require.NoError(t, e.RunDay(context.Background()))

	// AAA's failed entry leaves no position and no stop; BBB still trades:
	// entry, then the end-of-day close.
	for _, o := range b.marketOrders() {
		assert.NotEqual(t, "AAA", o.Instrument)
	}
	orders := b.marketOrders()
	require.Len(t, orders, 2)
	assert.Equal(t, "BBB", orders[0].Instrument)
	assert.Equal(t, 10.0, orders[0].Quantity) // budget 2000 / 2 symbols at 98
	assert.Equal(t, -10.0, orders[1].Quantity)

	require.Len(t, b.stops, 1)
	assert.Equal(t, "BBB", b.stops[0].Instrument)
}

func TestRunDayNoPyramiding(t *testing.T) {
	b := sim.New(10000)
	b.SetMark("TSLA", 98)

	data := newStubData()
	seedGapDown(data, time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC), "TSLA")
	data.last["TSLA"] = []float64{99.0}

	e := newTestEngine(t, []string{"TSLA", "TSLA"}, 2000, b, data, &recJournal{})
	e.monitorCeiling = 20 * time.Millisecond

	require.NoError(t, e.RunDay(context.Background()))

	buys := 0
	for _, o := range b.Orders() {
		if o.Quantity > 0 {
			buys++
		}
	}
	assert.Equal(t, 1, buys)
}

func TestRunDayRecoveredSpendCapsScan(t *testing.T) {
	b := sim.New(10000)
	b.SetMark("AAA", 10)

	data := newStubData()
	day := time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC)
	data.bars["AAA"] = makeBars("AAA", 16, 10.2, day.AddDate(0, 0, -1))
	data.open["AAA"] = 10
	seedGapDown(data, day, "BBB")
	seedGapDown(data, day, "CCC")

	// The journal says 115 of the 120 budget is already committed from
	// before a restart: 5 remaining cannot afford one 10-dollar share, so
	// the scan stops at the first candidate.
	jnl := &recJournal{spent: 115}
	e := newTestEngine(t, []string{"AAA", "BBB", "CCC"}, 120, b, data, jnl)

	require.NoError(t, e.RunDay(context.Background()))

	assert.Empty(t, b.Orders())
	assert.Equal(t, 1, data.dailyCalls["AAA"])
	assert.Equal(t, 0, data.dailyCalls["BBB"])
	assert.Equal(t, 0, data.dailyCalls["CCC"])
}

func TestRunDayNoDataSkipsInstrument(t *testing.T) {
	b := sim.New(10000)
	b.SetMark("BBB", 98)

	data := newStubData()
	// AAA has no bars at all; BBB is a clean signal.
	seedGapDown(data, time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC), "BBB")
	data.last["BBB"] = []float64{99.96}

	e := newTestEngine(t, []string{"AAA", "BBB"}, 2000, b, data, &recJournal{})

	require.NoError(t, e.RunDay(context.Background()))

	orders := b.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, "BBB", orders[0].Instrument)
}

func TestCloseAllIdempotent(t *testing.T) {
	b := sim.New(10000)
	b.SetMark("XXX", 10)

	e := newTestEngine(t, []string{"XXX"}, 100, b, newStubData(), &recJournal{})
	d := &day{e: e, ledger: NewLedger(100), plans: make(map[string]strategy.Plan)}
	d.ledger.Open("XXX", 5, 10)

	d.closeAll(context.Background())
	d.closeAll(context.Background())

	require.Len(t, b.Orders(), 1)
	assert.Equal(t, -5.0, b.Orders()[0].Quantity)
}

func TestCloseAllRetryAfterFailedClose(t *testing.T) {
	b := sim.New(10000)
	b.SetMark("ZZZ", 10)
	b.FailMarket = errors.New("rejected")

	e := newTestEngine(t, []string{"ZZZ"}, 100, b, newStubData(), &recJournal{})
	d := &day{e: e, ledger: NewLedger(100), plans: make(map[string]strategy.Plan)}
	d.ledger.Open("ZZZ", 4, 10)

	// First pass fails; the position stays held for a later attempt.
	d.closeAll(context.Background())
	assert.Empty(t, b.Orders())
	assert.Equal(t, 4, d.ledger.Held("ZZZ"))

	d.closeAll(context.Background())
	require.Len(t, b.Orders(), 1)
	assert.Equal(t, -4.0, b.Orders()[0].Quantity)
	assert.Equal(t, 0, d.ledger.Held("ZZZ"))
}

func TestCloseAllOneFailureDoesNotBlockRest(t *testing.T) {
	// YYY has no mark price, so its close errors; ZZZ closes fine.
	simb := sim.New(10000)
	simb.SetMark("ZZZ", 10)

	e := newTestEngine(t, []string{"YYY", "ZZZ"}, 1000, simb, newStubData(), &recJournal{})
	d := &day{e: e, ledger: NewLedger(1000), plans: make(map[string]strategy.Plan)}
	d.ledger.Open("YYY", 3, 10)
	d.ledger.Open("ZZZ", 4, 10)

	d.closeAll(context.Background())

	require.Len(t, simb.Orders(), 1)
	assert.Equal(t, "ZZZ", simb.Orders()[0].Instrument)
	assert.Equal(t, -4.0, simb.Orders()[0].Quantity)

	// The failed close leaves YYY held for a later attempt.
	assert.Equal(t, 3, d.ledger.Held("YYY"))
	assert.Equal(t, 0, d.ledger.Held("ZZZ"))
}

func TestRunRecoversFromPanics(t *testing.T) {
	data := newStubData()
	data.panicDaily = true

	e := newTestEngine(t, []string{"TSLA"}, 2000, sim.New(10000), data, &recJournal{})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := e.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The supervisor kept retrying after each recovered panic.
	data.mu.Lock()
	calls := data.dailyCalls["TSLA"]
	data.mu.Unlock()
	assert.GreaterOrEqual(t, calls, 2, fmt.Sprintf("want repeated sessions, got %d", calls))
}
