// Package sim is an in-memory broker used by the demo command and by tests.
// It fills every market order instantly at the caller-supplied mark price and
// records stop orders without ever triggering them.
package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/rustyeddy/gapfill/broker"
	"github.com/rustyeddy/gapfill/pkg/id"
)

// Broker simulates a brokerage account.
type Broker struct {
	mu sync.Mutex

	cash  float64
	marks map[string]float64 // instrument -> assumed execution price

	orders []broker.MarketOrderRequest
	stops  []broker.StopOrderRequest

	// FailMarket and FailStop force the next matching call to fail,
	// letting tests exercise the abandon/unprotected paths.
	FailMarket error
	FailStop   error
}

// Ensure Broker implements the execution interface
var _ broker.Broker = (*Broker)(nil)

// New creates a simulated account with the given free cash.
func New(cash float64) *Broker {
	return &Broker{
		cash:  cash,
		marks: make(map[string]float64),
	}
}

// SetMark sets the assumed execution price for an instrument.
func (b *Broker) SetMark(instrument string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.marks[instrument] = price
}

func (b *Broker) AvailableCash(ctx context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cash, nil
}

func (b *Broker) PlaceMarketOrder(ctx context.Context, req broker.MarketOrderRequest) (broker.Confirmation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.FailMarket != nil {
		err := b.FailMarket
		b.FailMarket = nil
		return broker.Confirmation{}, err
	}

	mark, ok := b.marks[req.Instrument]
	if !ok {
		return broker.Confirmation{}, fmt.Errorf("sim: no mark price for %s", req.Instrument)
	}

	cost := req.Quantity * mark
	if cost > b.cash {
		return broker.Confirmation{}, fmt.Errorf("sim: insufficient cash: need %.2f, have %.2f", cost, b.cash)
	}
	b.cash -= cost

	b.orders = append(b.orders, req)
	return broker.Confirmation{
		OrderID:    id.New(),
		Instrument: req.Instrument,
		Quantity:   req.Quantity,
		Status:     "FILLED",
	}, nil
}

func (b *Broker) PlaceStopOrder(ctx context.Context, req broker.StopOrderRequest) (broker.Confirmation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.FailStop != nil {
		err := b.FailStop
		b.FailStop = nil
		return broker.Confirmation{}, err
	}

	b.stops = append(b.stops, req)
	return broker.Confirmation{
		OrderID:    id.New(),
		Instrument: req.Instrument,
		Quantity:   req.Quantity,
		Status:     "SUBMITTED",
	}, nil
}

// Orders returns a copy of the market orders placed so far.
func (b *Broker) Orders() []broker.MarketOrderRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]broker.MarketOrderRequest, len(b.orders))
	copy(out, b.orders)
	return out
}

// Stops returns a copy of the stop orders placed so far.
func (b *Broker) Stops() []broker.StopOrderRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]broker.StopOrderRequest, len(b.stops))
	copy(out, b.stops)
	return out
}
