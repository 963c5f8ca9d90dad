// Package journal records every order submission and completed trade to
// durable storage before the in-memory ledgers move on, so an operator can
// reconstruct a session after a crash instead of trusting memory alone.
package journal

import "time"

// OrderRecord is one order submission, written at the moment the brokerage
// acknowledges it.
type OrderRecord struct {
	ClientID   string // ULID, time-sortable
	Instrument string
	Kind       string // entry|stop|target|eod
	Quantity   float64
	Price      float64 // reference price: entry/stop/target, 0 if unknown
	Time       time.Time
}

// TradeRecord is a completed round trip for one instrument.
type TradeRecord struct {
	TradeID    string
	Instrument string
	Quantity   float64
	EntryPrice float64
	ExitPrice  float64
	OpenTime   time.Time
	CloseTime  time.Time
	Reason     string // target|eod
}

type Journal interface {
	RecordOrder(OrderRecord) error
	RecordTrade(TradeRecord) error

	// SessionSpent sums the capital committed by entry orders on the given
	// trading date. Used to rebuild the budget ledger after a restart.
	SessionSpent(day time.Time) (float64, error)

	Close() error
}

// Noop is a Journal that records nothing.
type Noop struct{}

func (Noop) RecordOrder(OrderRecord) error          { return nil }
func (Noop) RecordTrade(TradeRecord) error          { return nil }
func (Noop) SessionSpent(time.Time) (float64, error) { return 0, nil }
func (Noop) Close() error                           { return nil }
