// Package broker defines the execution boundary: the minimal surface the
// order lifecycle needs from a brokerage.
package broker

import "context"

// Broker is the minimal interface the trading engine needs. Quantities are
// signed throughout: positive buys, negative sells.
type Broker interface {
	// AvailableCash returns the free cash balance in the account currency.
	AvailableCash(ctx context.Context) (float64, error)

	// PlaceMarketOrder submits a day market order.
	PlaceMarketOrder(ctx context.Context, req MarketOrderRequest) (Confirmation, error)

	// PlaceStopOrder submits a day stop order that triggers at StopPrice.
	PlaceStopOrder(ctx context.Context, req StopOrderRequest) (Confirmation, error)
}

// MarketOrderRequest is an immediate order at the prevailing price.
type MarketOrderRequest struct {
	Instrument string  // brokerage tradable code
	Quantity   float64 // signed
	ClientID   string  // caller-generated idempotency id
}

// StopOrderRequest is a conditional order triggering at StopPrice.
type StopOrderRequest struct {
	Instrument string
	Quantity   float64 // signed
	StopPrice  float64
	ClientID   string
}

// Confirmation is the brokerage's acknowledgement of a submitted order.
type Confirmation struct {
	OrderID    string
	Instrument string
	Quantity   float64
	Status     string
}
