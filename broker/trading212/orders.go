package trading212

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/gapfill/broker"
)

// Ensure Client implements the execution interface
var _ broker.Broker = (*Client)(nil)

// Prices and quantities are rounded through decimal before serialization so
// float64 representation noise never reaches the wire.
const (
	quantityPlaces = 6
	pricePlaces    = 4
)

type cashResponse struct {
	Free float64 `json:"free"`
}

type marketOrderPayload struct {
	InstrumentCode string  `json:"instrumentCode"`
	Quantity       float64 `json:"quantity"`
	TimeValidity   string  `json:"timeValidity"`
	ClientOrderID  string  `json:"clientOrderId,omitempty"`
}

type stopOrderPayload struct {
	InstrumentCode string  `json:"instrumentCode"`
	Quantity       float64 `json:"quantity"`
	StopPrice      float64 `json:"stopPrice"`
	TimeValidity   string  `json:"timeValidity"`
	ClientOrderID  string  `json:"clientOrderId,omitempty"`
}

type orderResponse struct {
	ID             json.Number `json:"id"`
	InstrumentCode string      `json:"instrumentCode"`
	Quantity       float64     `json:"quantity"`
	Status         string      `json:"status"`
}

func roundTo(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// AvailableCash returns the free cash balance in the account currency.
func (c *Client) AvailableCash(ctx context.Context) (float64, error) {
	body, err := c.execute(ctx, http.MethodGet, "/equity/account/cash", nil)
	if err != nil {
		return 0, err
	}

	var cash cashResponse
	if err := json.Unmarshal(body, &cash); err != nil {
		return 0, fmt.Errorf("trading212: decode cash response: %w", err)
	}
	return cash.Free, nil
}

// PlaceMarketOrder submits a day market order with a signed quantity.
func (c *Client) PlaceMarketOrder(ctx context.Context, req broker.MarketOrderRequest) (broker.Confirmation, error) {
	payload := marketOrderPayload{
		InstrumentCode: req.Instrument,
		Quantity:       roundTo(req.Quantity, quantityPlaces),
		TimeValidity:   "DAY",
		ClientOrderID:  req.ClientID,
	}

	body, err := c.execute(ctx, http.MethodPost, "/equity/orders/market", payload)
	if err != nil {
		return broker.Confirmation{}, err
	}
	return decodeConfirmation(body)
}

// PlaceStopOrder submits a day stop order with a signed quantity.
func (c *Client) PlaceStopOrder(ctx context.Context, req broker.StopOrderRequest) (broker.Confirmation, error) {
	payload := stopOrderPayload{
		InstrumentCode: req.Instrument,
		Quantity:       roundTo(req.Quantity, quantityPlaces),
		StopPrice:      roundTo(req.StopPrice, pricePlaces),
		TimeValidity:   "DAY",
		ClientOrderID:  req.ClientID,
	}

	body, err := c.execute(ctx, http.MethodPost, "/equity/orders/stop", payload)
	if err != nil {
		return broker.Confirmation{}, err
	}
	return decodeConfirmation(body)
}

func decodeConfirmation(body []byte) (broker.Confirmation, error) {
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return broker.Confirmation{}, fmt.Errorf("trading212: decode order response: %w", err)
	}
	return broker.Confirmation{
		OrderID:    resp.ID.String(),
		Instrument: resp.InstrumentCode,
		Quantity:   resp.Quantity,
		Status:     resp.Status,
	}, nil
}
