// Package alpaca implements the marketdata.Provider interface on top of the
// Alpaca market-data API. Trading still goes through the brokerage client;
// Alpaca is only used for price series here.
package alpaca

import (
	"context"
	"time"

	md "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"github.com/rustyeddy/gapfill/marketdata"
	"github.com/rustyeddy/gapfill/pricing"
)

// Provider implements marketdata.Provider for Alpaca.
type Provider struct {
	client *md.Client
}

// Ensure Provider implements the interface
var _ marketdata.Provider = (*Provider)(nil)

// NewProvider returns a new Alpaca provider. The SDK client reads its API
// keys from the APCA_* environment variables.
func NewProvider() *Provider {
	return &Provider{
		client: md.NewClient(md.ClientOpts{}),
	}
}

func (p *Provider) DailyBars(ctx context.Context, symbol string, days int) ([]pricing.Candle, error) {
	_ = ctx
	start := time.Now().AddDate(0, 0, -days)
	bars, err := p.client.GetBars(symbol, md.GetBarsRequest{
		TimeFrame: md.OneDay,
		Start:     start,
	})
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, marketdata.ErrNoData
	}

	out := make([]pricing.Candle, 0, len(bars))
	for _, b := range bars {
		out = append(out, pricing.Candle{
			Symbol: symbol,
			Time:   b.Timestamp,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: float64(b.Volume),
		})
	}
	return out, nil
}

func (p *Provider) OpeningPrice(ctx context.Context, symbol string, sessionOpen time.Time) (float64, error) {
	_ = ctx
	bars, err := p.client.GetBars(symbol, md.GetBarsRequest{
		TimeFrame:  md.OneMin,
		Start:      sessionOpen,
		TotalLimit: 1,
	})
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, marketdata.ErrNoData
	}
	return bars[0].Open, nil
}

func (p *Provider) LastPrice(ctx context.Context, symbol string) (float64, error) {
	_ = ctx
	trade, err := p.client.GetLatestTrade(symbol, md.GetLatestTradeRequest{})
	if err != nil {
		return 0, err
	}
	if trade == nil {
		return 0, marketdata.ErrNoData
	}
	return trade.Price, nil
}
