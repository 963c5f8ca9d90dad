// Package marketdata defines the boundary to the external price-series
// provider. The trading core only ever sees this interface; missing or
// insufficient data is reported as ErrNoData and treated upstream as
// "no signal", never as a failure.
package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/rustyeddy/gapfill/pricing"
	"github.com/rustyeddy/gapfill/session"
)

// ErrNoData means the provider had no usable series for the request.
var ErrNoData = errors.New("marketdata: no data")

// Provider supplies the three price views the strategy needs.
type Provider interface {
	// DailyBars returns up to `days` recent daily candles for symbol,
	// oldest first. Today's partial bar may be included; callers filter
	// with CompletedBars.
	DailyBars(ctx context.Context, symbol string, days int) ([]pricing.Candle, error)

	// OpeningPrice returns the open of the first intraday candle at or
	// after sessionOpen, or ErrNoData if none exists yet.
	OpeningPrice(ctx context.Context, symbol string, sessionOpen time.Time) (float64, error)

	// LastPrice returns the most recent traded price.
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// CompletedBars filters daily bars down to those whose session date is
// strictly before today at the venue. This is the "previous close" rule:
// the prior close is the close of the last completed session, never today's
// in-progress bar, decided by bar date rather than wall-clock hour.
func CompletedBars(bars []pricing.Candle, today time.Time, loc *time.Location) []pricing.Candle {
	cutoff := time.Date(today.In(loc).Year(), today.In(loc).Month(), today.In(loc).Day(), 0, 0, 0, 0, loc)
	out := make([]pricing.Candle, 0, len(bars))
	for _, b := range bars {
		if b.SessionDate(loc).Before(cutoff) {
			out = append(out, b)
		}
	}
	return out
}

// AwaitOpeningPrice polls the provider for today's opening price until one
// appears, the wait budget is spent, or ctx is done. The first candle after
// the bell can lag the clock by a minute or two, hence the poll loop.
func AwaitOpeningPrice(ctx context.Context, p Provider, symbol string, sessionOpen time.Time, budget, poll time.Duration) (float64, error) {
	deadline := time.Now().Add(budget)
	for {
		px, err := p.OpeningPrice(ctx, symbol, sessionOpen)
		if err == nil {
			return px, nil
		}
		if !errors.Is(err, ErrNoData) {
			return 0, err
		}
		if time.Now().Add(poll).After(deadline) {
			return 0, ErrNoData
		}
		if err := session.Sleep(ctx, poll); err != nil {
			return 0, err
		}
	}
}
