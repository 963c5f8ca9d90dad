package pricing

import "time"

// Candle represents OHLC (Open, High, Low, Close) candlestick data for one bar.
type Candle struct {
	Symbol string // optional but handy
	Time   time.Time

	Open  float64
	High  float64
	Low   float64
	Close float64

	Volume float64 // optional
}

// SessionDate returns the candle's trading date in the given location.
// Daily bars from most data providers are stamped at or near the session
// open, so converting to the venue time zone first keeps the date correct
// for markets that straddle UTC midnight.
func (c Candle) SessionDate(loc *time.Location) time.Time {
	t := c.Time.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
