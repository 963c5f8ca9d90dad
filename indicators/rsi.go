package indicators

import (
	"fmt"

	"github.com/rustyeddy/gapfill/pricing"
)

// RSI is a streaming Relative Strength Index indicator using simple moving
// averages of gains and losses over the period (not Wilder smoothing).
//
// Value() is 100 when the window holds no losses; callers treating RSI as an
// oversold filter will reject such a series, which is the conservative choice.
type RSI struct {
	period    int
	gains     []float64
	losses    []float64
	prevClose float64
	hasPrev   bool
}

// NewRSI creates a new RSI indicator with the given period.
func NewRSI(period int) *RSI {
	return &RSI{
		period: period,
		gains:  make([]float64, 0, period),
		losses: make([]float64, 0, period),
	}
}

func (r *RSI) Name() string {
	return fmt.Sprintf("RSI(%d)", r.period)
}

func (r *RSI) Warmup() int {
	// Need period+1 candles because the first close only seeds the delta.
	return r.period + 1
}

func (r *RSI) Reset() {
	r.gains = r.gains[:0]
	r.losses = r.losses[:0]
	r.prevClose = 0
	r.hasPrev = false
}

func (r *RSI) Update(c pricing.Candle) {
	if !r.hasPrev {
		r.prevClose = c.Close
		r.hasPrev = true
		return
	}

	delta := c.Close - r.prevClose
	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	r.gains = append(r.gains, gain)
	r.losses = append(r.losses, loss)
	if len(r.gains) > r.period {
		r.gains = r.gains[1:]
		r.losses = r.losses[1:]
	}

	r.prevClose = c.Close
}

func (r *RSI) Ready() bool {
	return len(r.gains) >= r.period
}

func (r *RSI) Value() float64 {
	if !r.Ready() {
		return 0
	}

	var gainSum, lossSum float64
	for i := range r.gains {
		gainSum += r.gains[i]
		lossSum += r.losses[i]
	}

	if lossSum == 0 {
		return 100
	}

	rs := gainSum / lossSum
	return 100 - (100 / (1 + rs))
}

// RSIFunc calculates the RSI over the full candle slice and returns the final
// value. Returns an error if there aren't enough candles for the period.
func RSIFunc(candles []pricing.Candle, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(candles) < period+1 {
		return 0, fmt.Errorf("not enough candles: need %d, got %d", period+1, len(candles))
	}

	rsi := NewRSI(period)
	for _, c := range candles {
		rsi.Update(c)
	}
	return rsi.Value(), nil
}
