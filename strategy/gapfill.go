// Package strategy implements the gap-fill entry rules: a qualifying
// overnight gap down combined with an oversold momentum reading, and the
// target/stop geometry derived from them.
package strategy

import "math"

// Params are the tunable gap-fill filter and geometry knobs.
type Params struct {
	// MinGap and MaxGap bound the qualifying gap as a closed interval.
	// Both must be negative; their order does not matter.
	MinGap float64
	MaxGap float64

	// RSIMax is the momentum ceiling: at or below passes (oversold).
	RSIMax float64

	// SlippageBP pulls the profit target inside full gap fill, in basis
	// points of the prior close.
	SlippageBP float64

	// StopCap and StopDamping shape the protective stop: the stop distance
	// is min(StopCap, |gap|*StopDamping) of the entry price.
	StopCap     float64
	StopDamping float64
}

// Snapshot is the per-instrument market view the evaluator needs. The caller
// is responsible for only building one when all three inputs were obtainable;
// missing data upstream means "no signal" and the evaluator is never invoked.
type Snapshot struct {
	Symbol    string
	PrevClose float64
	RSI       float64
	OpenPrice float64
}

// Signal is a qualifying snapshot plus its computed gap.
type Signal struct {
	Symbol    string
	Gap       float64
	PrevClose float64
	Entry     float64
	RSI       float64
}

// Plan is an immutable trade plan, consumed exactly once by the order
// lifecycle. Instrument is the brokerage's tradable code, which may differ
// from the market-data symbol.
type Plan struct {
	Symbol     string
	Instrument string
	Entry      float64
	Target     float64
	Stop       float64
	Quantity   int
}

// Gap computes the fractional overnight gap.
func Gap(openPrice, prevClose float64) float64 {
	return (openPrice - prevClose) / prevClose
}

// inInterval reports whether x lies in the closed interval [a,b] regardless
// of which configured bound is algebraically smaller.
func inInterval(x, a, b float64) bool {
	lo, hi := math.Min(a, b), math.Max(a, b)
	return x >= lo && x <= hi
}

// Evaluate applies the gap and momentum filters to a snapshot. A nil result
// means "no signal" — a normal outcome, not an error.
func (p Params) Evaluate(s Snapshot) *Signal {
	if s.PrevClose <= 0 || s.OpenPrice <= 0 {
		return nil
	}

	gap := Gap(s.OpenPrice, s.PrevClose)
	if !inInterval(gap, p.MinGap, p.MaxGap) {
		return nil
	}
	if s.RSI > p.RSIMax {
		return nil
	}

	return &Signal{
		Symbol:    s.Symbol,
		Gap:       gap,
		PrevClose: s.PrevClose,
		Entry:     s.OpenPrice,
		RSI:       s.RSI,
	}
}

// Target returns the profit target: slightly inside full gap fill to
// tolerate execution slippage.
func (p Params) Target(prevClose float64) float64 {
	return prevClose * (1 - p.SlippageBP/10000.0)
}

// Stop returns the protective stop: the distance tightens as the gap
// narrows but never exceeds StopCap of the entry price.
func (p Params) Stop(entry, gap float64) float64 {
	return entry * (1 - math.Min(p.StopCap, math.Abs(gap)*p.StopDamping))
}

// BuildPlan turns a signal into a sized trade plan. Instrument is the
// brokerage code for the signal's symbol; quantity comes from the sizer.
func (p Params) BuildPlan(sig Signal, instrument string, quantity int) Plan {
	return Plan{
		Symbol:     sig.Symbol,
		Instrument: instrument,
		Entry:      sig.Entry,
		Target:     p.Target(sig.PrevClose),
		Stop:       p.Stop(sig.Entry, sig.Gap),
		Quantity:   quantity,
	}
}
