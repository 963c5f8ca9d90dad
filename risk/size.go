// Package risk converts a cash risk budget into an integer share quantity.
package risk

import "math"

// Inputs for position sizing.
type Inputs struct {
	Cash       float64 // free cash available at the brokerage
	RiskFrac   float64 // fraction of Cash to risk on this trade, e.g. 0.005
	EntryPrice float64
	StopPrice  float64
	BudgetEach float64 // per-instrument cash budget

	// RiskFloorFrac floors the per-share risk estimate at this fraction of
	// the entry price, so a degenerate very-tight stop cannot produce an
	// oversized position. Zero means use the default of 0.2%.
	RiskFloorFrac float64
}

// Result of position sizing.
type Result struct {
	Shares       int
	RiskPerShare float64
	RiskBudget   float64
}

// DefaultRiskFloorFrac is the per-share risk floor as a fraction of entry.
const DefaultRiskFloorFrac = 0.002

// Shares sizes a position from a risk budget and a cash budget, taking the
// smaller of the two and never returning a negative quantity. Zero is a
// valid outcome meaning "skip this instrument".
func Shares(in Inputs) Result {
	floorFrac := in.RiskFloorFrac
	if floorFrac <= 0 {
		floorFrac = DefaultRiskFloorFrac
	}

	riskPerShare := math.Max(in.EntryPrice-in.StopPrice, in.EntryPrice*floorFrac)
	riskBudget := in.Cash * in.RiskFrac

	byRisk := math.Floor(riskBudget / riskPerShare)
	byCash := math.Floor(in.BudgetEach / in.EntryPrice)

	qty := math.Min(byRisk, byCash)
	if qty < 0 || math.IsNaN(qty) || math.IsInf(qty, 0) {
		qty = 0
	}

	return Result{
		Shares:       int(qty),
		RiskPerShare: riskPerShare,
		RiskBudget:   riskBudget,
	}
}

// CapToRemaining trims qty so that qty*entry never commits more than the
// remaining session budget. The cap is applied before submission; a result
// of zero means the remaining budget cannot afford a single share.
func CapToRemaining(qty int, entry, remaining float64) int {
	if qty <= 0 || entry <= 0 {
		return 0
	}
	affordable := int(math.Floor(remaining / entry))
	if affordable < qty {
		qty = affordable
	}
	if qty < 0 {
		return 0
	}
	return qty
}
