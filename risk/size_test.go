package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShares_CashBudgetBinds(t *testing.T) {
	t.Parallel()

	// risk_per_share = max(50-49.8, 50*0.002) = 0.2
	// risk budget = 10000*0.005 = 50 => by_risk = 250
	// by_cash = floor(1000/50) = 20 => 20 wins
	got := Shares(Inputs{
		Cash:       10000,
		RiskFrac:   0.005,
		EntryPrice: 50,
		StopPrice:  49.8,
		BudgetEach: 1000,
	})

	assert.Equal(t, 20, got.Shares)
	assert.InDelta(t, 0.2, got.RiskPerShare, 1e-9)
	assert.InDelta(t, 50.0, got.RiskBudget, 1e-9)
}

func TestShares_RiskBudgetBinds(t *testing.T) {
	t.Parallel()

	// risk_per_share = max(100-98, 0.2) = 2
	// risk budget = 1000*0.01 = 10 => by_risk = 5
	// by_cash = floor(5000/100) = 50 => 5 wins
	got := Shares(Inputs{
		Cash:       1000,
		RiskFrac:   0.01,
		EntryPrice: 100,
		StopPrice:  98,
		BudgetEach: 5000,
	})

	assert.Equal(t, 5, got.Shares)
}

func TestShares_FloorNeverBypassed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		entry float64
		stop  float64
	}{
		{"tight stop", 100, 99.99},
		{"stop equals entry", 100, 100},
		{"stop above entry", 100, 101},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Shares(Inputs{
				Cash:       10000,
				RiskFrac:   0.005,
				EntryPrice: tt.entry,
				StopPrice:  tt.stop,
				BudgetEach: 10000,
			})
			assert.GreaterOrEqual(t, got.RiskPerShare, tt.entry*DefaultRiskFloorFrac)
			assert.GreaterOrEqual(t, got.Shares, 0)
		})
	}
}

func TestShares_ZeroIsValidOutcome(t *testing.T) {
	t.Parallel()

	// Budget cannot afford a single share.
	got := Shares(Inputs{
		Cash:       10000,
		RiskFrac:   0.005,
		EntryPrice: 500,
		StopPrice:  498,
		BudgetEach: 100,
	})
	assert.Equal(t, 0, got.Shares)
}

func TestShares_NoCash(t *testing.T) {
	t.Parallel()

	got := Shares(Inputs{
		Cash:       0,
		RiskFrac:   0.005,
		EntryPrice: 50,
		StopPrice:  49,
		BudgetEach: 1000,
	})
	assert.Equal(t, 0, got.Shares)
}

func TestCapToRemaining(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 10, CapToRemaining(10, 10, 1000)) // plenty left
	assert.Equal(t, 5, CapToRemaining(10, 10, 59))    // trimmed to afford
	assert.Equal(t, 0, CapToRemaining(10, 10, 9))     // cannot afford one
	assert.Equal(t, 0, CapToRemaining(0, 10, 1000))   // nothing requested
	assert.Equal(t, 0, CapToRemaining(10, 0, 1000))   // degenerate entry
	assert.Equal(t, 0, CapToRemaining(10, 10, -5))    // budget already blown
}
