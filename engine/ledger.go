package engine

import "sync"

// Ledger tracks what has been bought and how much has been spent during a
// single session. It is session-scoped (created fresh per engine) and
// mutex-guarded so the scan goroutine and the per-position monitors can
// share it.
//
// Invariants: held quantities are never negative, an instrument is entered
// at most once per session (no pyramiding), and cumulative spend never
// exceeds the budget because quantities are capped before submission.
type Ledger struct {
	mu sync.Mutex

	budget    float64
	spent     float64
	positions map[string]int
	entered   map[string]bool
}

// NewLedger creates an empty ledger with the given total session budget.
func NewLedger(budget float64) *Ledger {
	return &Ledger{
		budget:    budget,
		positions: make(map[string]int),
		entered:   make(map[string]bool),
	}
}

// Remaining returns the uncommitted part of the session budget.
func (l *Ledger) Remaining() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.budget - l.spent
}

// Spent returns the capital committed so far.
func (l *Ledger) Spent() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spent
}

// SeedSpent pre-commits spend recovered from the journal after a restart,
// so the budget cap holds across the combined session.
func (l *Ledger) SeedSpent(spent float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.spent = spent
}

// Held returns the currently held quantity for an instrument.
func (l *Ledger) Held(instrument string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.positions[instrument]
}

// Entered reports whether the instrument has already been bought this
// session, whether or not it is still held.
func (l *Ledger) Entered(instrument string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entered[instrument]
}

// Open records a confirmed buy. It is called only after the brokerage
// acknowledged the entry order, so a failed submission never creates a
// phantom position.
func (l *Ledger) Open(instrument string, qty int, price float64) {
	if qty <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.positions[instrument] += qty
	l.entered[instrument] = true
	l.spent += float64(qty) * price
}

// CloseOut zeroes the held quantity for an instrument and returns what was
// held. Calling it again for the same instrument returns 0 and does
// nothing, which makes end-of-day liquidation idempotent.
func (l *Ledger) CloseOut(instrument string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	qty := l.positions[instrument]
	if qty <= 0 {
		return 0
	}
	l.positions[instrument] = 0
	return qty
}

// Positions returns a copy of all instruments with a strictly positive held
// quantity.
func (l *Ledger) Positions() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int)
	for instrument, qty := range l.positions {
		if qty > 0 {
			out[instrument] = qty
		}
	}
	return out
}

// OpenCount returns how many instruments are currently held.
func (l *Ledger) OpenCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, qty := range l.positions {
		if qty > 0 {
			n++
		}
	}
	return n
}
