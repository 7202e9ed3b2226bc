package portfolio

import (
	"sync"
)

// Ledger serializes all mutations of a shared Portfolio and optionally
// persists it after each change.
type Ledger struct {
	mu       sync.Mutex
	p        *Portfolio
	filePath string
}

// NewLedger wraps p. An empty filePath disables persistence.
func NewLedger(p *Portfolio, filePath string) *Ledger {
	if p.Positions == nil {
		p.Positions = make(map[string]*Position)
	}
	return &Ledger{p: p, filePath: filePath}
}

// OpenLedger loads the portfolio from filePath, or starts a fresh one with
// initialCash when the file does not exist yet.
func OpenLedger(filePath string, initialCash float64) (*Ledger, error) {
	p, err := LoadState(filePath)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = New(initialCash)
	}
	return NewLedger(p, filePath), nil
}

// Update runs fn with exclusive access to the portfolio. fn reports whether it
// mutated the portfolio; mutations are saved before Update returns.
func (l *Ledger) Update(fn func(p *Portfolio) (changed bool)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !fn(l.p) || l.filePath == "" {
		return nil
	}
	return SaveState(l.filePath, l.p)
}

// Snapshot returns a deep copy of the current portfolio.
func (l *Ledger) Snapshot() *Portfolio {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.Clone()
}
