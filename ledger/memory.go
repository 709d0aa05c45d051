// Package ledger provides an in-memory Ledger for cyclequota.
//
// Backends for shared or durable state live in the nested modules
// ledger/redis, ledger/postgres and ledger/sqlite.
package ledger

import (
	"context"
	"sync"

	"github.com/ineyio/cyclequota"
)

// MemoryLedger is an in-memory Ledger guarded by a single mutex.
// The zero value is an empty ledger ready for use.
type MemoryLedger struct {
	mu       sync.RWMutex
	consumed map[cyclequota.Category]cyclequota.Amount
}

var _ cyclequota.Ledger = (*MemoryLedger)(nil)

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		consumed: make(map[cyclequota.Category]cyclequota.Amount),
	}
}

// Accumulate adds amount to the category total if it stays within limit.
func (l *MemoryLedger) Accumulate(_ context.Context, category cyclequota.Category, amount, limit cyclequota.Amount) (cyclequota.Amount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.consumed[category]
	next, ok := current.CheckedAdd(amount)
	if !ok || next > limit {
		return current, cyclequota.ErrResourcesExhausted
	}

	if l.consumed == nil {
		l.consumed = make(map[cyclequota.Category]cyclequota.Amount)
	}
	l.consumed[category] = next
	return next, nil
}

// Consumed returns the category total.
func (l *MemoryLedger) Consumed(_ context.Context, category cyclequota.Category) (cyclequota.Amount, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.consumed[category], nil
}

// Snapshot returns a copy of all entries.
func (l *MemoryLedger) Snapshot(_ context.Context) (map[cyclequota.Category]cyclequota.Amount, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[cyclequota.Category]cyclequota.Amount, len(l.consumed))
	for c, v := range l.consumed {
		out[c] = v
	}
	return out, nil
}

// Clear drops all entries.
func (l *MemoryLedger) Clear(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.consumed = make(map[cyclequota.Category]cyclequota.Amount)
	return nil
}
