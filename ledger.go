package cyclequota

import "context"

// Ledger stores per-category consumption for the current cycle.
// Implementations must be safe for concurrent use.
type Ledger interface {
	// Accumulate atomically adds amount to the category total if the new
	// total stays within limit and does not overflow. On success it returns
	// the new total. Otherwise it returns the unchanged total and
	// ErrResourcesExhausted, and the ledger is not modified.
	Accumulate(ctx context.Context, category Category, amount, limit Amount) (Amount, error)

	// Consumed returns the category total. Absent categories report zero.
	Consumed(ctx context.Context, category Category) (Amount, error)

	// Snapshot returns every category with a non-absent entry.
	Snapshot(ctx context.Context) (map[Category]Amount, error)

	// Clear drops all entries.
	Clear(ctx context.Context) error
}
