// Package postgres provides a PostgreSQL-backed Ledger for cyclequota.
//
// Category totals are stored as NUMERIC(20,0) so the full unsigned 64-bit
// range survives. Accumulate is a single conditional upsert, which makes
// the check-then-update atomic per category across instances.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ineyio/cyclequota"
)

// Ledger is a PostgreSQL-backed Ledger.
type Ledger struct {
	pool        *pgxpool.Pool
	tablePrefix string
}

var _ cyclequota.Ledger = (*Ledger)(nil)

// Option configures Ledger.
type Option func(*Ledger)

// WithTablePrefix sets the table name prefix (default "cyclequota_").
func WithTablePrefix(prefix string) Option {
	return func(l *Ledger) { l.tablePrefix = prefix }
}

// New creates a new PostgreSQL-backed Ledger.
func New(pool *pgxpool.Pool, opts ...Option) *Ledger {
	l := &Ledger{
		pool:        pool,
		tablePrefix: "cyclequota_",
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) consumedTable() string { return l.tablePrefix + "consumed" }

// EnsureSchema creates the required table if it doesn't exist.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			category TEXT PRIMARY KEY,
			consumed NUMERIC(20,0) NOT NULL CHECK (consumed >= 0),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`, l.consumedTable())
	_, err := l.pool.Exec(ctx, q)
	if err != nil {
		return fmt.Errorf("cyclequota/postgres: ensure schema: %w", err)
	}
	return nil
}

// Accumulate adds amount to the category total if it stays within limit.
func (l *Ledger) Accumulate(ctx context.Context, category cyclequota.Category, amount, limit cyclequota.Amount) (cyclequota.Amount, error) {
	// The insert branch of the upsert is not guarded by the WHERE clause.
	if amount > limit {
		return l.rejected(ctx, category)
	}

	table := l.consumedTable()
	var raw string
	err := l.pool.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO %[1]s (category, consumed) VALUES ($1, $2::text::numeric)
			ON CONFLICT (category) DO UPDATE
				SET consumed = %[1]s.consumed + EXCLUDED.consumed, updated_at = now()
				WHERE %[1]s.consumed + EXCLUDED.consumed <= $3::text::numeric
			RETURNING consumed::text`, table),
		string(category), formatAmount(amount), formatAmount(limit),
	).Scan(&raw)

	if errors.Is(err, pgx.ErrNoRows) {
		return l.rejected(ctx, category)
	}
	if err != nil {
		return 0, fmt.Errorf("cyclequota/postgres: accumulate: %w", err)
	}

	total, err := parseAmount(raw)
	if err != nil {
		return 0, fmt.Errorf("cyclequota/postgres: accumulate: %w", err)
	}
	return total, nil
}

func (l *Ledger) rejected(ctx context.Context, category cyclequota.Category) (cyclequota.Amount, error) {
	current, err := l.Consumed(ctx, category)
	if err != nil {
		return 0, err
	}
	return current, cyclequota.ErrResourcesExhausted
}

// Consumed returns the category total.
func (l *Ledger) Consumed(ctx context.Context, category cyclequota.Category) (cyclequota.Amount, error) {
	var raw string
	err := l.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT consumed::text FROM %s WHERE category = $1`, l.consumedTable()),
		string(category),
	).Scan(&raw)

	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cyclequota/postgres: consumed: %w", err)
	}

	total, err := parseAmount(raw)
	if err != nil {
		return 0, fmt.Errorf("cyclequota/postgres: consumed: %w", err)
	}
	return total, nil
}

// Snapshot returns all category totals.
func (l *Ledger) Snapshot(ctx context.Context) (map[cyclequota.Category]cyclequota.Amount, error) {
	rows, err := l.pool.Query(ctx,
		fmt.Sprintf(`SELECT category, consumed::text FROM %s`, l.consumedTable()))
	if err != nil {
		return nil, fmt.Errorf("cyclequota/postgres: snapshot: %w", err)
	}
	defer rows.Close()

	out := make(map[cyclequota.Category]cyclequota.Amount)
	for rows.Next() {
		var category, raw string
		if err := rows.Scan(&category, &raw); err != nil {
			return nil, fmt.Errorf("cyclequota/postgres: snapshot: %w", err)
		}
		total, err := parseAmount(raw)
		if err != nil {
			return nil, fmt.Errorf("cyclequota/postgres: snapshot: %w", err)
		}
		out[cyclequota.Category(category)] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cyclequota/postgres: snapshot: %w", err)
	}
	return out, nil
}

// Clear deletes all category totals.
func (l *Ledger) Clear(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, l.consumedTable()))
	if err != nil {
		return fmt.Errorf("cyclequota/postgres: clear: %w", err)
	}
	return nil
}

func parseAmount(raw string) (cyclequota.Amount, error) {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid stored amount %q: %w", raw, err)
	}
	return cyclequota.Amount(v), nil
}

func formatAmount(v cyclequota.Amount) string {
	return strconv.FormatUint(uint64(v), 10)
}
