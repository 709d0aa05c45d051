// Package sqlite provides a SQLite-backed Ledger for cyclequota.
//
// It suits single-instance deployments that must keep cycle consumption
// across restarts. The database is opened with a single connection and
// immediate transactions, so every Accumulate is serialized.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/ineyio/cyclequota"
)

// Ledger is a SQLite-backed Ledger.
type Ledger struct {
	db        *sql.DB
	closeOnce sync.Once

	loadStmt   *sql.Stmt
	saveStmt   *sql.Stmt
	listStmt   *sql.Stmt
	deleteStmt *sql.Stmt
}

var _ cyclequota.Ledger = (*Ledger)(nil)

// Config configures the SQLite ledger.
type Config struct {
	// Path is the database file. Required.
	Path string

	// BusyTimeout is how long to wait for locks held by other processes.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// Open opens (or creates) the ledger database at path.
func Open(path string) (*Ledger, error) {
	return OpenWithConfig(Config{Path: path})
}

// OpenWithConfig opens the ledger database with custom configuration.
func OpenWithConfig(cfg Config) (*Ledger, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("cyclequota/sqlite: path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	db, err := sql.Open("sqlite", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("cyclequota/sqlite: open: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	l := &Ledger{db: db}

	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("cyclequota/sqlite: init schema: %w", err)
	}
	if err := l.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("cyclequota/sqlite: prepare statements: %w", err)
	}

	return l, nil
}

// dsn builds a file URI so that '?' or '#' in the path cannot leak into
// the query.
func dsn(cfg Config) string {
	query := url.Values{}
	query.Add("_pragma", "journal_mode(WAL)")
	query.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	query.Add("_pragma", "synchronous(NORMAL)")
	query.Set("_txlock", "immediate")

	u := url.URL{
		Scheme:   "file",
		Path:     cfg.Path,
		OmitHost: true,
		RawQuery: query.Encode(),
	}
	return u.String()
}

func (l *Ledger) initSchema() error {
	// Totals are stored as decimal text; INTEGER is signed 64-bit.
	_, err := l.db.Exec(`
	CREATE TABLE IF NOT EXISTS consumed (
		category TEXT PRIMARY KEY,
		amount TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`)
	return err
}

func (l *Ledger) prepareStatements() error {
	var err error

	l.loadStmt, err = l.db.Prepare(`SELECT amount FROM consumed WHERE category = ?`)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}

	l.saveStmt, err = l.db.Prepare(`
		INSERT INTO consumed (category, amount, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (category) DO UPDATE SET
			amount = excluded.amount,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}

	l.listStmt, err = l.db.Prepare(`SELECT category, amount FROM consumed`)
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}

	l.deleteStmt, err = l.db.Prepare(`DELETE FROM consumed`)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	return nil
}

// Accumulate adds amount to the category total if it stays within limit.
func (l *Ledger) Accumulate(ctx context.Context, category cyclequota.Category, amount, limit cyclequota.Amount) (cyclequota.Amount, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("cyclequota/sqlite: begin tx: %w", err)
	}
	defer tx.Rollback()

	current, err := load(ctx, tx.StmtContext(ctx, l.loadStmt), category)
	if err != nil {
		return 0, fmt.Errorf("cyclequota/sqlite: accumulate: %w", err)
	}

	next, ok := current.CheckedAdd(amount)
	if !ok || next > limit {
		return current, cyclequota.ErrResourcesExhausted
	}

	_, err = tx.StmtContext(ctx, l.saveStmt).ExecContext(ctx,
		string(category), formatAmount(next), time.Now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("cyclequota/sqlite: accumulate: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("cyclequota/sqlite: commit: %w", err)
	}
	return next, nil
}

// Consumed returns the category total.
func (l *Ledger) Consumed(ctx context.Context, category cyclequota.Category) (cyclequota.Amount, error) {
	v, err := load(ctx, l.loadStmt, category)
	if err != nil {
		return 0, fmt.Errorf("cyclequota/sqlite: consumed: %w", err)
	}
	return v, nil
}

// Snapshot returns all category totals.
func (l *Ledger) Snapshot(ctx context.Context) (map[cyclequota.Category]cyclequota.Amount, error) {
	rows, err := l.listStmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("cyclequota/sqlite: snapshot: %w", err)
	}
	defer rows.Close()

	out := make(map[cyclequota.Category]cyclequota.Amount)
	for rows.Next() {
		var category, raw string
		if err := rows.Scan(&category, &raw); err != nil {
			return nil, fmt.Errorf("cyclequota/sqlite: snapshot: %w", err)
		}
		v, err := parseAmount(raw)
		if err != nil {
			return nil, fmt.Errorf("cyclequota/sqlite: snapshot: %w", err)
		}
		out[cyclequota.Category(category)] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cyclequota/sqlite: snapshot: %w", err)
	}
	return out, nil
}

// Clear deletes all category totals.
func (l *Ledger) Clear(ctx context.Context) error {
	if _, err := l.deleteStmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("cyclequota/sqlite: clear: %w", err)
	}
	return nil
}

// Close releases the database. The ledger must not be used afterwards.
func (l *Ledger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		for _, stmt := range []*sql.Stmt{l.loadStmt, l.saveStmt, l.listStmt, l.deleteStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}
		err = l.db.Close()
	})
	return err
}

func load(ctx context.Context, stmt *sql.Stmt, category cyclequota.Category) (cyclequota.Amount, error) {
	var raw string
	err := stmt.QueryRowContext(ctx, string(category)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return parseAmount(raw)
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
