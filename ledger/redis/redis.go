// Package redis provides a Redis-backed Ledger for cyclequota.
//
// All category totals of a cycle live in one Redis hash. Accumulate runs
// as an optimistic WATCH/MULTI transaction so the check-then-update is
// atomic across instances, and the arithmetic is done in Go on exact
// unsigned 64-bit values.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ineyio/cyclequota"
)

// ErrContention is returned when a transaction keeps losing WATCH races.
var ErrContention = errors.New("cyclequota/redis: too many concurrent updates")

// Client is satisfied by *goredis.Client and *goredis.ClusterClient.
type Client interface {
	goredis.Cmdable
	Watch(ctx context.Context, fn func(*goredis.Tx) error, keys ...string) error
}

// Ledger is a Redis-backed Ledger.
type Ledger struct {
	client     Client
	keyPrefix  string
	maxRetries int
}

var _ cyclequota.Ledger = (*Ledger)(nil)

// Option configures Ledger.
type Option func(*Ledger)

// WithKeyPrefix sets the Redis key prefix (default "cyclequota:").
func WithKeyPrefix(prefix string) Option {
	return func(l *Ledger) { l.keyPrefix = prefix }
}

// WithMaxRetries sets how often Accumulate retries a failed WATCH (default 64).
func WithMaxRetries(n int) Option {
	return func(l *Ledger) { l.maxRetries = n }
}

// New creates a new Redis-backed Ledger.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
func New(client Client, opts ...Option) *Ledger {
	l := &Ledger{
		client:     client,
		keyPrefix:  "cyclequota:",
		maxRetries: 64,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.maxRetries < 1 {
		l.maxRetries = 1
	}
	return l
}

func (l *Ledger) consumedKey() string {
	return l.keyPrefix + "consumed"
}

// Accumulate adds amount to the category total if it stays within limit.
func (l *Ledger) Accumulate(ctx context.Context, category cyclequota.Category, amount, limit cyclequota.Amount) (cyclequota.Amount, error) {
	key := l.consumedKey()
	field := string(category)

	for attempt := 0; attempt < l.maxRetries; attempt++ {
		var total cyclequota.Amount

		err := l.client.Watch(ctx, func(tx *goredis.Tx) error {
			current, err := parseAmount(tx.HGet(ctx, key, field).Result())
			if err != nil {
				return err
			}

			next, ok := current.CheckedAdd(amount)
			if !ok || next > limit {
				total = current
				return cyclequota.ErrResourcesExhausted
			}

			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.HSet(ctx, key, field, formatAmount(next))
				return nil
			})
			if err != nil {
				return err
			}
			total = next
			return nil
		}, key)

		switch {
		case err == nil:
			return total, nil
		case errors.Is(err, cyclequota.ErrResourcesExhausted):
			return total, err
		case errors.Is(err, goredis.TxFailedErr):
			continue
		default:
			return 0, fmt.Errorf("cyclequota/redis: accumulate: %w", err)
		}
	}

	return 0, ErrContention
}

// Consumed returns the category total.
func (l *Ledger) Consumed(ctx context.Context, category cyclequota.Category) (cyclequota.Amount, error) {
	v, err := parseAmount(l.client.HGet(ctx, l.consumedKey(), string(category)).Result())
	if err != nil {
		return 0, fmt.Errorf("cyclequota/redis: consumed: %w", err)
	}
	return v, nil
}

// Snapshot returns all category totals.
func (l *Ledger) Snapshot(ctx context.Context) (map[cyclequota.Category]cyclequota.Amount, error) {
	vals, err := l.client.HGetAll(ctx, l.consumedKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("cyclequota/redis: snapshot: %w", err)
	}

	out := make(map[cyclequota.Category]cyclequota.Amount, len(vals))
	for field, raw := range vals {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cyclequota/redis: snapshot: field %q: %w", field, err)
		}
		out[cyclequota.Category(field)] = cyclequota.Amount(v)
	}
	return out, nil
}

// Clear deletes the cycle hash.
func (l *Ledger) Clear(ctx context.Context) error {
	if err := l.client.Del(ctx, l.consumedKey()).Err(); err != nil {
		return fmt.Errorf("cyclequota/redis: clear: %w", err)
	}
	return nil
}

func parseAmount(raw string, err error) (cyclequota.Amount, error) {
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid stored amount %q: %w", raw, err)
	}
	return cyclequota.Amount(v), nil
}

func formatAmount(v cyclequota.Amount) string {
	return strconv.FormatUint(uint64(v), 10)
}
