package cyclequota

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Enforcer admits or rejects requests against per-category shares of the
// cycle budget and accounts admitted costs in a Ledger.
type Enforcer struct {
	dist   *Distribution
	ledger Ledger
	meter  Meter

	// mu is held shared by checks and exclusively by Reset.
	mu      sync.RWMutex
	cycleID string
}

// Request is a single admission check.
type Request struct {
	Category Category
	Cost     Amount
	// TotalBudget is the whole resource budget of the current cycle.
	TotalBudget Amount
	// BaseOverhead is charged on top of Cost for constrained categories.
	BaseOverhead Amount
}

// CategoryUsage reports consumption of one constrained category.
type CategoryUsage struct {
	Category  Category
	Share     Fraction
	Limit     Amount
	Consumed  Amount
	Remaining Amount
}

// Option configures an Enforcer.
type Option func(*Enforcer)

// WithMeter sets the meter.
func WithMeter(m Meter) Option {
	return func(e *Enforcer) { e.meter = m }
}

// WithCycleID sets the identifier of the initial cycle (default: random UUID).
func WithCycleID(id string) Option {
	return func(e *Enforcer) { e.cycleID = id }
}

// NewEnforcer creates an Enforcer over the given distribution and ledger.
// The caller owns the ledger; the enforcer only mutates it through
// CheckAndAccount and Reset.
func NewEnforcer(dist *Distribution, ledger Ledger, opts ...Option) (*Enforcer, error) {
	if dist == nil {
		return nil, ErrNilDistribution
	}
	if ledger == nil {
		return nil, ErrNilLedger
	}

	e := &Enforcer{
		dist:   dist,
		ledger: ledger,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.meter == nil {
		e.meter = &noopMeter{}
	}
	if e.cycleID == "" {
		e.cycleID = uuid.New().String()
	}

	return e, nil
}

// Distribution returns the configured distribution.
func (e *Enforcer) Distribution() *Distribution {
	return e.dist
}

// CheckAndAccount admits the request and charges its cost plus base
// overhead to its category, or rejects it with an *AdmissionError wrapping
// ErrResourcesExhausted. Categories without a share are always admitted
// and never accounted. A rejected request leaves the ledger unchanged.
//
// The meter sees the event before any following Reset does.
func (e *Enforcer) CheckAndAccount(ctx context.Context, req Request) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	share, ok := e.dist.Lookup(req.Category)
	if !ok {
		e.meter.OnAdmission(AdmissionEvent{
			CycleID:  e.cycleID,
			Category: req.Category,
			Cost:     req.Cost,
			Admitted: true,
		})
		return nil
	}

	limit := share.Of(req.TotalBudget)
	cost := req.Cost.SaturatingAdd(req.BaseOverhead)

	consumed, err := e.ledger.Accumulate(ctx, req.Category, cost, limit)
	if err != nil && !errors.Is(err, ErrResourcesExhausted) {
		return fmt.Errorf("cyclequota: account %q: %w", req.Category, err)
	}

	admitted := err == nil
	e.meter.OnAdmission(AdmissionEvent{
		CycleID:     e.cycleID,
		Category:    req.Category,
		Cost:        cost,
		Limit:       limit,
		Consumed:    consumed,
		Constrained: true,
		Admitted:    admitted,
	})

	if !admitted {
		return &AdmissionError{
			Err:      ErrResourcesExhausted,
			Category: req.Category,
			Cost:     cost,
			Limit:    limit,
			Consumed: consumed,
		}
	}
	return nil
}

// Reset clears all consumption and starts a new cycle. It waits for
// in-flight checks and blocks new ones until the ledger is cleared.
// Reset is idempotent; calling it mid-cycle forgives consumption early.
func (e *Enforcer) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ledger.Clear(ctx); err != nil {
		return fmt.Errorf("cyclequota: reset: %w", err)
	}

	prev := e.cycleID
	e.cycleID = uuid.New().String()
	e.meter.OnReset(ResetEvent{PreviousCycleID: prev, CycleID: e.cycleID})
	return nil
}

// CycleID returns the identifier of the current cycle.
func (e *Enforcer) CycleID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cycleID
}

// Consumed returns the category total in the current cycle.
func (e *Enforcer) Consumed(ctx context.Context, c Category) (Amount, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	consumed, err := e.ledger.Consumed(ctx, c)
	if err != nil {
		return 0, fmt.Errorf("cyclequota: consumed %q: %w", c, err)
	}
	return consumed, nil
}

// Usage reports every constrained category against the given total budget,
// sorted by category.
func (e *Enforcer) Usage(ctx context.Context, totalBudget Amount) ([]CategoryUsage, error) {
	e.mu.RLock()
	snapshot, err := e.ledger.Snapshot(ctx)
	e.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("cyclequota: usage: %w", err)
	}

	categories := e.dist.Categories()
	usage := make([]CategoryUsage, 0, len(categories))
	for _, c := range categories {
		share, _ := e.dist.Lookup(c)
		limit := share.Of(totalBudget)
		consumed := snapshot[c]
		usage = append(usage, CategoryUsage{
			Category:  c,
			Share:     share,
			Limit:     limit,
			Consumed:  consumed,
			Remaining: limit.SaturatingSub(consumed),
		})
	}
	return usage, nil
}

// noopMeter is a meter that does nothing.
type noopMeter struct{}

func (m *noopMeter) OnAdmission(AdmissionEvent) {}
func (m *noopMeter) OnReset(ResetEvent)         {}
