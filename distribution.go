package cyclequota

import (
	"fmt"
	"sort"
)

// Distribution maps categories to their share of the per-cycle budget.
// It is immutable once built and safe for concurrent use.
type Distribution struct {
	shares map[Category]Fraction
	total  Fraction
}

// Lookup returns the configured share for a category.
// The second result is false if the category is unconstrained.
func (d *Distribution) Lookup(c Category) (Fraction, bool) {
	f, ok := d.shares[c]
	return f, ok
}

// Len returns the number of constrained categories.
func (d *Distribution) Len() int {
	return len(d.shares)
}

// Categories returns the constrained categories in sorted order.
func (d *Distribution) Categories() []Category {
	out := make([]Category, 0, len(d.shares))
	for c := range d.shares {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Total returns the sum of all configured shares.
func (d *Distribution) Total() Fraction {
	return d.total
}

type share struct {
	category Category
	fraction Fraction
}

// DistributionBuilder collects category shares. Nothing is validated until Build.
type DistributionBuilder struct {
	shares []share
}

// NewDistributionBuilder starts an empty distribution.
func NewDistributionBuilder() *DistributionBuilder {
	return &DistributionBuilder{}
}

// Add appends a category share.
func (b *DistributionBuilder) Add(c Category, f Fraction) *DistributionBuilder {
	b.shares = append(b.shares, share{category: c, fraction: f})
	return b
}

// Build validates the collected shares and returns the distribution.
// The total is checked before duplicates; both must hold.
func (b *DistributionBuilder) Build() (*Distribution, error) {
	var total Fraction
	for _, s := range b.shares {
		sum, ok := total.CheckedAdd(s.fraction)
		if !ok {
			return nil, &ConfigError{Category: s.category, Err: ErrTotalShareExceeded}
		}
		total = sum
	}

	shares := make(map[Category]Fraction, len(b.shares))
	for _, s := range b.shares {
		if _, exists := shares[s.category]; exists {
			return nil, &ConfigError{Category: s.category, Err: ErrDuplicateCategory}
		}
		shares[s.category] = s.fraction
	}

	return &Distribution{shares: shares, total: total}, nil
}

// MustBuild is like Build but panics on error. Use it only while wiring
// configuration at startup.
func (b *DistributionBuilder) MustBuild() *Distribution {
	d, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("cyclequota: failed to build distribution: %v", err))
	}
	return d
}
