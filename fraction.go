package cyclequota

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// FractionAccuracy is the number of parts in a whole Fraction (parts per billion).
const FractionAccuracy = 1_000_000_000

const partsPerPercent = FractionAccuracy / 100

// Fraction is an exact fixed-point value in [0, 1] with parts-per-billion
// granularity. The zero value is 0%.
type Fraction uint32

// FractionOne is 100%.
const FractionOne Fraction = FractionAccuracy

var (
	hundred        = decimal.NewFromInt(100)
	percentToParts = decimal.NewFromInt(partsPerPercent)
)

// FractionFromPercent returns p percent, saturating at 100%.
func FractionFromPercent(p uint32) Fraction {
	if p >= 100 {
		return FractionOne
	}
	return Fraction(p * partsPerPercent)
}

// FractionFromParts returns a Fraction of the given parts per billion, saturating at 100%.
func FractionFromParts(parts uint32) Fraction {
	if parts >= FractionAccuracy {
		return FractionOne
	}
	return Fraction(parts)
}

// FractionFromRational returns floor(n/d) at parts-per-billion precision,
// saturating at 100%. A zero denominator yields 100% unless n is also zero.
func FractionFromRational(n, d uint64) Fraction {
	if d == 0 {
		if n == 0 {
			return 0
		}
		return FractionOne
	}
	if n >= d {
		return FractionOne
	}
	hi, lo := bits.Mul64(n, FractionAccuracy)
	q, _ := bits.Div64(hi, lo, d)
	return Fraction(q)
}

// ParseFraction parses a percentage such as "50%", "12.5" or "0.0000001%".
// Precision below one part per billion is truncated, never rounded up.
func ParseFraction(s string) (Fraction, error) {
	v := strings.TrimSpace(s)
	v = strings.TrimSpace(strings.TrimSuffix(v, "%"))
	if v == "" {
		return 0, fmt.Errorf("cyclequota: parse fraction %q: empty value", s)
	}

	d, err := decimal.NewFromString(v)
	if err != nil {
		return 0, fmt.Errorf("cyclequota: parse fraction %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("cyclequota: parse fraction %q: negative percentage", s)
	}
	if d.GreaterThan(hundred) {
		return 0, fmt.Errorf("cyclequota: parse fraction %q: exceeds 100%%", s)
	}

	return Fraction(d.Mul(percentToParts).Truncate(0).IntPart()), nil
}

// MustParseFraction is like ParseFraction but panics on error.
func MustParseFraction(s string) Fraction {
	f, err := ParseFraction(s)
	if err != nil {
		panic(err)
	}
	return f
}

// Parts returns the fraction in parts per billion.
func (f Fraction) Parts() uint32 { return uint32(f) }

// IsZero reports whether f is 0%.
func (f Fraction) IsZero() bool { return f == 0 }

// CheckedAdd returns f+g, or false if the sum exceeds 100%.
func (f Fraction) CheckedAdd(g Fraction) (Fraction, bool) {
	sum := uint64(f) + uint64(g)
	if sum > FractionAccuracy {
		return 0, false
	}
	return Fraction(sum), true
}

// MulFloor returns floor(f * total). The result never exceeds total.
// Values above FractionOne count as FractionOne.
func (f Fraction) MulFloor(total uint64) uint64 {
	if f > FractionOne {
		f = FractionOne
	}
	// hi < f <= FractionAccuracy, so the division cannot overflow.
	hi, lo := bits.Mul64(uint64(f), total)
	q, _ := bits.Div64(hi, lo, FractionAccuracy)
	return q
}

// Of applies f to an Amount with floor rounding.
func (f Fraction) Of(total Amount) Amount {
	return Amount(f.MulFloor(uint64(total)))
}

// String formats f as an exact percentage, e.g. "12.5%".
func (f Fraction) String() string {
	return decimal.New(int64(f), -7).String() + "%"
}

// UnmarshalYAML decodes a percentage scalar through ParseFraction.
func (f *Fraction) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("cyclequota: line %d: fraction must be a scalar", value.Line)
	}
	parsed, err := ParseFraction(value.Value)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// MarshalYAML encodes f as its percentage string.
func (f Fraction) MarshalYAML() (any, error) {
	return f.String(), nil
}
