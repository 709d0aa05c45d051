package cyclequota

import (
	"math"
	"math/bits"
)

// Category identifies a resource-consuming category (a subsystem, module or tenant).
type Category string

// Amount is a quantity of the per-cycle resource (weight, time, bandwidth).
// It has a single dimension.
type Amount uint64

// MaxAmount is the largest representable Amount.
const MaxAmount Amount = math.MaxUint64

// CheckedAdd returns a+b, or false if the sum overflows.
func (a Amount) CheckedAdd(b Amount) (Amount, bool) {
	sum, carry := bits.Add64(uint64(a), uint64(b), 0)
	if carry != 0 {
		return 0, false
	}
	return Amount(sum), true
}

// SaturatingAdd returns a+b clamped at MaxAmount.
func (a Amount) SaturatingAdd(b Amount) Amount {
	sum, ok := a.CheckedAdd(b)
	if !ok {
		return MaxAmount
	}
	return sum
}

// SaturatingSub returns a-b, or zero if b > a.
func (a Amount) SaturatingSub(b Amount) Amount {
	if b > a {
		return 0
	}
	return a - b
}
