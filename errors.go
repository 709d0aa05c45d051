package cyclequota

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrDuplicateCategory  = errors.New("cyclequota: category configured more than once")
	ErrTotalShareExceeded = errors.New("cyclequota: total share exceeds 100%")
	ErrResourcesExhausted = errors.New("cyclequota: resources exhausted")
	ErrNilDistribution    = errors.New("cyclequota: distribution is required")
	ErrNilLedger          = errors.New("cyclequota: ledger is required")
)

// ConfigError reports an invalid distribution. It is fatal at startup.
type ConfigError struct {
	Category Category
	Err      error
}

func (e *ConfigError) Error() string {
	if e.Category == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v: %q", e.Err, e.Category)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// AdmissionError reports a rejected request. The ledger is unchanged.
type AdmissionError struct {
	Err      error
	Category Category
	Cost     Amount // effective cost including base overhead
	Limit    Amount
	Consumed Amount // category total at rejection time
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("cyclequota: category=%s cost=%d consumed=%d limit=%d: %v",
		e.Category, e.Cost, e.Consumed, e.Limit, e.Err)
}

func (e *AdmissionError) Unwrap() error {
	return e.Err
}

// IsExhausted returns true if the request was rejected for lack of budget.
// Callers may retry in a later cycle.
func IsExhausted(err error) bool {
	return errors.Is(err, ErrResourcesExhausted)
}

// IsConfigError returns true if err describes an invalid distribution.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrDuplicateCategory) || errors.Is(err, ErrTotalShareExceeded)
}
