package services

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mkondo/srp/pkg/domain/entities"
)

// Default bounds outside which the normalization factor becomes extreme
// enough that the rescaled figure should not be presented as authoritative.
const (
	DefaultMinReliableDays = 7
	DefaultMaxReliableDays = 120
)

// NormalizationWarning signals that a period was short or long enough to
// make the normalization factor extreme. The rescaled value is still
// returned; the caller decides how to surface the reduced confidence.
type NormalizationWarning struct {
	ActualDays    int
	CanonicalDays int
	Factor        decimal.Decimal
}

func (w *NormalizationWarning) String() string {
	return fmt.Sprintf("normalizing a %d-day period to %d days amplifies totals by %s; treat the result with caution",
		w.ActualDays, w.CanonicalDays, w.Factor.Round(4))
}

// PeriodNormalizer rescales aggregated hour totals to a canonical period
// length so that runs over different date ranges are comparable. Both the
// need and supply sides must pass through it identically before
// differencing, or not at all.
type PeriodNormalizer struct {
	CanonicalDays   int
	MinReliableDays int
	MaxReliableDays int
}

// NewPeriodNormalizer creates a normalizer targeting the given canonical
// period length with default reliability bounds.
func NewPeriodNormalizer(canonicalDays int) PeriodNormalizer {
	return PeriodNormalizer{
		CanonicalDays:   canonicalDays,
		MinReliableDays: DefaultMinReliableDays,
		MaxReliableDays: DefaultMaxReliableDays,
	}
}

// Normalize rescales an hour total observed over actualDays to the
// canonical period length: value * (canonical / actual).
func (n PeriodNormalizer) Normalize(value decimal.Decimal, actualDays int) (entities.NormalizedHours, *NormalizationWarning, error) {
	if n.CanonicalDays <= 0 {
		return entities.NormalizedHours{}, nil, fmt.Errorf("canonical period length must be positive, got %d", n.CanonicalDays)
	}
	if actualDays <= 0 {
		return entities.NormalizedHours{}, nil, fmt.Errorf("actual period length must be positive, got %d", actualDays)
	}
	factor := decimal.NewFromInt(int64(n.CanonicalDays)).Div(decimal.NewFromInt(int64(actualDays)))
	normalized := entities.NormalizedHours{
		Hours:         value.Mul(factor),
		CanonicalDays: n.CanonicalDays,
	}
	var warning *NormalizationWarning
	if actualDays < n.MinReliableDays || actualDays > n.MaxReliableDays {
		warning = &NormalizationWarning{
			ActualDays:    actualDays,
			CanonicalDays: n.CanonicalDays,
			Factor:        factor,
		}
	}
	return normalized, warning, nil
}

// Denormalize inverts Normalize, returning the raw total for actualDays.
func (n PeriodNormalizer) Denormalize(value entities.NormalizedHours, actualDays int) (decimal.Decimal, error) {
	if value.CanonicalDays != n.CanonicalDays {
		return decimal.Decimal{}, fmt.Errorf("value was normalized to %d days, normalizer targets %d",
			value.CanonicalDays, n.CanonicalDays)
	}
	if actualDays <= 0 {
		return decimal.Decimal{}, fmt.Errorf("actual period length must be positive, got %d", actualDays)
	}
	factor := decimal.NewFromInt(int64(actualDays)).Div(decimal.NewFromInt(int64(n.CanonicalDays)))
	return value.Hours.Mul(factor), nil
}
