package entities

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// BreakdownKind represents a grouping dimension for shortage aggregation
type BreakdownKind int

const (
	Overall BreakdownKind = iota
	ByRole
	ByEmployment
)

func (b BreakdownKind) String() string {
	switch b {
	case Overall:
		return "overall"
	case ByRole:
		return "by_role"
	case ByEmployment:
		return "by_employment"
	default:
		return "unknown"
	}
}

// GroupKey identifies one group within a breakdown.
type GroupKey struct {
	Kind       BreakdownKind
	Role       Role
	Employment EmploymentType
}

// Label returns a human-readable identifier for the group.
func (k GroupKey) Label() string {
	switch k.Kind {
	case ByRole:
		return string(k.Role)
	case ByEmployment:
		return string(k.Employment)
	default:
		return "overall"
	}
}

// NormalizedHours is an hour quantity rescaled to a canonical period
// length. It is produced only by the period normalizer; keeping it a
// distinct type prevents a raw total from being subtracted against a
// normalized one.
type NormalizedHours struct {
	Hours         decimal.Decimal
	CanonicalDays int
}

// ShortageResult is the shortage/excess outcome for one group over the
// period. Lack and excess are two independent non-negative series: "net
// shortage" and "gross lack plus gross excess" answer different questions
// and are never folded into one signed value.
type ShortageResult struct {
	Group       GroupKey
	NeedHours   decimal.Decimal
	SupplyHours decimal.Decimal
	LackHours   decimal.Decimal
	ExcessHours decimal.Decimal
	PeriodDays  int
	Normalized  bool
}

// NewShortageResult creates a raw (unnormalized) result.
func NewShortageResult(group GroupKey, need, supply, lack, excess decimal.Decimal, periodDays int) (ShortageResult, error) {
	if lack.IsNegative() || excess.IsNegative() {
		return ShortageResult{}, fmt.Errorf("group %s: lack (%s) and excess (%s) must be non-negative",
			group.Label(), lack, excess)
	}
	return ShortageResult{
		Group:       group,
		NeedHours:   need,
		SupplyHours: supply,
		LackHours:   lack,
		ExcessHours: excess,
		PeriodDays:  periodDays,
	}, nil
}

// NewNormalizedShortageResult creates a result from already-normalized
// quantities. All four inputs must share one canonical period length;
// mixing normalized and raw values in a single result is rejected here
// rather than detected downstream.
func NewNormalizedShortageResult(group GroupKey, need, supply, lack, excess NormalizedHours, periodDays int) (ShortageResult, error) {
	canonical := need.CanonicalDays
	for _, v := range []NormalizedHours{supply, lack, excess} {
		if v.CanonicalDays != canonical {
			return ShortageResult{}, fmt.Errorf("group %s: mixed canonical period lengths %d and %d",
				group.Label(), canonical, v.CanonicalDays)
		}
	}
	result, err := NewShortageResult(group, need.Hours, supply.Hours, lack.Hours, excess.Hours, periodDays)
	if err != nil {
		return ShortageResult{}, err
	}
	result.Normalized = true
	return result, nil
}

// DailyShortage is the per-date lack/excess series for one role, used for
// day-over-day plausibility checks and reporting.
type DailyShortage struct {
	Role        Role
	Date        string
	NeedHours   decimal.Decimal
	SupplyHours decimal.Decimal
	LackHours   decimal.Decimal
	ExcessHours decimal.Decimal
}
