package entities

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// NeedMatrix holds the required headcount for one role across the analysis
// period. Rows are canonical slots, columns are period days. Matrices are
// produced by an external forecasting step and loaded as-is; the pipeline
// treats them as read-only input.
type NeedMatrix struct {
	Role   Role
	Values [][]decimal.Decimal
}

// Shape returns the (slots, days) dimensions of the matrix.
func (m *NeedMatrix) Shape() (slots, days int) {
	slots = len(m.Values)
	if slots > 0 {
		days = len(m.Values[0])
	}
	return slots, days
}

// Validate checks the matrix against the grid and period. A silently
// misaligned matrix produces plausible-looking but wrong numbers, so any
// shape mismatch is a hard error. Negative cells are a precondition
// violation as well; no meaningful requirement is negative.
func (m *NeedMatrix) Validate(grid TimeGrid, period PeriodWindow) error {
	slots, days := m.Shape()
	if slots != grid.SlotsPerDay() || days != period.Days() {
		return &NeedShapeError{
			Role:      m.Role,
			WantSlots: grid.SlotsPerDay(),
			GotSlots:  slots,
			WantDays:  period.Days(),
			GotDays:   days,
		}
	}
	for s, row := range m.Values {
		if len(row) != days {
			return &NeedShapeError{
				Role:      m.Role,
				WantSlots: grid.SlotsPerDay(),
				GotSlots:  slots,
				WantDays:  days,
				GotDays:   len(row),
			}
		}
		for d, cell := range row {
			if cell.IsNegative() {
				return fmt.Errorf("need matrix for role %s has negative value %s at slot %d day %d",
					m.Role, cell, s, d)
			}
		}
	}
	return nil
}

// IsZero reports whether every cell of the matrix is zero, which signals an
// upstream data problem rather than a genuinely zero requirement.
func (m *NeedMatrix) IsZero() bool {
	for _, row := range m.Values {
		for _, cell := range row {
			if !cell.IsZero() {
				return false
			}
		}
	}
	return true
}

// Max returns the largest single-cell requirement in the matrix.
func (m *NeedMatrix) Max() decimal.Decimal {
	max := decimal.Zero
	for _, row := range m.Values {
		for _, cell := range row {
			if cell.GreaterThan(max) {
				max = cell
			}
		}
	}
	return max
}

// Mean returns the average cell value across the matrix.
func (m *NeedMatrix) Mean() decimal.Decimal {
	slots, days := m.Shape()
	cells := int64(slots) * int64(days)
	if cells == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, row := range m.Values {
		for _, cell := range row {
			sum = sum.Add(cell)
		}
	}
	return sum.Div(decimal.NewFromInt(cells))
}
