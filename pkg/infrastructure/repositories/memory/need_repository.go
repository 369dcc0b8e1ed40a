package memory

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mkondo/srp/pkg/domain/entities"
	"github.com/mkondo/srp/pkg/domain/repositories"
)

// NeedRepository provides in-memory storage for the demand-side
// requirement surface. Matrices are validated against the grid and period
// at load time and treated as read-only afterwards.
type NeedRepository struct {
	grid     entities.TimeGrid
	matrices map[entities.Role]*entities.NeedMatrix
}

// NewNeedRepository creates an empty surface on the given grid.
func NewNeedRepository(grid entities.TimeGrid) *NeedRepository {
	return &NeedRepository{
		grid:     grid,
		matrices: make(map[entities.Role]*entities.NeedMatrix),
	}
}

// Verify interface compliance
var _ repositories.NeedRepository = (*NeedRepository)(nil)

// LoadNeeds ingests role-keyed matrices. Any shape mismatch aborts the
// load; a misaligned matrix must never reach the aggregation stage.
func (r *NeedRepository) LoadNeeds(matrices map[entities.Role]*entities.NeedMatrix, period entities.PeriodWindow) error {
	for role, matrix := range matrices {
		if matrix == nil {
			return fmt.Errorf("nil need matrix for role %s", role)
		}
		if matrix.Role == "" {
			matrix.Role = role
		}
		if matrix.Role != role {
			return fmt.Errorf("need matrix keyed by role %s carries role %s", role, matrix.Role)
		}
		if err := matrix.Validate(r.grid, period); err != nil {
			return err
		}
	}
	for role, matrix := range matrices {
		r.matrices[role] = matrix
	}
	return nil
}

// Roles returns the roles with a loaded matrix, sorted.
func (r *NeedRepository) Roles() []entities.Role {
	roles := make([]entities.Role, 0, len(r.matrices))
	for role := range r.matrices {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// Matrix returns the loaded matrix for a role.
func (r *NeedRepository) Matrix(role entities.Role) (*entities.NeedMatrix, bool) {
	matrix, ok := r.matrices[role]
	return matrix, ok
}

// NeedAt returns the required headcount at one (role, day, slot) cell.
// Roles or cells outside the surface read as zero.
func (r *NeedRepository) NeedAt(role entities.Role, dayIndex, slotIndex int) decimal.Decimal {
	matrix, ok := r.matrices[role]
	if !ok {
		return decimal.Zero
	}
	if slotIndex < 0 || slotIndex >= len(matrix.Values) {
		return decimal.Zero
	}
	row := matrix.Values[slotIndex]
	if dayIndex < 0 || dayIndex >= len(row) {
		return decimal.Zero
	}
	return row[dayIndex]
}

// TotalNeedHours sums matrix cells (optionally one role) and converts the
// headcount-slot total to hours through the grid, exactly once.
func (r *NeedRepository) TotalNeedHours(role *entities.Role) decimal.Decimal {
	sum := decimal.Zero
	for matrixRole, matrix := range r.matrices {
		if role != nil && *role != matrixRole {
			continue
		}
		for _, row := range matrix.Values {
			for _, cell := range row {
				sum = sum.Add(cell)
			}
		}
	}
	return r.grid.HoursFromSlotCount(sum)
}

// facilityMean returns the mean requirement across every loaded matrix,
// the baseline for single-cell implausibility checks.
func (r *NeedRepository) facilityMean() decimal.Decimal {
	sum := decimal.Zero
	var cells int64
	for _, matrix := range r.matrices {
		slots, days := matrix.Shape()
		cells += int64(slots) * int64(days)
		for _, row := range matrix.Values {
			for _, cell := range row {
				sum = sum.Add(cell)
			}
		}
	}
	if cells == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(cells))
}

// SanityBounds flags implausibly large single cells (above the factor times
// the facility mean) and all-zero matrices. Implausible values are surfaced
// as warnings rather than trusted blindly.
func (r *NeedRepository) SanityBounds(role entities.Role, implausibilityFactor decimal.Decimal) []entities.ValidationIssue {
	matrix, ok := r.matrices[role]
	if !ok {
		return nil
	}

	var issues []entities.ValidationIssue
	if matrix.IsZero() {
		issues = append(issues, entities.ValidationIssue{
			Severity: entities.SeverityWarning,
			Code:     entities.IssueZeroNeedMatrix,
			Role:     role,
			Message:  fmt.Sprintf("need matrix for role %s is entirely zero; this usually signals an upstream data problem", role),
		})
		return issues
	}

	threshold := r.facilityMean().Mul(implausibilityFactor)
	if threshold.IsZero() {
		return issues
	}
	max := matrix.Max()
	if max.GreaterThan(threshold) {
		issues = append(issues, entities.ValidationIssue{
			Severity: entities.SeverityWarning,
			Code:     entities.IssueImplausibleNeed,
			Role:     role,
			Message: fmt.Sprintf("need matrix for role %s contains a cell of %s heads, above %s (%s x facility mean)",
				role, max, threshold.Round(2), implausibilityFactor),
		})
	}
	return issues
}
