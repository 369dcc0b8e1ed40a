package repositories

import (
	"github.com/shopspring/decimal"

	"github.com/mkondo/srp/pkg/domain/entities"
)

// NeedRepository provides access to the demand-side requirement surface
type NeedRepository interface {
	// LoadNeeds ingests role-keyed matrices. Every matrix must match the
	// canonical grid and the period exactly; a shape mismatch returns a
	// *entities.NeedShapeError and aborts the run.
	LoadNeeds(matrices map[entities.Role]*entities.NeedMatrix, period entities.PeriodWindow) error

	// Roles returns the roles with a loaded matrix.
	Roles() []entities.Role

	// Matrix returns the loaded matrix for a role.
	Matrix(role entities.Role) (*entities.NeedMatrix, bool)

	// NeedAt returns the required headcount at one (role, day, slot) cell.
	NeedAt(role entities.Role, dayIndex, slotIndex int) decimal.Decimal

	// TotalNeedHours sums matrix cells, optionally filtered to one role,
	// and converts to hours exactly once.
	TotalNeedHours(role *entities.Role) decimal.Decimal

	// SanityBounds flags single-cell values above implausibilityFactor
	// times the facility's mean requirement, and matrices that are
	// entirely zero.
	SanityBounds(role entities.Role, implausibilityFactor decimal.Decimal) []entities.ValidationIssue
}
