package repositories

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mkondo/srp/pkg/domain/entities"
)

// AssignmentFilter narrows supply aggregation to one role or employment
// category. A nil filter (or nil fields) matches everything.
type AssignmentFilter struct {
	Role       *entities.Role
	Employment *entities.EmploymentType
}

// SupplyCell describes the supply present in one (role, date, slot) cell.
type SupplyCell struct {
	Total        int64
	ByEmployment map[entities.EmploymentType]int64
}

// AssignmentRepository provides access to the supply-side ledger
type AssignmentRepository interface {
	// LoadAssignments ingests raw records, assigning each to the canonical
	// slot grid. Records that fail validation are rejected and counted;
	// the count is reported to the caller, never silently dropped.
	LoadAssignments(records []*entities.AssignmentRecord) (rejected int, err error)

	// RecordCount returns the number of accepted records.
	RecordCount() int

	// TotalSlotCount returns the number of accepted records matching the
	// filter, before any unit conversion.
	TotalSlotCount(filter *AssignmentFilter) int64

	// TotalHours returns matching record count times slot hours. This is
	// the only supply-side path through the slot-to-hours conversion.
	TotalHours(filter *AssignmentFilter) decimal.Decimal

	// DailyHours returns TotalHours divided by the actual number of days
	// in the period. It is the sole authority for supply hours per day.
	DailyHours(filter *AssignmentFilter, period entities.PeriodWindow) (decimal.Decimal, error)

	// SupplyAt returns the supply present in one (role, date, slot) cell.
	SupplyAt(role entities.Role, date time.Time, slot entities.TimeOfDay) SupplyCell

	// Roles returns the distinct roles observed in the ledger.
	Roles() []entities.Role

	// Employments returns the distinct employment types observed.
	Employments() []entities.EmploymentType

	// Dates returns the distinct dates observed, in order.
	Dates() []time.Time

	// ObservedTimes returns the set of slot times present on a date.
	ObservedTimes(date time.Time) map[entities.TimeOfDay]bool

	// DistinctStaff returns the number of distinct staff seen for a role.
	DistinctStaff(role entities.Role) int
}
