package memory

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mkondo/srp/pkg/domain/entities"
	"github.com/mkondo/srp/pkg/domain/repositories"
)

type cellKey struct {
	role entities.Role
	date string
	slot entities.TimeOfDay
}

// AssignmentRepository provides in-memory storage for the supply-side
// ledger. Records are indexed by (role, date, slot) at load time; the
// repository is read-only after loading.
type AssignmentRepository struct {
	grid entities.TimeGrid

	accepted    int
	cells       map[cellKey]*repositories.SupplyCell
	observed    map[string]map[entities.TimeOfDay]bool
	staff       map[entities.Role]map[entities.StaffID]bool
	roles       map[entities.Role]bool
	employments map[entities.EmploymentType]bool
	dates       map[string]time.Time
	counts      map[entities.Role]map[entities.EmploymentType]int64
}

// NewAssignmentRepository creates an empty ledger on the given grid.
func NewAssignmentRepository(grid entities.TimeGrid) *AssignmentRepository {
	return &AssignmentRepository{
		grid:        grid,
		cells:       make(map[cellKey]*repositories.SupplyCell),
		observed:    make(map[string]map[entities.TimeOfDay]bool),
		staff:       make(map[entities.Role]map[entities.StaffID]bool),
		roles:       make(map[entities.Role]bool),
		employments: make(map[entities.EmploymentType]bool),
		dates:       make(map[string]time.Time),
		counts:      make(map[entities.Role]map[entities.EmploymentType]int64),
	}
}

// Verify interface compliance
var _ repositories.AssignmentRepository = (*AssignmentRepository)(nil)

// LoadAssignments ingests raw records. Records failing validation (missing
// fields or a time off the canonical grid) are rejected and counted.
func (r *AssignmentRepository) LoadAssignments(records []*entities.AssignmentRecord) (int, error) {
	rejected := 0
	for _, record := range records {
		if record == nil {
			rejected++
			continue
		}
		if err := record.Validate(r.grid); err != nil {
			rejected++
			continue
		}
		r.add(record)
	}
	return rejected, nil
}

func (r *AssignmentRepository) add(record *entities.AssignmentRecord) {
	date := entities.DateOnly(record.Date)
	dateKey := date.Format(entities.DateLayout)

	key := cellKey{role: record.Role, date: dateKey, slot: record.Time}
	cell, ok := r.cells[key]
	if !ok {
		cell = &repositories.SupplyCell{ByEmployment: make(map[entities.EmploymentType]int64)}
		r.cells[key] = cell
	}
	cell.Total++
	cell.ByEmployment[record.Employment]++

	if r.observed[dateKey] == nil {
		r.observed[dateKey] = make(map[entities.TimeOfDay]bool)
	}
	r.observed[dateKey][record.Time] = true

	if r.staff[record.Role] == nil {
		r.staff[record.Role] = make(map[entities.StaffID]bool)
	}
	r.staff[record.Role][record.StaffID] = true

	if r.counts[record.Role] == nil {
		r.counts[record.Role] = make(map[entities.EmploymentType]int64)
	}
	r.counts[record.Role][record.Employment]++

	r.roles[record.Role] = true
	r.employments[record.Employment] = true
	r.dates[dateKey] = date
	r.accepted++
}

// RecordCount returns the number of accepted records.
func (r *AssignmentRepository) RecordCount() int {
	return r.accepted
}

// TotalSlotCount returns the number of accepted records matching the filter.
func (r *AssignmentRepository) TotalSlotCount(filter *repositories.AssignmentFilter) int64 {
	var total int64
	for role, byEmployment := range r.counts {
		if filter != nil && filter.Role != nil && *filter.Role != role {
			continue
		}
		for employment, count := range byEmployment {
			if filter != nil && filter.Employment != nil && *filter.Employment != employment {
				continue
			}
			total += count
		}
	}
	return total
}

// TotalHours converts the matching record count to hours through the grid,
// exactly once.
func (r *AssignmentRepository) TotalHours(filter *repositories.AssignmentFilter) decimal.Decimal {
	return r.grid.HoursFromSlotCount(decimal.NewFromInt(r.TotalSlotCount(filter)))
}

// DailyHours divides the matching total by the actual period length. No
// other code path may divide hours by a day count.
func (r *AssignmentRepository) DailyHours(filter *repositories.AssignmentFilter, period entities.PeriodWindow) (decimal.Decimal, error) {
	days := period.Days()
	if days <= 0 {
		return decimal.Decimal{}, fmt.Errorf("period %s has no days", period)
	}
	return r.TotalHours(filter).Div(decimal.NewFromInt(int64(days))), nil
}

// SupplyAt returns the supply in one (role, date, slot) cell. The returned
// cell is read-only.
func (r *AssignmentRepository) SupplyAt(role entities.Role, date time.Time, slot entities.TimeOfDay) repositories.SupplyCell {
	key := cellKey{role: role, date: entities.DateOnly(date).Format(entities.DateLayout), slot: slot}
	if cell, ok := r.cells[key]; ok {
		return *cell
	}
	return repositories.SupplyCell{}
}

// Roles returns the distinct roles observed, sorted.
func (r *AssignmentRepository) Roles() []entities.Role {
	roles := make([]entities.Role, 0, len(r.roles))
	for role := range r.roles {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// Employments returns the distinct employment types observed, sorted.
func (r *AssignmentRepository) Employments() []entities.EmploymentType {
	employments := make([]entities.EmploymentType, 0, len(r.employments))
	for employment := range r.employments {
		employments = append(employments, employment)
	}
	sort.Slice(employments, func(i, j int) bool { return employments[i] < employments[j] })
	return employments
}

// Dates returns the distinct dates observed, in chronological order.
func (r *AssignmentRepository) Dates() []time.Time {
	dates := make([]time.Time, 0, len(r.dates))
	for _, date := range r.dates {
		dates = append(dates, date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// ObservedTimes returns the slot times present on a date.
func (r *AssignmentRepository) ObservedTimes(date time.Time) map[entities.TimeOfDay]bool {
	times := r.observed[entities.DateOnly(date).Format(entities.DateLayout)]
	out := make(map[entities.TimeOfDay]bool, len(times))
	for t := range times {
		out[t] = true
	}
	return out
}

// DistinctStaff returns the number of distinct staff seen for a role.
func (r *AssignmentRepository) DistinctStaff(role entities.Role) int {
	return len(r.staff[role])
}
