package testing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mkondo/srp/pkg/domain/entities"
	"github.com/mkondo/srp/pkg/infrastructure/repositories/memory"
)

// MustTimeGrid builds a grid or panics; for scenario setup only.
func MustTimeGrid(slotMinutes int) entities.TimeGrid {
	grid, err := entities.NewTimeGrid(slotMinutes)
	if err != nil {
		panic(err)
	}
	return grid
}

// MustPeriod builds a window spanning days calendar days from start.
func MustPeriod(start time.Time, days int) entities.PeriodWindow {
	period, err := entities.NewPeriodWindow(start, start.AddDate(0, 0, days-1))
	if err != nil {
		panic(err)
	}
	return period
}

// UniformNeedMatrix builds a matrix with every cell set to heads.
func UniformNeedMatrix(role entities.Role, heads decimal.Decimal, grid entities.TimeGrid, period entities.PeriodWindow) *entities.NeedMatrix {
	values := make([][]decimal.Decimal, grid.SlotsPerDay())
	for s := range values {
		values[s] = make([]decimal.Decimal, period.Days())
		for d := range values[s] {
			values[s][d] = heads
		}
	}
	return &entities.NeedMatrix{Role: role, Values: values}
}

// UniformAssignments builds one record per staff member per slot per day:
// staffPerSlot concurrent staff across the whole period.
func UniformAssignments(role entities.Role, employment entities.EmploymentType, staffPerSlot int, grid entities.TimeGrid, period entities.PeriodWindow) []*entities.AssignmentRecord {
	var records []*entities.AssignmentRecord
	for _, date := range period.Dates() {
		for _, slot := range grid.CanonicalSlots() {
			for n := 0; n < staffPerSlot; n++ {
				records = append(records, &entities.AssignmentRecord{
					StaffID:    entities.StaffID(fmt.Sprintf("%s-%s-%02d", role, employment, n+1)),
					Role:       role,
					Employment: employment,
					Date:       date,
					Time:       slot,
				})
			}
		}
	}
	return records
}

// BuildCareFacilityScenario assembles loaded repositories for a small
// facility: one "care" role needing one head in every slot, staffed by
// staffPerSlot full-time staff around the clock.
func BuildCareFacilityScenario(grid entities.TimeGrid, period entities.PeriodWindow, staffPerSlot int) (*memory.NeedRepository, *memory.AssignmentRepository, error) {
	const role = entities.Role("care")

	needRepo := memory.NewNeedRepository(grid)
	err := needRepo.LoadNeeds(map[entities.Role]*entities.NeedMatrix{
		role: UniformNeedMatrix(role, decimal.NewFromInt(1), grid, period),
	}, period)
	if err != nil {
		return nil, nil, err
	}

	assignmentRepo := memory.NewAssignmentRepository(grid)
	records := UniformAssignments(role, "full_time", staffPerSlot, grid, period)
	if rejected, err := assignmentRepo.LoadAssignments(records); err != nil {
		return nil, nil, err
	} else if rejected > 0 {
		return nil, nil, fmt.Errorf("scenario rejected %d records", rejected)
	}

	return needRepo, assignmentRepo, nil
}
