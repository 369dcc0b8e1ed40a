package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkondo/srp/pkg/domain/entities"
	"github.com/mkondo/srp/pkg/domain/repositories"
)

func mustGrid(t *testing.T, slotMinutes int) entities.TimeGrid {
	t.Helper()
	grid, err := entities.NewTimeGrid(slotMinutes)
	require.NoError(t, err)
	return grid
}

func record(staff, role, employment string, date time.Time, minutes int) *entities.AssignmentRecord {
	return &entities.AssignmentRecord{
		StaffID:    entities.StaffID(staff),
		Role:       entities.Role(role),
		Employment: entities.EmploymentType(employment),
		Date:       date,
		Time:       entities.TimeOfDay(minutes),
	}
}

func TestAssignmentRepository_RejectsInvalidRecords(t *testing.T) {
	grid := mustGrid(t, 30)
	repo := NewAssignmentRepository(grid)
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	records := []*entities.AssignmentRecord{
		record("s1", "care", "full_time", day, 540),  // 09:00, valid
		record("s2", "care", "full_time", day, 547),  // 09:07, off grid
		record("", "care", "full_time", day, 570),    // missing staff id
		record("s3", "", "full_time", day, 570),      // missing role
		record("s4", "care", "", day, 570),           // missing employment
		record("s5", "care", "full_time", day, 1470), // past midnight
		nil,
	}

	rejected, err := repo.LoadAssignments(records)
	require.NoError(t, err)
	assert.Equal(t, 6, rejected)
	assert.Equal(t, 1, repo.RecordCount())
}

func TestAssignmentRepository_HoursAreExact(t *testing.T) {
	grid := mustGrid(t, 30)
	repo := NewAssignmentRepository(grid)
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	// One staff member covering every slot of a 10-day window.
	var records []*entities.AssignmentRecord
	for d := 0; d < 10; d++ {
		day := start.AddDate(0, 0, d)
		for m := 0; m < entities.MinutesPerDay; m += 30 {
			records = append(records, record("s1", "care", "full_time", day, m))
		}
	}
	rejected, err := repo.LoadAssignments(records)
	require.NoError(t, err)
	require.Zero(t, rejected)

	// 48 slots x 10 days x 0.5h = 240 hours, exactly.
	assert.EqualValues(t, 480, repo.TotalSlotCount(nil))
	assert.True(t, repo.TotalHours(nil).Equal(decimal.NewFromInt(240)),
		"got %s", repo.TotalHours(nil))

	period, err := entities.PeriodFromDates(repo.Dates())
	require.NoError(t, err)
	require.Equal(t, 10, period.Days())

	daily, err := repo.DailyHours(nil, period)
	require.NoError(t, err)
	assert.True(t, daily.Equal(decimal.NewFromInt(24)), "got %s", daily)
}

func TestAssignmentRepository_Filters(t *testing.T) {
	grid := mustGrid(t, 30)
	repo := NewAssignmentRepository(grid)
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	records := []*entities.AssignmentRecord{
		record("n1", "nurse", "full_time", day, 540),
		record("n2", "nurse", "part_time", day, 540),
		record("c1", "care", "full_time", day, 540),
		record("c1", "care", "full_time", day, 570),
	}
	_, err := repo.LoadAssignments(records)
	require.NoError(t, err)

	nurse := entities.Role("nurse")
	partTime := entities.EmploymentType("part_time")

	assert.EqualValues(t, 4, repo.TotalSlotCount(nil))
	assert.EqualValues(t, 2, repo.TotalSlotCount(&repositories.AssignmentFilter{Role: &nurse}))
	assert.EqualValues(t, 1, repo.TotalSlotCount(&repositories.AssignmentFilter{Role: &nurse, Employment: &partTime}))
	assert.EqualValues(t, 1, repo.TotalSlotCount(&repositories.AssignmentFilter{Employment: &partTime}))

	assert.Equal(t, []entities.Role{"care", "nurse"}, repo.Roles())
	assert.Equal(t, []entities.EmploymentType{"full_time", "part_time"}, repo.Employments())
	assert.Equal(t, 2, repo.DistinctStaff("nurse"))
	assert.Equal(t, 1, repo.DistinctStaff("care"))
}

func TestAssignmentRepository_SupplyAt(t *testing.T) {
	grid := mustGrid(t, 30)
	repo := NewAssignmentRepository(grid)
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	_, err := repo.LoadAssignments([]*entities.AssignmentRecord{
		record("n1", "nurse", "full_time", day, 540),
		record("n2", "nurse", "part_time", day, 540),
		record("n3", "nurse", "full_time", day, 540),
	})
	require.NoError(t, err)

	cell := repo.SupplyAt("nurse", day, entities.TimeOfDay(540))
	assert.EqualValues(t, 3, cell.Total)
	assert.EqualValues(t, 2, cell.ByEmployment["full_time"])
	assert.EqualValues(t, 1, cell.ByEmployment["part_time"])

	empty := repo.SupplyAt("nurse", day, entities.TimeOfDay(600))
	assert.Zero(t, empty.Total)
}

func TestAssignmentRepository_ObservedTimes(t *testing.T) {
	grid := mustGrid(t, 60)
	repo := NewAssignmentRepository(grid)
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	var records []*entities.AssignmentRecord
	for h := 0; h < 24; h++ {
		if h == 3 {
			continue // leave a gap at 03:00
		}
		records = append(records, record(fmt.Sprintf("s%d", h), "care", "full_time", day, h*60))
	}
	_, err := repo.LoadAssignments(records)
	require.NoError(t, err)

	report := grid.ValidateDayCoverage(repo.ObservedTimes(day))
	assert.False(t, report.Complete())
	require.Len(t, report.Missing, 1)
	assert.Equal(t, entities.TimeOfDay(180), report.Missing[0])
}
