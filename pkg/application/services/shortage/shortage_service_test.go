package shortage

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mkondo/srp/pkg/domain/entities"
	"github.com/mkondo/srp/pkg/domain/services"
	"github.com/mkondo/srp/pkg/infrastructure/events"
	"github.com/mkondo/srp/pkg/infrastructure/repositories/memory"
	srptesting "github.com/mkondo/srp/pkg/infrastructure/testing"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var decimalComparer = cmp.Comparer(func(a, b decimal.Decimal) bool {
	return a.Equal(b)
})

func newTestService(t *testing.T, overrides func(*Config)) *Service {
	t.Helper()
	grid := srptesting.MustTimeGrid(30)
	config := DefaultConfig()
	if overrides != nil {
		overrides(&config)
	}
	return NewServiceWithConfig(grid, services.NewPeriodNormalizer(30), config, nil)
}

func juneWindow(days int) entities.PeriodWindow {
	return srptesting.MustPeriod(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), days)
}

func TestAnalyze_BalancedFacilityHasNoShortage(t *testing.T) {
	grid := srptesting.MustTimeGrid(30)
	period := juneWindow(30)
	needRepo, assignmentRepo, err := srptesting.BuildCareFacilityScenario(grid, period, 1)
	require.NoError(t, err)

	service := newTestService(t, nil)
	result, err := service.Analyze(context.Background(), needRepo, assignmentRepo, 0)
	require.NoError(t, err)

	// 48 slots x 30 days x 0.5h on both sides.
	assert.True(t, result.Overall.NeedHours.Equal(decimal.NewFromInt(720)), "need %s", result.Overall.NeedHours)
	assert.True(t, result.Overall.SupplyHours.Equal(decimal.NewFromInt(720)), "supply %s", result.Overall.SupplyHours)
	assert.True(t, result.Overall.LackHours.IsZero(), "lack %s", result.Overall.LackHours)
	assert.True(t, result.Overall.ExcessHours.IsZero(), "excess %s", result.Overall.ExcessHours)

	assert.Equal(t, 30, result.Period.Days(), "period must be inferred from the ledger dates")
	assert.Equal(t, 30, result.EffectiveDays)
	assert.True(t, result.Reconciliation.Consistent)
	assert.Empty(t, result.Issues)
	assert.NoError(t, service.Finalize(result))
}

func TestAnalyze_HalfStaffedFacility(t *testing.T) {
	grid := srptesting.MustTimeGrid(30)
	period := juneWindow(30)

	const role = entities.Role("care")
	needRepo := memory.NewNeedRepository(grid)
	require.NoError(t, needRepo.LoadNeeds(map[entities.Role]*entities.NeedMatrix{
		role: srptesting.UniformNeedMatrix(role, decimal.NewFromInt(2), grid, period),
	}, period))
	assignmentRepo := memory.NewAssignmentRepository(grid)
	rejected, err := assignmentRepo.LoadAssignments(srptesting.UniformAssignments(role, "full_time", 1, grid, period))
	require.NoError(t, err)
	require.Zero(t, rejected)

	service := newTestService(t, nil)
	result, err := service.Analyze(context.Background(), needRepo, assignmentRepo, 0)
	require.NoError(t, err)

	// Need 1440h against supply 720h: exactly 720h lack, zero excess.
	assert.True(t, result.Overall.NeedHours.Equal(decimal.NewFromInt(1440)), "need %s", result.Overall.NeedHours)
	assert.True(t, result.Overall.SupplyHours.Equal(decimal.NewFromInt(720)), "supply %s", result.Overall.SupplyHours)
	assert.True(t, result.Overall.LackHours.Equal(decimal.NewFromInt(720)), "lack %s", result.Overall.LackHours)
	assert.True(t, result.Overall.ExcessHours.IsZero(), "excess %s", result.Overall.ExcessHours)

	// Every day misses one head around the clock.
	expectedDaily := make([]entities.DailyShortage, 0, 30)
	for _, date := range period.Dates() {
		expectedDaily = append(expectedDaily, entities.DailyShortage{
			Role:        role,
			Date:        date.Format(entities.DateLayout),
			NeedHours:   decimal.NewFromInt(48),
			SupplyHours: decimal.NewFromInt(24),
			LackHours:   decimal.NewFromInt(24),
			ExcessHours: decimal.Zero,
		})
	}
	if diff := cmp.Diff(expectedDaily, result.Daily, decimalComparer); diff != "" {
		t.Errorf("daily series mismatch (-want +got):\n%s", diff)
	}

	// A 24h daily lack sits above the practical ceiling; that warns but
	// never blocks.
	warned := false
	for _, issue := range result.Issues {
		require.NotEqual(t, entities.SeverityCritical, issue.Severity, "issue: %s", issue.Message)
		if issue.Code == entities.IssueExcessiveShortage {
			warned = true
		}
	}
	assert.True(t, warned, "expected an excessive-shortage warning")
	assert.NoError(t, service.Finalize(result))
}

func TestAnalyze_HalfCoveredSlots(t *testing.T) {
	grid := srptesting.MustTimeGrid(30)
	period := juneWindow(30)

	const role = entities.Role("care")
	needRepo := memory.NewNeedRepository(grid)
	require.NoError(t, needRepo.LoadNeeds(map[entities.Role]*entities.NeedMatrix{
		role: srptesting.UniformNeedMatrix(role, decimal.NewFromInt(1), grid, period),
	}, period))

	// One head in every second slot only: 720 of 1440 slot cells staffed.
	var records []*entities.AssignmentRecord
	for _, date := range period.Dates() {
		for i, slot := range grid.CanonicalSlots() {
			if i%2 != 0 {
				continue
			}
			records = append(records, &entities.AssignmentRecord{
				StaffID:    "care-01",
				Role:       role,
				Employment: "full_time",
				Date:       date,
				Time:       slot,
			})
		}
	}
	require.Len(t, records, 720)
	assignmentRepo := memory.NewAssignmentRepository(grid)
	rejected, err := assignmentRepo.LoadAssignments(records)
	require.NoError(t, err)
	require.Zero(t, rejected)

	service := newTestService(t, nil)
	result, err := service.Analyze(context.Background(), needRepo, assignmentRepo, 0)
	require.NoError(t, err)

	// The 720 uncovered slot cells are exactly 360 lack hours.
	assert.True(t, result.Overall.LackHours.Equal(decimal.NewFromInt(360)),
		"lack %s", result.Overall.LackHours)
	assert.True(t, result.Overall.ExcessHours.IsZero(), "excess %s", result.Overall.ExcessHours)

	// Every day observes only half its slots, so none counts as complete.
	assert.Equal(t, 0, result.EffectiveDays)
	gaps := 0
	for _, issue := range result.Issues {
		if issue.Code == entities.IssueCoverageGap {
			gaps++
		}
	}
	assert.Equal(t, 30, gaps)
}

func TestAnalyze_MissingRoleIsFullShortage(t *testing.T) {
	grid := srptesting.MustTimeGrid(30)
	period := juneWindow(30)

	// Care is fully staffed; nursing has a requirement but no supply at all.
	needRepo, assignmentRepo, err := srptesting.BuildCareFacilityScenario(grid, period, 1)
	require.NoError(t, err)
	require.NoError(t, needRepo.LoadNeeds(map[entities.Role]*entities.NeedMatrix{
		"nurse": srptesting.UniformNeedMatrix("nurse", decimal.NewFromInt(1), grid, period),
	}, period))

	service := newTestService(t, nil)
	result, err := service.Analyze(context.Background(), needRepo, assignmentRepo, 0)
	require.NoError(t, err)

	require.Len(t, result.ByRole, 2)
	byLabel := make(map[string]entities.ShortageResult, len(result.ByRole))
	for _, r := range result.ByRole {
		byLabel[r.Group.Label()] = r
	}
	assert.True(t, byLabel["care"].LackHours.IsZero())
	assert.True(t, byLabel["nurse"].LackHours.Equal(decimal.NewFromInt(720)),
		"nurse lack %s", byLabel["nurse"].LackHours)
	assert.True(t, byLabel["nurse"].SupplyHours.IsZero())

	// Need in slots with no supply lands in the synthetic unassigned group.
	var unassigned *entities.ShortageResult
	for i, r := range result.ByEmployment {
		if r.Group.Employment == entities.EmploymentUnassigned {
			unassigned = &result.ByEmployment[i]
		}
	}
	require.NotNil(t, unassigned, "expected an unassigned employment group")
	assert.True(t, unassigned.LackHours.Equal(decimal.NewFromInt(720)),
		"unassigned lack %s", unassigned.LackHours)
	assert.True(t, result.Reconciliation.Consistent)
}

func TestAnalyze_OverstaffedFacilityHasExcessOnly(t *testing.T) {
	grid := srptesting.MustTimeGrid(30)
	period := juneWindow(30)
	needRepo, assignmentRepo, err := srptesting.BuildCareFacilityScenario(grid, period, 2)
	require.NoError(t, err)

	service := newTestService(t, nil)
	result, err := service.Analyze(context.Background(), needRepo, assignmentRepo, 0)
	require.NoError(t, err)

	assert.True(t, result.Overall.LackHours.IsZero(), "lack %s", result.Overall.LackHours)
	assert.True(t, result.Overall.ExcessHours.Equal(decimal.NewFromInt(720)),
		"excess %s", result.Overall.ExcessHours)
	assert.NoError(t, service.Finalize(result))
}

func TestAnalyze_EmploymentApportioning(t *testing.T) {
	grid := srptesting.MustTimeGrid(30)
	period := juneWindow(30)

	const role = entities.Role("care")
	needRepo := memory.NewNeedRepository(grid)
	require.NoError(t, needRepo.LoadNeeds(map[entities.Role]*entities.NeedMatrix{
		role: srptesting.UniformNeedMatrix(role, decimal.NewFromInt(1), grid, period),
	}, period))

	// One full-timer and one part-timer in every slot against a need of one:
	// each slot carries one head of excess, split by supply share.
	assignmentRepo := memory.NewAssignmentRepository(grid)
	records := srptesting.UniformAssignments(role, "full_time", 1, grid, period)
	records = append(records, srptesting.UniformAssignments(role, "part_time", 1, grid, period)...)
	rejected, err := assignmentRepo.LoadAssignments(records)
	require.NoError(t, err)
	require.Zero(t, rejected)

	service := newTestService(t, nil)
	result, err := service.Analyze(context.Background(), needRepo, assignmentRepo, 0)
	require.NoError(t, err)

	require.Len(t, result.ByEmployment, 2)
	sumExcess := decimal.Zero
	for _, r := range result.ByEmployment {
		assert.True(t, r.ExcessHours.Equal(decimal.NewFromInt(360)),
			"%s excess %s", r.Group.Label(), r.ExcessHours)
		assert.True(t, r.SupplyHours.Equal(decimal.NewFromInt(720)),
			"%s supply %s", r.Group.Label(), r.SupplyHours)
		sumExcess = sumExcess.Add(r.ExcessHours)
	}
	assert.True(t, sumExcess.Equal(result.Overall.ExcessHours),
		"employment excess %s must sum exactly to overall %s", sumExcess, result.Overall.ExcessHours)
	assert.True(t, result.Reconciliation.Consistent)
}

func TestAnalyze_BreakdownsReconcileExactly(t *testing.T) {
	grid := srptesting.MustTimeGrid(30)
	period := juneWindow(30)

	needRepo := memory.NewNeedRepository(grid)
	require.NoError(t, needRepo.LoadNeeds(map[entities.Role]*entities.NeedMatrix{
		"care":  srptesting.UniformNeedMatrix("care", decimal.NewFromInt(3), grid, period),
		"nurse": srptesting.UniformNeedMatrix("nurse", decimal.NewFromInt(1), grid, period),
	}, period))

	assignmentRepo := memory.NewAssignmentRepository(grid)
	var records []*entities.AssignmentRecord
	records = append(records, srptesting.UniformAssignments("care", "full_time", 1, grid, period)...)
	records = append(records, srptesting.UniformAssignments("care", "part_time", 1, grid, period)...)
	records = append(records, srptesting.UniformAssignments("nurse", "full_time", 2, grid, period)...)
	rejected, err := assignmentRepo.LoadAssignments(records)
	require.NoError(t, err)
	require.Zero(t, rejected)

	service := newTestService(t, nil)
	result, err := service.Analyze(context.Background(), needRepo, assignmentRepo, 0)
	require.NoError(t, err)

	// Care lacks one head per slot; nursing has one spare. The two series
	// stay independent: no netting across roles.
	assert.True(t, result.Overall.LackHours.Equal(decimal.NewFromInt(720)), "lack %s", result.Overall.LackHours)
	assert.True(t, result.Overall.ExcessHours.Equal(decimal.NewFromInt(720)), "excess %s", result.Overall.ExcessHours)

	for _, breakdown := range [][]entities.ShortageResult{result.ByRole, result.ByEmployment} {
		sumLack, sumExcess := decimal.Zero, decimal.Zero
		for _, r := range breakdown {
			assert.False(t, r.LackHours.IsNegative())
			assert.False(t, r.ExcessHours.IsNegative())
			sumLack = sumLack.Add(r.LackHours)
			sumExcess = sumExcess.Add(r.ExcessHours)
		}
		assert.True(t, sumLack.Equal(result.Overall.LackHours),
			"lack sum %s vs overall %s", sumLack, result.Overall.LackHours)
		assert.True(t, sumExcess.Equal(result.Overall.ExcessHours),
			"excess sum %s vs overall %s", sumExcess, result.Overall.ExcessHours)
	}
	assert.True(t, result.Reconciliation.Consistent)
	assert.Empty(t, result.Reconciliation.Divergences)
}

func TestAnalyze_CoverageGapExcludedFromEffectiveDays(t *testing.T) {
	grid := srptesting.MustTimeGrid(30)
	period := juneWindow(30)

	const role = entities.Role("care")
	needRepo := memory.NewNeedRepository(grid)
	require.NoError(t, needRepo.LoadNeeds(map[entities.Role]*entities.NeedMatrix{
		role: srptesting.UniformNeedMatrix(role, decimal.NewFromInt(1), grid, period),
	}, period))

	// Drop the 03:00 slot on June 10th.
	gapDate := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	gapSlot := entities.TimeOfDay(180)
	var records []*entities.AssignmentRecord
	for _, r := range srptesting.UniformAssignments(role, "full_time", 1, grid, period) {
		if r.Date.Equal(gapDate) && r.Time == gapSlot {
			continue
		}
		records = append(records, r)
	}
	assignmentRepo := memory.NewAssignmentRepository(grid)
	rejected, err := assignmentRepo.LoadAssignments(records)
	require.NoError(t, err)
	require.Zero(t, rejected)

	service := newTestService(t, nil)
	result, err := service.Analyze(context.Background(), needRepo, assignmentRepo, 0)
	require.NoError(t, err)

	assert.Equal(t, 29, result.EffectiveDays)
	assert.True(t, result.Overall.LackHours.Equal(decimal.RequireFromString("0.5")),
		"lack %s", result.Overall.LackHours)

	found := false
	for _, issue := range result.Issues {
		if issue.Code == entities.IssueCoverageGap {
			found = true
			assert.Equal(t, "2025-06-10", issue.Date)
			assert.Equal(t, entities.SeverityWarning, issue.Severity)
		}
	}
	assert.True(t, found, "expected a coverage-gap warning for the incomplete day")
}

func TestAnalyze_NormalizesToCanonicalPeriod(t *testing.T) {
	grid := srptesting.MustTimeGrid(30)
	period := juneWindow(15)
	needRepo, assignmentRepo, err := srptesting.BuildCareFacilityScenario(grid, period, 1)
	require.NoError(t, err)

	service := newTestService(t, nil)
	result, err := service.Analyze(context.Background(), needRepo, assignmentRepo, 0)
	require.NoError(t, err)

	// 360 raw hours over 15 days scale to 720 over the canonical 30.
	assert.True(t, result.Overall.Normalized)
	assert.Equal(t, 15, result.Overall.PeriodDays)
	assert.True(t, result.Overall.NeedHours.Equal(decimal.NewFromInt(720)),
		"need %s", result.Overall.NeedHours)
	assert.True(t, result.Overall.SupplyHours.Equal(decimal.NewFromInt(720)),
		"supply %s", result.Overall.SupplyHours)
}

func TestAnalyze_RawHoursWhenNormalizationDisabled(t *testing.T) {
	grid := srptesting.MustTimeGrid(30)
	period := juneWindow(15)
	needRepo, assignmentRepo, err := srptesting.BuildCareFacilityScenario(grid, period, 1)
	require.NoError(t, err)

	service := newTestService(t, func(c *Config) { c.Normalize = false })
	result, err := service.Analyze(context.Background(), needRepo, assignmentRepo, 0)
	require.NoError(t, err)

	assert.False(t, result.Overall.Normalized)
	assert.True(t, result.Overall.NeedHours.Equal(decimal.NewFromInt(360)),
		"need %s", result.Overall.NeedHours)
}

func TestAnalyze_ShortWindowFlagsNormalizationConfidence(t *testing.T) {
	grid := srptesting.MustTimeGrid(30)
	period := juneWindow(3)
	needRepo, assignmentRepo, err := srptesting.BuildCareFacilityScenario(grid, period, 1)
	require.NoError(t, err)

	service := newTestService(t, nil)
	result, err := service.Analyze(context.Background(), needRepo, assignmentRepo, 0)
	require.NoError(t, err)

	found := false
	for _, issue := range result.Issues {
		if issue.Code == entities.IssueNormalization {
			found = true
			assert.Equal(t, entities.SeverityWarning, issue.Severity)
		}
	}
	assert.True(t, found, "expected a normalization-confidence warning for a 3-day window")
}

func TestAnalyze_CancelledContext(t *testing.T) {
	grid := srptesting.MustTimeGrid(30)
	period := juneWindow(30)
	needRepo, assignmentRepo, err := srptesting.BuildCareFacilityScenario(grid, period, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	service := newTestService(t, nil)
	_, err = service.Analyze(ctx, needRepo, assignmentRepo, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyze_PublishesRunEvents(t *testing.T) {
	grid := srptesting.MustTimeGrid(30)
	period := juneWindow(30)

	const role = entities.Role("care")
	needRepo := memory.NewNeedRepository(grid)
	require.NoError(t, needRepo.LoadNeeds(map[entities.Role]*entities.NeedMatrix{
		role: srptesting.UniformNeedMatrix(role, decimal.NewFromInt(2), grid, period),
	}, period))
	assignmentRepo := memory.NewAssignmentRepository(grid)
	rejected, err := assignmentRepo.LoadAssignments(srptesting.UniformAssignments(role, "full_time", 1, grid, period))
	require.NoError(t, err)
	require.Zero(t, rejected)

	store := events.NewInMemoryEventStore()
	service := newTestService(t, nil)
	service.AttachEventStore(store)

	result, err := service.Analyze(context.Background(), needRepo, assignmentRepo, 0)
	require.NoError(t, err)

	stream, err := store.ReadEvents(result.RunID.String(), 0)
	require.NoError(t, err)
	require.NotEmpty(t, stream)

	types := make(map[string]int)
	for _, event := range stream {
		types[event.Type()]++
	}
	assert.Equal(t, 1, types[events.AnalysisStartedEvent])
	assert.Equal(t, 1, types[events.AnalysisCompletedEvent])
	assert.Equal(t, 1, types[events.ShortageIdentifiedEvent], "the care shortage should be announced")
	assert.Equal(t, stream[0].Type(), events.AnalysisStartedEvent, "the run must open with the started event")
}

func TestAnalyze_RejectedRecordsAreReported(t *testing.T) {
	grid := srptesting.MustTimeGrid(30)
	period := juneWindow(30)
	needRepo, assignmentRepo, err := srptesting.BuildCareFacilityScenario(grid, period, 1)
	require.NoError(t, err)

	service := newTestService(t, nil)
	result, err := service.Analyze(context.Background(), needRepo, assignmentRepo, 3)
	require.NoError(t, err)

	assert.Equal(t, 3, result.RejectedRecords)
	found := false
	for _, issue := range result.Issues {
		if issue.Code == entities.IssueRejectedRecords {
			found = true
			assert.Equal(t, entities.SeverityWarning, issue.Severity)
		}
	}
	assert.True(t, found, "expected a rejected-records warning")
	assert.NoError(t, service.Finalize(result), "rejected records warn but never block")
}

func TestFinalize_BlocksCriticalIssues(t *testing.T) {
	grid := srptesting.MustTimeGrid(30)
	period := juneWindow(30)
	needRepo, assignmentRepo, err := srptesting.BuildCareFacilityScenario(grid, period, 1)
	require.NoError(t, err)

	service := newTestService(t, nil)
	result, err := service.Analyze(context.Background(), needRepo, assignmentRepo, 0)
	require.NoError(t, err)
	require.NoError(t, service.Finalize(result))

	result.Issues = append(result.Issues, entities.ValidationIssue{
		Severity: entities.SeverityCritical,
		Code:     entities.IssueImpossibleShortage,
		Message:  "injected",
	})
	err = service.Finalize(result)
	var implausible *entities.ImplausibleResultError
	assert.ErrorAs(t, err, &implausible)
}

func TestCompute_SingleBreakdown(t *testing.T) {
	grid := srptesting.MustTimeGrid(30)
	period := juneWindow(30)

	const role = entities.Role("care")
	needRepo := memory.NewNeedRepository(grid)
	require.NoError(t, needRepo.LoadNeeds(map[entities.Role]*entities.NeedMatrix{
		role: srptesting.UniformNeedMatrix(role, decimal.NewFromInt(2), grid, period),
	}, period))
	assignmentRepo := memory.NewAssignmentRepository(grid)
	rejected, err := assignmentRepo.LoadAssignments(srptesting.UniformAssignments(role, "full_time", 1, grid, period))
	require.NoError(t, err)
	require.Zero(t, rejected)

	service := newTestService(t, nil)
	results, err := service.Compute(context.Background(), needRepo, assignmentRepo, period, entities.ByRole)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, role, results[0].Group.Role)
	assert.True(t, results[0].LackHours.Equal(decimal.NewFromInt(720)),
		"lack %s", results[0].LackHours)
}
