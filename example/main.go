package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mkondo/srp/pkg/application/services/shortage"
	"github.com/mkondo/srp/pkg/domain/entities"
	"github.com/mkondo/srp/pkg/domain/services"
	"github.com/mkondo/srp/pkg/infrastructure/repositories/memory"
)

func main() {
	ctx := context.Background()

	// A 30-minute grid over a 30-day month.
	grid, err := entities.NewTimeGrid(30)
	if err != nil {
		fmt.Printf("❌ Setup failed: %v\n", err)
		return
	}
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	period, err := entities.NewPeriodWindow(start, start.AddDate(0, 0, 29))
	if err != nil {
		fmt.Printf("❌ Setup failed: %v\n", err)
		return
	}

	// Set up a small facility: two heads of care needed around the clock,
	// but only one caregiver actually on shift.
	needRepo, assignmentRepo, err := setupFacility(grid, period)
	if err != nil {
		fmt.Printf("❌ Setup failed: %v\n", err)
		return
	}

	normalizer := services.NewPeriodNormalizer(30)
	engine := shortage.NewService(grid, normalizer, nil)

	fmt.Println("🏥 Running shortage analysis for June...")
	fmt.Printf("Period: %s (%d days)\n", period, period.Days())
	fmt.Println()

	result, err := engine.Analyze(ctx, needRepo, assignmentRepo, 0)
	if err != nil {
		fmt.Printf("❌ Analysis failed: %v\n", err)
		return
	}

	fmt.Println("📊 Shortage Results:")
	fmt.Printf("  Need:   %s h\n", result.Overall.NeedHours.Round(2))
	fmt.Printf("  Supply: %s h\n", result.Overall.SupplyHours.Round(2))
	fmt.Printf("  Lack:   %s h\n", result.Overall.LackHours.Round(2))
	fmt.Printf("  Excess: %s h\n", result.Overall.ExcessHours.Round(2))
	fmt.Println()

	fmt.Println("👥 By Role:")
	for _, r := range result.ByRole {
		fmt.Printf("  %s: lack %s h, excess %s h\n",
			r.Group.Label(), r.LackHours.Round(2), r.ExcessHours.Round(2))
	}
	fmt.Println()

	if result.Reconciliation.Consistent {
		fmt.Println("✅ Breakdown totals reconcile with the overall figures")
	} else {
		fmt.Printf("⚠️  %d reconciliation divergences\n", len(result.Reconciliation.Divergences))
	}

	if len(result.Issues) > 0 {
		fmt.Println("\n🔍 Validation Issues:")
		for _, issue := range result.Issues {
			fmt.Printf("  [%s] %s\n", issue.Severity, issue.Message)
		}
	}

	if err := engine.Finalize(result); err != nil {
		fmt.Printf("\n❌ Result is not publishable: %v\n", err)
	}
}

// setupFacility loads a need of two heads per slot and a supply of one
// full-time caregiver per slot, so the run shows a clean 50% shortage.
func setupFacility(grid entities.TimeGrid, period entities.PeriodWindow) (*memory.NeedRepository, *memory.AssignmentRepository, error) {
	const role = entities.Role("care")

	values := make([][]decimal.Decimal, grid.SlotsPerDay())
	for s := range values {
		values[s] = make([]decimal.Decimal, period.Days())
		for d := range values[s] {
			values[s][d] = decimal.NewFromInt(2)
		}
	}
	needRepo := memory.NewNeedRepository(grid)
	err := needRepo.LoadNeeds(map[entities.Role]*entities.NeedMatrix{
		role: {Role: role, Values: values},
	}, period)
	if err != nil {
		return nil, nil, err
	}

	var records []*entities.AssignmentRecord
	for _, date := range period.Dates() {
		for _, slot := range grid.CanonicalSlots() {
			records = append(records, &entities.AssignmentRecord{
				StaffID:    "care-01",
				Role:       role,
				Employment: "full_time",
				Date:       date,
				Time:       slot,
			})
		}
	}
	assignmentRepo := memory.NewAssignmentRepository(grid)
	if rejected, err := assignmentRepo.LoadAssignments(records); err != nil {
		return nil, nil, err
	} else if rejected > 0 {
		return nil, nil, fmt.Errorf("rejected %d records", rejected)
	}

	return needRepo, assignmentRepo, nil
}
