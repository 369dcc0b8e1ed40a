package services

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mkondo/srp/pkg/domain/entities"
)

// ConsistencyValidator is the final gate before results are handed to
// reporting. It checks day coverage, physical plausibility, and day-over-day
// stability of the shortage series.
type ConsistencyValidator struct {
	// PracticalDailyCeilingHours is the per-role daily lack above which a
	// result is flagged for human review. Not a physical bound.
	PracticalDailyCeilingHours decimal.Decimal
	// SwingFactor is the day-over-day relative change above which the
	// series is considered anomalous (3 = 300%).
	SwingFactor decimal.Decimal
}

// NewConsistencyValidator creates a validator with default thresholds.
func NewConsistencyValidator() *ConsistencyValidator {
	return &ConsistencyValidator{
		PracticalDailyCeilingHours: decimal.NewFromInt(8),
		SwingFactor:                decimal.NewFromInt(3),
	}
}

var hoursPerDay = decimal.NewFromInt(24)

// Validate inspects a computed run and returns every issue found. CRITICAL
// issues mean the result must not be published; WARNING issues travel with
// it. Coverage reports are keyed by date string, daily series and role
// headcounts come from the aggregation pass.
func (v *ConsistencyValidator) Validate(
	coverage map[string]entities.CoverageReport,
	daily []entities.DailyShortage,
	headcounts map[entities.Role]int,
) []entities.ValidationIssue {
	var issues []entities.ValidationIssue

	issues = append(issues, v.coverageIssues(coverage)...)
	issues = append(issues, v.plausibilityIssues(daily, headcounts)...)
	issues = append(issues, v.swingIssues(daily)...)

	return issues
}

// coverageIssues flags every day whose observed slots differ from the
// canonical full-day set. Incomplete days are excluded from per-day
// denominators upstream; the issue keeps that exclusion visible.
func (v *ConsistencyValidator) coverageIssues(coverage map[string]entities.CoverageReport) []entities.ValidationIssue {
	dates := make([]string, 0, len(coverage))
	for date := range coverage {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	var issues []entities.ValidationIssue
	for _, date := range dates {
		report := coverage[date]
		if report.Complete() {
			continue
		}
		issues = append(issues, entities.ValidationIssue{
			Severity: entities.SeverityWarning,
			Code:     entities.IssueCoverageGap,
			Date:     date,
			Message: fmt.Sprintf("day %s covers %d of %d expected slots (%d missing, %d unaligned); excluded from per-day averages",
				date, report.Observed, report.Expected, len(report.Missing), len(report.Extra)),
		})
	}
	return issues
}

// plausibilityIssues checks each day's lack against a physical bound of
// 24h times the role's headcount, which no real shortage can exceed, and
// against the practical review ceiling.
func (v *ConsistencyValidator) plausibilityIssues(daily []entities.DailyShortage, headcounts map[entities.Role]int) []entities.ValidationIssue {
	var issues []entities.ValidationIssue
	for _, day := range daily {
		physicalBound := hoursPerDay.Mul(decimal.NewFromInt(int64(headcounts[day.Role])))
		if day.LackHours.GreaterThan(physicalBound) {
			issues = append(issues, entities.ValidationIssue{
				Severity: entities.SeverityCritical,
				Code:     entities.IssueImpossibleShortage,
				Role:     day.Role,
				Date:     day.Date,
				Message: fmt.Sprintf("role %s on %s shows %s lack hours, above the physical bound of %s (24h x %d heads)",
					day.Role, day.Date, day.LackHours, physicalBound, headcounts[day.Role]),
			})
			continue
		}
		if day.LackHours.GreaterThan(v.PracticalDailyCeilingHours) {
			issues = append(issues, entities.ValidationIssue{
				Severity: entities.SeverityWarning,
				Code:     entities.IssueExcessiveShortage,
				Role:     day.Role,
				Date:     day.Date,
				Message: fmt.Sprintf("role %s on %s shows %s lack hours, above the practical ceiling of %s; review before acting",
					day.Role, day.Date, day.LackHours, v.PracticalDailyCeilingHours),
			})
		}
	}
	return issues
}

// swingIssues flags multi-hundred-percent day-over-day changes in a role's
// lack series, which historically indicated inconsistent inputs rather than
// genuine demand shifts.
func (v *ConsistencyValidator) swingIssues(daily []entities.DailyShortage) []entities.ValidationIssue {
	byRole := make(map[entities.Role][]entities.DailyShortage)
	for _, day := range daily {
		byRole[day.Role] = append(byRole[day.Role], day)
	}
	roles := make([]entities.Role, 0, len(byRole))
	for role := range byRole {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })

	var issues []entities.ValidationIssue
	for _, role := range roles {
		series := byRole[role]
		sort.Slice(series, func(i, j int) bool { return series[i].Date < series[j].Date })
		for i := 1; i < len(series); i++ {
			prev, cur := series[i-1].LackHours, series[i].LackHours
			if prev.IsZero() {
				continue
			}
			change := cur.Sub(prev).Abs().Div(prev)
			if change.GreaterThan(v.SwingFactor) {
				issues = append(issues, entities.ValidationIssue{
					Severity: entities.SeverityWarning,
					Code:     entities.IssueDayOverDaySwing,
					Role:     role,
					Date:     series[i].Date,
					Message: fmt.Sprintf("role %s lack hours moved from %s to %s between %s and %s (%s%% change)",
						role, prev, cur, series[i-1].Date, series[i].Date,
						change.Mul(decimal.NewFromInt(100)).Round(0)),
				})
			}
		}
	}
	return issues
}

// EnsurePublishable returns an *entities.ImplausibleResultError when the
// issue list contains anything CRITICAL. WARNING issues never block.
func EnsurePublishable(issues []entities.ValidationIssue) error {
	if entities.HasCritical(issues) {
		return &entities.ImplausibleResultError{Issues: issues}
	}
	return nil
}
