package shortage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mkondo/srp/pkg/application/dto"
	"github.com/mkondo/srp/pkg/domain/entities"
	"github.com/mkondo/srp/pkg/domain/repositories"
	"github.com/mkondo/srp/pkg/domain/services"
	"github.com/mkondo/srp/pkg/infrastructure/events"
)

// Config holds tunables for the shortage aggregation engine. Every
// threshold is an explicit parameter here; calculation code carries no
// literals.
type Config struct {
	// ReconcileTolerance is the relative tolerance for breakdown totals
	// against the overall total.
	ReconcileTolerance decimal.Decimal
	// ImplausibilityFactor scales the facility mean requirement into the
	// single-cell plausibility threshold.
	ImplausibilityFactor decimal.Decimal
	// Normalize rescales all outputs to the normalizer's canonical period
	// length. Need and supply sides always pass through together.
	Normalize bool
	// MaxParallelRoles bounds the per-role worker count (0 = unbounded).
	MaxParallelRoles int
	// PracticalDailyCeilingHours and SwingFactor override the consistency
	// validator defaults when positive.
	PracticalDailyCeilingHours decimal.Decimal
	SwingFactor                decimal.Decimal
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		ReconcileTolerance:   decimal.NewFromFloat(0.01),
		ImplausibilityFactor: decimal.NewFromInt(3),
		Normalize:            true,
		MaxParallelRoles:     4,
	}
}

// Service is the core join/diff/reconcile engine. It joins the need
// surface against the assignment ledger per (role, date, slot), derives
// independent lack and excess series, and reconciles every breakdown
// against the overall total.
type Service struct {
	grid       entities.TimeGrid
	normalizer services.PeriodNormalizer
	validator  *services.ConsistencyValidator
	config     Config
	logger     *zap.Logger
	store      events.EventStore
}

// NewService creates an engine with default configuration.
func NewService(grid entities.TimeGrid, normalizer services.PeriodNormalizer, logger *zap.Logger) *Service {
	return NewServiceWithConfig(grid, normalizer, DefaultConfig(), logger)
}

// NewServiceWithConfig creates an engine with custom configuration.
func NewServiceWithConfig(grid entities.TimeGrid, normalizer services.PeriodNormalizer, config Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	validator := services.NewConsistencyValidator()
	if config.PracticalDailyCeilingHours.IsPositive() {
		validator.PracticalDailyCeilingHours = config.PracticalDailyCeilingHours
	}
	if config.SwingFactor.IsPositive() {
		validator.SwingFactor = config.SwingFactor
	}
	return &Service{
		grid:       grid,
		normalizer: normalizer,
		validator:  validator,
		config:     config,
		logger:     logger,
	}
}

// AttachEventStore wires an event store; each run appends to a stream
// keyed by its run ID.
func (s *Service) AttachEventStore(store events.EventStore) {
	s.store = store
}

// groupTotals accumulates slot-denominated quantities for one group.
// Conversion to hours happens exactly once, at materialization.
type groupTotals struct {
	need   decimal.Decimal
	supply decimal.Decimal
	lack   decimal.Decimal
	excess decimal.Decimal
}

func (g *groupTotals) add(o *groupTotals) {
	g.need = g.need.Add(o.need)
	g.supply = g.supply.Add(o.supply)
	g.lack = g.lack.Add(o.lack)
	g.excess = g.excess.Add(o.excess)
}

// roleAggregate is one role's portion of the atom pass.
type roleAggregate struct {
	role         entities.Role
	totals       groupTotals
	byEmployment map[entities.EmploymentType]*groupTotals
	daily        map[string]*groupTotals
	headcount    int
}

// aggregation is the merged output of the atom pass.
type aggregation struct {
	overall    groupTotals
	roles      map[entities.Role]*groupTotals
	employment map[entities.EmploymentType]*groupTotals
	daily      map[entities.Role]map[string]*groupTotals
	headcounts map[entities.Role]int
	coverage   map[string]entities.CoverageReport
}

// Compute joins need against supply for one breakdown dimension and
// returns the per-group shortage results, normalized when configured.
func (s *Service) Compute(
	ctx context.Context,
	need repositories.NeedRepository,
	supply repositories.AssignmentRepository,
	period entities.PeriodWindow,
	breakdown entities.BreakdownKind,
) ([]entities.ShortageResult, error) {
	agg, err := s.aggregate(ctx, need, supply, period)
	if err != nil {
		return nil, err
	}
	return s.materializeBreakdown(agg, period, breakdown)
}

// Analyze runs the full pipeline: period inference, aggregation, all three
// breakdowns, reconciliation, and the consistency gate. The period is
// inferred from the dates actually present in the ledger, never assumed.
func (s *Service) Analyze(
	ctx context.Context,
	need repositories.NeedRepository,
	supply repositories.AssignmentRepository,
	rejectedRecords int,
) (*dto.AnalysisResult, error) {
	started := time.Now()
	runID := uuid.New()

	period, err := entities.PeriodFromDates(supply.Dates())
	if err != nil {
		return nil, fmt.Errorf("cannot infer analysis period: %w", err)
	}

	s.publish(runID, events.AnalysisStartedEvent, events.AnalysisStarted{
		Period:      period.String(),
		Roles:       len(need.Roles()),
		Records:     supply.RecordCount(),
		RejectedRec: rejectedRecords,
	})
	s.logger.Info("starting shortage analysis",
		zap.String("run_id", runID.String()),
		zap.String("period", period.String()),
		zap.Int("records", supply.RecordCount()),
		zap.Int("rejected", rejectedRecords))

	agg, err := s.aggregate(ctx, need, supply, period)
	if err != nil {
		return nil, err
	}

	overallResults, err := s.materializeBreakdown(agg, period, entities.Overall)
	if err != nil {
		return nil, err
	}
	byRole, err := s.materializeBreakdown(agg, period, entities.ByRole)
	if err != nil {
		return nil, err
	}
	byEmployment, err := s.materializeBreakdown(agg, period, entities.ByEmployment)
	if err != nil {
		return nil, err
	}
	overall := overallResults[0]

	reconciliation := s.Reconcile(overall, byRole, byEmployment)
	if !reconciliation.Consistent {
		s.publish(runID, events.ReconciliationMismatchEvent, events.ReconciliationMismatch{Report: reconciliation})
		s.logger.Warn("breakdown totals do not reconcile",
			zap.String("run_id", runID.String()),
			zap.Int("divergences", len(reconciliation.Divergences)))
	}

	daily := s.materializeDaily(agg)
	issues := s.collectIssues(need, agg, daily, period)
	if rejectedRecords > 0 {
		issues = append(issues, entities.ValidationIssue{
			Severity: entities.SeverityWarning,
			Code:     entities.IssueRejectedRecords,
			Message:  fmt.Sprintf("%d assignment records were rejected at ingestion and are absent from these figures", rejectedRecords),
		})
	}

	for _, result := range byRole {
		if result.LackHours.IsPositive() {
			s.publish(runID, events.ShortageIdentifiedEvent, events.ShortageIdentified{
				Group:     result.Group.Label(),
				LackHours: result.LackHours,
			})
		}
	}
	for _, issue := range issues {
		if issue.Severity >= entities.SeverityWarning {
			s.publish(runID, events.ValidationFlaggedEvent, events.ValidationFlagged{Issue: issue})
		}
	}

	effectiveDays := 0
	for _, report := range agg.coverage {
		if report.Complete() {
			effectiveDays++
		}
	}

	result := &dto.AnalysisResult{
		RunID:           runID,
		Period:          period,
		Overall:         overall,
		ByRole:          byRole,
		ByEmployment:    byEmployment,
		Daily:           daily,
		Reconciliation:  reconciliation,
		Issues:          issues,
		EffectiveDays:   effectiveDays,
		RejectedRecords: rejectedRecords,
		ComputedAt:      started,
		Elapsed:         time.Since(started),
	}

	s.publish(runID, events.AnalysisCompletedEvent, events.AnalysisCompleted{
		Period:      period.String(),
		LackHours:   overall.LackHours,
		ExcessHours: overall.ExcessHours,
		Issues:      len(issues),
	})
	s.logger.Info("shortage analysis complete",
		zap.String("run_id", runID.String()),
		zap.String("lack_hours", overall.LackHours.String()),
		zap.String("excess_hours", overall.ExcessHours.String()),
		zap.Int("issues", len(issues)),
		zap.Duration("elapsed", result.Elapsed))

	return result, nil
}

// Finalize gates a result for publication: any CRITICAL issue returns an
// *entities.ImplausibleResultError and the figures must not be presented
// as trustworthy.
func (s *Service) Finalize(result *dto.AnalysisResult) error {
	return services.EnsurePublishable(result.Issues)
}

// aggregate runs the per-(role, date, slot) atom pass. Lack and excess are
// clamped at the atom before any summation: a nurse excess never offsets a
// caregiver lack. Roles are independent and computed in parallel over the
// immutable repositories, with an aggregation barrier before the merge.
func (s *Service) aggregate(
	ctx context.Context,
	need repositories.NeedRepository,
	supply repositories.AssignmentRepository,
	period entities.PeriodWindow,
) (*aggregation, error) {
	roles := unionRoles(need.Roles(), supply.Roles())
	dates := period.Dates()
	slots := s.grid.CanonicalSlots()

	// Misaligned matrices produce plausible-looking but wrong numbers;
	// re-check every matrix against the period actually being analyzed.
	for _, role := range need.Roles() {
		matrix, _ := need.Matrix(role)
		if err := matrix.Validate(s.grid, period); err != nil {
			return nil, err
		}
	}

	results := make([]*roleAggregate, len(roles))
	g, ctx := errgroup.WithContext(ctx)
	if s.config.MaxParallelRoles > 0 {
		g.SetLimit(s.config.MaxParallelRoles)
	}
	for i, role := range roles {
		i, role := i, role
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = s.aggregateRole(role, need, supply, dates, slots)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("aggregation failed: %w", err)
	}

	agg := &aggregation{
		roles:      make(map[entities.Role]*groupTotals, len(roles)),
		employment: make(map[entities.EmploymentType]*groupTotals),
		daily:      make(map[entities.Role]map[string]*groupTotals, len(roles)),
		headcounts: make(map[entities.Role]int, len(roles)),
		coverage:   make(map[string]entities.CoverageReport, len(dates)),
	}
	for _, r := range results {
		totals := r.totals
		agg.roles[r.role] = &totals
		agg.overall.add(&r.totals)
		agg.daily[r.role] = r.daily
		agg.headcounts[r.role] = r.headcount
		for employment, t := range r.byEmployment {
			if agg.employment[employment] == nil {
				agg.employment[employment] = &groupTotals{}
			}
			agg.employment[employment].add(t)
		}
	}
	for _, date := range dates {
		agg.coverage[date.Format(entities.DateLayout)] = s.grid.ValidateDayCoverage(supply.ObservedTimes(date))
	}
	return agg, nil
}

// aggregateRole computes one role's totals across every (date, slot) atom.
func (s *Service) aggregateRole(
	role entities.Role,
	need repositories.NeedRepository,
	supply repositories.AssignmentRepository,
	dates []time.Time,
	slots []entities.TimeOfDay,
) *roleAggregate {
	agg := &roleAggregate{
		role:         role,
		byEmployment: make(map[entities.EmploymentType]*groupTotals),
		daily:        make(map[string]*groupTotals, len(dates)),
	}
	peakNeed := decimal.Zero

	for dayIndex, date := range dates {
		day := &groupTotals{}
		for slotIndex, slot := range slots {
			needHead := need.NeedAt(role, dayIndex, slotIndex)
			cell := supply.SupplyAt(role, date, slot)
			supplyHead := decimal.NewFromInt(cell.Total)

			day.need = day.need.Add(needHead)
			day.supply = day.supply.Add(supplyHead)

			diff := needHead.Sub(supplyHead)
			var lack, excess decimal.Decimal
			if diff.IsPositive() {
				lack = diff
				day.lack = day.lack.Add(lack)
			} else if diff.IsNegative() {
				excess = diff.Neg()
				day.excess = day.excess.Add(excess)
			}

			s.apportionCell(agg.byEmployment, cell, needHead, lack, excess)

			if needHead.GreaterThan(peakNeed) {
				peakNeed = needHead
			}
		}
		agg.daily[date.Format(entities.DateLayout)] = day
		agg.totals.add(day)
	}

	// Physical headcount for the plausibility bound: whichever is larger,
	// the staff actually seen or the peak concurrent requirement.
	agg.headcount = supply.DistinctStaff(role)
	if peak := int(peakNeed.Ceil().IntPart()); peak > agg.headcount {
		agg.headcount = peak
	}
	return agg
}

// apportionCell distributes one atom's need, lack, and excess across
// employment groups in proportion to their supply in that slot. The need
// surface has no employment axis, so supply share is the only defensible
// apportioning key; slots with no supply attribute their need and lack to
// the synthetic unassigned group. The last group takes the division
// remainder so the employment breakdown sums exactly to the overall total.
func (s *Service) apportionCell(
	dst map[entities.EmploymentType]*groupTotals,
	cell repositories.SupplyCell,
	need, lack, excess decimal.Decimal,
) {
	ensure := func(employment entities.EmploymentType) *groupTotals {
		t, ok := dst[employment]
		if !ok {
			t = &groupTotals{}
			dst[employment] = t
		}
		return t
	}

	if cell.Total == 0 {
		if need.IsZero() && lack.IsZero() {
			return
		}
		t := ensure(entities.EmploymentUnassigned)
		t.need = t.need.Add(need)
		t.lack = t.lack.Add(lack)
		return
	}

	employments := make([]entities.EmploymentType, 0, len(cell.ByEmployment))
	for employment := range cell.ByEmployment {
		employments = append(employments, employment)
	}
	sort.Slice(employments, func(i, j int) bool { return employments[i] < employments[j] })

	total := decimal.NewFromInt(cell.Total)
	remainingNeed, remainingLack, remainingExcess := need, lack, excess
	for i, employment := range employments {
		t := ensure(employment)
		count := decimal.NewFromInt(cell.ByEmployment[employment])
		t.supply = t.supply.Add(count)

		if i == len(employments)-1 {
			t.need = t.need.Add(remainingNeed)
			t.lack = t.lack.Add(remainingLack)
			t.excess = t.excess.Add(remainingExcess)
			continue
		}
		share := count.Div(total)
		needShare := need.Mul(share)
		lackShare := lack.Mul(share)
		excessShare := excess.Mul(share)
		t.need = t.need.Add(needShare)
		t.lack = t.lack.Add(lackShare)
		t.excess = t.excess.Add(excessShare)
		remainingNeed = remainingNeed.Sub(needShare)
		remainingLack = remainingLack.Sub(lackShare)
		remainingExcess = remainingExcess.Sub(excessShare)
	}
}

// materializeBreakdown converts slot-denominated group totals into hour
// results for one breakdown dimension, normalizing when configured.
func (s *Service) materializeBreakdown(
	agg *aggregation,
	period entities.PeriodWindow,
	breakdown entities.BreakdownKind,
) ([]entities.ShortageResult, error) {
	switch breakdown {
	case entities.Overall:
		result, err := s.materialize(entities.GroupKey{Kind: entities.Overall}, &agg.overall, period)
		if err != nil {
			return nil, err
		}
		return []entities.ShortageResult{result}, nil

	case entities.ByRole:
		roles := make([]entities.Role, 0, len(agg.roles))
		for role := range agg.roles {
			roles = append(roles, role)
		}
		sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
		results := make([]entities.ShortageResult, 0, len(roles))
		for _, role := range roles {
			result, err := s.materialize(entities.GroupKey{Kind: entities.ByRole, Role: role}, agg.roles[role], period)
			if err != nil {
				return nil, err
			}
			results = append(results, result)
		}
		return results, nil

	case entities.ByEmployment:
		employments := make([]entities.EmploymentType, 0, len(agg.employment))
		for employment := range agg.employment {
			employments = append(employments, employment)
		}
		sort.Slice(employments, func(i, j int) bool { return employments[i] < employments[j] })
		results := make([]entities.ShortageResult, 0, len(employments))
		for _, employment := range employments {
			result, err := s.materialize(entities.GroupKey{Kind: entities.ByEmployment, Employment: employment}, agg.employment[employment], period)
			if err != nil {
				return nil, err
			}
			results = append(results, result)
		}
		return results, nil

	default:
		return nil, fmt.Errorf("unknown breakdown kind %d", breakdown)
	}
}

// materialize converts one group's totals to hours (exactly once per
// quantity) and, when configured, normalizes every side identically
// before the result is constructed.
func (s *Service) materialize(group entities.GroupKey, totals *groupTotals, period entities.PeriodWindow) (entities.ShortageResult, error) {
	needHours := s.grid.HoursFromSlotCount(totals.need)
	supplyHours := s.grid.HoursFromSlotCount(totals.supply)
	lackHours := s.grid.HoursFromSlotCount(totals.lack)
	excessHours := s.grid.HoursFromSlotCount(totals.excess)
	days := period.Days()

	if !s.config.Normalize {
		return entities.NewShortageResult(group, needHours, supplyHours, lackHours, excessHours, days)
	}

	quantities := []decimal.Decimal{needHours, supplyHours, lackHours, excessHours}
	normalized := make([]entities.NormalizedHours, len(quantities))
	for i, quantity := range quantities {
		value, _, err := s.normalizer.Normalize(quantity, days)
		if err != nil {
			return entities.ShortageResult{}, fmt.Errorf("normalizing %s: %w", group.Label(), err)
		}
		normalized[i] = value
	}
	return entities.NewNormalizedShortageResult(group, normalized[0], normalized[1], normalized[2], normalized[3], days)
}

// materializeDaily flattens the per-role per-date totals into the daily
// series used for swing and plausibility checks. Daily values stay raw;
// normalization is a period-level rescaling, not a per-day one.
func (s *Service) materializeDaily(agg *aggregation) []entities.DailyShortage {
	var daily []entities.DailyShortage
	for role, byDate := range agg.daily {
		for date, totals := range byDate {
			daily = append(daily, entities.DailyShortage{
				Role:        role,
				Date:        date,
				NeedHours:   s.grid.HoursFromSlotCount(totals.need),
				SupplyHours: s.grid.HoursFromSlotCount(totals.supply),
				LackHours:   s.grid.HoursFromSlotCount(totals.lack),
				ExcessHours: s.grid.HoursFromSlotCount(totals.excess),
			})
		}
	}
	sort.Slice(daily, func(i, j int) bool {
		if daily[i].Role != daily[j].Role {
			return daily[i].Role < daily[j].Role
		}
		return daily[i].Date < daily[j].Date
	})
	return daily
}

// collectIssues gathers every validation finding for the run: need-side
// sanity bounds, the consistency gate, and normalization confidence.
func (s *Service) collectIssues(
	need repositories.NeedRepository,
	agg *aggregation,
	daily []entities.DailyShortage,
	period entities.PeriodWindow,
) []entities.ValidationIssue {
	var issues []entities.ValidationIssue
	for _, role := range need.Roles() {
		issues = append(issues, need.SanityBounds(role, s.config.ImplausibilityFactor)...)
	}
	issues = append(issues, s.validator.Validate(agg.coverage, daily, agg.headcounts)...)

	if s.config.Normalize {
		if _, warning, err := s.normalizer.Normalize(decimal.Zero, period.Days()); err == nil && warning != nil {
			issues = append(issues, entities.ValidationIssue{
				Severity: entities.SeverityWarning,
				Code:     entities.IssueNormalization,
				Message:  warning.String(),
			})
		}
	}
	return issues
}

// Reconcile verifies that the by-role and by-employment sums match the
// overall total within the configured relative tolerance, for lack and
// excess independently. A mismatch is reported, never auto-corrected.
func (s *Service) Reconcile(overall entities.ShortageResult, byRole, byEmployment []entities.ShortageResult) entities.ReconciliationReport {
	report := entities.ReconciliationReport{
		Consistent: true,
		Tolerance:  s.config.ReconcileTolerance,
	}

	sumLack := func(results []entities.ShortageResult) decimal.Decimal {
		sum := decimal.Zero
		for _, r := range results {
			sum = sum.Add(r.LackHours)
		}
		return sum
	}
	sumExcess := func(results []entities.ShortageResult) decimal.Decimal {
		sum := decimal.Zero
		for _, r := range results {
			sum = sum.Add(r.ExcessHours)
		}
		return sum
	}

	s.checkDivergence(&report, "by_role", "lack", sumLack(byRole), overall.LackHours)
	s.checkDivergence(&report, "by_role", "excess", sumExcess(byRole), overall.ExcessHours)
	s.checkDivergence(&report, "by_employment", "lack", sumLack(byEmployment), overall.LackHours)
	s.checkDivergence(&report, "by_employment", "excess", sumExcess(byEmployment), overall.ExcessHours)
	return report
}

func (s *Service) checkDivergence(report *entities.ReconciliationReport, dimension, series string, sum, overall decimal.Decimal) {
	delta := sum.Sub(overall).Abs()
	var relative decimal.Decimal
	switch {
	case overall.IsZero() && delta.IsZero():
		return
	case overall.IsZero():
		relative = decimal.NewFromInt(1)
	default:
		relative = delta.Div(overall.Abs())
	}
	if relative.LessThanOrEqual(s.config.ReconcileTolerance) {
		return
	}
	report.Consistent = false
	report.Divergences = append(report.Divergences, entities.Divergence{
		Dimension: dimension,
		Series:    series,
		Sum:       sum,
		Overall:   overall,
		Relative:  relative,
	})
}

func (s *Service) publish(runID uuid.UUID, eventType string, payload interface{}) {
	if s.store == nil {
		return
	}
	if err := s.store.AppendEvent(runID.String(), events.NewEvent(eventType, runID.String(), payload)); err != nil {
		s.logger.Warn("failed to append run event",
			zap.String("run_id", runID.String()),
			zap.String("event", eventType),
			zap.Error(err))
	}
}

func unionRoles(a, b []entities.Role) []entities.Role {
	seen := make(map[entities.Role]bool, len(a)+len(b))
	var roles []entities.Role
	for _, role := range append(append([]entities.Role{}, a...), b...) {
		if !seen[role] {
			seen[role] = true
			roles = append(roles, role)
		}
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}
