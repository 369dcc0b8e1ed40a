package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/mkondo/srp/pkg/domain/entities"
)

// AnalysisResult contains the complete output of one shortage analysis run.
// Results are derived fresh on every run and never persisted as
// system-of-record; consumers get the numbers together with their
// reconciliation and validity state.
type AnalysisResult struct {
	RunID  uuid.UUID
	Period entities.PeriodWindow

	Overall      entities.ShortageResult
	ByRole       []entities.ShortageResult
	ByEmployment []entities.ShortageResult
	Daily        []entities.DailyShortage

	Reconciliation entities.ReconciliationReport
	Issues         []entities.ValidationIssue

	// EffectiveDays is the number of period days with complete slot
	// coverage; per-day averages divide by this, not by the raw window
	// length.
	EffectiveDays   int
	RejectedRecords int

	ComputedAt time.Time
	Elapsed    time.Duration
}

// Publishable reports whether the result is free of critical issues.
func (r *AnalysisResult) Publishable() bool {
	return !entities.HasCritical(r.Issues)
}
