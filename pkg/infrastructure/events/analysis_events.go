package events

import (
	"github.com/shopspring/decimal"

	"github.com/mkondo/srp/pkg/domain/entities"
)

const (
	AnalysisStartedEvent   = "analysis.started"
	AnalysisCompletedEvent = "analysis.completed"

	ShortageIdentifiedEvent = "shortage.identified"

	ReconciliationMismatchEvent = "reconciliation.mismatch"
	ValidationFlaggedEvent      = "validation.flagged"
)

type AnalysisStarted struct {
	Period      string `json:"period"`
	Roles       int    `json:"roles"`
	Records     int    `json:"records"`
	RejectedRec int    `json:"rejected_records"`
}

type AnalysisCompleted struct {
	Period      string          `json:"period"`
	LackHours   decimal.Decimal `json:"lack_hours"`
	ExcessHours decimal.Decimal `json:"excess_hours"`
	Issues      int             `json:"issues"`
}

type ShortageIdentified struct {
	Group     string          `json:"group"`
	LackHours decimal.Decimal `json:"lack_hours"`
}

type ReconciliationMismatch struct {
	Report entities.ReconciliationReport `json:"report"`
}

type ValidationFlagged struct {
	Issue entities.ValidationIssue `json:"issue"`
}
