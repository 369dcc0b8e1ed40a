package entities

import "github.com/shopspring/decimal"

// Severity classifies a validation issue
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "Unknown"
	}
}

// IssueCode identifies the kind of validation issue
type IssueCode string

const (
	IssueCoverageGap        IssueCode = "coverage_gap"
	IssueRejectedRecords    IssueCode = "rejected_records"
	IssueImplausibleNeed    IssueCode = "implausible_need"
	IssueZeroNeedMatrix     IssueCode = "zero_need_matrix"
	IssueImpossibleShortage IssueCode = "impossible_shortage"
	IssueExcessiveShortage  IssueCode = "excessive_shortage"
	IssueDayOverDaySwing    IssueCode = "day_over_day_swing"
	IssueLowConfidenceGrid  IssueCode = "low_confidence_slot_detection"
	IssueNormalization      IssueCode = "normalization_confidence"
)

// ValidationIssue is one finding from the consistency gate. CRITICAL issues
// block publication of the result; WARNING issues travel with it for
// display so that consumers see the numbers together with their validity
// state.
type ValidationIssue struct {
	Severity Severity  `json:"severity"`
	Code     IssueCode `json:"code"`
	Message  string    `json:"message"`
	Role     Role      `json:"role,omitempty"`
	Date     string    `json:"date,omitempty"`
}

// HasCritical reports whether any issue in the list is CRITICAL.
func HasCritical(issues []ValidationIssue) bool {
	for _, issue := range issues {
		if issue.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// Divergence describes one breakdown sum that disagrees with the overall
// total.
type Divergence struct {
	Dimension string          `json:"dimension"`
	Series    string          `json:"series"`
	Sum       decimal.Decimal `json:"sum"`
	Overall   decimal.Decimal `json:"overall"`
	Relative  decimal.Decimal `json:"relative"`
}

// ReconciliationReport records whether the by-role and by-employment
// breakdowns sum to the overall total. When they do not, the report names
// the diverging dimension and by how much; the aggregator never forces one
// breakdown to match another, since that would hide the real bug.
type ReconciliationReport struct {
	Consistent  bool            `json:"consistent"`
	Tolerance   decimal.Decimal `json:"tolerance"`
	Divergences []Divergence    `json:"divergences,omitempty"`
}
