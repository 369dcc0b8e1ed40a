package entities

import "fmt"

// NeedShapeError reports a need matrix whose dimensions do not match the
// canonical grid and period. Computation cannot proceed on misaligned
// input, so this aborts the run instead of being defaulted around.
type NeedShapeError struct {
	Role      Role
	WantSlots int
	GotSlots  int
	WantDays  int
	GotDays   int
}

func (e *NeedShapeError) Error() string {
	return fmt.Sprintf("need matrix for role %s has shape [%d x %d], want [%d x %d]",
		e.Role, e.GotSlots, e.GotDays, e.WantSlots, e.WantDays)
}

// ImplausibleResultError is returned by the publish gate when a result
// carries CRITICAL validation issues. The caller must refuse to present the
// shortage figures as trustworthy.
type ImplausibleResultError struct {
	Issues []ValidationIssue
}

func (e *ImplausibleResultError) Error() string {
	critical := 0
	for _, issue := range e.Issues {
		if issue.Severity == SeverityCritical {
			critical++
		}
	}
	return fmt.Sprintf("result blocked by %d critical validation issue(s)", critical)
}
