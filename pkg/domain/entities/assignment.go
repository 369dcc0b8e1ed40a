package entities

import (
	"fmt"
	"time"
)

// StaffID represents a unique staff member identifier
type StaffID string

// Role represents a care role (e.g. nurse, caregiver)
type Role string

// EmploymentType represents an employment category (e.g. full_time, part_time)
type EmploymentType string

// EmploymentUnassigned is the synthetic employment group that absorbs need
// in slots with no supply when breaking shortage down by employment.
const EmploymentUnassigned EmploymentType = "unassigned"

// AssignmentRecord is one staff member's presence in a single slot on a
// single date. Multiple staff in the same slot yield multiple records; all
// supply aggregation is derived by counting these records. Records are
// immutable once ingested.
type AssignmentRecord struct {
	StaffID    StaffID
	Role       Role
	Employment EmploymentType
	Date       time.Time
	Time       TimeOfDay
}

// Validate checks the record against the canonical grid. A time that does
// not land on a slot boundary belongs to a different grid and is rejected.
func (r *AssignmentRecord) Validate(grid TimeGrid) error {
	if r.StaffID == "" {
		return fmt.Errorf("assignment record missing staff id")
	}
	if r.Role == "" {
		return fmt.Errorf("assignment record for %s missing role", r.StaffID)
	}
	if r.Employment == "" {
		return fmt.Errorf("assignment record for %s missing employment type", r.StaffID)
	}
	if r.Date.IsZero() {
		return fmt.Errorf("assignment record for %s missing date", r.StaffID)
	}
	if _, ok := grid.SlotFor(r.Time); !ok {
		return fmt.Errorf("assignment record for %s at %s does not align to the %d-minute grid",
			r.StaffID, r.Time, grid.SlotMinutes())
	}
	return nil
}
