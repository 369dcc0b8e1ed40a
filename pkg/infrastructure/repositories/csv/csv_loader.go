package csv

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mkondo/srp/pkg/domain/entities"
)

// Loader handles loading analysis inputs from CSV files
type Loader struct{}

// NewLoader creates a new CSV loader
func NewLoader() *Loader {
	return &Loader{}
}

// LoadAssignments loads supply-side records from a CSV file. One row is
// one staff member's presence in one slot.
func (l *Loader) LoadAssignments(filename string) ([]*entities.AssignmentRecord, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open assignments file %s: %w", filename, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read assignments CSV: %w", err)
	}

	if len(records) < 2 {
		return nil, fmt.Errorf("assignments CSV must have header and at least one data row")
	}

	expectedHeader := []string{"staff_id", "role", "employment_type", "date", "time_of_day"}
	if !validateHeader(records[0], expectedHeader) {
		return nil, fmt.Errorf("assignments CSV header mismatch. Expected: %v, Got: %v", expectedHeader, records[0])
	}

	var assignments []*entities.AssignmentRecord
	for i, record := range records[1:] {
		if len(record) != len(expectedHeader) {
			return nil, fmt.Errorf("assignments CSV row %d: expected %d columns, got %d", i+2, len(expectedHeader), len(record))
		}

		assignment, err := parseAssignment(record)
		if err != nil {
			return nil, fmt.Errorf("assignments CSV row %d: %w", i+2, err)
		}

		assignments = append(assignments, assignment)
	}

	return assignments, nil
}

// LoadNeeds loads demand-side requirements from a long-format CSV file
// (one row per role/date/slot cell) and assembles role-keyed matrices on
// the canonical grid. Role identity is an explicit column; it is never
// derived from the filename.
func (l *Loader) LoadNeeds(filename string, grid entities.TimeGrid, period entities.PeriodWindow) (map[entities.Role]*entities.NeedMatrix, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open needs file %s: %w", filename, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read needs CSV: %w", err)
	}

	if len(records) < 2 {
		return nil, fmt.Errorf("needs CSV must have header and at least one data row")
	}

	expectedHeader := []string{"role", "date", "time_of_day", "need"}
	if !validateHeader(records[0], expectedHeader) {
		return nil, fmt.Errorf("needs CSV header mismatch. Expected: %v, Got: %v", expectedHeader, records[0])
	}

	matrices := make(map[entities.Role]*entities.NeedMatrix)
	for i, record := range records[1:] {
		if len(record) != len(expectedHeader) {
			return nil, fmt.Errorf("needs CSV row %d: expected %d columns, got %d", i+2, len(expectedHeader), len(record))
		}
		if err := l.applyNeedRow(matrices, record, grid, period); err != nil {
			return nil, fmt.Errorf("needs CSV row %d: %w", i+2, err)
		}
	}

	return matrices, nil
}

func (l *Loader) applyNeedRow(matrices map[entities.Role]*entities.NeedMatrix, record []string, grid entities.TimeGrid, period entities.PeriodWindow) error {
	role := entities.Role(strings.TrimSpace(record[0]))
	if role == "" {
		return fmt.Errorf("empty role")
	}

	date, err := time.Parse(entities.DateLayout, strings.TrimSpace(record[1]))
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", record[1], err)
	}
	dayIndex, ok := period.DayIndex(date)
	if !ok {
		return fmt.Errorf("date %s falls outside period %s", record[1], period)
	}

	timeOfDay, err := entities.ParseTimeOfDay(strings.TrimSpace(record[2]))
	if err != nil {
		return err
	}
	slot, ok := grid.SlotFor(timeOfDay)
	if !ok {
		return fmt.Errorf("time %s does not align to the %d-minute grid", timeOfDay, grid.SlotMinutes())
	}
	slotIndex := int(slot) / grid.SlotMinutes()

	need, err := decimal.NewFromString(strings.TrimSpace(record[3]))
	if err != nil {
		return fmt.Errorf("invalid need value %q: %w", record[3], err)
	}

	matrix, ok := matrices[role]
	if !ok {
		values := make([][]decimal.Decimal, grid.SlotsPerDay())
		for s := range values {
			values[s] = make([]decimal.Decimal, period.Days())
		}
		matrix = &entities.NeedMatrix{Role: role, Values: values}
		matrices[role] = matrix
	}
	matrix.Values[slotIndex][dayIndex] = need
	return nil
}

func parseAssignment(record []string) (*entities.AssignmentRecord, error) {
	staffID := entities.StaffID(strings.TrimSpace(record[0]))
	role := entities.Role(strings.TrimSpace(record[1]))
	employment := entities.EmploymentType(strings.TrimSpace(record[2]))

	date, err := time.Parse(entities.DateLayout, strings.TrimSpace(record[3]))
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", record[3], err)
	}

	timeOfDay, err := entities.ParseTimeOfDay(strings.TrimSpace(record[4]))
	if err != nil {
		return nil, err
	}

	return &entities.AssignmentRecord{
		StaffID:    staffID,
		Role:       role,
		Employment: employment,
		Date:       date,
		Time:       timeOfDay,
	}, nil
}

func validateHeader(header, expected []string) bool {
	if len(header) != len(expected) {
		return false
	}
	for i, column := range expected {
		if strings.TrimSpace(strings.ToLower(header[i])) != column {
			return false
		}
	}
	return true
}
