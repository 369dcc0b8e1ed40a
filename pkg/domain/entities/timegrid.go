package entities

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// MinutesPerDay is the number of minutes in one calendar day.
const MinutesPerDay = 24 * 60

// TimeOfDay represents a time within a day as minutes since midnight, in [0, 1440).
type TimeOfDay int

// NewTimeOfDay creates a TimeOfDay from an hour and minute pair.
func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid time of day %02d:%02d", hour, minute)
	}
	return TimeOfDay(hour*60 + minute), nil
}

// ParseTimeOfDay parses a "HH:MM" string into a TimeOfDay.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return NewTimeOfDay(hour, minute)
}

// Valid reports whether the time falls within a single day.
func (t TimeOfDay) Valid() bool {
	return t >= 0 && t < MinutesPerDay
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// TimeGrid defines the canonical fixed-width slot structure for one day.
// It is the single authority for slot-count to hours conversion; every
// other component consumes already-converted hour values.
type TimeGrid struct {
	slotMinutes int
}

// NewTimeGrid creates a grid with the given slot width. The width must
// evenly divide a 24-hour day.
func NewTimeGrid(slotMinutes int) (TimeGrid, error) {
	if slotMinutes <= 0 || MinutesPerDay%slotMinutes != 0 {
		return TimeGrid{}, fmt.Errorf("slot width %d minutes does not evenly divide a day", slotMinutes)
	}
	return TimeGrid{slotMinutes: slotMinutes}, nil
}

// SlotMinutes returns the slot width in minutes.
func (g TimeGrid) SlotMinutes() int {
	return g.slotMinutes
}

// SlotsPerDay returns the number of canonical slots in a full day.
func (g TimeGrid) SlotsPerDay() int {
	return MinutesPerDay / g.slotMinutes
}

// SlotHours returns the duration of one slot in hours as an exact decimal
// (e.g. 0.5 for a 30-minute grid).
func (g TimeGrid) SlotHours() decimal.Decimal {
	return decimal.NewFromInt(int64(g.slotMinutes)).Div(decimal.NewFromInt(60))
}

// HoursFromSlotCount converts a slot-denominated quantity into hours.
// This is the only place the slot-hours factor is multiplied in; callers
// must apply it exactly once per quantity.
func (g TimeGrid) HoursFromSlotCount(count decimal.Decimal) decimal.Decimal {
	return count.Mul(g.SlotHours())
}

// CanonicalSlots returns the ordered full-day set of slot start times.
func (g TimeGrid) CanonicalSlots() []TimeOfDay {
	slots := make([]TimeOfDay, 0, g.SlotsPerDay())
	for m := 0; m < MinutesPerDay; m += g.slotMinutes {
		slots = append(slots, TimeOfDay(m))
	}
	return slots
}

// SlotFor returns the canonical slot a time belongs to. Times that do not
// land exactly on a slot boundary are rejected: an unaligned time means the
// record was produced on a different grid and must not be silently merged.
func (g TimeGrid) SlotFor(t TimeOfDay) (TimeOfDay, bool) {
	if !t.Valid() || int(t)%g.slotMinutes != 0 {
		return 0, false
	}
	return t, true
}

// CoverageReport describes how an observed set of slot times for one day
// compares against the canonical full-day set.
type CoverageReport struct {
	Expected int
	Observed int
	Missing  []TimeOfDay
	Extra    []TimeOfDay
}

// Complete reports whether the day covers every canonical slot exactly.
func (r CoverageReport) Complete() bool {
	return len(r.Missing) == 0 && len(r.Extra) == 0
}

// ValidateDayCoverage compares observed slot times against the canonical
// set. A day with fewer slots than canonical is incomplete and must not be
// averaged as if it were full; the report lists every discrepancy.
func (g TimeGrid) ValidateDayCoverage(observed map[TimeOfDay]bool) CoverageReport {
	report := CoverageReport{
		Expected: g.SlotsPerDay(),
		Observed: len(observed),
	}
	for _, slot := range g.CanonicalSlots() {
		if !observed[slot] {
			report.Missing = append(report.Missing, slot)
		}
	}
	for t := range observed {
		if _, ok := g.SlotFor(t); !ok {
			report.Extra = append(report.Extra, t)
		}
	}
	sort.Slice(report.Extra, func(i, j int) bool { return report.Extra[i] < report.Extra[j] })
	return report
}

// knownSlotWidths are the slot widths the detector considers, in minutes.
var knownSlotWidths = []int{15, 30, 60}

// SlotDetection is the result of best-effort slot width detection.
type SlotDetection struct {
	SlotMinutes int
	// Confidence is the fraction of observed times aligned to the detected
	// width. Callers must not proceed to a full calculation on a
	// low-confidence detection.
	Confidence float64
}

// DetectSlotMinutes guesses the slot width of a dataset by scoring each
// known width on the fraction of observed times aligned to it. Ties are
// broken toward the widest grid, since times on a 30-minute grid are also
// aligned to the 15-minute one.
func DetectSlotMinutes(observed []TimeOfDay) SlotDetection {
	if len(observed) == 0 {
		return SlotDetection{}
	}
	best := SlotDetection{}
	for _, width := range knownSlotWidths {
		aligned := 0
		for _, t := range observed {
			if t.Valid() && int(t)%width == 0 {
				aligned++
			}
		}
		confidence := float64(aligned) / float64(len(observed))
		if confidence > best.Confidence || (confidence == best.Confidence && width > best.SlotMinutes) {
			best = SlotDetection{SlotMinutes: width, Confidence: confidence}
		}
	}
	return best
}
