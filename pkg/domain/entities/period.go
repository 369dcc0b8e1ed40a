package entities

import (
	"fmt"
	"time"
)

// DateLayout is the canonical date format used throughout the pipeline.
const DateLayout = "2006-01-02"

// PeriodWindow is the inclusive [start, end] date span covered by one
// analysis run. All per-day rates divide by the actual Days() observed in
// the data, never by a hard-coded constant.
type PeriodWindow struct {
	start time.Time
	end   time.Time
}

// NewPeriodWindow creates a window spanning start through end, inclusive.
func NewPeriodWindow(start, end time.Time) (PeriodWindow, error) {
	start, end = DateOnly(start), DateOnly(end)
	if start.IsZero() || end.IsZero() {
		return PeriodWindow{}, fmt.Errorf("period window requires both start and end dates")
	}
	if end.Before(start) {
		return PeriodWindow{}, fmt.Errorf("period window end %s before start %s",
			end.Format(DateLayout), start.Format(DateLayout))
	}
	return PeriodWindow{start: start, end: end}, nil
}

// PeriodFromDates infers the window from the dates actually present in the
// data, so period length is never assumed.
func PeriodFromDates(dates []time.Time) (PeriodWindow, error) {
	if len(dates) == 0 {
		return PeriodWindow{}, fmt.Errorf("cannot infer period window from zero dates")
	}
	min, max := DateOnly(dates[0]), DateOnly(dates[0])
	for _, d := range dates[1:] {
		d = DateOnly(d)
		if d.Before(min) {
			min = d
		}
		if d.After(max) {
			max = d
		}
	}
	return NewPeriodWindow(min, max)
}

// Start returns the first date of the window.
func (p PeriodWindow) Start() time.Time { return p.start }

// End returns the last date of the window.
func (p PeriodWindow) End() time.Time { return p.end }

// Days returns the actual number of days in the window, inclusive of both
// endpoints.
func (p PeriodWindow) Days() int {
	return int(p.end.Sub(p.start).Hours()/24) + 1
}

// Contains reports whether the given date falls within the window.
func (p PeriodWindow) Contains(d time.Time) bool {
	d = DateOnly(d)
	return !d.Before(p.start) && !d.After(p.end)
}

// DayIndex returns the zero-based column index of a date within the window.
func (p PeriodWindow) DayIndex(d time.Time) (int, bool) {
	if !p.Contains(d) {
		return 0, false
	}
	return int(DateOnly(d).Sub(p.start).Hours() / 24), true
}

// Dates returns every date in the window, in order.
func (p PeriodWindow) Dates() []time.Time {
	dates := make([]time.Time, 0, p.Days())
	for d := p.start; !d.After(p.end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

func (p PeriodWindow) String() string {
	return fmt.Sprintf("%s..%s (%d days)", p.start.Format(DateLayout), p.end.Format(DateLayout), p.Days())
}

// DateOnly truncates a timestamp to its calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
