// Package timetable implements the in-memory scheduling core: interval
// arithmetic, multi-resource conflict detection, the authoritative session
// store and the weekly-uniqueness validator. The package performs no I/O;
// persistence and transport live in the service layer.
package timetable

import (
	"errors"
	"fmt"

	"github.com/ecoleplanner/timetable-api/internal/models"
)

// ErrInvalidInterval marks structurally invalid interval input: an unknown
// day or a non-positive duration.
var ErrInvalidInterval = errors.New("invalid interval")

// Interval is a half-open minute range [Start, End) on a single day.
type Interval struct {
	Day   models.Day
	Start int
	End   int
}

// NewInterval builds the interval covered by a session. Duration must be
// positive and the day must be a known weekday.
func NewInterval(day models.Day, startMinute, durationMinutes int) (Interval, error) {
	if !day.Valid() {
		return Interval{}, fmt.Errorf("%w: unknown day %q", ErrInvalidInterval, string(day))
	}
	if durationMinutes <= 0 {
		return Interval{}, fmt.Errorf("%w: duration must be positive, got %d", ErrInvalidInterval, durationMinutes)
	}
	if startMinute < 0 {
		return Interval{}, fmt.Errorf("%w: start minute must not be negative, got %d", ErrInvalidInterval, startMinute)
	}
	return Interval{Day: day, Start: startMinute, End: startMinute + durationMinutes}, nil
}

// Overlaps reports whether two intervals intersect. Intervals are half-open,
// so a session ending at 09:00 and one starting at 09:00 are adjacent, not
// overlapping.
func Overlaps(a, b Interval) bool {
	if a.Day != b.Day {
		return false
	}
	return a.Start < b.End && b.Start < a.End
}

// intervalOf derives a session's interval without validation; committed
// sessions were validated when they entered the store.
func intervalOf(s models.Session) Interval {
	return Interval{Day: s.Day, Start: s.StartMinute, End: s.EndMinute()}
}
