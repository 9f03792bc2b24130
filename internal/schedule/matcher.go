// Package schedule decides which schedules are active for a player at a
// given instant and which one owns the main layer.
package schedule

import (
	"time"

	"github.com/Nixie-Tech-LLC/marquee/internal/model"
)

// Matcher evaluates schedule windows against wall-clock time in Location.
//
// Predicates run in a fixed order: is_active, date bounds, day of week,
// time of day, recurrence. The first failing predicate ends evaluation.
type Matcher struct {
	Location *time.Location

	// EmptyDaysMatchAll treats an empty days_of_week set as every day.
	// When false an empty set never matches.
	EmptyDaysMatchAll bool
}

func NewMatcher(loc *time.Location, emptyDaysMatchAll bool) Matcher {
	if loc == nil {
		loc = time.UTC
	}
	return Matcher{Location: loc, EmptyDaysMatchAll: emptyDaysMatchAll}
}

// IsActive reports whether s is active at now. Misconfigured schedules are
// never active.
func (m Matcher) IsActive(s *model.Schedule, now time.Time) bool {
	ok, err := m.Check(s, now)
	return err == nil && ok
}

// Check is IsActive with the configuration error surfaced.
func (m Matcher) Check(s *model.Schedule, now time.Time) (bool, error) {
	if err := Validate(s); err != nil {
		return false, err
	}
	if !s.IsActive {
		return false, nil
	}

	local := now.In(m.location())
	today := civilDate(local)
	start := civilDate(s.StartDate)
	if today.Before(start) || today.After(civilDate(s.EndDate)) {
		return false, nil
	}

	if len(s.DaysOfWeek) == 0 {
		if !m.EmptyDaysMatchAll {
			return false, nil
		}
	} else if !s.DaysOfWeek.Contains(local.Weekday()) {
		return false, nil
	}

	if s.StartTime != nil && !InWindow(*s.StartTime, *s.EndTime, model.TimeOfDayOf(local)) {
		return false, nil
	}

	return recurs(s, start, today), nil
}

// InWindow reports whether t falls in [start, end]. When end is before
// start the window wraps past midnight.
func InWindow(start, end, t model.TimeOfDay) bool {
	if end >= start {
		return t >= start && t <= end
	}
	return t >= start || t <= end
}

// WithinDates reports whether the civil date of now (in loc) lies in
// [start, end].
func WithinDates(start, end, now time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	today := civilDate(now.In(loc))
	return !today.Before(civilDate(start)) && !today.After(civilDate(end))
}

func recurs(s *model.Schedule, start, today time.Time) bool {
	interval := s.RepeatInterval
	if interval <= 1 {
		return true
	}
	days := int(today.Sub(start).Hours() / 24)
	switch s.RepeatType {
	case model.RepeatWeekly:
		return (days/7)%interval == 0
	case model.RepeatMonthly:
		return monthsBetween(start, today)%interval == 0
	default:
		return days%interval == 0
	}
}

// monthsBetween counts whole calendar months from start to end.
func monthsBetween(start, end time.Time) int {
	months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
	if end.Day() < start.Day() {
		months--
	}
	return months
}

// civilDate keeps only the calendar date of t, as UTC midnight, so that
// subtraction yields whole days.
func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (m Matcher) location() *time.Location {
	if m.Location == nil {
		return time.UTC
	}
	return m.Location
}
