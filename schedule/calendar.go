package schedule

import (
	"sort"
	"time"
)

// =============================================================================
// WEEKDAY SET - Recurring weekday pattern (Monday = 0 ... Sunday = 6)
// =============================================================================

// Weekday is a weekday index with Monday = 0, matching how schedules
// are entered by admins. Note this differs from time.Weekday, which
// starts the week on Sunday; WeekdayOf converts.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

func (w Weekday) Valid() bool { return w >= Monday && w <= Sunday }

// WeekdayOf returns the Monday-based weekday of a date.
func WeekdayOf(date time.Time) Weekday {
	return Weekday((int(date.Weekday()) + 6) % 7)
}

// WeekdaySet is the set of weekdays a schedule recurs on.
// Registry validation guarantees persisted sets are non-empty and
// duplicate-free; an empty set simply matches no dates.
type WeekdaySet []Weekday

// NewWeekdaySet validates raw day numbers and returns a normalized
// (sorted) set. Fails with ErrInvalidDays on empty input, out-of-range
// values, or duplicates.
func NewWeekdaySet(days []int) (WeekdaySet, error) {
	if len(days) == 0 {
		return nil, &InvalidDaysError{Reason: "at least one day is required"}
	}
	seen := make(map[Weekday]bool, len(days))
	set := make(WeekdaySet, 0, len(days))
	for _, d := range days {
		w := Weekday(d)
		if !w.Valid() {
			return nil, &InvalidDaysError{Day: d, Reason: "day must be between 0 (Monday) and 6 (Sunday)"}
		}
		if seen[w] {
			return nil, &InvalidDaysError{Day: d, Reason: "duplicate day"}
		}
		seen[w] = true
		set = append(set, w)
	}
	sort.Slice(set, func(i, j int) bool { return set[i] < set[j] })
	return set, nil
}

// Contains reports set membership.
func (s WeekdaySet) Contains(w Weekday) bool {
	for _, d := range s {
		if d == w {
			return true
		}
	}
	return false
}

// Matches reports whether a concrete date falls on one of the set's
// weekdays.
func (s WeekdaySet) Matches(date time.Time) bool {
	return s.Contains(WeekdayOf(date))
}

// Ints returns the raw day numbers, for serialization.
func (s WeekdaySet) Ints() []int {
	out := make([]int, len(s))
	for i, d := range s {
		out[i] = int(d)
	}
	return out
}

// =============================================================================
// DATE EXPANSION - Schedule days onto concrete calendar dates
// =============================================================================

// DatesInRange returns every date in [from, to] whose weekday is in
// the set, ascending. Purely functional: an empty set yields an empty
// slice, an inverted range yields an empty slice.
func (s WeekdaySet) DatesInRange(from, to time.Time) []time.Time {
	from = Midnight(from)
	to = Midnight(to)

	var dates []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if s.Matches(d) {
			dates = append(dates, d)
		}
	}
	return dates
}

// HorizonEnd returns the last date of an N-week forward horizon
// starting at start. A 2-week horizon from Monday covers Monday
// through the Sunday thirteen days later.
func HorizonEnd(start time.Time, weeks int) time.Time {
	return Midnight(start).AddDate(0, 0, weeks*7-1)
}

// Midnight truncates a time to its calendar date in UTC.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether two times fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
