package rebalancer

import "time"

// Clock supplies wall-clock time to the time gates.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the system time.
type SystemClock struct{}

// Now returns the current local time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// DailyWindow short window of the trading day in which daily dip buys run.
type DailyWindow struct {
	// Start offset from midnight, e.g. 15h50m.
	Start    time.Duration
	Length   time.Duration
	Location *time.Location
}

func (w DailyWindow) location() *time.Location {
	if w.Location == nil {
		return time.UTC
	}
	return w.Location
}

// Contains reports whether t falls inside the window on t's calendar day.
func (w DailyWindow) Contains(t time.Time) bool {
	local := t.In(w.location())
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	start := midnight.Add(w.Start)
	end := start.Add(w.Length)

	return !local.Before(start) && local.Before(end)
}

// SameDay reports whether a and b fall on the same calendar day in the
// window's location.
func (w DailyWindow) SameDay(a, b time.Time) bool {
	la, lb := a.In(w.location()), b.In(w.location())
	return la.Year() == lb.Year() && la.YearDay() == lb.YearDay()
}
