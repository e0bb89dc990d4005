package billing

import "time"

// dateOnly drops the clock part of t, keeping its location.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// addMonths moves t forward n months, clamping the day to the target month's
// last day (Jan 31 + 1 month = Feb 28/29).
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, t.Location())
}

// DurationMonths returns the number of months from start through end
// (inclusive), rounded up to a whole month. It is 0 when end precedes start.
func DurationMonths(start, end time.Time) int {
	start = dateOnly(start)
	stop := dateOnly(end).AddDate(0, 0, 1)
	if !stop.After(start) {
		return 0
	}

	months := (stop.Year()-start.Year())*12 + int(stop.Month()-start.Month())
	for months > 0 && addMonths(start, months).After(stop) {
		months--
	}
	if addMonths(start, months).Before(stop) {
		months++
	}
	return months
}
