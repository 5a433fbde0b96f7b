package util

import (
	"sync"
	"time"
	_ "time/tzdata" // Eastern must resolve on hosts without a zoneinfo database.

	"panelsim/internal/domain"
)

// NextWeekday returns t if it falls on Monday through Friday, otherwise the
// following Monday. Holidays are not considered.
func NextWeekday(t time.Time) time.Time {
	switch t.Weekday() {
	case time.Saturday:
		return t.AddDate(0, 0, 2)
	case time.Sunday:
		return t.AddDate(0, 0, 1)
	}
	return t
}

// AddPeriod advances t by one rebalance period. Monthly and yearly steps use
// calendar arithmetic and clamp to the last day of the target month, so
// Jan 31 plus one month is Feb 28 (or 29).
func AddPeriod(t time.Time, freq domain.Frequency) time.Time {
	switch freq {
	case domain.FrequencyDaily:
		return t.AddDate(0, 0, 1)
	case domain.FrequencyWeekly:
		return t.AddDate(0, 0, 7)
	case domain.FrequencyMonthly:
		return AddMonths(t, 1)
	case domain.FrequencyYearly:
		return AddMonths(t, 12)
	}
	return t
}

// AddMonths adds n calendar months to t, clamping the day of month.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m, 1, 0, 0, 0, 0, t.Location()).AddDate(0, n, 0)
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	h, mi, s := t.Clock()
	return time.Date(first.Year(), first.Month(), d, h, mi, s, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

var (
	easternOnce sync.Once
	eastern     *time.Location
)

// Eastern returns the America/New_York location, falling back to a fixed
// UTC-5 zone when tzdata is unavailable.
func Eastern() *time.Location {
	easternOnce.Do(func() {
		loc, err := time.LoadLocation("America/New_York")
		if err != nil {
			loc = time.FixedZone("EST", -5*60*60)
		}
		eastern = loc
	})
	return eastern
}
