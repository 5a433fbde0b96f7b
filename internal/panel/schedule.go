package panel

import (
	"time"

	"panelsim/internal/domain"
	"panelsim/internal/util"
)

// BuildSchedule derives the rebalance dates for [start, end].
//
// A daily schedule is every date with data in the range. For weekly, monthly
// and yearly schedules the first date is moved off a weekend, then the anchor
// is repeatedly advanced by one period and scanned forward a day at a time
// until it lands on a date with data. The last anchor reached, the one at or
// past the final date with data, is a look-ahead boundary and is dropped.
//
// Every returned date is a date with data and the result is strictly
// increasing. An empty range yields an empty schedule and no error.
func BuildSchedule(p *Panel, freq domain.Frequency, start, end time.Time) ([]time.Time, error) {
	freq, err := domain.ParseFrequency(string(freq))
	if err != nil {
		return nil, err
	}

	available, err := p.DatesInRange(domain.AllTickers, start, end)
	if err != nil {
		return nil, err
	}
	if len(available) == 0 {
		return nil, nil
	}
	if freq == domain.FrequencyDaily {
		return available, nil
	}

	last := available[len(available)-1]
	present := make(map[dateKey]struct{}, len(available))
	for _, d := range available {
		present[keyOf(d)] = struct{}{}
	}
	settle := func(d time.Time) time.Time {
		for d.Before(last) {
			if _, ok := present[keyOf(d)]; ok {
				break
			}
			d = d.AddDate(0, 0, 1)
		}
		return d
	}

	anchor := settle(util.NextWeekday(available[0]))
	schedule := []time.Time{anchor}
	for anchor.Before(last) {
		anchor = settle(util.AddPeriod(anchor, freq))
		schedule = append(schedule, anchor)
	}

	return schedule[:len(schedule)-1], nil
}
