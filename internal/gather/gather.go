// Package gather fills the observation panel from external market-data
// sources.
package gather

import (
	"context"
	"fmt"
	"time"

	"panelsim/internal/domain"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run fetches the configured range and writes it to the panel store. It
	// returns when the range is done or ctx is cancelled.
	Run(ctx context.Context) error
}

// DateRange represents a time range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange parses an inclusive YYYY-MM-DD range. An empty end means
// today.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := domain.ParseDate(start)
	if err != nil {
		return DateRange{}, err
	}
	e := domain.Day(time.Now())
	if end != "" {
		if e, err = domain.ParseDate(end); err != nil {
			return DateRange{}, err
		}
	}
	if e.Before(s) {
		return DateRange{}, fmt.Errorf("range %s..%s: %w", start, end, domain.ErrInvalidDate)
	}
	return DateRange{Start: s, End: e}, nil
}
