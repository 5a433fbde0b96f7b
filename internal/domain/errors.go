package domain

import "errors"

// Data lookup errors abort the current operation only.
var (
	ErrInvalidTicker        = errors.New("invalid ticker")
	ErrInvalidFeature       = errors.New("invalid feature")
	ErrInvalidDate          = errors.New("invalid date")
	ErrInvalidFrequency     = errors.New("invalid frequency")
	ErrDateNotInSchedule    = errors.New("date not in schedule")
	ErrDuplicateObservation = errors.New("duplicate observation")
)

// ErrEmptySchedule is fatal to a simulation run.
var ErrEmptySchedule = errors.New("empty schedule")

// ErrAllocationCapExceeded marks a recovered clipping event. It is attached
// to warnings and truncation records, never returned as a failure.
var ErrAllocationCapExceeded = errors.New("allocation cap exceeded")

// Step-level failures.
var (
	ErrInvalidPrice  = errors.New("invalid price")
	ErrInvalidWeight = errors.New("invalid weight")
)

// ErrDegenerateMetric reports a metric that is undefined for the run, such
// as a Sharpe ratio over a zero-variance return series.
var ErrDegenerateMetric = errors.New("degenerate metric")
