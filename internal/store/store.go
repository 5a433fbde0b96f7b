// Package store defines storage interfaces for the observation panel and for
// simulation run history, with Parquet and SQLite implementations.
package store

import (
	"context"
	"errors"
	"time"

	"panelsim/internal/domain"
	"panelsim/internal/panel"
)

// ErrRunNotFound is returned by HistoryStore.GetRun for an unknown key.
var ErrRunNotFound = errors.New("run not found")

// PanelStore persists daily observations and loads them back as a Panel.
type PanelStore interface {
	// WriteObservations persists a batch of observations, replacing any
	// existing observation for the same (ticker, date).
	WriteObservations(ctx context.Context, obs []domain.Observation) error

	// ReadObservations returns the observations for ticker within
	// [start, end], ordered by date.
	ReadObservations(ctx context.Context, ticker string, start, end time.Time) ([]domain.Observation, error)

	// ListTickers returns the ticker registry.
	ListTickers(ctx context.Context) ([]string, error)

	// LoadPanel builds a Panel of every registered ticker within
	// [start, end].
	LoadPanel(ctx context.Context, start, end time.Time) (*panel.Panel, error)
}

// RunRecord is one entry of run history.
type RunRecord struct {
	// Key is signature_frequency_start_end; saving a record only replaces
	// the entry with the same key.
	Key          string
	RunID        string
	Strategy     string
	Signature    string
	Frequency    string
	Start        time.Time
	End          time.Time
	InitialValue float64
	MaxLong      float64
	MaxShort     float64
	RiskFreeRate float64

	ValueHistory []float64
	TradedDates  []time.Time

	// Sharpe and ReturnToDrawdown are nil when undefined for the run.
	Sharpe           *float64
	ReturnToDrawdown *float64
	CapBreaches      int
	CreatedAt        time.Time
}

// HistoryStore persists run history keyed by RunRecord.Key.
type HistoryStore interface {
	// SaveRun inserts rec or replaces the record with the same key.
	SaveRun(ctx context.Context, rec *RunRecord) error

	// GetRun returns the record for key, or ErrRunNotFound.
	GetRun(ctx context.Context, key string) (*RunRecord, error)

	// ListRuns returns all records, most recently saved first.
	ListRuns(ctx context.Context) ([]RunRecord, error)

	// DeleteRun removes the record for key. Deleting a missing key is not
	// an error.
	DeleteRun(ctx context.Context, key string) error
}
