package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"panelsim/internal/domain"
	"panelsim/internal/panel"
)

// Compile-time interface check.
var _ PanelStore = (*ParquetStore)(nil)

// ParquetStore implements PanelStore using Parquet files on disk.
type ParquetStore struct {
	DataDir string
	log     *slog.Logger
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{
		DataDir: dataDir,
		log:     slog.Default().With("component", "parquet"),
	}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// ObservationRecord is the Parquet schema for one daily observation.
type ObservationRecord struct {
	Ticker           string  `parquet:"ticker"`
	Date             int64   `parquet:"date,timestamp(millisecond)"` // Unix ms, UTC midnight
	Open             float64 `parquet:"open"`
	High             float64 `parquet:"high"`
	Low              float64 `parquet:"low"`
	Close            float64 `parquet:"close"`
	Volume           float64 `parquet:"volume"`
	OutstandingShare float64 `parquet:"outstanding_share"`
	Turnover         float64 `parquet:"turnover"`
	PE               float64 `parquet:"pe"`
	PETTM            float64 `parquet:"pe_ttm"`
	PB               float64 `parquet:"pb"`
	PS               float64 `parquet:"ps"`
	PSTTM            float64 `parquet:"ps_ttm"`
	DVRatio          float64 `parquet:"dv_ratio"`
	DVTTM            float64 `parquet:"dv_ttm"`
	TotalMV          float64 `parquet:"total_mv"`
	QFQFactor        float64 `parquet:"qfq_factor"`
}

func toRecord(o domain.Observation) ObservationRecord {
	return ObservationRecord{
		Ticker:           o.Ticker,
		Date:             domain.Day(o.Date).UnixMilli(),
		Open:             o.Open,
		High:             o.High,
		Low:              o.Low,
		Close:            o.Close,
		Volume:           o.Volume,
		OutstandingShare: o.OutstandingShare,
		Turnover:         o.Turnover,
		PE:               o.PE,
		PETTM:            o.PETTM,
		PB:               o.PB,
		PS:               o.PS,
		PSTTM:            o.PSTTM,
		DVRatio:          o.DVRatio,
		DVTTM:            o.DVTTM,
		TotalMV:          o.TotalMV,
		QFQFactor:        o.QFQFactor,
	}
}

func (r ObservationRecord) observation() domain.Observation {
	return domain.Observation{
		Ticker:           r.Ticker,
		Date:             time.UnixMilli(r.Date).UTC(),
		Open:             r.Open,
		High:             r.High,
		Low:              r.Low,
		Close:            r.Close,
		Volume:           r.Volume,
		OutstandingShare: r.OutstandingShare,
		Turnover:         r.Turnover,
		PE:               r.PE,
		PETTM:            r.PETTM,
		PB:               r.PB,
		PS:               r.PS,
		PSTTM:            r.PSTTM,
		DVRatio:          r.DVRatio,
		DVTTM:            r.DVTTM,
		TotalMV:          r.TotalMV,
		QFQFactor:        r.QFQFactor,
	}
}

// ---------------------------------------------------------------------------
// PanelStore implementation
// ---------------------------------------------------------------------------

// WriteObservations writes observations to Parquet files organized by ticker
// and year. Each ticker+year combination produces a separate file at:
//
//	<DataDir>/panel/<TICKER>/<YYYY>.parquet
func (s *ParquetStore) WriteObservations(ctx context.Context, obs []domain.Observation) error {
	if len(obs) == 0 {
		return nil
	}

	type key struct {
		ticker string
		year   int
	}
	groups := make(map[key][]ObservationRecord)
	for _, o := range obs {
		if o.Ticker == "" {
			return fmt.Errorf("observation on %s has no ticker: %w", domain.FormatDate(o.Date), domain.ErrInvalidTicker)
		}
		k := key{ticker: o.Ticker, year: o.Date.Year()}
		groups[k] = append(groups[k], toRecord(o))
	}

	for k, records := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := s.observationPath(k.ticker, k.year)

		// Read existing records to merge. Only a missing file starts empty.
		existing, err := readParquetFile[ObservationRecord](path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("reading observations for %s/%d: %w", k.ticker, k.year, err)
		}
		merged := mergeObservationRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing observations for %s/%d: %w", k.ticker, k.year, err)
		}
	}
	return nil
}

// ReadObservations reads a ticker's observations within [start, end].
func (s *ParquetStore) ReadObservations(ctx context.Context, ticker string, start, end time.Time) ([]domain.Observation, error) {
	lo, hi := domain.Day(start).UnixMilli(), domain.Day(end).UnixMilli()

	var obs []domain.Observation
	for year := start.Year(); year <= end.Year(); year++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := s.observationPath(ticker, year)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		records, err := readParquetFile[ObservationRecord](path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		for _, r := range records {
			if r.Date >= lo && r.Date <= hi {
				obs = append(obs, r.observation())
			}
		}
	}
	return obs, nil
}

// ListTickers lists every ticker with a directory under <DataDir>/panel.
func (s *ParquetStore) ListTickers(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.panelDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var tickers []string
	for _, e := range entries {
		if e.IsDir() {
			tickers = append(tickers, e.Name())
		}
	}
	sort.Strings(tickers)
	return tickers, nil
}

// LoadPanel reads every registered ticker within [start, end]. Tickers with
// no observations in the range stay in the registry.
func (s *ParquetStore) LoadPanel(ctx context.Context, start, end time.Time) (*panel.Panel, error) {
	began := time.Now()
	tickers, err := s.ListTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tickers: %w", err)
	}

	var obs []domain.Observation
	for _, t := range tickers {
		rows, err := s.ReadObservations(ctx, t, start, end)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", t, err)
		}
		obs = append(obs, rows...)
	}

	p, err := panel.New(tickers, obs)
	if err != nil {
		return nil, err
	}
	s.log.Info("panel loaded",
		"dir", s.panelDir(),
		"summary", p.Summary().String(),
		"elapsed", time.Since(began).Round(time.Millisecond),
	)
	return p, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

func (s *ParquetStore) panelDir() string {
	return filepath.Join(s.DataDir, "panel")
}

// observationPath returns the filesystem path for an observation Parquet file.
// Layout: <dataDir>/panel/<TICKER>/<YYYY>.parquet. Tickers are kept as given
// since exchange prefixes are case-sensitive.
func (s *ParquetStore) observationPath(ticker string, year int) string {
	return filepath.Join(s.panelDir(), ticker, fmt.Sprintf("%d.parquet", year))
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeObservationRecords deduplicates records by (ticker, date), preferring
// new records over existing ones. Results are sorted by date.
func mergeObservationRecords(existing, incoming []ObservationRecord) []ObservationRecord {
	type key struct {
		ticker string
		date   int64
	}
	seen := make(map[key]ObservationRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Ticker, r.Date}] = r
	}
	for _, r := range incoming {
		seen[key{r.Ticker, r.Date}] = r
	}

	merged := make([]ObservationRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Date < merged[j].Date
	})
	return merged
}
