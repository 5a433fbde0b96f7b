package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"panelsim/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ HistoryStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	key                TEXT PRIMARY KEY,  -- signature_frequency_start_end
	run_id             TEXT NOT NULL,
	strategy           TEXT NOT NULL,
	signature          TEXT NOT NULL,
	frequency          TEXT NOT NULL,
	start_date         TEXT NOT NULL,     -- YYYY-MM-DD
	end_date           TEXT NOT NULL,
	initial_value      REAL NOT NULL,
	max_long           REAL NOT NULL,
	max_short          REAL NOT NULL,
	risk_free_rate     REAL NOT NULL,
	value_history      TEXT NOT NULL,     -- JSON array of numbers
	traded_dates       TEXT NOT NULL,     -- JSON array of YYYY-MM-DD
	sharpe             REAL,              -- NULL when undefined
	return_to_drawdown REAL,
	cap_breaches       INTEGER NOT NULL,
	created_at         TEXT NOT NULL      -- fixed-width RFC3339 UTC, sorts as text
);

CREATE INDEX IF NOT EXISTS idx_runs_signature ON runs(signature, frequency);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

// createdLayout is RFC3339 with a fixed nanosecond width so that stored
// timestamps order correctly as text.
const createdLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements HistoryStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// schema if needed and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection serializes writers from concurrent sweep runs.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000; PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun upserts rec under rec.Key. Records with other keys are untouched.
func (s *SQLiteStore) SaveRun(ctx context.Context, rec *RunRecord) error {
	if rec.Key == "" {
		return errors.New("run record has no key")
	}
	history, err := json.Marshal(rec.ValueHistory)
	if err != nil {
		return fmt.Errorf("encoding value history: %w", err)
	}
	dates := make([]string, len(rec.TradedDates))
	for i, d := range rec.TradedDates {
		dates[i] = domain.FormatDate(d)
	}
	traded, err := json.Marshal(dates)
	if err != nil {
		return fmt.Errorf("encoding traded dates: %w", err)
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (
			key, run_id, strategy, signature, frequency, start_date, end_date,
			initial_value, max_long, max_short, risk_free_rate,
			value_history, traded_dates, sharpe, return_to_drawdown,
			cap_breaches, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			run_id = excluded.run_id,
			strategy = excluded.strategy,
			signature = excluded.signature,
			frequency = excluded.frequency,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			initial_value = excluded.initial_value,
			max_long = excluded.max_long,
			max_short = excluded.max_short,
			risk_free_rate = excluded.risk_free_rate,
			value_history = excluded.value_history,
			traded_dates = excluded.traded_dates,
			sharpe = excluded.sharpe,
			return_to_drawdown = excluded.return_to_drawdown,
			cap_breaches = excluded.cap_breaches,
			created_at = excluded.created_at`,
		rec.Key, rec.RunID, rec.Strategy, rec.Signature, rec.Frequency,
		domain.FormatDate(rec.Start), domain.FormatDate(rec.End),
		rec.InitialValue, rec.MaxLong, rec.MaxShort, rec.RiskFreeRate,
		string(history), string(traded), nullable(rec.Sharpe), nullable(rec.ReturnToDrawdown),
		rec.CapBreaches, created.UTC().Format(createdLayout),
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", rec.Key, err)
	}
	return nil
}

const selectRun = `
	SELECT key, run_id, strategy, signature, frequency, start_date, end_date,
	       initial_value, max_long, max_short, risk_free_rate,
	       value_history, traded_dates, sharpe, return_to_drawdown,
	       cap_breaches, created_at
	FROM runs`

// GetRun returns the record stored under key.
func (s *SQLiteStore) GetRun(ctx context.Context, key string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, selectRun+` WHERE key = ?`, key)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%q: %w", key, ErrRunNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListRuns returns all records, most recently saved first.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectRun+` ORDER BY created_at DESC, key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// DeleteRun removes the record stored under key.
func (s *SQLiteStore) DeleteRun(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE key = ?`, key)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*RunRecord, error) {
	var (
		rec             RunRecord
		start, end      string
		history, traded string
		sharpe, rtd     sql.NullFloat64
		created         string
	)
	err := sc.Scan(
		&rec.Key, &rec.RunID, &rec.Strategy, &rec.Signature, &rec.Frequency, &start, &end,
		&rec.InitialValue, &rec.MaxLong, &rec.MaxShort, &rec.RiskFreeRate,
		&history, &traded, &sharpe, &rtd,
		&rec.CapBreaches, &created,
	)
	if err != nil {
		return nil, err
	}

	if rec.Start, err = domain.ParseDate(start); err != nil {
		return nil, err
	}
	if rec.End, err = domain.ParseDate(end); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(history), &rec.ValueHistory); err != nil {
		return nil, fmt.Errorf("decoding value history of %s: %w", rec.Key, err)
	}
	var dates []string
	if err := json.Unmarshal([]byte(traded), &dates); err != nil {
		return nil, fmt.Errorf("decoding traded dates of %s: %w", rec.Key, err)
	}
	for _, d := range dates {
		t, err := domain.ParseDate(d)
		if err != nil {
			return nil, err
		}
		rec.TradedDates = append(rec.TradedDates, t)
	}
	if sharpe.Valid {
		rec.Sharpe = &sharpe.Float64
	}
	if rtd.Valid {
		rec.ReturnToDrawdown = &rtd.Float64
	}
	if rec.CreatedAt, err = time.Parse(createdLayout, created); err != nil {
		return nil, fmt.Errorf("parsing created_at of %s: %w", rec.Key, err)
	}
	return &rec, nil
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
