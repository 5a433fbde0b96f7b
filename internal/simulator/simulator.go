// Package simulator replays a panel over a rebalance schedule, asking a
// strategy for a target allocation at every step and marking a portfolio to
// market between consecutive schedule dates.
//
// A run is a small state machine:
//
//	Uninitialized -> WarmingUp -> Stepping -> Finished
//
// Warm-up skips the first RequiredNumberDates schedule indices. Each stepping
// index i trades over (schedule[i-1], schedule[i]]; the last schedule date is
// never traded. Steps are strictly sequential and each one either commits in
// full or leaves the portfolio untouched.
package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"panelsim/internal/domain"
	"panelsim/internal/panel"
	"panelsim/internal/portfolio"
	"panelsim/internal/strategy"
)

// State is the lifecycle stage of a Simulator.
type State int

const (
	Uninitialized State = iota
	WarmingUp
	Stepping
	Finished
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case WarmingUp:
		return "warming_up"
	case Stepping:
		return "stepping"
	case Finished:
		return "finished"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Config holds the immutable parameters of one simulation run.
type Config struct {
	Frequency    domain.Frequency
	Start        time.Time
	End          time.Time
	Portfolio    portfolio.Config
	RiskFreeRate float64
}

// Validate checks the frequency, date range and portfolio parameters.
func (c Config) Validate() error {
	if _, err := domain.ParseFrequency(string(c.Frequency)); err != nil {
		return err
	}
	if c.End.Before(c.Start) {
		return fmt.Errorf("end %s before start %s: %w",
			domain.FormatDate(c.End), domain.FormatDate(c.Start), domain.ErrInvalidDate)
	}
	if math.IsNaN(c.RiskFreeRate) || math.IsInf(c.RiskFreeRate, 0) {
		return fmt.Errorf("risk-free rate %v is not finite", c.RiskFreeRate)
	}
	return c.Portfolio.Validate()
}

// Observer receives per-step events. Implementations must be safe for
// concurrent use when shared between runs of a sweep.
type Observer interface {
	WarmupStep(strategy string)
	Rebalanced(strategy string, r portfolio.Rebalance)
	Marked(strategy string, value float64)
}

// StepReport describes one committed trading step.
type StepReport struct {
	Index     int
	Date      time.Time
	Universe  int
	Rebalance portfolio.Rebalance
	Value     float64
}

// Simulator runs one strategy over one panel. It is not safe for concurrent
// use; run several Simulators to parallelize across strategies.
type Simulator struct {
	id       uuid.UUID
	panel    *panel.Panel
	strategy strategy.Strategy
	cfg      Config

	schedule []time.Time
	lookback int
	warmup   int
	cursor   int
	state    State

	port   *portfolio.Portfolio
	traded []time.Time

	log *slog.Logger
	obs Observer
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithLogger sets the logger for the run and its portfolio.
func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.log = l
		}
	}
}

// WithObserver registers an Observer for step events.
func WithObserver(o Observer) Option {
	return func(s *Simulator) { s.obs = o }
}

// New builds the rebalance schedule and an empty portfolio. It fails with
// ErrEmptySchedule when the panel has no dates in [cfg.Start, cfg.End].
func New(p *panel.Panel, strat strategy.Strategy, cfg Config, opts ...Option) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("simulator config: %w", err)
	}
	if err := strategy.Validate(strat); err != nil {
		return nil, err
	}

	s := &Simulator{
		id:       uuid.New(),
		panel:    p,
		strategy: strat,
		cfg:      cfg,
		lookback: strat.RequiredNumberDates(),
		state:    Uninitialized,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "simulator", "strategy", strat.Name(), "run", s.id.String())

	schedule, err := panel.BuildSchedule(p, cfg.Frequency, cfg.Start, cfg.End)
	if err != nil {
		return nil, err
	}
	if len(schedule) == 0 {
		return nil, fmt.Errorf("%s schedule for %s..%s: %w", cfg.Frequency,
			domain.FormatDate(cfg.Start), domain.FormatDate(cfg.End), domain.ErrEmptySchedule)
	}
	s.schedule = schedule

	port, err := portfolio.New(cfg.Portfolio, portfolio.WithLogger(s.log))
	if err != nil {
		return nil, err
	}
	s.port = port

	// Index 0 has no previous date to trade from, so at least one index is
	// always skipped.
	s.warmup = max(s.lookback, 1)
	s.state = WarmingUp
	s.log.Debug("simulation ready",
		"frequency", cfg.Frequency,
		"dates", len(schedule),
		"first", domain.FormatDate(schedule[0]),
		"last", domain.FormatDate(schedule[len(schedule)-1]),
		"warmup", s.warmup,
	)
	return s, nil
}

// ID returns the run identifier.
func (s *Simulator) ID() uuid.UUID { return s.id }

// State returns the current lifecycle stage.
func (s *Simulator) State() State { return s.state }

// Schedule returns a copy of the rebalance schedule.
func (s *Simulator) Schedule() []time.Time {
	out := make([]time.Time, len(s.schedule))
	copy(out, s.schedule)
	return out
}

// TradedDates returns the schedule dates that have been traded so far. They
// line up with ValueHistory()[1:].
func (s *Simulator) TradedDates() []time.Time {
	out := make([]time.Time, len(s.traded))
	copy(out, s.traded)
	return out
}

// Portfolio exposes the run's portfolio for inspection.
func (s *Simulator) Portfolio() *portfolio.Portfolio { return s.port }

// ValueHistory returns the portfolio value history.
func (s *Simulator) ValueHistory() []float64 { return s.port.ValueHistory() }

// lastTradable is the last schedule index that may be traded.
func (s *Simulator) lastTradable() int { return len(s.schedule) - 2 }

// Step advances the cursor by one schedule index. During warm-up nothing but
// the cursor moves and the returned report is nil. Once the run is Finished,
// Step is a no-op returning nil, nil. A failed step restores the portfolio to
// its state before the step and leaves the cursor in place.
func (s *Simulator) Step(ctx context.Context) (*StepReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.state == Finished {
		return nil, nil
	}
	if s.cursor < s.warmup {
		s.log.Debug("warm-up", "index", s.cursor, "date", domain.FormatDate(s.schedule[s.cursor]))
		s.cursor++
		if s.obs != nil {
			s.obs.WarmupStep(s.strategy.Name())
		}
		s.advanceState()
		return nil, nil
	}
	if s.cursor > s.lastTradable() {
		s.state = Finished
		return nil, nil
	}
	s.state = Stepping

	report, err := s.trade(ctx, s.cursor)
	if err != nil {
		return nil, err
	}
	s.cursor++
	s.advanceState()
	return report, nil
}

func (s *Simulator) advanceState() {
	switch {
	case s.cursor > s.lastTradable():
		s.state = Finished
	case s.cursor >= s.warmup:
		s.state = Stepping
	}
}

// trade runs the rebalance sequence for schedule index i.
func (s *Simulator) trade(ctx context.Context, i int) (*StepReport, error) {
	date := s.schedule[i]
	snapshot := s.port.State()
	fail := func(err error) (*StepReport, error) {
		s.port.Restore(snapshot)
		return nil, fmt.Errorf("step %d (%s): %w", i, domain.FormatDate(date), err)
	}

	window, err := s.panel.TrailingWindow(s.schedule, s.lookback, date)
	if err != nil {
		return fail(err)
	}
	universe := s.panel.TickersActiveOn(date)

	target, err := s.strategy.CreatePortfolio(ctx, window, universe)
	if err != nil {
		return fail(err)
	}
	if err := validateWeights(target); err != nil {
		return fail(err)
	}

	reqLong, reqShort := target.Totals()
	rebalance := s.port.ApplyAllocation(target)

	delta, start, err := s.panel.PriceDeltaAndStart(universe, s.schedule[i-1], date)
	if err != nil {
		return fail(err)
	}
	value, err := s.port.MarkToMarket(delta, start)
	if err != nil {
		return fail(err)
	}

	s.traded = append(s.traded, date)
	if s.obs != nil {
		s.obs.Rebalanced(s.strategy.Name(), rebalance)
		s.obs.Marked(s.strategy.Name(), value)
	}
	s.log.Debug("step",
		"index", i,
		"date", domain.FormatDate(date),
		"universe", len(universe),
		"requested_long", reqLong,
		"requested_short", reqShort,
		"long", rebalance.TotalLong,
		"short", rebalance.TotalShort,
		"value", value,
	)
	return &StepReport{
		Index:     i,
		Date:      date,
		Universe:  len(universe),
		Rebalance: rebalance,
		Value:     value,
	}, nil
}

// validateWeights rejects weights outside [-1, 1] and tickers listed more
// than once.
func validateWeights(a domain.Allocation) error {
	seen := make(map[string]struct{}, len(a))
	for _, w := range a {
		if math.IsNaN(w.Weight) || math.Abs(w.Weight) > 1 {
			return fmt.Errorf("%s weight %v outside [-1, 1]: %w", w.Ticker, w.Weight, domain.ErrInvalidWeight)
		}
		if _, dup := seen[w.Ticker]; dup {
			return fmt.Errorf("%s appears more than once: %w", w.Ticker, domain.ErrInvalidWeight)
		}
		seen[w.Ticker] = struct{}{}
	}
	return nil
}

// Result is the outcome of a completed (or cancelled) run.
type Result struct {
	RunID        uuid.UUID
	Strategy     string
	Signature    string
	Config       Config
	Schedule     []time.Time
	TradedDates  []time.Time
	ValueHistory []float64
	Metrics      Metrics
	CapBreaches  int
	Elapsed      time.Duration
}

// Key identifies the result in run history: signature, frequency and the
// requested date range joined by underscores.
func (r *Result) Key() string {
	return HistoryKey(r.Signature, r.Config.Frequency, r.Config.Start, r.Config.End)
}

// HistoryKey builds a run-history key.
func HistoryKey(signature string, freq domain.Frequency, start, end time.Time) string {
	return fmt.Sprintf("%s_%s_%s_%s", signature, freq, domain.FormatDate(start), domain.FormatDate(end))
}

// Run steps until the schedule is exhausted. Cancellation is checked at every
// step boundary; on cancellation or a step failure the returned Result holds
// everything committed so far alongside the error. A degenerate metric is not
// a run failure: the Result is returned with Metrics.SharpeDefined unset and
// a nil error.
func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	began := time.Now()
	for s.state != Finished {
		if _, err := s.Step(ctx); err != nil {
			return s.result(began), err
		}
	}

	res := s.result(began)
	s.log.Info("simulation finished",
		"steps", len(res.TradedDates),
		"final_value", res.ValueHistory[len(res.ValueHistory)-1],
		"sharpe", res.Metrics.Sharpe,
		"return_to_drawdown", res.Metrics.ReturnToDrawdown,
		"cap_breaches", res.CapBreaches,
		"elapsed", res.Elapsed,
	)
	return res, nil
}

func (s *Simulator) result(began time.Time) *Result {
	m, err := ComputeMetrics(s.port.ValueHistory(), s.cfg.RiskFreeRate)
	if err != nil {
		s.log.Warn("metrics undefined", "error", err)
	}
	return &Result{
		RunID:        s.id,
		Strategy:     s.strategy.Name(),
		Signature:    strategy.Signature(s.strategy),
		Config:       s.cfg,
		Schedule:     s.Schedule(),
		TradedDates:  s.TradedDates(),
		ValueHistory: s.port.ValueHistory(),
		Metrics:      m,
		CapBreaches:  s.port.CapBreaches(),
		Elapsed:      time.Since(began),
	}
}

// ComputeMetrics computes the run metrics over the current value history.
func (s *Simulator) ComputeMetrics(riskFreeRate float64) (Metrics, error) {
	return ComputeMetrics(s.port.ValueHistory(), riskFreeRate)
}
