// Package portfolio tracks the signed position weights and value history of
// a simulated long/short portfolio. Weights are fractions of portfolio
// value; the portfolio is revalued from period price deltas using implied
// share counts.
package portfolio

import (
	"fmt"
	"log/slog"
	"math"

	"panelsim/internal/domain"
)

// Config holds the construction parameters of a Portfolio.
type Config struct {
	InitialValue float64
	// MaxLong and MaxShort cap the summed long and short weights.
	MaxLong  float64
	MaxShort float64
}

// Validate checks that the initial value is positive and the caps are
// non-negative finite numbers.
func (c Config) Validate() error {
	if !(c.InitialValue > 0) || math.IsInf(c.InitialValue, 0) {
		return fmt.Errorf("initial value %v must be positive", c.InitialValue)
	}
	if !(c.MaxLong >= 0) || math.IsInf(c.MaxLong, 0) {
		return fmt.Errorf("long cap %v must be non-negative", c.MaxLong)
	}
	if !(c.MaxShort >= 0) || math.IsInf(c.MaxShort, 0) {
		return fmt.Errorf("short cap %v must be non-negative", c.MaxShort)
	}
	return nil
}

// Truncation records a weight that was reduced to respect a cap.
type Truncation struct {
	Ticker    string
	Requested float64
	Accepted  float64
}

// Amount returns the absolute weight that was cut.
func (t Truncation) Amount() float64 {
	return math.Abs(t.Requested - t.Accepted)
}

// Rebalance is the outcome of ApplyAllocation.
type Rebalance struct {
	Positions   domain.Allocation
	TotalLong   float64
	TotalShort  float64
	Truncations []Truncation
}

// State is a snapshot of a Portfolio.
type State struct {
	Positions    domain.Allocation
	TotalLong    float64
	TotalShort   float64
	Value        float64
	ValueHistory []float64
}

// Portfolio is owned by a single simulation run and is not safe for
// concurrent use.
type Portfolio struct {
	cfg Config

	positions  domain.Allocation
	totalLong  float64
	totalShort float64

	value   float64
	history []float64

	capBreaches int
	log         *slog.Logger
}

// Option configures a Portfolio.
type Option func(*Portfolio)

// WithLogger sets the logger used for cap warnings.
func WithLogger(l *slog.Logger) Option {
	return func(p *Portfolio) {
		if l != nil {
			p.log = l
		}
	}
}

// New creates an empty Portfolio worth cfg.InitialValue.
func New(cfg Config, opts ...Option) (*Portfolio, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Portfolio{
		cfg:     cfg,
		value:   cfg.InitialValue,
		history: []float64{cfg.InitialValue},
		log:     slog.Default().With("component", "portfolio"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns the construction parameters.
func (p *Portfolio) Config() Config { return p.cfg }

// ApplyAllocation replaces all positions with target, walking it in order.
// Long weights are accumulated until MaxLong is reached and short weights
// until MaxShort is reached; a weight that would overshoot its cap is cut to
// the remaining room, and once a cap is full later weights on that side are
// kept at zero. Each cut is logged as a warning and counted. Non-finite
// weights and repeated tickers are skipped with a warning.
func (p *Portfolio) ApplyAllocation(target domain.Allocation) Rebalance {
	p.positions = make(domain.Allocation, 0, len(target))
	p.totalLong, p.totalShort = 0, 0

	var truncs []Truncation
	seen := make(map[string]struct{}, len(target))
	for _, t := range target {
		if math.IsNaN(t.Weight) || math.IsInf(t.Weight, 0) {
			p.log.Warn("non-finite weight skipped", "ticker", t.Ticker, "weight", t.Weight)
			continue
		}
		if _, dup := seen[t.Ticker]; dup {
			p.log.Warn("repeated ticker skipped", "ticker", t.Ticker, "weight", t.Weight)
			continue
		}
		seen[t.Ticker] = struct{}{}

		w := t.Weight
		clipped := false
		if w >= 0 {
			if p.totalLong+w > p.cfg.MaxLong {
				w = math.Max(p.cfg.MaxLong-p.totalLong, 0)
				p.totalLong = p.cfg.MaxLong
				clipped = true
			} else {
				p.totalLong += w
			}
		} else {
			if p.totalShort-w > p.cfg.MaxShort {
				w = -math.Max(p.cfg.MaxShort-p.totalShort, 0)
				p.totalShort = p.cfg.MaxShort
				clipped = true
			} else {
				p.totalShort -= w
			}
		}

		if clipped && w != t.Weight {
			tr := Truncation{Ticker: t.Ticker, Requested: t.Weight, Accepted: w}
			truncs = append(truncs, tr)
			p.capBreaches++
			p.log.Warn("allocation cap reached",
				"ticker", t.Ticker,
				"requested", tr.Requested,
				"accepted", tr.Accepted,
				"truncated", tr.Amount(),
				"kind", domain.ErrAllocationCapExceeded,
			)
		}
		p.positions = append(p.positions, domain.Weight{Ticker: t.Ticker, Weight: w})
	}

	return Rebalance{
		Positions:   p.positions.Clone(),
		TotalLong:   p.totalLong,
		TotalShort:  p.totalShort,
		Truncations: truncs,
	}
}

// MarkToMarket revalues the portfolio over one period and appends the new
// value to the history. Each non-zero position holds
// weight*valueBefore/startPrice implied shares, which earn the ticker's price
// delta (zero if absent). A position whose ticker appears in neither map
// contributes nothing.
//
// A start price that is zero, negative or not finite, or a delta without a
// start price, fails with ErrInvalidPrice and leaves the portfolio unchanged.
func (p *Portfolio) MarkToMarket(delta, startPrice map[string]float64) (float64, error) {
	before := p.value
	change := 0.0

	for _, pos := range p.positions {
		if pos.Weight == 0 {
			continue
		}
		sp, hasStart := startPrice[pos.Ticker]
		d, hasDelta := delta[pos.Ticker]
		if !hasStart {
			if hasDelta {
				return before, fmt.Errorf("%s has a price delta but no start price: %w", pos.Ticker, domain.ErrInvalidPrice)
			}
			continue
		}
		if !(sp > 0) || math.IsInf(sp, 0) {
			return before, fmt.Errorf("%s start price %v: %w", pos.Ticker, sp, domain.ErrInvalidPrice)
		}
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return before, fmt.Errorf("%s price delta %v: %w", pos.Ticker, d, domain.ErrInvalidPrice)
		}
		shares := pos.Weight * before / sp
		change += shares * d
	}

	after := before + change
	if math.IsNaN(after) || math.IsInf(after, 0) {
		return before, fmt.Errorf("portfolio value %v: %w", after, domain.ErrInvalidPrice)
	}

	p.value = after
	p.history = append(p.history, after)
	return after, nil
}

// Value returns the current portfolio value.
func (p *Portfolio) Value() float64 { return p.value }

// ValueHistory returns a copy of the value history, starting with the
// initial value.
func (p *Portfolio) ValueHistory() []float64 {
	out := make([]float64, len(p.history))
	copy(out, p.history)
	return out
}

// Positions returns a copy of the current positions.
func (p *Portfolio) Positions() domain.Allocation { return p.positions.Clone() }

// CapBreaches returns how many weights have been cut by a cap so far.
func (p *Portfolio) CapBreaches() int { return p.capBreaches }

// State returns a deep snapshot of the portfolio.
func (p *Portfolio) State() State {
	return State{
		Positions:    p.positions.Clone(),
		TotalLong:    p.totalLong,
		TotalShort:   p.totalShort,
		Value:        p.value,
		ValueHistory: p.ValueHistory(),
	}
}

// Restore resets the portfolio to a snapshot taken with State. The cap
// breach counter is not rolled back.
func (p *Portfolio) Restore(s State) {
	p.positions = s.Positions.Clone()
	p.totalLong = s.TotalLong
	p.totalShort = s.TotalShort
	p.value = s.Value
	p.history = make([]float64, len(s.ValueHistory))
	copy(p.history, s.ValueHistory)
}

// String summarises the portfolio value and exposure.
func (p *Portfolio) String() string {
	return fmt.Sprintf("value=%.4f long=%.4f short=%.4f positions=%d",
		p.value, p.totalLong, p.totalShort, len(p.positions))
}
