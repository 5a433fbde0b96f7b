// Package panel holds the immutable ticker x date x feature table that a
// simulation replays. A Panel is never modified after construction, so one
// instance can be shared by any number of concurrent simulation runs;
// operations that reduce it (DeleteTickers, TrailingWindow) return new
// panels.
package panel

import (
	"fmt"
	"sort"
	"time"

	"panelsim/internal/domain"
	"panelsim/internal/util"
)

// dateKey identifies a calendar date independently of time.Location.
type dateKey int64

func keyOf(t time.Time) dateKey {
	return dateKey(domain.Day(t).Unix())
}

type obsKey struct {
	ticker string
	date   dateKey
}

// Panel is a read-only collection of observations, at most one per
// (ticker, date) pair.
type Panel struct {
	tickers   []string // sorted registry
	tickerSet map[string]struct{}

	obs   []domain.Observation // sorted by date, then ticker
	dates []time.Time          // distinct, ascending

	byDate   map[dateKey][]int // observation indices, ticker order
	byTicker map[string][]int  // observation indices, date order
	index    map[obsKey]int
}

// New builds a Panel from a ticker registry and a set of observations. When
// tickers is empty the registry is derived from the observations. Every
// observation date is truncated to its calendar day and its Price is set to
// (Open+Close)/2.
//
// New fails with ErrInvalidTicker if an observation references a ticker
// outside the registry and with ErrDuplicateObservation if a (ticker, date)
// pair appears twice.
func New(tickers []string, observations []domain.Observation) (*Panel, error) {
	registry := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		registry[t] = struct{}{}
	}
	derive := len(registry) == 0

	obs := make([]domain.Observation, len(observations))
	for i, o := range observations {
		if o.Ticker == "" {
			return nil, fmt.Errorf("observation %d has no ticker: %w", i, domain.ErrInvalidTicker)
		}
		if _, ok := registry[o.Ticker]; !ok {
			if !derive {
				return nil, fmt.Errorf("observation %s on %s: %w",
					o.Ticker, domain.FormatDate(o.Date), domain.ErrInvalidTicker)
			}
		}
		o.Date = domain.Day(o.Date)
		o.Price = o.MidPrice()
		obs[i] = o
	}
	if derive {
		for _, o := range obs {
			registry[o.Ticker] = struct{}{}
		}
	}

	sort.SliceStable(obs, func(i, j int) bool {
		if !obs[i].Date.Equal(obs[j].Date) {
			return obs[i].Date.Before(obs[j].Date)
		}
		return obs[i].Ticker < obs[j].Ticker
	})
	for i := 1; i < len(obs); i++ {
		if obs[i].Ticker == obs[i-1].Ticker && obs[i].Date.Equal(obs[i-1].Date) {
			return nil, fmt.Errorf("%s on %s: %w",
				obs[i].Ticker, domain.FormatDate(obs[i].Date), domain.ErrDuplicateObservation)
		}
	}

	return build(registry, obs), nil
}

// build indexes observations that are already validated and sorted.
func build(registry map[string]struct{}, obs []domain.Observation) *Panel {
	p := &Panel{
		tickers:   make([]string, 0, len(registry)),
		tickerSet: registry,
		obs:       obs,
		byDate:    make(map[dateKey][]int),
		byTicker:  make(map[string][]int),
		index:     make(map[obsKey]int, len(obs)),
	}
	for t := range registry {
		p.tickers = append(p.tickers, t)
	}
	sort.Strings(p.tickers)

	for i, o := range obs {
		k := keyOf(o.Date)
		if len(p.dates) == 0 || !p.dates[len(p.dates)-1].Equal(o.Date) {
			p.dates = append(p.dates, o.Date)
		}
		p.byDate[k] = append(p.byDate[k], i)
		p.byTicker[o.Ticker] = append(p.byTicker[o.Ticker], i)
		p.index[obsKey{ticker: o.Ticker, date: k}] = i
	}
	return p
}

// Tickers returns the sorted ticker registry.
func (p *Panel) Tickers() []string {
	out := make([]string, len(p.tickers))
	copy(out, p.tickers)
	return out
}

// HasTicker reports whether ticker is in the registry.
func (p *Panel) HasTicker(ticker string) bool {
	_, ok := p.tickerSet[ticker]
	return ok
}

// Dates returns every distinct date with data, ascending.
func (p *Panel) Dates() []time.Time {
	out := make([]time.Time, len(p.dates))
	copy(out, p.dates)
	return out
}

// Len returns the number of observations.
func (p *Panel) Len() int { return len(p.obs) }

// Observations returns a copy of all observations ordered by date, then
// ticker.
func (p *Panel) Observations() []domain.Observation {
	out := make([]domain.Observation, len(p.obs))
	copy(out, p.obs)
	return out
}

// ObservationsOn returns the observations on date, ordered by ticker.
func (p *Panel) ObservationsOn(date time.Time) []domain.Observation {
	idx := p.byDate[keyOf(date)]
	out := make([]domain.Observation, len(idx))
	for i, j := range idx {
		out[i] = p.obs[j]
	}
	return out
}

// Lookup returns the observation for (ticker, date).
func (p *Panel) Lookup(ticker string, date time.Time) (domain.Observation, bool) {
	i, ok := p.index[obsKey{ticker: ticker, date: keyOf(date)}]
	if !ok {
		return domain.Observation{}, false
	}
	return p.obs[i], true
}

// DatesInRange returns the distinct dates within [start, end] on which
// ticker has data, ascending. domain.AllTickers selects dates across the
// whole panel.
func (p *Panel) DatesInRange(ticker string, start, end time.Time) ([]time.Time, error) {
	lo, hi := keyOf(start), keyOf(end)

	if ticker == domain.AllTickers {
		i := sort.Search(len(p.dates), func(i int) bool { return keyOf(p.dates[i]) >= lo })
		j := sort.Search(len(p.dates), func(i int) bool { return keyOf(p.dates[i]) > hi })
		if i >= j {
			return nil, nil
		}
		out := make([]time.Time, j-i)
		copy(out, p.dates[i:j])
		return out, nil
	}

	if !p.HasTicker(ticker) {
		return nil, fmt.Errorf("dates for %q: %w", ticker, domain.ErrInvalidTicker)
	}
	var out []time.Time
	for _, i := range p.byTicker[ticker] {
		k := keyOf(p.obs[i].Date)
		if k >= lo && k <= hi {
			out = append(out, p.obs[i].Date)
		}
	}
	return out, nil
}

// TickersActiveOn returns the sorted tickers with an observation on date.
func (p *Panel) TickersActiveOn(date time.Time) []string {
	idx := p.byDate[keyOf(date)]
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = p.obs[j].Ticker
	}
	return out
}

// TrailingWindow returns the sub-panel of observations dated within
// schedule[max(i-lookback, 0):i], where i is the position of asOf in
// schedule. The as-of date itself is excluded. schedule must be strictly
// increasing; ErrDateNotInSchedule is returned if asOf is not an element.
func (p *Panel) TrailingWindow(schedule []time.Time, lookback int, asOf time.Time) (*Panel, error) {
	k := keyOf(asOf)
	i := sort.Search(len(schedule), func(i int) bool { return keyOf(schedule[i]) >= k })
	if i == len(schedule) || keyOf(schedule[i]) != k {
		return nil, fmt.Errorf("trailing window as of %s: %w", domain.FormatDate(asOf), domain.ErrDateNotInSchedule)
	}

	from := max(i-lookback, 0)
	var obs []domain.Observation
	for _, d := range schedule[from:i] {
		for _, j := range p.byDate[keyOf(d)] {
			obs = append(obs, p.obs[j])
		}
	}
	return build(p.tickerSet, obs), nil
}

// PriceDeltaAndStart returns, for every ticker observed on both dates,
// price(end) - price(start) and price(start). Tickers missing on either date
// are left out of both maps. A ticker outside the registry is an
// ErrInvalidTicker error.
func (p *Panel) PriceDeltaAndStart(tickers []string, start, end time.Time) (delta, startPrice map[string]float64, err error) {
	delta = make(map[string]float64, len(tickers))
	startPrice = make(map[string]float64, len(tickers))

	for _, t := range tickers {
		if !p.HasTicker(t) {
			return nil, nil, fmt.Errorf("price delta for %q: %w", t, domain.ErrInvalidTicker)
		}
		s, ok := p.Lookup(t, start)
		if !ok {
			continue
		}
		e, ok := p.Lookup(t, end)
		if !ok {
			continue
		}
		delta[t] = e.Price - s.Price
		startPrice[t] = s.Price
	}
	return delta, startPrice, nil
}

// Feature returns the values of a feature for ticker within [start, end]
// together with their dates.
func (p *Panel) Feature(ticker, feature string, start, end time.Time) ([]float64, []time.Time, error) {
	if !p.HasTicker(ticker) {
		return nil, nil, fmt.Errorf("feature %s for %q: %w", feature, ticker, domain.ErrInvalidTicker)
	}
	if _, err := (domain.Observation{}).Feature(feature); err != nil {
		return nil, nil, err
	}

	dates, err := p.DatesInRange(ticker, start, end)
	if err != nil {
		return nil, nil, err
	}
	values := make([]float64, 0, len(dates))
	for _, d := range dates {
		o, _ := p.Lookup(ticker, d)
		v, _ := o.Feature(feature)
		values = append(values, v)
	}
	return values, dates, nil
}

// DeleteTickers returns a new Panel without the given tickers or any of
// their observations. The receiver is left untouched.
func (p *Panel) DeleteTickers(tickers ...string) (*Panel, error) {
	drop := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		if !p.HasTicker(t) {
			return nil, fmt.Errorf("delete %q: %w", t, domain.ErrInvalidTicker)
		}
		drop[t] = struct{}{}
	}

	registry := make(map[string]struct{}, len(p.tickerSet))
	for t := range p.tickerSet {
		if _, ok := drop[t]; !ok {
			registry[t] = struct{}{}
		}
	}
	obs := make([]domain.Observation, 0, len(p.obs))
	for _, o := range p.obs {
		if _, ok := drop[o.Ticker]; !ok {
			obs = append(obs, o)
		}
	}
	return build(registry, obs), nil
}

// Summary describes the extent of a panel.
type Summary struct {
	Start        time.Time
	End          time.Time
	Tickers      int
	Dates        int
	Observations int
}

// String renders the summary on one line.
func (s Summary) String() string {
	if s.Dates == 0 {
		return fmt.Sprintf("empty panel, %d tickers", s.Tickers)
	}
	return fmt.Sprintf("%s..%s, %d tickers, %d dates, %d observations",
		domain.FormatDate(s.Start), domain.FormatDate(s.End), s.Tickers, s.Dates, s.Observations)
}

// Summary returns the date span and sizes of the panel.
func (p *Panel) Summary() Summary {
	s := Summary{
		Tickers:      len(p.tickers),
		Dates:        len(p.dates),
		Observations: len(p.obs),
	}
	if len(p.dates) > 0 {
		s.Start = p.dates[0]
		s.End = p.dates[len(p.dates)-1]
	}
	return s
}

// ResolveTradingDay parses an ISO date and moves weekend dates to the next
// Monday. Weekdays are returned unchanged; holidays are not considered.
func ResolveTradingDay(date string) (time.Time, error) {
	t, err := domain.ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	return util.NextWeekday(t), nil
}
