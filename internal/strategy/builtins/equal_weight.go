package builtins

import (
	"context"
	"sort"

	"panelsim/internal/domain"
	"panelsim/internal/panel"
	"panelsim/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*EqualWeight)(nil)

// EqualWeight goes long every tradable ticker with weight 1/n. It ignores the
// window and serves as a buy-and-hold baseline.
type EqualWeight struct {
	lookback int
}

// NewEqualWeight creates an EqualWeight strategy that asks for lookback
// dates of history.
func NewEqualWeight(lookback int) *EqualWeight {
	return &EqualWeight{lookback: lookback}
}

// Name returns "equal-weight".
func (s *EqualWeight) Name() string { return EqualWeightName }

// RequiredNumberDates returns the configured lookback.
func (s *EqualWeight) RequiredNumberDates() int { return s.lookback }

// CreatePortfolio allocates 1/len(tickers) to each ticker in sorted order.
func (s *EqualWeight) CreatePortfolio(_ context.Context, _ *panel.Panel, tickers []string) (domain.Allocation, error) {
	if len(tickers) == 0 {
		return nil, nil
	}
	sorted := append([]string(nil), tickers...)
	sort.Strings(sorted)

	w := 1 / float64(len(sorted))
	out := make(domain.Allocation, len(sorted))
	for i, t := range sorted {
		out[i] = domain.Weight{Ticker: t, Weight: w}
	}
	return out, nil
}
