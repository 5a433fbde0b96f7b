// Package builtins provides built-in strategy implementations that ship with
// panelsim.
package builtins

import (
	"panelsim/internal/strategy"
)

// Names of the built-in strategies.
const (
	EqualWeightName = "equal-weight"
	OLSMedianName   = "ols-ratios"
	OLSQuartileName = "ols-ratios-quartile"
	OLSOctileName   = "ols-ratios-octile"

	LogitMedianName   = "logit-ratios"
	LogitQuartileName = "logit-ratios-quartile"
	LogitOctileName   = "logit-ratios-octile"
)

// Default lookbacks, in schedule dates.
const (
	DefaultOLSLookback   = 6
	DefaultLogitLookback = 6
	DefaultEqualLookback = 2
)

// Register adds every built-in strategy to r.
func Register(r *strategy.Registry) {
	r.Register(EqualWeightName, func() (strategy.Strategy, error) {
		return NewEqualWeight(DefaultEqualLookback), nil
	})
	for name, rule := range map[string]DecisionRule{
		OLSMedianName:   RuleMedian,
		OLSQuartileName: RuleQuartile,
		OLSOctileName:   RuleOctile,
	} {
		opts := OLSOptions{Lookback: DefaultOLSLookback, Rule: rule}
		r.Register(name, func() (strategy.Strategy, error) {
			return NewOLSRatios(opts)
		})
	}
	for name, rule := range map[string]DecisionRule{
		LogitMedianName:   RuleMedian,
		LogitQuartileName: RuleQuartile,
		LogitOctileName:   RuleOctile,
	} {
		opts := LogitOptions{Lookback: DefaultLogitLookback, Rule: rule}
		r.Register(name, func() (strategy.Strategy, error) {
			return NewLogitRatios(opts)
		})
	}
}
