package builtins

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"panelsim/internal/domain"
	"panelsim/internal/panel"
)

// DecisionRule selects which forecast quantiles form the long and short legs.
type DecisionRule string

const (
	// RuleMedian goes long above the median forecast and short below it.
	RuleMedian DecisionRule = "median"
	// RuleQuartile goes long the top quartile and short the bottom one.
	RuleQuartile DecisionRule = "quartile"
	// RuleOctile goes long the top octile and short the bottom one.
	RuleOctile DecisionRule = "octile"
)

// ParseDecisionRule validates a decision rule name.
func ParseDecisionRule(s string) (DecisionRule, error) {
	switch r := DecisionRule(s); r {
	case RuleMedian, RuleQuartile, RuleOctile:
		return r, nil
	}
	return "", fmt.Errorf("decision rule %q: want median, quartile or octile", s)
}

// cutoffs returns the lower and upper quantile probabilities.
func (r DecisionRule) cutoffs() (lo, hi float64) {
	switch r {
	case RuleQuartile:
		return 0.25, 0.75
	case RuleOctile:
		return 0.125, 0.875
	default:
		return 0.5, 0.5
	}
}

// classes returns how many equal-probability return bins the rule uses.
func (r DecisionRule) classes() int {
	switch r {
	case RuleQuartile:
		return 4
	case RuleOctile:
		return 8
	default:
		return 2
	}
}

// ratioFeatures returns a copy of features, or domain.RatioFeatures when
// empty, after checking every name.
func ratioFeatures(features []string) ([]string, error) {
	if len(features) == 0 {
		features = domain.RatioFeatures
	}
	for _, f := range features {
		if _, err := (domain.Observation{}).Feature(f); err != nil {
			return nil, err
		}
	}
	return append([]string(nil), features...), nil
}

// featureRow reads features from o. Rows with a non-finite value are
// rejected.
func featureRow(features []string, o domain.Observation) ([]float64, bool) {
	row := make([]float64, len(features))
	for j, f := range features {
		v, _ := o.Feature(f)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, false
		}
		row[j] = v
	}
	return row, true
}

// trainingSet pairs each observation's features with the ticker's return to
// its next observation in the window.
func trainingSet(window *panel.Panel, features []string) ([][]float64, []float64) {
	byTicker := make(map[string][]domain.Observation)
	for _, o := range window.Observations() {
		byTicker[o.Ticker] = append(byTicker[o.Ticker], o)
	}

	var (
		x [][]float64
		y []float64
	)
	for _, t := range window.Tickers() {
		series := byTicker[t]
		for i := 0; i+1 < len(series); i++ {
			cur, next := series[i], series[i+1]
			if !(cur.Price > 0) {
				continue
			}
			r := next.Price/cur.Price - 1
			if math.IsNaN(r) || math.IsInf(r, 0) {
				continue
			}
			row, ok := featureRow(features, cur)
			if !ok {
				continue
			}
			x = append(x, row)
			y = append(y, r)
		}
	}
	return x, y
}

// latestRows returns the features of every ticker in tickers observed on the
// window's last date, ordered by ticker.
func latestRows(window *panel.Panel, tickers, features []string) ([]string, [][]float64) {
	dates := window.Dates()
	if len(dates) == 0 {
		return nil, nil
	}
	want := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		want[t] = struct{}{}
	}

	var (
		names []string
		rows  [][]float64
	)
	for _, o := range window.ObservationsOn(dates[len(dates)-1]) {
		if _, ok := want[o.Ticker]; !ok {
			continue
		}
		row, ok := featureRow(features, o)
		if !ok {
			continue
		}
		names = append(names, o.Ticker)
		rows = append(rows, row)
	}
	return names, rows
}

// rankByForecast goes long the forecasts above the rule's upper cutoff and
// short those below the lower one.
func rankByForecast(rule DecisionRule, names []string, preds []float64) domain.Allocation {
	ordered := append([]float64(nil), preds...)
	sort.Float64s(ordered)
	pLo, pHi := rule.cutoffs()
	lower, upper := quantile(ordered, pLo), quantile(ordered, pHi)

	side := make([]int, len(preds))
	for i, p := range preds {
		switch {
		case p > upper:
			side[i] = 1
		case p < lower:
			side[i] = -1
		}
	}
	return legs(names, side)
}

// legs weights the long side (+1) at 1/nLong each and the short side (-1) at
// -1/nShort each, keeping the order of names.
func legs(names []string, side []int) domain.Allocation {
	var nLong, nShort int
	for _, s := range side {
		switch s {
		case 1:
			nLong++
		case -1:
			nShort++
		}
	}

	var out domain.Allocation
	for i, t := range names {
		switch side[i] {
		case 1:
			out = append(out, domain.Weight{Ticker: t, Weight: 1 / float64(nLong)})
		case -1:
			out = append(out, domain.Weight{Ticker: t, Weight: -1 / float64(nShort)})
		}
	}
	return out
}

// standardizer centres and scales features by their training mean and
// population standard deviation. Features with zero variance are dropped.
type standardizer struct {
	mean   []float64
	scale  []float64
	active []int
}

func fitStandardizer(x [][]float64) *standardizer {
	k := len(x[0])
	z := &standardizer{mean: make([]float64, k), scale: make([]float64, k)}
	col := make([]float64, len(x))
	for j := 0; j < k; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		z.mean[j] = mean
		if std > 0 && !math.IsInf(std, 0) {
			z.scale[j] = std
			z.active = append(z.active, j)
		}
	}
	return z
}

// transform returns the standardized active features of row, prefixed with
// a constant 1 for the intercept.
func (z *standardizer) transform(row []float64) []float64 {
	out := make([]float64, 1+len(z.active))
	out[0] = 1
	for c, j := range z.active {
		out[c+1] = (row[j] - z.mean[j]) / z.scale[j]
	}
	return out
}

// dim is the length of a transformed row.
func (z *standardizer) dim() int { return 1 + len(z.active) }

// quantile returns the p-quantile of sorted data, interpolating linearly
// between the closest ranks at (n-1)*p.
func quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	h := float64(n-1) * p
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}
