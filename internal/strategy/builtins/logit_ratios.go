package builtins

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"panelsim/internal/domain"
	"panelsim/internal/panel"
	"panelsim/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*LogitRatios)(nil)

// LogitOptions configures a LogitRatios strategy.
type LogitOptions struct {
	Lookback int
	Rule     DecisionRule
	// Retrain refits the classifier on every rebalance instead of once on
	// the first window.
	Retrain bool
	// Features are the inputs; domain.RatioFeatures when empty.
	Features []string
	// C is the inverse L2 penalty strength. Zero means 1.
	C      float64
	Logger *slog.Logger
}

// LogitRatios bins next-period returns into the rule's equal-probability
// classes (2, 4 or 8), fits a multinomial logistic regression of the class
// on standardized fundamental ratios, and goes long the tickers whose most
// likely class is the top one and short those whose most likely class is
// the bottom one, equally weighted within each leg.
type LogitRatios struct {
	opts     LogitOptions
	features []string
	model    *logitModel
	log      *slog.Logger
}

// NewLogitRatios validates opts and returns an untrained strategy.
func NewLogitRatios(opts LogitOptions) (*LogitRatios, error) {
	if opts.Lookback < 2 {
		return nil, fmt.Errorf("logit lookback %d: want at least 2", opts.Lookback)
	}
	if opts.Rule == "" {
		opts.Rule = RuleMedian
	}
	if _, err := ParseDecisionRule(string(opts.Rule)); err != nil {
		return nil, err
	}
	if opts.C == 0 {
		opts.C = 1
	}
	if !(opts.C > 0) || math.IsInf(opts.C, 0) {
		return nil, fmt.Errorf("logit C %v: want a positive finite value", opts.C)
	}
	features, err := ratioFeatures(opts.Features)
	if err != nil {
		return nil, err
	}
	s := &LogitRatios{
		opts:     opts,
		features: features,
		log:      opts.Logger,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("strategy", s.Name())
	return s, nil
}

// Name returns the registry name for the configured decision rule.
func (s *LogitRatios) Name() string {
	switch s.opts.Rule {
	case RuleQuartile:
		return LogitQuartileName
	case RuleOctile:
		return LogitOctileName
	}
	return LogitMedianName
}

// Signature identifies the strategy in run history, e.g. "Logit_median".
func (s *LogitRatios) Signature() string {
	sig := "Logit_" + string(s.opts.Rule)
	if s.opts.Retrain {
		sig += "_retrain"
	}
	return sig
}

// RequiredNumberDates returns the configured lookback.
func (s *LogitRatios) RequiredNumberDates() int { return s.opts.Lookback }

// CreatePortfolio fits the classifier if needed and forms the long/short
// allocation from the predicted classes on the latest date of the window.
func (s *LogitRatios) CreatePortfolio(ctx context.Context, window *panel.Panel, tickers []string) (domain.Allocation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.model == nil || s.opts.Retrain {
		x, y := trainingSet(window, s.features)
		if len(y) == 0 {
			s.log.Debug("no training rows in window", "observations", window.Len())
			return nil, nil
		}
		m, err := fitLogit(x, returnClasses(y, s.opts.Rule), s.opts.Rule.classes(), s.opts.C, s.log)
		if err != nil {
			return nil, fmt.Errorf("fitting %s: %w", s.Name(), err)
		}
		s.model = m
	}

	names, rows := latestRows(window, tickers, s.features)
	top := s.opts.Rule.classes() - 1
	side := make([]int, len(rows))
	for i, row := range rows {
		switch s.model.classify(row) {
		case top:
			side[i] = 1
		case 0:
			side[i] = -1
		}
	}
	return legs(names, side), nil
}

// returnClasses labels each return with the number of the rule's interior
// quantiles (at k/classes) that do not exceed it, so the labels run from 0
// to classes-1.
func returnClasses(returns []float64, rule DecisionRule) []int {
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)
	k := rule.classes()
	cuts := make([]float64, k-1)
	for i := range cuts {
		cuts[i] = quantile(sorted, float64(i+1)/float64(k))
	}

	labels := make([]int, len(returns))
	for i, r := range returns {
		labels[i] = sort.Search(len(cuts), func(j int) bool { return cuts[j] > r })
	}
	return labels
}

// logitModel holds one weight vector per class over the standardized
// features, intercept first.
type logitModel struct {
	z       *standardizer
	classes int
	w       []float64 // classes * z.dim()
}

// scores writes each class's linear score for a transformed row into out.
func (m *logitModel) scores(w, row, out []float64) {
	d := len(row)
	for k := range out {
		out[k] = floats.Dot(w[k*d:(k+1)*d], row)
	}
}

// classify returns the most likely class for row. Ties go to the lower
// class.
func (m *logitModel) classify(row []float64) int {
	out := make([]float64, m.classes)
	m.scores(m.w, m.z.transform(row), out)
	return floats.MaxIdx(out)
}

// fitLogit minimizes the multinomial negative log-likelihood plus
// |w|^2/(2C) with L-BFGS. The penalty covers the intercepts so a class with
// no members keeps finite weights.
func fitLogit(x [][]float64, labels []int, classes int, c float64, log *slog.Logger) (*logitModel, error) {
	z := fitStandardizer(x)
	rows := make([][]float64, len(x))
	for i := range x {
		rows[i] = z.transform(x[i])
	}
	m := &logitModel{z: z, classes: classes}
	d := z.dim()

	s := make([]float64, classes)
	problem := optimize.Problem{
		Func: func(w []float64) float64 {
			f := floats.Dot(w, w) / (2 * c)
			for i, row := range rows {
				m.scores(w, row, s)
				f += floats.LogSumExp(s) - s[labels[i]]
			}
			return f
		},
		Grad: func(grad, w []float64) {
			for j := range grad {
				grad[j] = w[j] / c
			}
			for i, row := range rows {
				m.scores(w, row, s)
				lse := floats.LogSumExp(s)
				for k := range s {
					g := math.Exp(s[k] - lse)
					if k == labels[i] {
						g--
					}
					floats.AddScaled(grad[k*d:(k+1)*d], g, row)
				}
			}
		},
	}
	settings := &optimize.Settings{
		Converger:       &optimize.FunctionConverge{Absolute: 1e-10, Iterations: 20},
		MajorIterations: 500,
	}
	res, err := optimize.Minimize(problem, make([]float64, classes*d), settings, &optimize.LBFGS{})
	if res == nil {
		return nil, err
	}
	if err != nil {
		// The last location is still a usable fit.
		log.Debug("optimizer stopped early", "status", res.Status, "err", err)
	}
	m.w = res.X
	log.Debug("classifier fitted",
		"rows", len(rows),
		"classes", classes,
		"iterations", res.MajorIterations,
		"loss", res.F,
	)
	return m, nil
}
