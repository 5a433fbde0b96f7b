package builtins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"panelsim/internal/domain"
	"panelsim/internal/panel"
	"panelsim/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*OLSRatios)(nil)

// OLSOptions configures an OLSRatios strategy.
type OLSOptions struct {
	Lookback int
	Rule     DecisionRule
	// Retrain refits the regression on every rebalance instead of once on
	// the first window.
	Retrain bool
	// Features are the regressors; domain.RatioFeatures when empty.
	Features []string
	Logger   *slog.Logger
}

// OLSRatios forecasts each ticker's next-period return with an ordinary
// least squares regression on standardized fundamental ratios, then goes
// long the tickers forecast above the upper cutoff and short those below
// the lower cutoff, equally weighted within each leg.
type OLSRatios struct {
	opts     OLSOptions
	features []string
	model    *olsModel
	log      *slog.Logger
}

// NewOLSRatios validates opts and returns an untrained strategy.
func NewOLSRatios(opts OLSOptions) (*OLSRatios, error) {
	if opts.Lookback < 2 {
		return nil, fmt.Errorf("ols lookback %d: want at least 2", opts.Lookback)
	}
	if opts.Rule == "" {
		opts.Rule = RuleMedian
	}
	if _, err := ParseDecisionRule(string(opts.Rule)); err != nil {
		return nil, err
	}
	features, err := ratioFeatures(opts.Features)
	if err != nil {
		return nil, err
	}
	s := &OLSRatios{
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
func (s *OLSRatios) Name() string {
	switch s.opts.Rule {
	case RuleQuartile:
		return OLSQuartileName
	case RuleOctile:
		return OLSOctileName
	}
	return OLSMedianName
}

// Signature identifies the strategy in run history, e.g. "OLS_median".
func (s *OLSRatios) Signature() string {
	sig := "OLS_" + string(s.opts.Rule)
	if s.opts.Retrain {
		sig += "_retrain"
	}
	return sig
}

// RequiredNumberDates returns the configured lookback.
func (s *OLSRatios) RequiredNumberDates() int { return s.opts.Lookback }

// CreatePortfolio fits the regression if needed and forms the long/short
// allocation from forecasts on the latest date of the window. Tickers with a
// non-finite regressor on that date are left out. An empty allocation is
// returned while there is nothing to train on or forecast.
func (s *OLSRatios) CreatePortfolio(ctx context.Context, window *panel.Panel, tickers []string) (domain.Allocation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.model == nil || s.opts.Retrain {
		x, y := trainingSet(window, s.features)
		if len(y) == 0 {
			s.log.Debug("no training rows in window", "observations", window.Len())
			return nil, nil
		}
		m, err := fitOLS(x, y)
		if err != nil {
			return nil, fmt.Errorf("fitting %s: %w", s.Name(), err)
		}
		s.model = m
		s.log.Debug("regression fitted", "rows", len(y), "coefficients", m.coef)
	}

	names, rows := latestRows(window, tickers, s.features)
	if len(rows) == 0 {
		return nil, nil
	}
	preds := make([]float64, len(rows))
	for i, row := range rows {
		preds[i] = s.model.predict(row)
	}
	return rankByForecast(s.opts.Rule, names, preds), nil
}

// olsModel is a linear model on standardized inputs. Regressors with zero
// variance in the training set carry no coefficient.
type olsModel struct {
	z    *standardizer
	coef []float64 // intercept, then one per active regressor
}

func fitOLS(x [][]float64, y []float64) (*olsModel, error) {
	z := fitStandardizer(x)
	n, cols := len(y), z.dim()
	a := mat.NewDense(n, cols, nil)
	for i := range x {
		a.SetRow(i, z.transform(x[i]))
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, errors.New("singular value decomposition failed")
	}
	rank := svd.Rank(1e-12)
	if rank == 0 {
		return nil, errors.New("design matrix has rank 0")
	}
	var beta mat.VecDense
	svd.SolveVecTo(&beta, mat.NewVecDense(n, y), rank)

	m := &olsModel{z: z, coef: make([]float64, cols)}
	for c := range m.coef {
		m.coef[c] = beta.AtVec(c)
	}
	return m, nil
}

func (m *olsModel) predict(row []float64) float64 {
	return floats.Dot(m.coef, m.z.transform(row))
}
