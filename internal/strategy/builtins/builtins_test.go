package builtins

import (
	"context"
	"math"
	"reflect"
	"testing"
	"time"

	"panelsim/internal/domain"
	"panelsim/internal/panel"
	"panelsim/internal/strategy"
)

var tickers = []string{"T1", "T2", "T3", "T4"}

// growthPanel builds dates weekdays of history in which each ticker's price
// compounds at rate(pe) per date, with pe fixed per ticker.
func growthPanel(t *testing.T, dates int, rate func(pe float64) float64) *panel.Panel {
	t.Helper()
	start := time.Date(2020, 1, 6, 0, 0, 0, 0, time.UTC)
	var obs []domain.Observation
	for i, tk := range tickers {
		pe := float64(i + 1)
		price := 10.0
		for d := 0; d < dates; d++ {
			obs = append(obs, domain.Observation{
				Ticker: tk,
				Date:   start.AddDate(0, 0, d),
				Open:   price,
				Close:  price,
				PE:     pe,
				PB:     2,
			})
			price *= 1 + rate(pe)
		}
	}
	p, err := panel.New(tickers, obs)
	if err != nil {
		t.Fatalf("panel.New: %v", err)
	}
	return p
}

func weightsOf(a domain.Allocation) map[string]float64 {
	m := make(map[string]float64, len(a))
	for _, w := range a {
		m[w.Ticker] = math.Round(w.Weight*1e9) / 1e9
	}
	return m
}

func TestEqualWeight(t *testing.T) {
	s := NewEqualWeight(3)
	if s.RequiredNumberDates() != 3 {
		t.Errorf("RequiredNumberDates() = %d, want 3", s.RequiredNumberDates())
	}

	got, err := s.CreatePortfolio(context.Background(), nil, []string{"B", "A", "D", "C"})
	if err != nil {
		t.Fatalf("CreatePortfolio: %v", err)
	}
	want := domain.Allocation{{Ticker: "A", Weight: 0.25}, {Ticker: "B", Weight: 0.25}, {Ticker: "C", Weight: 0.25}, {Ticker: "D", Weight: 0.25}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CreatePortfolio = %v, want %v", got, want)
	}

	got, err = s.CreatePortfolio(context.Background(), nil, nil)
	if err != nil || len(got) != 0 {
		t.Errorf("CreatePortfolio(no tickers) = %v, %v; want empty", got, err)
	}
}

func TestOLSRatiosMedian(t *testing.T) {
	s, err := NewOLSRatios(OLSOptions{Lookback: 5, Rule: RuleMedian})
	if err != nil {
		t.Fatalf("NewOLSRatios: %v", err)
	}
	w := growthPanel(t, 5, func(pe float64) float64 { return 0.01 * pe })

	got, err := s.CreatePortfolio(context.Background(), w, tickers)
	if err != nil {
		t.Fatalf("CreatePortfolio: %v", err)
	}
	want := map[string]float64{"T1": -0.5, "T2": -0.5, "T3": 0.5, "T4": 0.5}
	if !reflect.DeepEqual(weightsOf(got), want) {
		t.Errorf("weights = %v, want %v", weightsOf(got), want)
	}
}

func TestOLSRatiosQuartile(t *testing.T) {
	s, err := NewOLSRatios(OLSOptions{Lookback: 5, Rule: RuleQuartile})
	if err != nil {
		t.Fatalf("NewOLSRatios: %v", err)
	}
	w := growthPanel(t, 5, func(pe float64) float64 { return 0.01 * pe })

	got, err := s.CreatePortfolio(context.Background(), w, tickers)
	if err != nil {
		t.Fatalf("CreatePortfolio: %v", err)
	}
	want := map[string]float64{"T1": -1, "T4": 1}
	if !reflect.DeepEqual(weightsOf(got), want) {
		t.Errorf("weights = %v, want %v", weightsOf(got), want)
	}
}

func TestOLSRatiosTrainsOnce(t *testing.T) {
	rising := growthPanel(t, 5, func(pe float64) float64 { return 0.01 * pe })
	falling := growthPanel(t, 5, func(pe float64) float64 { return -0.01 * pe })

	once, _ := NewOLSRatios(OLSOptions{Lookback: 5})
	if _, err := once.CreatePortfolio(context.Background(), rising, tickers); err != nil {
		t.Fatalf("CreatePortfolio: %v", err)
	}
	got, err := once.CreatePortfolio(context.Background(), falling, tickers)
	if err != nil {
		t.Fatalf("CreatePortfolio: %v", err)
	}
	if w := weightsOf(got); w["T4"] != 0.5 {
		t.Errorf("trained-once weights = %v, want T4 long from the first fit", w)
	}

	retrain, _ := NewOLSRatios(OLSOptions{Lookback: 5, Retrain: true})
	if _, err := retrain.CreatePortfolio(context.Background(), rising, tickers); err != nil {
		t.Fatalf("CreatePortfolio: %v", err)
	}
	got, err = retrain.CreatePortfolio(context.Background(), falling, tickers)
	if err != nil {
		t.Fatalf("CreatePortfolio: %v", err)
	}
	if w := weightsOf(got); w["T4"] != -0.5 || w["T1"] != 0.5 {
		t.Errorf("retrained weights = %v, want T1 long and T4 short", w)
	}
}

func TestOLSRatiosRestrictsToTickers(t *testing.T) {
	s, _ := NewOLSRatios(OLSOptions{Lookback: 5})
	w := growthPanel(t, 5, func(pe float64) float64 { return 0.01 * pe })

	got, err := s.CreatePortfolio(context.Background(), w, []string{"T1", "T4"})
	if err != nil {
		t.Fatalf("CreatePortfolio: %v", err)
	}
	want := map[string]float64{"T1": -1, "T4": 1}
	if !reflect.DeepEqual(weightsOf(got), want) {
		t.Errorf("weights = %v, want %v", weightsOf(got), want)
	}
}

func TestOLSRatiosEmptyWindow(t *testing.T) {
	s, _ := NewOLSRatios(OLSOptions{Lookback: 5})
	empty, err := panel.New(tickers, nil)
	if err != nil {
		t.Fatalf("panel.New: %v", err)
	}
	got, err := s.CreatePortfolio(context.Background(), empty, tickers)
	if err != nil || len(got) != 0 {
		t.Errorf("CreatePortfolio(empty) = %v, %v; want empty", got, err)
	}
}

func TestNewOLSRatiosValidates(t *testing.T) {
	if _, err := NewOLSRatios(OLSOptions{Lookback: 1}); err == nil {
		t.Error("accepted lookback 1")
	}
	if _, err := NewOLSRatios(OLSOptions{Lookback: 3, Rule: "decile"}); err == nil {
		t.Error("accepted decision rule decile")
	}
	if _, err := NewOLSRatios(OLSOptions{Lookback: 3, Features: []string{"ebit"}}); err == nil {
		t.Error("accepted unknown feature")
	}
}

func TestQuantile(t *testing.T) {
	data := []float64{1, 2, 3, 4}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{0.25, 1.75},
		{0.5, 2.5},
		{0.75, 3.25},
		{1, 4},
	}
	for _, tt := range tests {
		if got := quantile(data, tt.p); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("quantile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestRegisterBuiltins(t *testing.T) {
	r := strategy.NewRegistry()
	Register(r)

	want := []string{
		EqualWeightName,
		LogitMedianName, LogitOctileName, LogitQuartileName,
		OLSMedianName, OLSOctileName, OLSQuartileName,
	}
	if got := r.List(); !reflect.DeepEqual(got, want) {
		t.Fatalf("List() = %v, want %v", got, want)
	}
	for _, name := range want {
		s, err := r.New(name)
		if err != nil {
			t.Fatalf("New(%s): %v", name, err)
		}
		if s.Name() != name {
			t.Errorf("New(%s).Name() = %s", name, s.Name())
		}
	}
	s, _ := r.New(OLSOctileName)
	if got := strategy.Signature(s); got != "OLS_octile" {
		t.Errorf("Signature = %q, want OLS_octile", got)
	}
	s, _ = r.New(LogitQuartileName)
	if got := strategy.Signature(s); got != "Logit_quartile" {
		t.Errorf("Signature = %q, want Logit_quartile", got)
	}
}

func TestLogitRatiosMedian(t *testing.T) {
	s, err := NewLogitRatios(LogitOptions{Lookback: 5, Rule: RuleMedian})
	if err != nil {
		t.Fatalf("NewLogitRatios: %v", err)
	}
	w := growthPanel(t, 5, func(pe float64) float64 { return 0.01 * pe })

	got, err := s.CreatePortfolio(context.Background(), w, tickers)
	if err != nil {
		t.Fatalf("CreatePortfolio: %v", err)
	}
	want := map[string]float64{"T1": -0.5, "T2": -0.5, "T3": 0.5, "T4": 0.5}
	if !reflect.DeepEqual(weightsOf(got), want) {
		t.Errorf("weights = %v, want %v", weightsOf(got), want)
	}
}

func TestLogitRatiosTrainsOnce(t *testing.T) {
	rising := growthPanel(t, 5, func(pe float64) float64 { return 0.01 * pe })
	falling := growthPanel(t, 5, func(pe float64) float64 { return -0.01 * pe })

	once, _ := NewLogitRatios(LogitOptions{Lookback: 5})
	if _, err := once.CreatePortfolio(context.Background(), rising, tickers); err != nil {
		t.Fatalf("CreatePortfolio: %v", err)
	}
	got, err := once.CreatePortfolio(context.Background(), falling, tickers)
	if err != nil {
		t.Fatalf("CreatePortfolio: %v", err)
	}
	if w := weightsOf(got); w["T4"] != 0.5 {
		t.Errorf("trained-once weights = %v, want T4 long from the first fit", w)
	}

	retrain, _ := NewLogitRatios(LogitOptions{Lookback: 5, Retrain: true})
	if _, err := retrain.CreatePortfolio(context.Background(), rising, tickers); err != nil {
		t.Fatalf("CreatePortfolio: %v", err)
	}
	got, err = retrain.CreatePortfolio(context.Background(), falling, tickers)
	if err != nil {
		t.Fatalf("CreatePortfolio: %v", err)
	}
	if w := weightsOf(got); w["T4"] != -0.5 || w["T1"] != 0.5 {
		t.Errorf("retrained weights = %v, want T1 long and T4 short", w)
	}
}

func TestLogitRatiosEmptyWindow(t *testing.T) {
	s, _ := NewLogitRatios(LogitOptions{Lookback: 5})
	empty, err := panel.New(tickers, nil)
	if err != nil {
		t.Fatalf("panel.New: %v", err)
	}
	got, err := s.CreatePortfolio(context.Background(), empty, tickers)
	if err != nil || len(got) != 0 {
		t.Errorf("CreatePortfolio(empty) = %v, %v; want empty", got, err)
	}
}

func TestNewLogitRatiosValidates(t *testing.T) {
	tests := []struct {
		name string
		opts LogitOptions
	}{
		{"short lookback", LogitOptions{Lookback: 1}},
		{"unknown rule", LogitOptions{Lookback: 3, Rule: "decile"}},
		{"negative C", LogitOptions{Lookback: 3, C: -1}},
		{"nan C", LogitOptions{Lookback: 3, C: math.NaN()}},
		{"unknown feature", LogitOptions{Lookback: 3, Features: []string{"ebit"}}},
	}
	for _, tt := range tests {
		if _, err := NewLogitRatios(tt.opts); err == nil {
			t.Errorf("%s: NewLogitRatios accepted %+v", tt.name, tt.opts)
		}
	}
}

func TestReturnClasses(t *testing.T) {
	returns := []float64{8, 1, 2, 3, 4, 5, 6, 7}
	tests := []struct {
		rule DecisionRule
		want []int
	}{
		{RuleMedian, []int{1, 0, 0, 0, 0, 1, 1, 1}},
		{RuleQuartile, []int{3, 0, 0, 1, 1, 2, 2, 3}},
		{RuleOctile, []int{7, 0, 1, 2, 3, 4, 5, 6}},
	}
	for _, tt := range tests {
		if got := returnClasses(returns, tt.rule); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("returnClasses(%s) = %v, want %v", tt.rule, got, tt.want)
		}
	}
}

func TestLatestRowsOrderedAndFiltered(t *testing.T) {
	w := growthPanel(t, 3, func(float64) float64 { return 0 })
	names, rows := latestRows(w, []string{"T4", "T2", "ZZ"}, []string{"pe"})
	if want := []string{"T2", "T4"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	if rows[0][0] != 2 || rows[1][0] != 4 {
		t.Errorf("rows = %v, want pe 2 and 4", rows)
	}
}
