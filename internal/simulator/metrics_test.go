package simulator

import (
	"errors"
	"math"
	"testing"

	"panelsim/internal/domain"
)

func TestComputeMetrics(t *testing.T) {
	m, err := ComputeMetrics([]float64{100, 110, 90, 120}, 0)
	if err != nil {
		t.Fatalf("ComputeMetrics: %v", err)
	}
	if math.Abs(m.ReturnToDrawdown-120.0/90.0) > 1e-12 {
		t.Errorf("ReturnToDrawdown = %v, want %v", m.ReturnToDrawdown, 120.0/90.0)
	}
	if !m.SharpeDefined || math.Abs(m.Sharpe-0.5345224838248491) > 1e-9 {
		t.Errorf("Sharpe = %v (defined %v), want 0.5345224838", m.Sharpe, m.SharpeDefined)
	}
	if m.Periods != 3 || m.FinalValue != 120 || m.MinValue != 90 {
		t.Errorf("Metrics = %+v", m)
	}
	if math.Abs(m.TotalReturn-0.2) > 1e-12 {
		t.Errorf("TotalReturn = %v, want 0.2", m.TotalReturn)
	}
}

func TestComputeMetricsRiskFree(t *testing.T) {
	base, _ := ComputeMetrics([]float64{100, 110, 90, 120}, 0)
	m, err := ComputeMetrics([]float64{100, 110, 90, 120}, 0.01)
	if err != nil {
		t.Fatalf("ComputeMetrics: %v", err)
	}
	if math.Abs(m.MeanExcess-(base.MeanExcess-0.01)) > 1e-12 {
		t.Errorf("MeanExcess = %v, want %v", m.MeanExcess, base.MeanExcess-0.01)
	}
	if math.Abs(m.StdDev-base.StdDev) > 1e-12 {
		t.Errorf("StdDev = %v, want %v", m.StdDev, base.StdDev)
	}
	if m.ReturnToDrawdown != base.ReturnToDrawdown {
		t.Errorf("ReturnToDrawdown depends on the risk-free rate")
	}
}

func TestComputeMetricsDegenerate(t *testing.T) {
	tests := []struct {
		name    string
		history []float64
		rtd     float64
	}{
		{"flat", []float64{100, 100, 100}, 1},
		{"single return", []float64{100, 105}, 1.05},
		{"no returns", []float64{100}, 1},
	}
	for _, tt := range tests {
		m, err := ComputeMetrics(tt.history, 0)
		if !errors.Is(err, domain.ErrDegenerateMetric) {
			t.Errorf("%s: error = %v, want ErrDegenerateMetric", tt.name, err)
		}
		if m.SharpeDefined || !math.IsNaN(m.Sharpe) {
			t.Errorf("%s: Sharpe = %v (defined %v), want undefined", tt.name, m.Sharpe, m.SharpeDefined)
		}
		if m.ReturnToDrawdown != tt.rtd {
			t.Errorf("%s: ReturnToDrawdown = %v, want %v", tt.name, m.ReturnToDrawdown, tt.rtd)
		}
	}
}

func TestComputeMetricsNonPositiveMinimum(t *testing.T) {
	m, err := ComputeMetrics([]float64{100, 0, 50}, 0)
	if !errors.Is(err, domain.ErrDegenerateMetric) {
		t.Errorf("error = %v, want ErrDegenerateMetric", err)
	}
	if !math.IsNaN(m.ReturnToDrawdown) {
		t.Errorf("ReturnToDrawdown = %v, want NaN", m.ReturnToDrawdown)
	}
	if !m.SharpeDefined {
		t.Error("Sharpe should still be defined")
	}
}

func TestComputeMetricsEmpty(t *testing.T) {
	if _, err := ComputeMetrics(nil, 0); !errors.Is(err, domain.ErrDegenerateMetric) {
		t.Errorf("error = %v, want ErrDegenerateMetric", err)
	}
}
