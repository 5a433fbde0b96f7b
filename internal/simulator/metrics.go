package simulator

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"panelsim/internal/domain"
)

// Metrics summarises a value history.
type Metrics struct {
	// ReturnToDrawdown is the final value divided by the minimum value.
	ReturnToDrawdown float64
	// Sharpe is mean(r)/stdev(r) over the excess returns
	// r_t = v_t/v_0 - 1 - rf for t >= 1, with the population stdev.
	Sharpe        float64
	SharpeDefined bool

	MeanExcess  float64
	StdDev      float64
	FinalValue  float64
	MinValue    float64
	TotalReturn float64
	Periods     int
}

// ComputeMetrics computes return-to-drawdown and the Sharpe ratio of a value
// history whose first element is the initial value.
//
// When the Sharpe ratio is undefined (fewer than two values or zero
// variance) the returned Metrics has SharpeDefined false and the error wraps
// ErrDegenerateMetric; the other fields are still filled in. A non-positive
// minimum value makes return-to-drawdown undefined in the same way.
func ComputeMetrics(history []float64, riskFreeRate float64) (Metrics, error) {
	if len(history) == 0 {
		return Metrics{}, fmt.Errorf("empty value history: %w", domain.ErrDegenerateMetric)
	}

	m := Metrics{
		FinalValue:  history[len(history)-1],
		MinValue:    floats.Min(history),
		TotalReturn: history[len(history)-1]/history[0] - 1,
		Periods:     len(history) - 1,
	}

	var degenerate []string
	if m.MinValue > 0 {
		m.ReturnToDrawdown = m.FinalValue / m.MinValue
	} else {
		m.ReturnToDrawdown = math.NaN()
		degenerate = append(degenerate, fmt.Sprintf("return-to-drawdown with minimum value %v", m.MinValue))
	}

	if m.Periods < 1 {
		m.Sharpe = math.NaN()
		degenerate = append(degenerate, "sharpe over no returns")
	} else {
		excess := make([]float64, m.Periods)
		for t := 1; t < len(history); t++ {
			excess[t-1] = history[t]/history[0] - 1 - riskFreeRate
		}
		m.MeanExcess, m.StdDev = stat.PopMeanStdDev(excess, nil)
		if m.StdDev > 0 {
			m.Sharpe = m.MeanExcess / m.StdDev
			m.SharpeDefined = true
		} else {
			m.Sharpe = math.NaN()
			degenerate = append(degenerate, fmt.Sprintf("sharpe with zero variance over %d returns", m.Periods))
		}
	}

	if len(degenerate) > 0 {
		return m, fmt.Errorf("%v: %w", degenerate, domain.ErrDegenerateMetric)
	}
	return m, nil
}
