package store

import (
	"math"
	"time"

	"panelsim/internal/simulator"
)

// RecordFromResult converts a simulation result into a run-history record.
// Undefined metrics are stored as NULL.
func RecordFromResult(res *simulator.Result) *RunRecord {
	rec := &RunRecord{
		Key:          res.Key(),
		RunID:        res.RunID.String(),
		Strategy:     res.Strategy,
		Signature:    res.Signature,
		Frequency:    string(res.Config.Frequency),
		Start:        res.Config.Start,
		End:          res.Config.End,
		InitialValue: res.Config.Portfolio.InitialValue,
		MaxLong:      res.Config.Portfolio.MaxLong,
		MaxShort:     res.Config.Portfolio.MaxShort,
		RiskFreeRate: res.Config.RiskFreeRate,
		ValueHistory: res.ValueHistory,
		TradedDates:  res.TradedDates,
		CapBreaches:  res.CapBreaches,
		CreatedAt:    time.Now().UTC(),
	}
	if res.Metrics.SharpeDefined {
		v := res.Metrics.Sharpe
		rec.Sharpe = &v
	}
	if v := res.Metrics.ReturnToDrawdown; !math.IsNaN(v) && !math.IsInf(v, 0) {
		rec.ReturnToDrawdown = &v
	}
	return rec
}
