// Package domain defines the core value types shared across the simulator:
// panel observations, target allocations, rebalance frequencies and the
// error kinds reported by the data, portfolio and simulation layers.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date format used for all panel dates.
const DateLayout = "2006-01-02"

// AllTickers selects every ticker in date-range queries.
const AllTickers = "all"

// ---------------------------------------------------------------------------
// Observation
// ---------------------------------------------------------------------------

// Observation is one (ticker, date) row of the historical panel.
type Observation struct {
	Ticker string
	Date   time.Time

	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64

	OutstandingShare float64
	Turnover         float64
	PE               float64
	PETTM            float64
	PB               float64
	PS               float64
	PSTTM            float64
	DVRatio          float64
	DVTTM            float64
	TotalMV          float64
	QFQFactor        float64

	// Price is (Open+Close)/2. It is filled in by the panel constructor.
	Price float64
}

// MidPrice returns (Open+Close)/2.
func (o Observation) MidPrice() float64 {
	return (o.Open + o.Close) / 2
}

// Feature names recognised by Observation.Feature.
const (
	FeatureOpen             = "open"
	FeatureHigh             = "high"
	FeatureLow              = "low"
	FeatureClose            = "close"
	FeatureVolume           = "volume"
	FeatureOutstandingShare = "outstanding_share"
	FeatureTurnover         = "turnover"
	FeaturePE               = "pe"
	FeaturePETTM            = "pe_ttm"
	FeaturePB               = "pb"
	FeaturePS               = "ps"
	FeaturePSTTM            = "ps_ttm"
	FeatureDVRatio          = "dv_ratio"
	FeatureDVTTM            = "dv_ttm"
	FeatureTotalMV          = "total_mv"
	FeatureQFQFactor        = "qfq_factor"
	FeaturePrice            = "price"
)

// FeatureNames lists the panel features in their canonical column order.
var FeatureNames = []string{
	FeatureOpen, FeatureHigh, FeatureLow, FeatureClose, FeatureVolume,
	FeatureOutstandingShare, FeatureTurnover, FeaturePE, FeaturePETTM,
	FeaturePB, FeaturePS, FeaturePSTTM, FeatureDVRatio, FeatureDVTTM,
	FeatureTotalMV, FeatureQFQFactor,
}

// RatioFeatures are the fundamental ratios used as regression inputs.
var RatioFeatures = []string{
	FeatureOutstandingShare, FeatureTurnover, FeaturePE, FeaturePETTM,
	FeaturePB, FeaturePS, FeaturePSTTM, FeatureDVRatio, FeatureDVTTM,
	FeatureTotalMV, FeatureQFQFactor,
}

var featureDescriptions = map[string]string{
	FeatureOpen:             "open price of the trading day",
	FeatureHigh:             "highest price of the trading day",
	FeatureLow:              "lowest price of the trading day",
	FeatureClose:            "close price of the trading day",
	FeatureVolume:           "trading volume of the trading day",
	FeatureOutstandingShare: "shares currently held by all shareholders",
	FeatureTurnover:         "shares traded divided by average shares outstanding",
	FeaturePE:               "price to earnings ratio",
	FeaturePETTM:            "share price divided by the last 4 quarterly EPS",
	FeaturePB:               "price to book ratio",
	FeaturePS:               "price to sales ratio",
	FeaturePSTTM:            "trailing 12 months price to sales ratio",
	FeatureDVRatio:          "dividend yield ratio",
	FeatureDVTTM:            "trailing 12 months dividend yield ratio",
	FeatureTotalMV:          "total market capitalization",
	FeatureQFQFactor:        "price adjustment factor",
	FeaturePrice:            "(open + close) / 2",
}

// FeatureDescription returns a one-line description of a feature, or an
// ErrInvalidFeature error for unknown names.
func FeatureDescription(name string) (string, error) {
	d, ok := featureDescriptions[name]
	if !ok {
		return "", fmt.Errorf("feature %q: %w", name, ErrInvalidFeature)
	}
	return d, nil
}

// Feature returns the value of the named feature.
func (o Observation) Feature(name string) (float64, error) {
	switch name {
	case FeatureOpen:
		return o.Open, nil
	case FeatureHigh:
		return o.High, nil
	case FeatureLow:
		return o.Low, nil
	case FeatureClose:
		return o.Close, nil
	case FeatureVolume:
		return o.Volume, nil
	case FeatureOutstandingShare:
		return o.OutstandingShare, nil
	case FeatureTurnover:
		return o.Turnover, nil
	case FeaturePE:
		return o.PE, nil
	case FeaturePETTM:
		return o.PETTM, nil
	case FeaturePB:
		return o.PB, nil
	case FeaturePS:
		return o.PS, nil
	case FeaturePSTTM:
		return o.PSTTM, nil
	case FeatureDVRatio:
		return o.DVRatio, nil
	case FeatureDVTTM:
		return o.DVTTM, nil
	case FeatureTotalMV:
		return o.TotalMV, nil
	case FeatureQFQFactor:
		return o.QFQFactor, nil
	case FeaturePrice:
		return o.Price, nil
	}
	return 0, fmt.Errorf("feature %q: %w", name, ErrInvalidFeature)
}

// ---------------------------------------------------------------------------
// Dates
// ---------------------------------------------------------------------------

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses an ISO calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: %w", s, ErrInvalidDate)
	}
	return t, nil
}

// FormatDate renders t as an ISO calendar date.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ---------------------------------------------------------------------------
// Frequency
// ---------------------------------------------------------------------------

// Frequency is the rebalance period of a simulation.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// ParseFrequency validates a frequency name.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(strings.ToLower(strings.TrimSpace(s))); f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return f, nil
	}
	return "", fmt.Errorf("frequency %q: %w", s, ErrInvalidFrequency)
}

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

// Weight is a signed fraction of portfolio value allocated to a ticker.
// Positive is long, negative is short.
type Weight struct {
	Ticker string
	Weight float64
}

// Allocation is an ordered ticker -> weight mapping. The order is the
// iteration order used when allocation caps are applied.
type Allocation []Weight

// Totals returns the summed long and short (as a positive number) weights.
func (a Allocation) Totals() (long, short float64) {
	for _, w := range a {
		if w.Weight >= 0 {
			long += w.Weight
		} else {
			short -= w.Weight
		}
	}
	return long, short
}

// Clone returns a copy of a.
func (a Allocation) Clone() Allocation {
	if a == nil {
		return nil
	}
	out := make(Allocation, len(a))
	copy(out, a)
	return out
}
