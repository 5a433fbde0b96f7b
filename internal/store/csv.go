package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"panelsim/internal/domain"
)

// ReadTickersCSV reads a ticker registry from a CSV with a "ticker" column.
// Duplicates are collapsed and the result is sorted.
func ReadTickersCSV(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	col := -1
	for i, h := range header {
		if strings.TrimSpace(h) == "ticker" {
			col = i
		}
	}
	if col < 0 {
		return nil, errors.New(`ticker CSV has no "ticker" column`)
	}

	seen := make(map[string]struct{})
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if t := strings.TrimSpace(rec[col]); t != "" {
			seen[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

// ReadObservationsCSV reads daily observations from a CSV whose header names
// a "ticker" column, a "date" column (YYYY-MM-DD) and any of the panel
// features. Unknown columns are ignored; empty feature cells read as NaN.
func ReadObservationsCSV(r io.Reader) ([]domain.Observation, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	tickerCol, dateCol := -1, -1
	features := make(map[int]string)
	for i, h := range header {
		h = strings.TrimSpace(h)
		switch h {
		case "ticker":
			tickerCol = i
		case "date":
			dateCol = i
		default:
			if _, err := (domain.Observation{}).Feature(h); err == nil && h != domain.FeaturePrice {
				features[i] = h
			}
		}
	}
	if tickerCol < 0 || dateCol < 0 {
		return nil, errors.New(`observation CSV needs "ticker" and "date" columns`)
	}

	var obs []domain.Observation
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		d, err := domain.ParseDate(strings.TrimSpace(rec[dateCol]))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		o := domain.Observation{Ticker: strings.TrimSpace(rec[tickerCol]), Date: d}
		for i, name := range features {
			v, err := parseCell(rec[i])
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, name, err)
			}
			setFeature(&o, name, v)
		}
		obs = append(obs, o)
	}
	return obs, nil
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func setFeature(o *domain.Observation, name string, v float64) {
	switch name {
	case domain.FeatureOpen:
		o.Open = v
	case domain.FeatureHigh:
		o.High = v
	case domain.FeatureLow:
		o.Low = v
	case domain.FeatureClose:
		o.Close = v
	case domain.FeatureVolume:
		o.Volume = v
	case domain.FeatureOutstandingShare:
		o.OutstandingShare = v
	case domain.FeatureTurnover:
		o.Turnover = v
	case domain.FeaturePE:
		o.PE = v
	case domain.FeaturePETTM:
		o.PETTM = v
	case domain.FeaturePB:
		o.PB = v
	case domain.FeaturePS:
		o.PS = v
	case domain.FeaturePSTTM:
		o.PSTTM = v
	case domain.FeatureDVRatio:
		o.DVRatio = v
	case domain.FeatureDVTTM:
		o.DVTTM = v
	case domain.FeatureTotalMV:
		o.TotalMV = v
	case domain.FeatureQFQFactor:
		o.QFQFactor = v
	}
}
