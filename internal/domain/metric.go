package domain

import (
	"fmt"
	"math"
)

// MapMetric selects the value used to colour the choropleth.
type MapMetric string

const (
	MetricRisk        MapMetric = "risk"
	MetricTemperature MapMetric = "temperature"
	MetricPM25        MapMetric = "pm25"
)

// MapMetrics lists the selectable maps in display order.
var MapMetrics = []MapMetric{MetricRisk, MetricTemperature, MetricPM25}

// ParseMapMetric maps a query value to a metric. Empty selects MetricRisk.
func ParseMapMetric(s string) (MapMetric, error) {
	if s == "" {
		return MetricRisk, nil
	}
	for _, m := range MapMetrics {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown map type %q", s)
}

// Title is the human-readable map name.
func (m MapMetric) Title() string {
	switch m {
	case MetricTemperature:
		return "Average Temperature"
	case MetricPM25:
		return "PM2.5 Air Quality (Log Scale)"
	default:
		return "Climate Risk Hotspots"
	}
}

// Property is the feature property name carrying the metric.
func (m MapMetric) Property() string {
	switch m {
	case MetricTemperature:
		return "temperature_celsius"
	case MetricPM25:
		return "log_pm2_5"
	default:
		return "climate_risk_index"
	}
}

// Value extracts the metric from an aggregate. Returns NaN for a nil aggregate.
func (m MapMetric) Value(a *CountryAggregate) float64 {
	if a == nil {
		return math.NaN()
	}
	switch m {
	case MetricTemperature:
		return a.Mean.Temperature
	case MetricPM25:
		return a.LogPM25
	default:
		return a.RiskIndex
	}
}

// Range returns the min and max of the metric over matched rows, skipping
// absent values. ok is false when no row has a value.
func (m MapMetric) Range(rows []MapRow) (lo, hi float64, ok bool) {
	for _, r := range rows {
		v := m.Value(r.Stats)
		if math.IsNaN(v) {
			continue
		}
		if !ok {
			lo, hi, ok = v, v, true
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi, ok
}
