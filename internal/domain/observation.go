package domain

import (
	"encoding/json"
	"math"
	"time"

	"github.com/paulmach/orb"
)

// Observation is one weather reading for a location at a point in time.
// Numeric fields are NaN when the source cell was empty or unparsable.
type Observation struct {
	Country       string
	City          string
	Timestamp     time.Time
	Temperature   float64 // °C
	PM25          float64 // µg/m³
	Precipitation float64 // mm
}

// Metrics holds one value per aggregated climate metric. Absent values are NaN.
type Metrics struct {
	Temperature   float64
	PM25          float64
	Precipitation float64
}

// CountryAggregate is the per-country summary used by the map.
type CountryAggregate struct {
	Country      string
	Observations int

	// Mean holds the unscaled arithmetic means.
	Mean Metrics
	// Normalized holds Mean min-max scaled across all countries.
	Normalized Metrics

	RiskIndex float64
	LogPM25   float64
}

type countryAggregateJSON struct {
	Country                 string   `json:"country"`
	Observations            int      `json:"observations"`
	TemperatureCelsius      *float64 `json:"temperature_celsius"`
	PM25                    *float64 `json:"pm2_5"`
	PrecipMM                *float64 `json:"precip_mm"`
	NormalizedTemperature   *float64 `json:"normalized_temperature"`
	NormalizedPM25          *float64 `json:"normalized_pm2_5"`
	NormalizedPrecipitation *float64 `json:"normalized_precip"`
	ClimateRiskIndex        *float64 `json:"climate_risk_index"`
	LogPM25                 *float64 `json:"log_pm2_5"`
}

// MarshalJSON encodes absent (NaN) values as null.
func (a CountryAggregate) MarshalJSON() ([]byte, error) {
	return json.Marshal(countryAggregateJSON{
		Country:                 a.Country,
		Observations:            a.Observations,
		TemperatureCelsius:      Optional(a.Mean.Temperature),
		PM25:                    Optional(a.Mean.PM25),
		PrecipMM:                Optional(a.Mean.Precipitation),
		NormalizedTemperature:   Optional(a.Normalized.Temperature),
		NormalizedPM25:          Optional(a.Normalized.PM25),
		NormalizedPrecipitation: Optional(a.Normalized.Precipitation),
		ClimateRiskIndex:        Optional(a.RiskIndex),
		LogPM25:                 Optional(a.LogPM25),
	})
}

// Optional returns nil for NaN or infinite values and a pointer to v otherwise.
func Optional(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Boundary is one country polygon from the boundary dataset.
type Boundary struct {
	Name     string
	ISOA3    string
	Geometry orb.Geometry
}

// MapRow is a boundary with its joined statistics. Stats is nil when the
// country has no observations.
type MapRow struct {
	Boundary
	Stats *CountryAggregate
}

// MapJoin is the result of joining aggregates onto boundaries.
type MapJoin struct {
	Rows []MapRow
	// Matched counts boundaries that received statistics.
	Matched int
	// Orphans lists aggregated countries with no boundary, sorted.
	Orphans []string
}

// Unmatched returns the number of boundaries without statistics.
func (j MapJoin) Unmatched() int {
	return len(j.Rows) - j.Matched
}
