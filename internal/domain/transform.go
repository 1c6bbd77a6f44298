package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// AggregateByCountry groups observations by country and derives the scaled
// metrics, the climate risk index and log PM2.5. Country values are grouped
// exactly as given; rows whose country is empty or whitespace are ignored.
// Results are sorted by country name.
func AggregateByCountry(observations []Observation) ([]CountryAggregate, error) {
	if len(observations) == 0 {
		return nil, ErrNoObservations
	}

	aggs := groupMeans(observations)
	if len(aggs) == 0 {
		return nil, fmt.Errorf("%w: every row has a blank country", ErrNoObservations)
	}

	for i := range aggs {
		if aggs[i].Mean.PM25 < 0 {
			return nil, fmt.Errorf("%w: %s has %g", ErrNegativePM25, aggs[i].Country, aggs[i].Mean.PM25)
		}
		aggs[i].LogPM25 = logPM25(aggs[i].Mean.PM25)
	}

	normalizeColumn(aggs, func(a *CountryAggregate) (float64, *float64) {
		return a.Mean.Temperature, &a.Normalized.Temperature
	})
	normalizeColumn(aggs, func(a *CountryAggregate) (float64, *float64) {
		return a.Mean.PM25, &a.Normalized.PM25
	})
	normalizeColumn(aggs, func(a *CountryAggregate) (float64, *float64) {
		return a.Mean.Precipitation, &a.Normalized.Precipitation
	})

	for i := range aggs {
		aggs[i].RiskIndex = riskIndex(aggs[i].Normalized)
	}
	return aggs, nil
}

// meanAcc accumulates a mean over present (non-NaN) values only.
type meanAcc struct {
	sum   float64
	count int
}

func (m *meanAcc) add(v float64) {
	if math.IsNaN(v) {
		return
	}
	m.sum += v
	m.count++
}

func (m meanAcc) mean() float64 {
	if m.count == 0 {
		return math.NaN()
	}
	return m.sum / float64(m.count)
}

type countryAcc struct {
	rows                      int
	temperature, pm25, precip meanAcc
}

func groupMeans(observations []Observation) []CountryAggregate {
	groups := make(map[string]*countryAcc)
	for _, o := range observations {
		country := o.Country
		if strings.TrimSpace(country) == "" {
			continue
		}
		acc, ok := groups[country]
		if !ok {
			acc = &countryAcc{}
			groups[country] = acc
		}
		acc.rows++
		acc.temperature.add(o.Temperature)
		acc.pm25.add(o.PM25)
		acc.precip.add(o.Precipitation)
	}

	aggs := make([]CountryAggregate, 0, len(groups))
	for country, acc := range groups {
		aggs = append(aggs, CountryAggregate{
			Country:      country,
			Observations: acc.rows,
			Mean: Metrics{
				Temperature:   acc.temperature.mean(),
				PM25:          acc.pm25.mean(),
				Precipitation: acc.precip.mean(),
			},
		})
	}
	sort.Slice(aggs, func(i, j int) bool { return aggs[i].Country < aggs[j].Country })
	return aggs
}

// normalizeColumn min-max scales one metric across all aggregates. The column
// accessor returns the raw value and where to store the scaled one. Absent raw
// values stay absent. With zero variance every present value scales to 0.
func normalizeColumn(aggs []CountryAggregate, column func(*CountryAggregate) (float64, *float64)) {
	present := make([]float64, 0, len(aggs))
	for i := range aggs {
		if v, _ := column(&aggs[i]); !math.IsNaN(v) {
			present = append(present, v)
		}
	}

	lo, hi := math.NaN(), math.NaN()
	if len(present) > 0 {
		lo, hi = floats.Min(present), floats.Max(present)
	}

	for i := range aggs {
		v, dst := column(&aggs[i])
		*dst = MinMax(v, lo, hi)
	}
}

// MinMax scales v from [lo, hi] to [0, 1]. Returns 0 when lo == hi and NaN
// when v is absent.
func MinMax(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return math.NaN()
	}
	span := hi - lo
	if span == 0 {
		return 0
	}
	return (v - lo) / span
}

func riskIndex(n Metrics) float64 {
	return n.Temperature + n.PM25 - n.Precipitation
}

func logPM25(meanPM25 float64) float64 {
	return math.Log10(meanPM25 + 1)
}
