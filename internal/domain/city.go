package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"
)

// CityAnalyzer produces the per-city chart data.
type CityAnalyzer interface {
	// Version identifies the dataset the analyzer was built from.
	Version() string
	AirQuality(city string) (AirQuality, error)
	MonthlyPattern(city string) (MonthlyPattern, error)
}

// ScatterPoint is one (temperature, PM2.5) reading.
type ScatterPoint struct {
	Temperature float64 `json:"temperature_celsius"`
	PM25        float64 `json:"pm2_5"`
}

// Trendline is an ordinary least squares fit of PM2.5 on temperature.
type Trendline struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	RSquared  float64 `json:"r_squared"`
}

// At evaluates the fitted line.
func (t Trendline) At(temperature float64) float64 {
	return t.Intercept + t.Slope*temperature
}

// AirQuality is the PM2.5 vs temperature view for a city.
type AirQuality struct {
	City      string         `json:"city"`
	Points    []ScatterPoint `json:"points"`
	Trendline *Trendline     `json:"trendline,omitempty"`
}

// MonthlyMean is the average temperature of one calendar month.
type MonthlyMean struct {
	Month       time.Month `json:"month"`
	Name        string     `json:"month_name"`
	Temperature float64    `json:"temperature_celsius"`
}

// MonthlyPattern lists monthly means in calendar order, for months with data.
type MonthlyPattern struct {
	City   string        `json:"city"`
	Months []MonthlyMean `json:"months"`
}

// CityIndex groups observations by city. It is immutable after construction.
type CityIndex struct {
	version string
	byCity  map[string][]Observation
	names   []string
}

// NewCityIndex indexes observations by city, skipping blank city names.
func NewCityIndex(version string, observations []Observation) *CityIndex {
	idx := &CityIndex{version: version, byCity: make(map[string][]Observation)}
	for _, o := range observations {
		city := strings.TrimSpace(o.City)
		if city == "" {
			continue
		}
		if _, ok := idx.byCity[city]; !ok {
			idx.names = append(idx.names, city)
		}
		idx.byCity[city] = append(idx.byCity[city], o)
	}
	sort.Strings(idx.names)
	return idx
}

func (c *CityIndex) Version() string { return c.version }

// Cities returns the sorted distinct city names.
func (c *CityIndex) Cities() []string {
	return append([]string(nil), c.names...)
}

// DefaultCity returns preferred when present, otherwise the first city.
// Returns "" for an empty index.
func (c *CityIndex) DefaultCity(preferred string) string {
	if _, ok := c.byCity[preferred]; ok {
		return preferred
	}
	if len(c.names) == 0 {
		return ""
	}
	return c.names[0]
}

// History returns the observations recorded for city.
func (c *CityIndex) History(city string) ([]Observation, error) {
	obs, ok := c.byCity[city]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCity, city)
	}
	return obs, nil
}

// AirQuality returns the readings with both temperature and PM2.5 present and,
// given at least two points with distinct temperatures, an OLS trendline.
func (c *CityIndex) AirQuality(city string) (AirQuality, error) {
	obs, err := c.History(city)
	if err != nil {
		return AirQuality{}, err
	}

	aq := AirQuality{City: city, Points: make([]ScatterPoint, 0, len(obs))}
	xs := make([]float64, 0, len(obs))
	ys := make([]float64, 0, len(obs))
	for _, o := range obs {
		if math.IsNaN(o.Temperature) || math.IsNaN(o.PM25) {
			continue
		}
		aq.Points = append(aq.Points, ScatterPoint{Temperature: o.Temperature, PM25: o.PM25})
		xs = append(xs, o.Temperature)
		ys = append(ys, o.PM25)
	}

	if len(xs) >= 2 && stat.Variance(xs, nil) > 0 {
		alpha, beta := stat.LinearRegression(xs, ys, nil, false)
		r2 := stat.RSquared(xs, ys, nil, alpha, beta)
		if math.IsNaN(r2) {
			// constant PM2.5 is fit exactly by a flat line
			r2 = 1
		}
		aq.Trendline = &Trendline{Slope: beta, Intercept: alpha, RSquared: r2}
	}
	return aq, nil
}

// MonthlyPattern averages temperature per calendar month. Readings with no
// timestamp or no temperature are skipped.
func (c *CityIndex) MonthlyPattern(city string) (MonthlyPattern, error) {
	obs, err := c.History(city)
	if err != nil {
		return MonthlyPattern{}, err
	}

	var months [12]meanAcc
	for _, o := range obs {
		if o.Timestamp.IsZero() {
			continue
		}
		months[o.Timestamp.Month()-1].add(o.Temperature)
	}

	mp := MonthlyPattern{City: city}
	for i, acc := range months {
		if acc.count == 0 {
			continue
		}
		m := time.Month(i + 1)
		mp.Months = append(mp.Months, MonthlyMean{
			Month:       m,
			Name:        m.String()[:3],
			Temperature: acc.mean(),
		})
	}
	return mp, nil
}
