package domain

import (
	"context"
	"time"
)

// Forecast is a next-day temperature prediction for a city.
type Forecast struct {
	City         string    `json:"city"`
	TemperatureC float64   `json:"temperature_celsius"`
	Static       bool      `json:"static"`
	Note         string    `json:"note,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
}

// Forecaster predicts next-day temperature from a city's history.
type Forecaster interface {
	PredictNextDay(ctx context.Context, city string, history []Observation) (Forecast, error)
}

const (
	staticForecastC    = 18.5
	staticForecastNote = "This forecast model was trained on London data and is used here as a proof-of-concept."
)

// StaticForecaster returns the same value for every city. The trained model
// is never queried; history is ignored.
type StaticForecaster struct {
	TemperatureC float64
	Note         string
}

// NewStaticForecaster returns the proof-of-concept forecaster (18.5 °C).
func NewStaticForecaster() *StaticForecaster {
	return &StaticForecaster{TemperatureC: staticForecastC, Note: staticForecastNote}
}

func (f *StaticForecaster) PredictNextDay(_ context.Context, city string, _ []Observation) (Forecast, error) {
	return Forecast{
		City:         city,
		TemperatureC: f.TemperatureC,
		Static:       true,
		Note:         f.Note,
		IssuedAt:     clock.Now(),
	}, nil
}
