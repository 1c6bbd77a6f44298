package http

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/climate-insights-service/internal/adapter/geo"
	"github.com/couchcryptid/climate-insights-service/internal/domain"
	"github.com/couchcryptid/climate-insights-service/internal/pipeline"
	"github.com/go-chi/chi/v5"
)

//go:embed static/index.html
var static embed.FS

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

type mapInfo struct {
	Type     domain.MapMetric `json:"type"`
	Title    string           `json:"title"`
	Property string           `json:"property"`
}

type citiesResponse struct {
	Cities  []string `json:"cities"`
	Default string   `json:"default"`
}

type reloadResponse struct {
	Fingerprint string    `json:"fingerprint"`
	LoadedAt    time.Time `json:"loaded_at"`
	Countries   int       `json:"countries"`
	Unmatched   int       `json:"unmatched_boundaries"`
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	page, err := static.ReadFile("static/index.html")
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "dashboard page unavailable"})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

func (s *Server) handleMaps(w http.ResponseWriter, _ *http.Request) {
	maps := make([]mapInfo, 0, len(domain.MapMetrics))
	for _, m := range domain.MapMetrics {
		maps = append(maps, mapInfo{Type: m, Title: m.Title(), Property: m.Property()})
	}
	writeJSON(w, http.StatusOK, maps)
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	metric, ok := mapMetric(w, r)
	if !ok {
		return
	}
	ds, ok := s.dataset(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, geo.EncodeMap(ds.Map.Rows, metric))
}

func (s *Server) handleMapPNG(w http.ResponseWriter, r *http.Request) {
	metric, ok := mapMetric(w, r)
	if !ok {
		return
	}
	ds, ok := s.dataset(w, r)
	if !ok {
		return
	}
	s.writePNG(w, func(out io.Writer) error {
		return s.deps.Renderer.Choropleth(out, ds.Map.Rows, metric)
	})
}

func (s *Server) handleCountries(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.dataset(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ds.Countries)
}

func (s *Server) handleCities(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.dataset(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, citiesResponse{
		Cities:  ds.Cities.Cities(),
		Default: ds.Cities.DefaultCity(s.deps.DefaultCity),
	})
}

func (s *Server) handleAirQuality(w http.ResponseWriter, r *http.Request) {
	ds, city, ok := s.cityRequest(w, r)
	if !ok {
		return
	}
	aq, err := s.analyzer(ds).AirQuality(city)
	if err != nil {
		writeCityError(w, city, err)
		return
	}
	writeJSON(w, http.StatusOK, aq)
}

func (s *Server) handleAirQualityPNG(w http.ResponseWriter, r *http.Request) {
	ds, city, ok := s.cityRequest(w, r)
	if !ok {
		return
	}
	aq, err := s.analyzer(ds).AirQuality(city)
	if err != nil {
		writeCityError(w, city, err)
		return
	}
	s.writePNG(w, func(out io.Writer) error {
		return s.deps.Renderer.AirQuality(out, aq)
	})
}

func (s *Server) handleClimate(w http.ResponseWriter, r *http.Request) {
	ds, city, ok := s.cityRequest(w, r)
	if !ok {
		return
	}
	mp, err := s.analyzer(ds).MonthlyPattern(city)
	if err != nil {
		writeCityError(w, city, err)
		return
	}
	writeJSON(w, http.StatusOK, mp)
}

func (s *Server) handleClimatePNG(w http.ResponseWriter, r *http.Request) {
	ds, city, ok := s.cityRequest(w, r)
	if !ok {
		return
	}
	mp, err := s.analyzer(ds).MonthlyPattern(city)
	if err != nil {
		writeCityError(w, city, err)
		return
	}
	s.writePNG(w, func(out io.Writer) error {
		return s.deps.Renderer.Monthly(out, mp)
	})
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	ds, city, ok := s.cityRequest(w, r)
	if !ok {
		return
	}
	history, err := ds.Cities.History(city)
	if err != nil {
		writeCityError(w, city, err)
		return
	}
	fc, err := s.deps.Forecaster.PredictNextDay(r.Context(), city, history)
	if err != nil {
		s.logger.Error("forecast failed", "city", city, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "forecast failed"})
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	s.deps.Datasets.Invalidate()
	if s.deps.Cache != nil {
		s.deps.Cache.Purge()
	}
	ds, ok := s.dataset(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, reloadResponse{
		Fingerprint: ds.Fingerprint,
		LoadedAt:    ds.LoadedAt,
		Countries:   len(ds.Countries),
		Unmatched:   ds.Map.Unmatched(),
	})
}

// dataset fetches the current dataset or writes a 503 carrying the load
// failure. The dashboard is unusable without data, so no route renders a
// partial result.
func (s *Server) dataset(w http.ResponseWriter, r *http.Request) (*pipeline.Dataset, bool) {
	ds, err := s.deps.Datasets.Get(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error:  loadErrorMessage(err),
			Detail: err.Error(),
		})
		return nil, false
	}
	return ds, true
}

func (s *Server) cityRequest(w http.ResponseWriter, r *http.Request) (*pipeline.Dataset, string, bool) {
	raw := chi.URLParam(r, "city")
	city, err := url.PathUnescape(raw)
	if err != nil {
		city = raw
	}
	if city == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "city is required"})
		return nil, "", false
	}
	ds, ok := s.dataset(w, r)
	if !ok {
		return nil, "", false
	}
	return ds, city, true
}

func (s *Server) analyzer(ds *pipeline.Dataset) domain.CityAnalyzer {
	if s.deps.Cache == nil {
		return ds.Cities
	}
	return s.deps.Cache.Wrap(ds.Cities)
}

// writePNG renders into a buffer first so a render failure can still be
// reported as a 500.
func (s *Server) writePNG(w http.ResponseWriter, render func(io.Writer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		s.logger.Error("chart render failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "chart render failed"})
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = buf.WriteTo(w)
}

func mapMetric(w http.ResponseWriter, r *http.Request) (domain.MapMetric, bool) {
	metric, err := domain.ParseMapMetric(r.URL.Query().Get("type"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return "", false
	}
	return metric, true
}

func writeCityError(w http.ResponseWriter, city string, err error) {
	if errors.Is(err, domain.ErrUnknownCity) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("No data available for %s.", city)})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

// loadErrorMessage turns a load failure into the message shown to users.
func loadErrorMessage(err error) string {
	var missing *domain.MissingFileError
	switch {
	case errors.As(err, &missing):
		return fmt.Sprintf("Critical file missing: %s. Ensure the observation CSV, boundary GeoJSON and model file are at their configured paths.", missing.Path)
	case errors.Is(err, domain.ErrMissingColumn):
		return "The observation file does not have the expected columns: " + err.Error()
	case errors.Is(err, domain.ErrNoObservations):
		return "The observation file contains no usable rows: " + err.Error()
	default:
		return "Application cannot start: an unexpected error occurred during data loading."
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
