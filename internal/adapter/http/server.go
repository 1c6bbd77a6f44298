package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/climate-insights-service/internal/adapter/cache"
	"github.com/couchcryptid/climate-insights-service/internal/adapter/chart"
	"github.com/couchcryptid/climate-insights-service/internal/domain"
	"github.com/couchcryptid/climate-insights-service/internal/observability"
	"github.com/couchcryptid/climate-insights-service/internal/pipeline"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DatasetProvider returns the current dataset. *pipeline.Memo implements it.
type DatasetProvider interface {
	sharedobs.ReadinessChecker
	Get(ctx context.Context) (*pipeline.Dataset, error)
	Invalidate()
}

// Dependencies are the collaborators the dashboard handlers need.
// Cache may be nil.
type Dependencies struct {
	Datasets    DatasetProvider
	Forecaster  domain.Forecaster
	Cache       *cache.AnalysisCache
	Renderer    *chart.Renderer
	Metrics     *observability.Metrics
	DefaultCity string
}

// Server serves the dashboard page, its JSON and PNG API, and the health,
// readiness and metrics endpoints.
type Server struct {
	httpServer *http.Server
	deps       Dependencies
	logger     *slog.Logger
}

// NewServer creates an HTTP server with every dashboard route registered.
func NewServer(addr string, deps Dependencies, logger *slog.Logger) *Server {
	if deps.Renderer == nil {
		deps.Renderer = chart.NewRenderer()
	}

	s := &Server{deps: deps, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(s.instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", s.handleIndex)
	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(deps.Datasets))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/maps", s.handleMaps)
		r.Get("/map", s.handleMap)
		r.Get("/map.png", s.handleMapPNG)
		r.Get("/countries", s.handleCountries)
		r.Post("/reload", s.handleReload)

		r.Route("/cities", func(r chi.Router) {
			r.Get("/", s.handleCities)
			r.Get("/{city}/air-quality", s.handleAirQuality)
			r.Get("/{city}/air-quality.png", s.handleAirQualityPNG)
			r.Get("/{city}/climate", s.handleClimate)
			r.Get("/{city}/climate.png", s.handleClimatePNG)
			r.Get("/{city}/forecast", s.handleForecast)
		})
	})

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// instrument logs each request and counts it by route pattern and status.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		if s.deps.Metrics != nil {
			s.deps.Metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		}
		s.logger.Debug("http request",
			"method", r.Method,
			"route", route,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
