package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/couchcryptid/climate-insights-service/internal/domain"
	"github.com/couchcryptid/climate-insights-service/internal/observability"
)

// ObservationSource reads the observation records.
type ObservationSource interface {
	ReadObservations(ctx context.Context) ([]domain.Observation, error)
}

// BoundarySource reads the country boundaries.
type BoundarySource interface {
	ReadBoundaries(ctx context.Context) ([]domain.Boundary, error)
}

// SnapshotPublisher receives the country aggregates after each successful load.
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, fingerprint string, loadedAt time.Time, aggs []domain.CountryAggregate) error
}

// Inputs names the files a load depends on. All three must exist.
type Inputs struct {
	ObservationsPath string
	BoundariesPath   string
	ModelPath        string
}

func (in Inputs) files() []struct{ kind, path string } {
	return []struct{ kind, path string }{
		{"observations", in.ObservationsPath},
		{"boundaries", in.BoundariesPath},
		{"model", in.ModelPath},
	}
}

// Dataset is the result of one load. It is never mutated after Load returns.
type Dataset struct {
	Observations []domain.Observation
	Countries    []domain.CountryAggregate
	Map          domain.MapJoin
	Cities       *domain.CityIndex
	Fingerprint  string
	LoadedAt     time.Time
}

// Pipeline orchestrates the read-aggregate-join cycle.
type Pipeline struct {
	inputs       Inputs
	observations ObservationSource
	boundaries   BoundarySource
	publisher    SnapshotPublisher
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// New creates a Pipeline. publisher may be nil to disable snapshot publishing.
func New(inputs Inputs, obs ObservationSource, bounds BoundarySource, publisher SnapshotPublisher, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		inputs:       inputs,
		observations: obs,
		boundaries:   bounds,
		publisher:    publisher,
		logger:       logger,
		metrics:      metrics,
	}
}

// Fingerprint identifies the current contents of the input files by path,
// size and modification time. A missing file yields a *domain.MissingFileError.
func (p *Pipeline) Fingerprint() (string, error) {
	h := sha256.New()
	for _, f := range p.inputs.files() {
		info, err := os.Stat(f.path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", &domain.MissingFileError{Kind: f.kind, Path: f.path}
			}
			return "", fmt.Errorf("stat %s file: %w", f.kind, err)
		}
		fmt.Fprintf(h, "%s\x00%d\x00%d\n", f.path, info.Size(), info.ModTime().UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil))[:16], nil
}

// Load reads both sources, aggregates, joins and indexes the result.
// Snapshot publish failures are logged and counted but do not fail the load.
func (p *Pipeline) Load(ctx context.Context, fingerprint string) (*Dataset, error) {
	start := time.Now()
	ds, err := p.load(ctx, fingerprint)
	if err != nil {
		p.metrics.DatasetLoads.WithLabelValues("error").Inc()
		p.logger.Error("dataset load failed", "fingerprint", fingerprint, "error", err)
		return nil, err
	}

	p.metrics.DatasetLoads.WithLabelValues("success").Inc()
	p.metrics.LoadDuration.Observe(time.Since(start).Seconds())
	p.metrics.CountriesLoaded.Set(float64(len(ds.Countries)))
	p.metrics.ObservationsLoaded.Set(float64(len(ds.Observations)))
	p.metrics.UnmatchedBoundaries.Set(float64(ds.Map.Unmatched()))

	p.logger.Info("dataset loaded",
		"fingerprint", fingerprint,
		"observations", len(ds.Observations),
		"countries", len(ds.Countries),
		"cities", len(ds.Cities.Cities()),
		"boundaries", len(ds.Map.Rows),
		"matched", ds.Map.Matched,
		"duration", time.Since(start),
	)

	p.publish(ctx, ds)
	return ds, nil
}

func (p *Pipeline) load(ctx context.Context, fingerprint string) (*Dataset, error) {
	if _, err := os.Stat(p.inputs.ModelPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.MissingFileError{Kind: "model", Path: p.inputs.ModelPath}
		}
		return nil, fmt.Errorf("stat model file: %w", err)
	}

	observations, err := p.observations.ReadObservations(ctx)
	if err != nil {
		return nil, err
	}
	boundaries, err := p.boundaries.ReadBoundaries(ctx)
	if err != nil {
		return nil, err
	}

	countries, err := domain.AggregateByCountry(observations)
	if err != nil {
		return nil, fmt.Errorf("aggregate observations: %w", err)
	}

	join, err := domain.JoinBoundaries(boundaries, countries)
	if err != nil {
		return nil, fmt.Errorf("join boundaries: %w", err)
	}
	if len(join.Orphans) > 0 {
		p.logger.Warn("countries without boundary", "count", len(join.Orphans), "countries", join.Orphans)
	}

	return &Dataset{
		Observations: observations,
		Countries:    countries,
		Map:          join,
		Cities:       domain.NewCityIndex(fingerprint, observations),
		Fingerprint:  fingerprint,
		LoadedAt:     domain.Now(),
	}, nil
}

func (p *Pipeline) publish(ctx context.Context, ds *Dataset) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishSnapshot(ctx, ds.Fingerprint, ds.LoadedAt, ds.Countries); err != nil {
		p.metrics.SnapshotErrors.Inc()
		p.logger.Error("snapshot publish failed", "fingerprint", ds.Fingerprint, "error", err)
		return
	}
	p.metrics.SnapshotMessages.Add(float64(len(ds.Countries)))
}
