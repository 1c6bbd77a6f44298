package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/climate-insights-service/internal/domain"
	"github.com/couchcryptid/climate-insights-service/internal/observability"
	"github.com/couchcryptid/climate-insights-service/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockObservations struct {
	obs []domain.Observation
	err error
}

func (m *mockObservations) ReadObservations(_ context.Context) ([]domain.Observation, error) {
	return m.obs, m.err
}

type mockBoundaries struct {
	boundaries []domain.Boundary
	err        error
}

func (m *mockBoundaries) ReadBoundaries(_ context.Context) ([]domain.Boundary, error) {
	return m.boundaries, m.err
}

type mockPublisher struct {
	fingerprint string
	loadedAt    time.Time
	published   []domain.CountryAggregate
	err         error
}

func (m *mockPublisher) PublishSnapshot(_ context.Context, fingerprint string, loadedAt time.Time, aggs []domain.CountryAggregate) error {
	if m.err != nil {
		return m.err
	}
	m.fingerprint = fingerprint
	m.loadedAt = loadedAt
	m.published = append(m.published, aggs...)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeInputs creates the three input files in a temp dir. Contents are
// irrelevant to the mocked sources; only existence and identity matter.
func writeInputs(t *testing.T) pipeline.Inputs {
	t.Helper()
	dir := t.TempDir()
	in := pipeline.Inputs{
		ObservationsPath: filepath.Join(dir, "weather.csv"),
		BoundariesPath:   filepath.Join(dir, "countries.geojson"),
		ModelPath:        filepath.Join(dir, "model.pkl"),
	}
	for _, p := range []string{in.ObservationsPath, in.BoundariesPath, in.ModelPath} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	}
	return in
}

func square(x float64) orb.Polygon {
	return orb.Polygon{orb.Ring{{x, 0}, {x + 1, 0}, {x + 1, 1}, {x, 1}, {x, 0}}}
}

func fixtureSources() (*mockObservations, *mockBoundaries) {
	obs := &mockObservations{obs: []domain.Observation{
		{Country: "A", City: "a1", Temperature: 10, PM25: 5, Precipitation: 0},
		{Country: "A", City: "a2", Temperature: 20, PM25: 15, Precipitation: 10},
		{Country: "B", City: "b1", Temperature: 30, PM25: 25, Precipitation: 20},
		{Country: "B", City: "b1", Temperature: 40, PM25: 35, Precipitation: 30},
	}}
	bounds := &mockBoundaries{boundaries: []domain.Boundary{
		{Name: "A", ISOA3: "AAA", Geometry: square(0)},
		{Name: "B", ISOA3: "BBB", Geometry: square(2)},
		{Name: "C", ISOA3: "CCC", Geometry: square(4)},
	}}
	return obs, bounds
}

func freezeClock(t *testing.T) clockwork.Clock {
	t.Helper()
	fakeClock := clockwork.NewFakeClockAt(time.Date(2024, time.May, 16, 12, 0, 0, 0, time.UTC))
	domain.SetClock(fakeClock)
	t.Cleanup(func() {
		domain.SetClock(nil)
	})
	return fakeClock
}

// --- tests ---

func TestPipeline_Load_HappyPath(t *testing.T) {
	clock := freezeClock(t)
	in := writeInputs(t)
	obs, bounds := fixtureSources()
	pub := &mockPublisher{}
	metrics := observability.NewMetricsForTesting()

	p := pipeline.New(in, obs, bounds, pub, discardLogger(), metrics)
	fp, err := p.Fingerprint()
	require.NoError(t, err)

	ds, err := p.Load(context.Background(), fp)
	require.NoError(t, err)

	assert.Equal(t, fp, ds.Fingerprint)
	assert.Equal(t, clock.Now(), ds.LoadedAt)
	assert.Len(t, ds.Observations, 4)
	require.Len(t, ds.Countries, 2)
	assert.Len(t, ds.Map.Rows, 3)
	assert.Equal(t, 2, ds.Map.Matched)
	assert.Nil(t, ds.Map.Rows[2].Stats)
	assert.Equal(t, []string{"a1", "a2", "b1"}, ds.Cities.Cities())
	assert.Equal(t, fp, ds.Cities.Version())

	assert.Equal(t, fp, pub.fingerprint)
	assert.Equal(t, clock.Now(), pub.loadedAt)
	if diff := cmp.Diff([]string{"A", "B"}, countryNames(pub.published)); diff != "" {
		t.Fatalf("published countries mismatch (-want +got):\n%s", diff)
	}

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.DatasetLoads.WithLabelValues("success")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.CountriesLoaded), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(metrics.ObservationsLoaded), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.UnmatchedBoundaries), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.SnapshotMessages), 0)
}

func TestPipeline_Load_WithoutPublisher(t *testing.T) {
	in := writeInputs(t)
	obs, bounds := fixtureSources()
	metrics := observability.NewMetricsForTesting()

	p := pipeline.New(in, obs, bounds, nil, discardLogger(), metrics)
	ds, err := p.Load(context.Background(), "fp")
	require.NoError(t, err)
	assert.Len(t, ds.Countries, 2)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.SnapshotMessages), 0)
}

func TestPipeline_Load_PublishErrorIsNotFatal(t *testing.T) {
	in := writeInputs(t)
	obs, bounds := fixtureSources()
	pub := &mockPublisher{err: errors.New("broker unavailable")}
	metrics := observability.NewMetricsForTesting()

	p := pipeline.New(in, obs, bounds, pub, discardLogger(), metrics)
	ds, err := p.Load(context.Background(), "fp")
	require.NoError(t, err)
	assert.NotNil(t, ds)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.SnapshotErrors), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.SnapshotMessages), 0)
}

func TestPipeline_Load_MissingModel(t *testing.T) {
	in := writeInputs(t)
	require.NoError(t, os.Remove(in.ModelPath))
	obs, bounds := fixtureSources()
	metrics := observability.NewMetricsForTesting()

	p := pipeline.New(in, obs, bounds, nil, discardLogger(), metrics)
	_, err := p.Load(context.Background(), "fp")
	require.ErrorIs(t, err, domain.ErrMissingFile)

	var mf *domain.MissingFileError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, "model", mf.Kind)
	assert.Equal(t, in.ModelPath, mf.Path)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.DatasetLoads.WithLabelValues("error")), 0)
}

func TestPipeline_Load_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*mockObservations, *mockBoundaries)
		wantErr error
	}{
		{
			name: "observation source",
			mutate: func(o *mockObservations, _ *mockBoundaries) {
				o.err = &domain.SchemaError{Missing: []domain.Field{domain.FieldCountry}}
			},
			wantErr: domain.ErrMissingColumn,
		},
		{
			name: "boundary source",
			mutate: func(_ *mockObservations, b *mockBoundaries) {
				b.err = &domain.MissingFileError{Kind: "boundaries", Path: "x"}
			},
			wantErr: domain.ErrMissingFile,
		},
		{
			name: "no observations",
			mutate: func(o *mockObservations, _ *mockBoundaries) {
				o.obs = nil
			},
			wantErr: domain.ErrNoObservations,
		},
		{
			name: "no matching countries",
			mutate: func(_ *mockObservations, b *mockBoundaries) {
				b.boundaries = []domain.Boundary{{Name: "Z", Geometry: square(0)}}
			},
			wantErr: domain.ErrNoMatchingCountries,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := writeInputs(t)
			obs, bounds := fixtureSources()
			tt.mutate(obs, bounds)
			pub := &mockPublisher{}

			p := pipeline.New(in, obs, bounds, pub, discardLogger(), observability.NewMetricsForTesting())
			ds, err := p.Load(context.Background(), "fp")
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, ds)
			assert.Empty(t, pub.published)
		})
	}
}

func TestPipeline_Fingerprint(t *testing.T) {
	in := writeInputs(t)
	obs, bounds := fixtureSources()
	p := pipeline.New(in, obs, bounds, nil, discardLogger(), observability.NewMetricsForTesting())

	first, err := p.Fingerprint()
	require.NoError(t, err)
	assert.Len(t, first, 16)

	again, err := p.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, first, again)

	require.NoError(t, os.WriteFile(in.ObservationsPath, []byte("changed contents"), 0o600))
	changed, err := p.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, first, changed)
}

func TestPipeline_Fingerprint_MissingFile(t *testing.T) {
	in := writeInputs(t)
	require.NoError(t, os.Remove(in.BoundariesPath))
	obs, bounds := fixtureSources()
	p := pipeline.New(in, obs, bounds, nil, discardLogger(), observability.NewMetricsForTesting())

	_, err := p.Fingerprint()
	var mf *domain.MissingFileError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, "boundaries", mf.Kind)
	assert.Contains(t, err.Error(), in.BoundariesPath)
}

// --- helpers ---

func countryNames(aggs []domain.CountryAggregate) []string {
	out := make([]string, len(aggs))
	for i, a := range aggs {
		out[i] = a.Country
	}
	return out
}
