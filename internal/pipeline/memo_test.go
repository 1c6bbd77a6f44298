package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/climate-insights-service/internal/domain"
	"github.com/couchcryptid/climate-insights-service/internal/observability"
	"github.com/couchcryptid/climate-insights-service/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLoader struct {
	mu             sync.Mutex
	fingerprint    string
	fingerprintErr error
	loadErr        error
	loads          int

	// started and release, when set, hold Load open until release is closed.
	started chan struct{}
	release chan struct{}
}

func (m *mockLoader) Fingerprint() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fingerprint, m.fingerprintErr
}

func (m *mockLoader) Load(ctx context.Context, fingerprint string) (*pipeline.Dataset, error) {
	if m.release != nil {
		close(m.started)
		<-m.release
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return &pipeline.Dataset{Fingerprint: fingerprint}, nil
}

func (m *mockLoader) set(fingerprint string, loadErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fingerprint = fingerprint
	m.loadErr = loadErr
}

func (m *mockLoader) loadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads
}

func newTestMemo(loader pipeline.DatasetLoader) (*pipeline.Memo, *observability.Metrics) {
	metrics := observability.NewMetricsForTesting()
	return pipeline.NewMemo(loader, discardLogger(), metrics), metrics
}

func TestMemo_ReturnsCachedDataset(t *testing.T) {
	loader := &mockLoader{fingerprint: "v1"}
	memo, metrics := newTestMemo(loader)
	ctx := context.Background()

	first, err := memo.Get(ctx)
	require.NoError(t, err)
	second, err := memo.Get(ctx)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, loader.loadCount())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.MemoLookups.WithLabelValues("miss")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.MemoLookups.WithLabelValues("hit")), 0)
}

func TestMemo_ReloadsWhenFingerprintChanges(t *testing.T) {
	loader := &mockLoader{fingerprint: "v1"}
	memo, _ := newTestMemo(loader)
	ctx := context.Background()

	first, err := memo.Get(ctx)
	require.NoError(t, err)

	loader.set("v2", nil)
	second, err := memo.Get(ctx)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, "v2", second.Fingerprint)
	assert.Equal(t, 2, loader.loadCount())
}

func TestMemo_FailedLoadIsCachedUntilInputsChange(t *testing.T) {
	loader := &mockLoader{fingerprint: "v1", loadErr: domain.ErrNoMatchingCountries}
	memo, _ := newTestMemo(loader)
	ctx := context.Background()

	_, err := memo.Get(ctx)
	require.ErrorIs(t, err, domain.ErrNoMatchingCountries)
	_, err = memo.Get(ctx)
	require.ErrorIs(t, err, domain.ErrNoMatchingCountries)
	assert.Equal(t, 1, loader.loadCount())

	loader.set("v2", nil)
	ds, err := memo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", ds.Fingerprint)
	assert.Equal(t, 2, loader.loadCount())
}

func TestMemo_Invalidate(t *testing.T) {
	loader := &mockLoader{fingerprint: "v1", loadErr: errors.New("boom")}
	memo, _ := newTestMemo(loader)
	ctx := context.Background()

	_, err := memo.Get(ctx)
	require.Error(t, err)

	loader.set("v1", nil)
	memo.Invalidate()

	ds, err := memo.Get(ctx)
	require.NoError(t, err)
	assert.NotNil(t, ds)
	assert.Equal(t, 2, loader.loadCount())
}

func TestMemo_FingerprintErrorIsNotCached(t *testing.T) {
	missing := &domain.MissingFileError{Kind: "observations", Path: "weather.csv"}
	loader := &mockLoader{fingerprintErr: missing}
	memo, _ := newTestMemo(loader)
	ctx := context.Background()

	_, err := memo.Get(ctx)
	require.ErrorIs(t, err, domain.ErrMissingFile)
	assert.Equal(t, 0, loader.loadCount())

	readyErr := memo.CheckReadiness(ctx)
	require.Error(t, readyErr)
	assert.Contains(t, readyErr.Error(), "weather.csv")

	loader.mu.Lock()
	loader.fingerprintErr = nil
	loader.fingerprint = "v1"
	loader.mu.Unlock()

	_, err = memo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, loader.loadCount())
}

func TestMemo_CancelledLoadIsNotCached(t *testing.T) {
	loader := &mockLoader{fingerprint: "v1"}
	memo, _ := newTestMemo(loader)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := memo.Get(ctx)
	require.ErrorIs(t, err, context.Canceled)

	ds, err := memo.Get(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, ds)
	assert.Equal(t, 2, loader.loadCount())
}

func TestMemo_CheckReadiness(t *testing.T) {
	loader := &mockLoader{fingerprint: "v1"}
	memo, _ := newTestMemo(loader)
	ctx := context.Background()

	require.Error(t, memo.CheckReadiness(ctx))

	_, err := memo.Get(ctx)
	require.NoError(t, err)
	require.NoError(t, memo.CheckReadiness(ctx))

	loader.set("v2", domain.ErrNoObservations)
	_, err = memo.Get(ctx)
	require.Error(t, err)

	readyErr := memo.CheckReadiness(ctx)
	require.ErrorIs(t, readyErr, domain.ErrNoObservations)
}

func TestMemo_ConcurrentGetsShareOneLoad(t *testing.T) {
	loader := &mockLoader{fingerprint: "v1"}
	memo, _ := newTestMemo(loader)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := memo.Get(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, loader.loadCount())
}

func TestMemo_CheckReadinessDoesNotWaitForLoad(t *testing.T) {
	loader := &mockLoader{
		fingerprint: "v1",
		started:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	memo, _ := newTestMemo(loader)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := memo.Get(ctx)
		done <- err
	}()
	<-loader.started

	readiness := make(chan error, 1)
	go func() { readiness <- memo.CheckReadiness(ctx) }()

	select {
	case err := <-readiness:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not been loaded yet")
	case <-time.After(2 * time.Second):
		t.Fatal("CheckReadiness blocked while a load was in progress")
	}

	close(loader.release)
	require.NoError(t, <-done)
	require.NoError(t, memo.CheckReadiness(ctx))
}
