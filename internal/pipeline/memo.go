package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/couchcryptid/climate-insights-service/internal/observability"
)

// DatasetLoader produces a Dataset for the current input files.
// *Pipeline implements it.
type DatasetLoader interface {
	Fingerprint() (string, error)
	Load(ctx context.Context, fingerprint string) (*Dataset, error)
}

// Memo caches the outcome of the last load keyed on the input fingerprint.
// A failed load is cached too and is returned until the inputs change or
// Invalidate is called. Concurrent callers share a single load.
type Memo struct {
	loader  DatasetLoader
	logger  *slog.Logger
	metrics *observability.Metrics

	// loadMu serializes loads; mu guards the cached state and is never held
	// across a load.
	loadMu      sync.Mutex
	mu          sync.Mutex
	cached      bool
	fingerprint string
	dataset     *Dataset
	err         error
}

// NewMemo wraps loader.
func NewMemo(loader DatasetLoader, logger *slog.Logger, metrics *observability.Metrics) *Memo {
	return &Memo{loader: loader, logger: logger, metrics: metrics}
}

// Get returns the Dataset for the current inputs, loading it when the
// fingerprint differs from the cached one.
func (m *Memo) Get(ctx context.Context) (*Dataset, error) {
	fingerprint, err := m.loader.Fingerprint()
	if err != nil {
		m.mu.Lock()
		m.cached = false
		m.dataset, m.err = nil, err
		m.mu.Unlock()
		return nil, err
	}

	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	m.mu.Lock()
	cached, previous := m.cached, m.fingerprint
	ds, err := m.dataset, m.err
	m.mu.Unlock()

	if cached && previous == fingerprint {
		m.metrics.MemoLookups.WithLabelValues("hit").Inc()
		return ds, err
	}
	m.metrics.MemoLookups.WithLabelValues("miss").Inc()

	if cached {
		m.logger.Info("inputs changed, reloading", "previous", previous, "current", fingerprint)
	}

	ds, err = m.loader.Load(ctx, fingerprint)
	if err != nil && ctx.Err() != nil {
		// A cancelled request says nothing about the inputs.
		return nil, err
	}

	m.mu.Lock()
	m.cached = true
	m.fingerprint = fingerprint
	m.dataset, m.err = ds, err
	m.mu.Unlock()
	return ds, err
}

// Invalidate drops the cached entry so the next Get reloads.
func (m *Memo) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cached = false
	m.fingerprint = ""
	m.dataset, m.err = nil, nil
	m.logger.Info("dataset cache invalidated")
}

// CheckReadiness returns nil once a dataset has loaded successfully, or the
// reason it has not.
func (m *Memo) CheckReadiness(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dataset != nil {
		return nil
	}
	if m.err != nil {
		return fmt.Errorf("dataset unavailable: %w", m.err)
	}
	return errors.New("dataset has not been loaded yet")
}
