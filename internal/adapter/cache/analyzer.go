package cache

import (
	"github.com/couchcryptid/climate-insights-service/internal/domain"
	"github.com/couchcryptid/climate-insights-service/internal/observability"
)

const (
	viewAirQuality = "air_quality"
	viewMonthly    = "monthly"
)

// key scopes cached views to the dataset version.
type key struct {
	version string
	city    string
}

// AnalysisCache holds per-city chart data across requests.
type AnalysisCache struct {
	airQuality *LRU[key, domain.AirQuality]
	monthly    *LRU[key, domain.MonthlyPattern]
	metrics    *observability.Metrics
}

// NewAnalysisCache creates a cache with maxEntries slots per view.
func NewAnalysisCache(maxEntries int, metrics *observability.Metrics) *AnalysisCache {
	return &AnalysisCache{
		airQuality: NewLRU[key, domain.AirQuality](maxEntries),
		monthly:    NewLRU[key, domain.MonthlyPattern](maxEntries),
		metrics:    metrics,
	}
}

// Wrap returns a CityAnalyzer that serves inner's results from the cache.
func (c *AnalysisCache) Wrap(inner domain.CityAnalyzer) domain.CityAnalyzer {
	return &CachedAnalyzer{inner: inner, cache: c}
}

// Purge drops every cached view.
func (c *AnalysisCache) Purge() {
	c.airQuality.Purge()
	c.monthly.Purge()
}

func (c *AnalysisCache) record(view string, hit bool) {
	if c.metrics == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.metrics.CityCache.WithLabelValues(view, result).Inc()
}

// CachedAnalyzer is a caching decorator around a domain.CityAnalyzer.
// Errors are never cached.
type CachedAnalyzer struct {
	inner domain.CityAnalyzer
	cache *AnalysisCache
}

func (a *CachedAnalyzer) Version() string { return a.inner.Version() }

func (a *CachedAnalyzer) AirQuality(city string) (domain.AirQuality, error) {
	k := key{version: a.inner.Version(), city: city}
	if aq, ok := a.cache.airQuality.Get(k); ok {
		a.cache.record(viewAirQuality, true)
		return aq, nil
	}
	a.cache.record(viewAirQuality, false)

	aq, err := a.inner.AirQuality(city)
	if err != nil {
		return aq, err
	}
	a.cache.airQuality.Put(k, aq)
	return aq, nil
}

func (a *CachedAnalyzer) MonthlyPattern(city string) (domain.MonthlyPattern, error) {
	k := key{version: a.inner.Version(), city: city}
	if mp, ok := a.cache.monthly.Get(k); ok {
		a.cache.record(viewMonthly, true)
		return mp, nil
	}
	a.cache.record(viewMonthly, false)

	mp, err := a.inner.MonthlyPattern(city)
	if err != nil {
		return mp, err
	}
	a.cache.monthly.Put(k, mp)
	return mp, nil
}
