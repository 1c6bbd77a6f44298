package geo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/couchcryptid/climate-insights-service/internal/domain"
	"github.com/paulmach/orb/geojson"
)

// Property names tried, in order, for the country name and ISO code.
var (
	nameProperties = []string{"NAME", "name", "ADMIN", "admin"}
	isoProperties  = []string{"ISO_A3", "iso_a3", "ADM0_A3"}
)

// Reader loads country boundaries from a GeoJSON FeatureCollection.
// It implements pipeline.BoundarySource.
type Reader struct {
	path   string
	logger *slog.Logger
}

// NewReader creates a boundary Reader for path.
func NewReader(path string, logger *slog.Logger) *Reader {
	return &Reader{path: path, logger: logger}
}

// ReadBoundaries parses every feature in the file.
func (r *Reader) ReadBoundaries(ctx context.Context) ([]domain.Boundary, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.MissingFileError{Kind: "boundaries", Path: r.path}
		}
		return nil, fmt.Errorf("read boundaries: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	boundaries, err := Decode(data)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("boundaries read", "path", r.path, "features", len(boundaries))
	return boundaries, nil
}

// Decode converts a GeoJSON FeatureCollection into boundaries.
// Features without a name are kept so the map still draws them.
func Decode(data []byte) ([]domain.Boundary, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode boundaries geojson: %w", err)
	}

	boundaries := make([]domain.Boundary, 0, len(fc.Features))
	for _, f := range fc.Features {
		boundaries = append(boundaries, domain.Boundary{
			Name:     firstProperty(f.Properties, nameProperties),
			ISOA3:    firstProperty(f.Properties, isoProperties),
			Geometry: f.Geometry,
		})
	}
	return boundaries, nil
}

func firstProperty(props geojson.Properties, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(props.MustString(k, "")); v != "" {
			return v
		}
	}
	return ""
}

// EncodeMap renders joined rows as a FeatureCollection for the choropleth.
// Each feature carries NAME, ISO_A3, the selected metric under "value" and the
// country statistics; absent statistics are null.
func EncodeMap(rows []domain.MapRow, metric domain.MapMetric) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, row := range rows {
		f := geojson.NewFeature(row.Geometry)
		f.ID = row.ISOA3
		f.Properties["NAME"] = row.Name
		f.Properties["ISO_A3"] = row.ISOA3
		f.Properties["metric"] = metric.Property()
		f.Properties["value"] = domain.Optional(metric.Value(row.Stats))

		if row.Stats != nil {
			f.Properties["country"] = row.Stats.Country
			f.Properties["temperature_celsius"] = domain.Optional(row.Stats.Mean.Temperature)
			f.Properties["pm2_5"] = domain.Optional(row.Stats.Mean.PM25)
			f.Properties["precip_mm"] = domain.Optional(row.Stats.Mean.Precipitation)
			f.Properties["climate_risk_index"] = domain.Optional(row.Stats.RiskIndex)
			f.Properties["log_pm2_5"] = domain.Optional(row.Stats.LogPM25)
		} else {
			f.Properties["country"] = nil
			f.Properties["temperature_celsius"] = nil
			f.Properties["pm2_5"] = nil
			f.Properties["precip_mm"] = nil
			f.Properties["climate_risk_index"] = nil
			f.Properties["log_pm2_5"] = nil
		}
		fc.Append(f)
	}
	return fc
}
