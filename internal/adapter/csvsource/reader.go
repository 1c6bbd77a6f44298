package csvsource

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/couchcryptid/climate-insights-service/internal/domain"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Reader loads observation records from a CSV file.
// It implements pipeline.ObservationSource.
type Reader struct {
	path   string
	schema domain.Schema
	logger *slog.Logger
}

// NewReader creates a Reader for path using schema to resolve column names.
func NewReader(path string, schema domain.Schema, logger *slog.Logger) *Reader {
	return &Reader{path: path, schema: schema, logger: logger}
}

// ReadObservations parses the whole file into observations.
func (r *Reader) ReadObservations(ctx context.Context) ([]domain.Observation, error) {
	f, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.MissingFileError{Kind: "observations", Path: r.path}
		}
		return nil, fmt.Errorf("open observations: %w", err)
	}
	defer f.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	observations, err := Decode(f, r.schema)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("observations read", "path", r.path, "rows", len(observations))
	return observations, nil
}

// nanValues are the cell values treated as missing, in addition to blanks.
var nanValues = []string{"NA", "NaN", "nan", "null", "<nil>", ""}

// Decode reads CSV from rd, maps source columns onto logical fields and
// converts each row. Unparsable numeric cells become NaN.
func Decode(rd io.Reader, schema domain.Schema) ([]domain.Observation, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("read observations csv: %w", err)
	}
	if err := checkTable(data, schema); err != nil {
		return nil, err
	}

	df := dataframe.ReadCSV(bytes.NewReader(data),
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(nanValues),
		dataframe.WithLazyQuotes(true),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("read observations csv: %w", df.Err)
	}

	cols, err := schema.Resolve(df.Names())
	if err != nil {
		return nil, err
	}

	df, err = applySchema(df, schema, cols)
	if err != nil {
		return nil, err
	}

	countries := stringColumn(df, domain.FieldCountry)
	cities := stringColumn(df, domain.FieldCity)
	timestamps := stringColumn(df, domain.FieldTimestamp)
	temperature := df.Col(string(domain.FieldTemperature)).Float()
	pm25 := df.Col(string(domain.FieldPM25)).Float()
	precip := df.Col(string(domain.FieldPrecipitation)).Float()

	observations := make([]domain.Observation, df.Nrow())
	for i := range observations {
		observations[i] = domain.Observation{
			Country:       countries[i],
			City:          cities[i],
			Timestamp:     domain.ParseTimestamp(timestamps[i]),
			Temperature:   temperature[i],
			PM25:          pm25[i],
			Precipitation: precip[i],
		}
	}
	return observations, nil
}

// checkTable resolves the header against schema and reports a table with no
// data rows as domain.ErrNoObservations.
func checkTable(data []byte, schema domain.Schema) error {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: observation file is empty", domain.ErrNoObservations)
	}
	if err != nil {
		return fmt.Errorf("read observations header: %w", err)
	}
	if _, err := schema.Resolve(header); err != nil {
		return err
	}

	if _, err := r.Read(); errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: observation file has a header but no rows", domain.ErrNoObservations)
	}
	return nil
}

// applySchema renames source columns to their logical field names and drops
// every other column.
func applySchema(df dataframe.DataFrame, schema domain.Schema, cols domain.ColumnMap) (dataframe.DataFrame, error) {
	selected := make([]string, 0, len(schema))
	for _, spec := range schema {
		src := cols[spec.Field]
		selected = append(selected, src)
	}
	df = df.Select(selected)

	for _, spec := range schema {
		if src := cols[spec.Field]; src != string(spec.Field) {
			df = df.Rename(string(spec.Field), src)
		}
	}
	if df.Err != nil {
		return df, fmt.Errorf("apply observation schema: %w", df.Err)
	}
	return df, nil
}

// stringColumn returns trimmed cell values, with missing cells as "".
func stringColumn(df dataframe.DataFrame, field domain.Field) []string {
	s := df.Col(string(field))
	records := s.Records()
	missing := s.IsNaN()
	for i := range records {
		if missing[i] {
			records[i] = ""
			continue
		}
		records[i] = strings.TrimSpace(records[i])
	}
	return records
}
