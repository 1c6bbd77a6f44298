package domain

import (
	"strings"
	"time"
)

// Field is a logical observation column, independent of the source header.
type Field string

const (
	FieldCountry       Field = "country"
	FieldCity          Field = "city"
	FieldTimestamp     Field = "timestamp"
	FieldTemperature   Field = "temperature_celsius"
	FieldPM25          Field = "pm2_5"
	FieldPrecipitation Field = "precip_mm"
)

// FieldSpec declares the source column names accepted for a field, in priority order.
type FieldSpec struct {
	Field   Field
	Aliases []string
}

// Schema is an ordered set of field declarations.
type Schema []FieldSpec

// DefaultSchema covers both Global Weather Repository export layouts.
var DefaultSchema = Schema{
	{Field: FieldCountry, Aliases: []string{"country"}},
	{Field: FieldCity, Aliases: []string{"city", "location_name"}},
	{Field: FieldTimestamp, Aliases: []string{"last_updated", "timestamp"}},
	{Field: FieldTemperature, Aliases: []string{"temperature_celsius"}},
	{Field: FieldPM25, Aliases: []string{"pm2_5", "air_quality_PM2.5"}},
	{Field: FieldPrecipitation, Aliases: []string{"precip_mm"}},
}

// ColumnMap maps each logical field to the source column that supplies it.
type ColumnMap map[Field]string

// Resolve matches header against the schema. The first alias present wins.
// All unresolved fields are reported together in a *SchemaError.
func (s Schema) Resolve(header []string) (ColumnMap, error) {
	present := make(map[string]string, len(header))
	for _, h := range header {
		present[strings.TrimSpace(h)] = h
	}

	cols := make(ColumnMap, len(s))
	var missing []Field
	for _, spec := range s {
		found := false
		for _, alias := range spec.Aliases {
			if src, ok := present[alias]; ok {
				cols[spec.Field] = src
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, spec.Field)
		}
	}

	if len(missing) > 0 {
		aliases := make(map[Field][]string, len(s))
		for _, spec := range s {
			aliases[spec.Field] = spec.Aliases
		}
		return nil, &SchemaError{Missing: missing, Aliases: aliases}
	}
	return cols, nil
}

var timestampLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// ParseTimestamp parses the observation timestamp formats seen in exports.
// Returns zero time when no layout matches.
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
