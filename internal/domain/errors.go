package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingFile is wrapped by MissingFileError.
	ErrMissingFile = errors.New("required file missing")
	// ErrMissingColumn is wrapped by SchemaError.
	ErrMissingColumn = errors.New("required column missing")
	// ErrNoObservations is returned when there is nothing to aggregate.
	ErrNoObservations = errors.New("no observations")
	// ErrNoMatchingCountries is returned when no aggregated country appears in the boundary set.
	ErrNoMatchingCountries = errors.New("no matching countries between observations and boundaries")
	// ErrNegativePM25 is returned when a country's mean PM2.5 is below zero.
	ErrNegativePM25 = errors.New("negative mean PM2.5")
	// ErrUnknownCity is returned for a city with no observations.
	ErrUnknownCity = errors.New("unknown city")
)

// MissingFileError reports an input file that does not exist.
type MissingFileError struct {
	Kind string // "observations", "boundaries" or "model"
	Path string
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("%s file missing: %s", e.Kind, e.Path)
}

func (e *MissingFileError) Unwrap() error { return ErrMissingFile }

// SchemaError lists every logical field the source header could not supply.
type SchemaError struct {
	Missing []Field
	Aliases map[Field][]string
}

func (e *SchemaError) Error() string {
	parts := make([]string, 0, len(e.Missing))
	for _, f := range e.Missing {
		parts = append(parts, fmt.Sprintf("%s (accepted: %s)", f, strings.Join(e.Aliases[f], ", ")))
	}
	return "missing columns: " + strings.Join(parts, "; ")
}

func (e *SchemaError) Unwrap() error { return ErrMissingColumn }
