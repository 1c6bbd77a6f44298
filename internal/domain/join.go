package domain

import (
	"sort"
	"strings"
)

// JoinBoundaries left-joins aggregates onto boundaries by country name. Every
// boundary is kept, in input order; boundaries without a matching aggregate get
// nil Stats. Returns ErrNoMatchingCountries when nothing matched.
func JoinBoundaries(boundaries []Boundary, aggs []CountryAggregate) (MapJoin, error) {
	byCountry := make(map[string]*CountryAggregate, len(aggs))
	for i := range aggs {
		byCountry[aggs[i].Country] = &aggs[i]
	}

	join := MapJoin{Rows: make([]MapRow, 0, len(boundaries))}
	used := make(map[string]bool, len(aggs))
	for _, b := range boundaries {
		row := MapRow{Boundary: b}
		if agg, ok := byCountry[strings.TrimSpace(b.Name)]; ok {
			row.Stats = agg
			join.Matched++
			used[agg.Country] = true
		}
		join.Rows = append(join.Rows, row)
	}

	for _, a := range aggs {
		if !used[a.Country] {
			join.Orphans = append(join.Orphans, a.Country)
		}
	}
	sort.Strings(join.Orphans)

	if join.Matched == 0 {
		return join, ErrNoMatchingCountries
	}
	return join, nil
}
