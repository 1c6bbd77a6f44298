// Package domain models per-observation weather records and the per-country
// climate statistics derived from them.
//
// # Data Sources
//
// Observations come from a Global Weather Repository style CSV export: one row
// per (location, timestamp) with temperature, precipitation and air-quality
// readings. Column names vary between export versions, so every logical field
// declares a set of accepted aliases (see [DefaultSchema]):
//
//	air_quality_PM2.5  →  pm2_5
//	location_name      →  city
//
// Country boundaries come from Natural Earth admin-0 polygons (1:110m),
// converted to GeoJSON. Features are keyed by the NAME property and carry the
// ISO_A3 code used to place each country on the map.
//
// # Country Aggregation
//
// [AggregateByCountry] runs once per dataset load:
//
//  1. Group observations by country and take the arithmetic mean of temperature,
//     PM2.5 and precipitation. Missing cells are skipped per metric, so one absent
//     reading never drops a whole row from the other means.
//  2. Min-max scale each metric across countries to [0, 1]. A metric with zero
//     variance scales to 0 for every country.
//  3. Climate risk index = temperature + PM2.5 - precipitation, on the scaled
//     values. The range is roughly [-1, 2] and is not clamped.
//  4. log_pm2_5 = log10(mean PM2.5 + 1), on the unscaled mean.
//
// [JoinBoundaries] then left-joins the aggregates onto the boundary polygons by
// country name. Countries on the map with no observations keep nil statistics.
//
// Missing values are NaN in memory and null in JSON.
//
// # Forecast
//
// The next-day forecast is a proof-of-concept: [StaticForecaster] returns a
// fixed value for every city. The model artifact is only checked for presence.
package domain
