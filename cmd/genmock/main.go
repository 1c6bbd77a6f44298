// Command genmock writes a deterministic synthetic dataset for local runs and
// demos: an observation CSV using the source column names, a country boundary
// GeoJSON with one country that has no observations, and a placeholder model
// artifact.
//
// Usage:
//
//	go run ./cmd/genmock -out-dir data/mock -days 365 -seed 42
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var baseDate = time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)

type city struct {
	name     string
	lat, lon float64
}

// country describes a synthetic climate: mean temperature, seasonal swing,
// typical PM2.5 and daily precipitation.
type country struct {
	name   string
	iso    string
	box    orb.Bound
	meanC  float64
	swingC float64
	pm25   float64
	precip float64
	cities []city
}

var countries = []country{
	{name: "United Kingdom", iso: "GBR", box: bound(-8, 50, 2, 59), meanC: 11, swingC: 7, pm25: 9, precip: 2.4,
		cities: []city{{"London", 51.5, -0.12}, {"Manchester", 53.48, -2.24}}},
	{name: "India", iso: "IND", box: bound(68, 7, 97, 35), meanC: 27, swingC: 6, pm25: 85, precip: 3.1,
		cities: []city{{"New Delhi", 28.6, 77.2}, {"Mumbai", 19.07, 72.88}}},
	{name: "Brazil", iso: "BRA", box: bound(-74, -33, -35, 5), meanC: 24, swingC: 4, pm25: 14, precip: 4.5,
		cities: []city{{"São Paulo", -23.55, -46.63}, {"Brasília", -15.79, -47.88}}},
	{name: "Norway", iso: "NOR", box: bound(4, 58, 31, 71), meanC: 5, swingC: 9, pm25: 6, precip: 3.0,
		cities: []city{{"Oslo", 59.91, 10.75}}},
	{name: "Egypt", iso: "EGY", box: bound(25, 22, 36, 32), meanC: 23, swingC: 7, pm25: 60, precip: 0.05,
		cities: []city{{"Cairo", 30.04, 31.24}}},
	{name: "Japan", iso: "JPN", box: bound(129, 31, 146, 45), meanC: 16, swingC: 10, pm25: 16, precip: 4.3,
		cities: []city{{"Tokyo", 35.68, 139.69}, {"Osaka", 34.69, 135.5}}},
	// Observed but absent from the boundary file.
	{name: "Tuvalu", iso: "", meanC: 28, swingC: 1, pm25: 4, precip: 9.0,
		cities: []city{{"Funafuti", -8.52, 179.2}}},
}

// noData appears in the boundary file without observations.
var noData = country{name: "Chile", iso: "CHL", box: bound(-76, -56, -66, -17)}

func bound(minLon, minLat, maxLon, maxLat float64) orb.Bound {
	return orb.Bound{Min: orb.Point{minLon, minLat}, Max: orb.Point{maxLon, maxLat}}
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out-dir", "data/mock", "output directory")
	days := flag.Int("days", 365, "days of observations per city")
	seed := flag.Uint64("seed", 42, "random seed")
	flag.Parse()

	if *days <= 0 {
		flag.Usage()
		return fmt.Errorf("-days must be positive")
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	clock := clockwork.NewFakeClockAt(baseDate)

	records := observationRecords(rng, clock, *days)
	csvPath := filepath.Join(*outDir, "GlobalWeatherRepository.csv")
	if err := writeCSV(csvPath, records); err != nil {
		return fmt.Errorf("writing observations: %w", err)
	}
	log.Printf("wrote observations: %s (%d rows)", csvPath, len(records)-1)

	geoPath := filepath.Join(*outDir, "ne_110m_admin_0_countries.geojson")
	if err := writeBoundaries(geoPath); err != nil {
		return fmt.Errorf("writing boundaries: %w", err)
	}
	log.Printf("wrote boundaries: %s", geoPath)

	modelPath := filepath.Join(*outDir, "forecasting_model.pkl")
	if err := os.WriteFile(modelPath, []byte("placeholder forecast model\n"), 0o644); err != nil {
		return fmt.Errorf("writing model placeholder: %w", err)
	}
	log.Printf("wrote model placeholder: %s", modelPath)
	return nil
}

// observationRecords returns the CSV header plus one row per city per day.
// Roughly one PM2.5 reading in 25 is left blank.
func observationRecords(rng *rand.Rand, clock *clockwork.FakeClock, days int) [][]string {
	records := [][]string{{
		"country", "location_name", "latitude", "longitude", "last_updated",
		"temperature_celsius", "air_quality_PM2.5", "precip_mm",
	}}

	for d := 0; d < days; d++ {
		now := clock.Now()
		// Peak temperature in July north of the equator, January south of it.
		season := math.Cos(2 * math.Pi * float64(now.YearDay()-196) / 365)

		for _, c := range countries {
			for _, ct := range c.cities {
				s := season
				if ct.lat < 0 {
					s = -season
				}
				temp := c.meanC + c.swingC*s + rng.NormFloat64()*2
				pm := math.Max(0, c.pm25*(1+0.3*rng.NormFloat64())-0.4*(temp-c.meanC))
				precip := math.Max(0, c.precip*rng.ExpFloat64()-c.precip/2)

				pmCell := strconv.FormatFloat(pm, 'f', 1, 64)
				if rng.IntN(25) == 0 {
					pmCell = ""
				}
				records = append(records, []string{
					c.name, ct.name,
					strconv.FormatFloat(ct.lat, 'f', 2, 64),
					strconv.FormatFloat(ct.lon, 'f', 2, 64),
					now.Format("2006-01-02 15:04"),
					strconv.FormatFloat(temp, 'f', 1, 64),
					pmCell,
					strconv.FormatFloat(precip, 'f', 2, 64),
				})
			}
		}
		clock.Advance(24 * time.Hour)
	}
	return records
}

func writeCSV(path string, records [][]string) error {
	df := dataframe.LoadRecords(records, dataframe.DetectTypes(false))
	if df.Err != nil {
		return df.Err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return df.WriteCSV(f)
}

func writeBoundaries(path string) error {
	fc := geojson.NewFeatureCollection()
	for _, c := range append(countries, noData) {
		if c.iso == "" {
			continue
		}
		f := geojson.NewFeature(c.box.ToPolygon())
		f.Properties["NAME"] = c.name
		f.Properties["ISO_A3"] = c.iso
		fc.Append(f)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
