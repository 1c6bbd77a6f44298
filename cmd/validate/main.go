// Command validate loads the observation and boundary files once, checks the
// derived country statistics against their invariants and prints a report.
// It exits non-zero when any check fails.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -observations GlobalWeatherRepository.csv \
//	  -boundaries ne_110m_admin_0_countries.geojson \
//	  -model forecasting_model.pkl \
//	  -top 15
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/couchcryptid/climate-insights-service/internal/adapter/csvsource"
	"github.com/couchcryptid/climate-insights-service/internal/adapter/geo"
	"github.com/couchcryptid/climate-insights-service/internal/domain"
	"github.com/couchcryptid/climate-insights-service/internal/observability"
	"github.com/couchcryptid/climate-insights-service/internal/pipeline"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
)

const epsilon = 1e-9

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	_ = godotenv.Load()

	observations := flag.String("observations", sharedcfg.EnvOrDefault("OBSERVATIONS_PATH", "GlobalWeatherRepository.csv"), "observation CSV path")
	boundaries := flag.String("boundaries", sharedcfg.EnvOrDefault("BOUNDARIES_PATH", "ne_110m_admin_0_countries.geojson"), "country boundary GeoJSON path")
	model := flag.String("model", sharedcfg.EnvOrDefault("MODEL_PATH", "forecasting_model.pkl"), "forecast model artifact path")
	top := flag.Int("top", 15, "number of highest-risk countries to print")
	verbose := flag.Bool("v", false, "log pipeline progress")
	flag.Parse()

	in := pipeline.Inputs{ObservationsPath: *observations, BoundariesPath: *boundaries, ModelPath: *model}
	os.Exit(run(context.Background(), os.Stdout, in, *top, *verbose))
}

func run(ctx context.Context, out io.Writer, in pipeline.Inputs, top int, verbose bool) int {
	level := slog.LevelError
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	fmt.Fprintln(out, "=== Climate Data Validation ===")
	fmt.Fprintln(out)

	p := pipeline.New(in,
		csvsource.NewReader(in.ObservationsPath, domain.DefaultSchema, logger),
		geo.NewReader(in.BoundariesPath, logger),
		nil, logger, observability.NewMetricsForTesting())

	fingerprint, err := p.Fingerprint()
	if err != nil {
		fmt.Fprintf(out, "FATAL: %v\n", err)
		return 1
	}
	ds, err := p.Load(ctx, fingerprint)
	if err != nil {
		fmt.Fprintf(out, "FATAL: load dataset: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateCountrySet(ds),
		validateScores(ds),
		validateJoin(ds),
	}

	printTopCountries(out, ds.Countries, top)
	printCoverage(out, ds.Map)

	fmt.Fprintln(out)
	allPassed := true
	for _, ph := range phases {
		status := "\033[32mPASS\033[0m"
		if !ph.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(ph.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", ph.name, status)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Records: %d observations, %d countries, %d cities, %d boundaries (fingerprint %s)\n",
		len(ds.Observations), len(ds.Countries), len(ds.Cities.Cities()), len(ds.Map.Rows), ds.Fingerprint)

	for _, ph := range phases {
		if ph.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", ph.name)
		for i, e := range ph.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

// ── Phase 1: Country Set ──
// The aggregate holds exactly the distinct non-blank countries of the input.

func validateCountrySet(ds *pipeline.Dataset) *phase {
	p := &phase{name: "Phase 1: Country Set"}

	distinct := map[string]int{}
	for _, o := range ds.Observations {
		if c := strings.TrimSpace(o.Country); c != "" {
			distinct[c]++
		}
	}
	if len(distinct) != len(ds.Countries) {
		p.errorf("expected %d distinct countries, got %d aggregates", len(distinct), len(ds.Countries))
	}
	for _, a := range ds.Countries {
		n, ok := distinct[a.Country]
		if !ok {
			p.errorf("aggregate %q has no observations", a.Country)
			continue
		}
		if n != a.Observations {
			p.errorf("%s: expected %d observations, aggregate counted %d", a.Country, n, a.Observations)
		}
	}
	return p
}

// ── Phase 2: Scores ──
// Normalized values stay in [0, 1]; risk and log PM2.5 follow their formulas.

func validateScores(ds *pipeline.Dataset) *phase {
	p := &phase{name: "Phase 2: Normalization & Risk Scores"}

	for _, a := range ds.Countries {
		for name, v := range map[string]float64{
			"temperature": a.Normalized.Temperature,
			"pm2_5":       a.Normalized.PM25,
			"precip":      a.Normalized.Precipitation,
		} {
			if !math.IsNaN(v) && (v < -epsilon || v > 1+epsilon) {
				p.errorf("%s: normalized %s %g outside [0, 1]", a.Country, name, v)
			}
		}

		want := a.Normalized.Temperature + a.Normalized.PM25 - a.Normalized.Precipitation
		if !floatEq(want, a.RiskIndex) {
			p.errorf("%s: risk index %g, expected %g", a.Country, a.RiskIndex, want)
		}

		if !floatEq(math.Log10(a.Mean.PM25+1), a.LogPM25) {
			p.errorf("%s: log PM2.5 %g does not match mean %g", a.Country, a.LogPM25, a.Mean.PM25)
		}
	}
	return p
}

// ── Phase 3: Boundary Join ──
// Every boundary survives the join and matched rows carry their country.

func validateJoin(ds *pipeline.Dataset) *phase {
	p := &phase{name: "Phase 3: Boundary Join"}

	matched := 0
	for i, row := range ds.Map.Rows {
		if row.Stats == nil {
			continue
		}
		matched++
		if strings.TrimSpace(row.Name) != row.Stats.Country {
			p.errorf("row %d: boundary %q joined to %q", i, row.Name, row.Stats.Country)
		}
	}
	if matched != ds.Map.Matched {
		p.errorf("matched count %d, rows with statistics %d", ds.Map.Matched, matched)
	}
	if matched == 0 {
		p.errorf("no boundary matched any country")
	}
	return p
}

// ── Report ──

func printTopCountries(out io.Writer, countries []domain.CountryAggregate, top int) {
	ranked := make([]domain.CountryAggregate, 0, len(countries))
	for _, a := range countries {
		if !math.IsNaN(a.RiskIndex) {
			ranked = append(ranked, a)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].RiskIndex > ranked[j].RiskIndex })
	if top > 0 && len(ranked) > top {
		ranked = ranked[:top]
	}

	fmt.Fprintf(out, "Top %d countries by climate risk index:\n", len(ranked))
	table := tablewriter.NewWriter(out)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader([]string{"Country", "Obs", "Temp °C", "PM2.5", "Precip mm", "Risk", "log PM2.5"})
	for _, a := range ranked {
		table.Append([]string{
			a.Country,
			strconv.Itoa(a.Observations),
			formatFloat(a.Mean.Temperature),
			formatFloat(a.Mean.PM25),
			formatFloat(a.Mean.Precipitation),
			formatFloat(a.RiskIndex),
			formatFloat(a.LogPM25),
		})
	}
	table.Render()
}

func printCoverage(out io.Writer, join domain.MapJoin) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Boundaries: %d matched, %d without data\n", join.Matched, join.Unmatched())
	if len(join.Orphans) == 0 {
		return
	}

	fmt.Fprintf(out, "Countries with observations but no boundary (%d):\n", len(join.Orphans))
	table := tablewriter.NewWriter(out)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"#", "Country"})
	for i, c := range join.Orphans {
		table.Append([]string{strconv.Itoa(i + 1), c})
	}
	table.Render()
}

// ── Helpers ──

func floatEq(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Abs(a-b) < epsilon
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
