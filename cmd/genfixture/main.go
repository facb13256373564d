// Command genfixture synthesizes wide time-series CSVs in the upstream
// format and runs them through the actual case table build to print
// reference numbers for test assertions. The generated files can also back a
// local file server as a stand-in upstream.
//
// Usage:
//
//	go run ./cmd/genfixture -out-dir data/fixtures -days 60
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/couchcryptid/corona-data-service/internal/casedata"
	"github.com/couchcryptid/corona-data-service/internal/geo"
)

// startDate is the first reporting date of the real upstream files.
var startDate = time.Date(2020, time.January, 22, 0, 0, 0, 0, time.UTC)

// location describes one wide-file row and its outbreak curve. Cumulative
// confirmations follow a logistic curve so the numbers are deterministic and
// plausible; deaths trail confirmations by a week at a fixed fatality share.
type location struct {
	province string
	country  string
	lat, lon string

	peak  float64 // confirmations at saturation
	mid   int     // day the curve crosses half its peak
	rate  float64 // curve steepness
	fatal float64 // share of confirmations that die
}

var locations = []location{
	{province: "Hubei", country: "Mainland China", lat: "30.9756", lon: "112.2707", peak: 68000, mid: 14, rate: 0.22, fatal: 0.045},
	{province: "Beijing", country: "Mainland China", lat: "40.1824", lon: "116.4142", peak: 580, mid: 18, rate: 0.18, fatal: 0.015},
	{country: "US", lat: "37.0902", lon: "-95.7129", peak: 180000, mid: 44, rate: 0.25, fatal: 0.03},
	{country: "Korea, South", lat: "35.9078", lon: "127.7669", peak: 9800, mid: 32, rate: 0.3, fatal: 0.018},
	{country: "Taiwan*", lat: "23.7", lon: "121.0", peak: 320, mid: 40, rate: 0.14, fatal: 0.012},
	{country: "Germany", lat: "51.1657", lon: "10.4515", peak: 62000, mid: 46, rate: 0.28, fatal: 0.02},
	{country: "Italy", lat: "41.8719", lon: "12.5674", peak: 97000, mid: 42, rate: 0.26, fatal: 0.08},
	{province: "Ontario", country: "Canada", lat: "51.2538", lon: "-85.3232", peak: 4100, mid: 48, rate: 0.24, fatal: 0.025},
	{province: "Quebec", country: "Canada", lat: "52.9399", lon: "-73.5491", peak: 6300, mid: 50, rate: 0.26, fatal: 0.03},

	// Bookkeeping row the reshape step drops.
	{province: "Recovered", country: "Canada", lat: "0", lon: "0", peak: 900, mid: 45, rate: 0.2},
	// Not in the reference table, dropped with a warning.
	{country: "Diamond Princess", lat: "35.4437", lon: "139.638", peak: 710, mid: 20, rate: 0.35, fatal: 0.018},
	// All-zero history, dropped as noise.
	{country: "Spain", lat: "40.4637", lon: "-3.7492"},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out-dir", "data/fixtures", "output directory for the wide CSV files")
	days := flag.Int("days", 60, "number of daily columns to generate")
	flag.Parse()

	if *days < 1 {
		return fmt.Errorf("days must be positive, got %d", *days)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}

	confirmedPath := filepath.Join(*outDir, "time_series_covid19_confirmed_global.csv")
	deathsPath := filepath.Join(*outDir, "time_series_covid19_deaths_global.csv")

	if err := writeWide(confirmedPath, *days, confirmedAt); err != nil {
		return fmt.Errorf("writing confirmed fixture: %w", err)
	}
	log.Printf("wrote %s: %d rows x %d days", confirmedPath, len(locations), *days)

	if err := writeWide(deathsPath, *days, deathsAt); err != nil {
		return fmt.Errorf("writing deaths fixture: %w", err)
	}
	log.Printf("wrote %s: %d rows x %d days", deathsPath, len(locations), *days)

	return printStats(confirmedPath, deathsPath)
}

// ── Curve evaluation ──

func confirmedAt(l location, day int) int {
	if l.peak == 0 || day < 0 {
		return 0
	}
	return int(l.peak / (1 + math.Exp(-l.rate*float64(day-l.mid))))
}

// deathsAt trails the confirmation curve by a week.
func deathsAt(l location, day int) int {
	return int(l.fatal * float64(confirmedAt(l, day-7)))
}

// ── Fixture output ──

func writeWide(path string, days int, valueAt func(location, int) int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := []string{"Province/State", "Country/Region", "Lat", "Long"}
	for d := 0; d < days; d++ {
		header = append(header, startDate.AddDate(0, 0, d).Format("1/2/06"))
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, l := range locations {
		row := []string{l.province, l.country, l.lat, l.lon}
		for d := 0; d < days; d++ {
			row = append(row, strconv.Itoa(valueAt(l, d)))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// ── Reference numbers ──

// fileSource feeds the generated files into the case table build the same
// way the HTTP adapter feeds the downloaded ones.
type fileSource struct {
	confirmedPath string
	deathsPath    string
}

func (s fileSource) ConfirmedSeries(context.Context) (dataframe.DataFrame, error) {
	return readWide(s.confirmedPath)
}

func (s fileSource) DeathsSeries(context.Context) (dataframe.DataFrame, error) {
	return readWide(s.deathsPath)
}

func readWide(path string) (dataframe.DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	defer f.Close()

	df := dataframe.ReadCSV(f,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	return df, df.Err
}

func printStats(confirmedPath, deathsPath string) error {
	ref, err := geo.Load()
	if err != nil {
		return fmt.Errorf("load reference table: %w", err)
	}

	builder := casedata.Builder{
		Source: fileSource{confirmedPath: confirmedPath, deathsPath: deathsPath},
		Ref:    ref,
		Lag:    casedata.DefaultRecoveryLag,
		Logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}
	ds, err := builder.Build(context.Background())
	if err != nil {
		return fmt.Errorf("build case table: %w", err)
	}

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Rows: %d\n", ds.Rows())
	fmt.Printf("Days: %s .. %s (last report day %d)\n", ds.FirstDay(), ds.LastDay(), ds.LastReportDay())

	countries := ds.Countries()
	fmt.Printf("Countries (%d): %s\n", len(countries), strings.Join(countries, ", "))

	summary, err := ds.Summarize()
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}
	fmt.Printf("\nContinent totals on %s:\n", summary.Day)
	for _, total := range summary.Totals {
		fmt.Printf("  %-14s confirmed=%d deaths=%d recovered=%d active=%d\n",
			total.Continent, total.Confirmed, total.Deaths, total.Recovered, total.Active)
	}

	last, err := ds.DayRows(casedata.DayQuery{})
	if err != nil {
		return fmt.Errorf("last day rows: %w", err)
	}
	fmt.Println("\nLast day by country:")
	for _, row := range last.Maps() {
		fmt.Printf("  %-14s confirmed=%v deaths=%v recovered=%v active=%v lethality=%.4f\n",
			row[casedata.ColCountry], row[casedata.ColConfirmed], row[casedata.ColDeaths],
			row[casedata.ColRecovered], row[casedata.ColActive], row[casedata.ColLethality])
	}
	return nil
}
