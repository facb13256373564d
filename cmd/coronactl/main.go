// Command coronactl performs offline integrity checks on a case table
// snapshot: column layout, reference alignment, date indexing, count
// identities, recovery estimation, daily deltas, and population rates.
//
// Usage:
//
//	go run ./cmd/coronactl \
//	  -snapshot coronadata.csv \
//	  -lag 14
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/go-gota/gota/dataframe"

	"github.com/couchcryptid/corona-data-service/internal/casedata"
	"github.com/couchcryptid/corona-data-service/internal/geo"
)

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
	snapshot := flag.String("snapshot", "", "path to a case table snapshot CSV")
	lag := flag.Int("lag", casedata.DefaultRecoveryLag, "recovery lag in days the snapshot was built with")
	flag.Parse()

	if *snapshot == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*snapshot, *lag); code != 0 {
		os.Exit(code)
	}
}

func run(snapshotPath string, lag int) int {
	fmt.Println("=== Case Snapshot Integrity Validation ===")
	fmt.Println()

	f, err := os.Open(snapshotPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open snapshot: %v\n", err)
		return 1
	}
	df, err := casedata.DecodeCSV(f)
	f.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	ref, err := geo.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load reference table: %v\n", err)
		return 1
	}

	// ── Run validation phases ──
	// Later phases index columns by name, so they only run on a clean layout.
	phases := []*phase{validateLayout(df)}
	if phases[0].passed() {
		t := newTable(df)
		phases = append(phases,
			validateReference(t, ref),
			validateDateIndex(t),
			validateIdentities(t),
			validateRecovery(t, lag),
			validateDeltas(t),
			validateRates(t),
		)
	}

	// ── Report results ──
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Rows: %d, columns: %d\n", df.Nrow(), df.Ncol())

	// Print detailed errors.
	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			if i == maxDetailErrors {
				fmt.Printf("  ... %d more\n", len(p.errors)-maxDetailErrors)
				break
			}
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// maxDetailErrors caps the per-phase error listing; a broken snapshot tends
// to fail the same way on every row.
const maxDetailErrors = 25

// ── Column access ──

// table holds the snapshot columns unpacked for row-wise checks.
type table struct {
	rows      int
	country   []string
	code      []string
	subRegion []string
	region    []string
	continent []string
	popSize   []int
	date      []string
	repDay    []int

	confirmed []int
	deaths    []int
	recovered []int
	active    []int

	newConfirmed []int
	newRecovered []int
	newDeaths    []int

	lethality        []float64
	popShare         []float64
	confirmedPer100K []float64
	deathsPer100K    []float64
	recoveredPer100K []float64
	activePer100K    []float64

	// rowAt indexes rows by country and report day.
	rowAt map[string]int
}

func newTable(df dataframe.DataFrame) *table {
	t := &table{
		rows:      df.Nrow(),
		country:   df.Col(casedata.ColCountry).Records(),
		code:      df.Col(casedata.ColCode).Records(),
		subRegion: df.Col(casedata.ColSubRegion).Records(),
		region:    df.Col(casedata.ColRegion).Records(),
		continent: df.Col(casedata.ColContinent).Records(),
		popSize:   intCol(df, casedata.ColPopSize),
		date:      df.Col(casedata.ColDate).Records(),
		repDay:    intCol(df, casedata.ColRepDay),

		confirmed: intCol(df, casedata.ColConfirmed),
		deaths:    intCol(df, casedata.ColDeaths),
		recovered: intCol(df, casedata.ColRecovered),
		active:    intCol(df, casedata.ColActive),

		newConfirmed: intCol(df, casedata.ColNewConfirmed),
		newRecovered: intCol(df, casedata.ColNewRecovered),
		newDeaths:    intCol(df, casedata.ColNewDeaths),

		lethality:        df.Col(casedata.ColLethality).Float(),
		popShare:         df.Col(casedata.ColPopShare).Float(),
		confirmedPer100K: df.Col(casedata.ColConfirmedPer100K).Float(),
		deathsPer100K:    df.Col(casedata.ColDeathsPer100K).Float(),
		recoveredPer100K: df.Col(casedata.ColRecoveredPer100K).Float(),
		activePer100K:    df.Col(casedata.ColActivePer100K).Float(),
	}

	t.rowAt = make(map[string]int, t.rows)
	for i := 0; i < t.rows; i++ {
		t.rowAt[rowKey(t.country[i], t.repDay[i])] = i
	}
	return t
}

func rowKey(country string, repDay int) string {
	return country + "|" + strconv.Itoa(repDay)
}

// lookup returns the row index of a country on a report day.
func (t *table) lookup(country string, repDay int) (int, bool) {
	i, ok := t.rowAt[rowKey(country, repDay)]
	return i, ok
}

func intCol(df dataframe.DataFrame, name string) []int {
	floats := df.Col(name).Float()
	out := make([]int, len(floats))
	for i, f := range floats {
		if !math.IsNaN(f) {
			out[i] = int(math.Round(f))
		}
	}
	return out
}

// ── Phase 1: Column Layout ──
// The snapshot must carry exactly the canonical columns in canonical order.

func validateLayout(df dataframe.DataFrame) *phase {
	p := &phase{name: "Phase 1: Column Layout"}

	want := casedata.TableColumns()
	got := df.Names()
	if len(got) != len(want) {
		p.errorf("column count: expected %d, got %d (%v)", len(want), len(got), got)
		return p
	}
	for i := range want {
		if got[i] != want[i] {
			p.errorf("column %d: expected %q, got %q", i, want[i], got[i])
		}
	}
	if df.Nrow() == 0 {
		p.errorf("snapshot has no rows")
	}
	return p
}

// ── Phase 2: Reference Alignment ──
// Every row's geo attributes and population must match the embedded
// reference table for its country.

func validateReference(t *table, ref *geo.Table) *phase {
	p := &phase{name: "Phase 2: Reference Alignment"}

	for i := 0; i < t.rows; i++ {
		row, ok := ref.Row(t.country[i])
		if !ok {
			p.errorf("row %d: country %q not in reference table", i, t.country[i])
			continue
		}
		if t.code[i] != row.Code {
			p.errorf("row %d (%s): code: expected %q, got %q", i, t.country[i], row.Code, t.code[i])
		}
		if t.subRegion[i] != row.SubRegion {
			p.errorf("row %d (%s): sub-region: expected %q, got %q", i, t.country[i], row.SubRegion, t.subRegion[i])
		}
		if t.region[i] != row.Region {
			p.errorf("row %d (%s): region: expected %q, got %q", i, t.country[i], row.Region, t.region[i])
		}
		if t.continent[i] != row.Continent {
			p.errorf("row %d (%s): continent: expected %q, got %q", i, t.country[i], row.Continent, t.continent[i])
		}
		if t.popSize[i] != row.PopSize {
			p.errorf("row %d (%s): population: expected %d, got %d", i, t.country[i], row.PopSize, t.popSize[i])
		}
	}
	return p
}

// ── Phase 3: Date Indexing ──
// Report days count from 1 at the earliest date in the table, and a country
// reports at most once per day.

func validateDateIndex(t *table) *phase {
	p := &phase{name: "Phase 3: Date Indexing"}

	dates := make([]time.Time, t.rows)
	var minDate time.Time
	for i := 0; i < t.rows; i++ {
		d, err := time.Parse(casedata.DateLayout, t.date[i])
		if err != nil {
			p.errorf("row %d (%s): bad date %q", i, t.country[i], t.date[i])
			continue
		}
		dates[i] = d
		if minDate.IsZero() || d.Before(minDate) {
			minDate = d
		}
	}
	if !p.passed() {
		return p
	}

	for i := 0; i < t.rows; i++ {
		want := int(dates[i].Sub(minDate).Hours()/24) + 1
		if t.repDay[i] != want {
			p.errorf("row %d (%s %s): report day: expected %d, got %d",
				i, t.country[i], t.date[i], want, t.repDay[i])
		}
	}

	seen := make(map[string]int, t.rows)
	for i := 0; i < t.rows; i++ {
		key := rowKey(t.country[i], t.repDay[i])
		if j, dup := seen[key]; dup {
			p.errorf("row %d (%s day %d): duplicate of row %d", i, t.country[i], t.repDay[i], j)
			continue
		}
		seen[key] = i
	}
	return p
}

// ── Phase 4: Count Identities ──
// Counts are non-negative, active cases balance against the cumulative
// counts, and the lethality rate stays inside [0, 1].

func validateIdentities(t *table) *phase {
	p := &phase{name: "Phase 4: Count Identities"}

	for i := 0; i < t.rows; i++ {
		if t.confirmed[i] < 0 || t.deaths[i] < 0 || t.recovered[i] < 0 {
			p.errorf("row %d (%s %s): negative count: confirmed=%d deaths=%d recovered=%d",
				i, t.country[i], t.date[i], t.confirmed[i], t.deaths[i], t.recovered[i])
		}
		if want := t.confirmed[i] - t.deaths[i] - t.recovered[i]; t.active[i] != want {
			p.errorf("row %d (%s %s): active: expected %d, got %d",
				i, t.country[i], t.date[i], want, t.active[i])
		}

		closed := t.deaths[i] + t.recovered[i]
		switch {
		case closed == 0 && t.lethality[i] != 0:
			p.errorf("row %d (%s %s): lethality %g with no closed cases",
				i, t.country[i], t.date[i], t.lethality[i])
		case closed > 0:
			want := float64(t.deaths[i]) / float64(closed)
			if !floatEq(t.lethality[i], want) {
				p.errorf("row %d (%s %s): lethality: expected %g, got %g",
					i, t.country[i], t.date[i], want, t.lethality[i])
			}
		}
	}
	return p
}

// ── Phase 5: Recovery Estimation ──
// Recoveries are estimated as confirmations from lag days earlier minus
// deaths to date, floored at zero.

func validateRecovery(t *table, lag int) *phase {
	p := &phase{name: fmt.Sprintf("Phase 5: Recovery Estimation (lag %d)", lag)}

	for i := 0; i < t.rows; i++ {
		want := 0
		if j, ok := t.lookup(t.country[i], t.repDay[i]-lag); ok {
			if r := t.confirmed[j] - t.deaths[i]; r > 0 {
				want = r
			}
		}
		if t.recovered[i] != want {
			p.errorf("row %d (%s %s): recovered: expected %d, got %d",
				i, t.country[i], t.date[i], want, t.recovered[i])
		}
	}
	return p
}

// ── Phase 6: Daily Deltas ──
// Each daily delta equals the cumulative count minus the previous day's,
// with a missing previous day counting as zero.

func validateDeltas(t *table) *phase {
	p := &phase{name: "Phase 6: Daily Deltas"}

	check := func(i int, name string, values, deltas []int) {
		prev := 0
		if j, ok := t.lookup(t.country[i], t.repDay[i]-1); ok {
			prev = values[j]
		}
		if want := values[i] - prev; deltas[i] != want {
			p.errorf("row %d (%s %s): %s: expected %d, got %d",
				i, t.country[i], t.date[i], name, want, deltas[i])
		}
	}

	for i := 0; i < t.rows; i++ {
		check(i, "new confirmed", t.confirmed, t.newConfirmed)
		check(i, "new recovered", t.recovered, t.newRecovered)
		check(i, "new deaths", t.deaths, t.newDeaths)
	}
	return p
}

// ── Phase 7: Population Rates ──
// Per-100k incidence and the affected population share must follow from the
// counts and the population size.

func validateRates(t *table) *phase {
	p := &phase{name: "Phase 7: Population Rates"}

	per100k := func(count, pop int) float64 {
		if pop <= 0 {
			return 0
		}
		return float64(count) * 100000 / float64(pop)
	}

	for i := 0; i < t.rows; i++ {
		checks := []struct {
			name string
			want float64
			got  float64
		}{
			{"confirmed per 100k", per100k(t.confirmed[i], t.popSize[i]), t.confirmedPer100K[i]},
			{"deaths per 100k", per100k(t.deaths[i], t.popSize[i]), t.deathsPer100K[i]},
			{"recovered per 100k", per100k(t.recovered[i], t.popSize[i]), t.recoveredPer100K[i]},
			{"active per 100k", per100k(t.active[i], t.popSize[i]), t.activePer100K[i]},
		}
		for _, c := range checks {
			if !floatEq(c.got, c.want) {
				p.errorf("row %d (%s %s): %s: expected %g, got %g",
					i, t.country[i], t.date[i], c.name, c.want, c.got)
			}
		}

		var wantShare float64
		if t.popSize[i] > 0 {
			affected := t.confirmed[i] + t.deaths[i] + t.recovered[i]
			wantShare = float64(affected) / float64(t.popSize[i])
		}
		if !floatEq(t.popShare[i], wantShare) {
			p.errorf("row %d (%s %s): population share: expected %g, got %g",
				i, t.country[i], t.date[i], wantShare, t.popShare[i])
		}
	}
	return p
}

// ── Helpers ──

func floatEq(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
