// Package geo carries the bundled country reference table: ISO code,
// sub-region, World Bank region, continent, and 2018 population per country,
// plus the alias list that maps upstream spellings ("US", "Korea, South",
// "Taiwan*") onto reference names.
package geo

import (
	_ "embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gopkg.in/yaml.v3"
)

//go:embed data/countries.csv
var countriesCSV string

//go:embed data/aliases.yaml
var aliasesYAML string

// Row is one country's reference attributes.
type Row struct {
	Country   string
	Code      string
	SubRegion string
	Region    string
	Continent string
	PopSize   int
}

// Table is the loaded reference data with name-resolution indexes.
type Table struct {
	rows    []Row
	byName  map[string]int
	byFold  map[string]int
	aliases map[string]string // folded upstream spelling -> reference name
	frame   dataframe.DataFrame
}

var (
	loadOnce sync.Once
	loaded   *Table
	loadErr  error
)

// Load parses the bundled reference data. The result is cached; repeated
// calls return the same Table.
func Load() (*Table, error) {
	loadOnce.Do(func() {
		loaded, loadErr = parse(countriesCSV, aliasesYAML)
	})
	return loaded, loadErr
}

func parse(countries, aliases string) (*Table, error) {
	df := dataframe.ReadCSV(strings.NewReader(countries),
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("parse reference table: %w", df.Err)
	}

	records := df.Records()
	header := records[0]
	want := []string{"Country", "Code", "SubRegion", "Region", "Continent", "PopSize"}
	if len(header) != len(want) {
		return nil, fmt.Errorf("reference table has %d columns, want %d", len(header), len(want))
	}
	for i, name := range want {
		if header[i] != name {
			return nil, fmt.Errorf("reference table column %d is %q, want %q", i, header[i], name)
		}
	}

	t := &Table{
		byName:  make(map[string]int),
		byFold:  make(map[string]int),
		aliases: make(map[string]string),
	}
	for _, rec := range records[1:] {
		pop, err := strconv.Atoi(rec[5])
		if err != nil {
			return nil, fmt.Errorf("population of %q: %w", rec[0], err)
		}
		row := Row{
			Country:   rec[0],
			Code:      rec[1],
			SubRegion: rec[2],
			Region:    rec[3],
			Continent: rec[4],
			PopSize:   pop,
		}
		if _, dup := t.byName[row.Country]; dup {
			return nil, fmt.Errorf("duplicate reference country %q", row.Country)
		}
		t.byName[row.Country] = len(t.rows)
		t.byFold[Fold(row.Country)] = len(t.rows)
		t.rows = append(t.rows, row)
	}
	if len(t.rows) == 0 {
		return nil, fmt.Errorf("reference table is empty")
	}

	raw := make(map[string]string)
	if err := yaml.Unmarshal([]byte(aliases), &raw); err != nil {
		return nil, fmt.Errorf("parse aliases: %w", err)
	}
	for spelling, name := range raw {
		if _, ok := t.byName[name]; !ok {
			return nil, fmt.Errorf("alias %q points to unknown country %q", spelling, name)
		}
		t.aliases[Fold(spelling)] = name
	}

	t.frame = t.buildFrame()
	return t, nil
}

func (t *Table) buildFrame() dataframe.DataFrame {
	n := len(t.rows)
	countries := make([]string, n)
	codes := make([]string, n)
	subRegions := make([]string, n)
	regions := make([]string, n)
	continents := make([]string, n)
	pops := make([]int, n)
	for i, r := range t.rows {
		countries[i] = r.Country
		codes[i] = r.Code
		subRegions[i] = r.SubRegion
		regions[i] = r.Region
		continents[i] = r.Continent
		pops[i] = r.PopSize
	}
	return dataframe.New(
		series.New(countries, series.String, "Country"),
		series.New(codes, series.String, "Code"),
		series.New(subRegions, series.String, "SubRegion"),
		series.New(regions, series.String, "Region"),
		series.New(continents, series.String, "Continent"),
		series.New(pops, series.Int, "PopSize"),
	)
}

// Resolve maps an upstream location name onto a reference country name.
// Lookup order: exact name, alias, diacritic/case-folded name.
func (t *Table) Resolve(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if _, ok := t.byName[name]; ok {
		return name, true
	}
	folded := Fold(name)
	if canonical, ok := t.aliases[folded]; ok {
		return canonical, true
	}
	if i, ok := t.byFold[folded]; ok {
		return t.rows[i].Country, true
	}
	return "", false
}

// Row returns the reference attributes of a resolved country name.
func (t *Table) Row(country string) (Row, bool) {
	i, ok := t.byName[country]
	if !ok {
		return Row{}, false
	}
	return t.rows[i], true
}

// Len returns the number of reference countries.
func (t *Table) Len() int {
	return len(t.rows)
}

// Countries returns all reference country names, sorted.
func (t *Table) Countries() []string {
	out := make([]string, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.Country
	}
	sort.Strings(out)
	return out
}

// Frame returns the reference table as a dataframe with columns Country,
// Code, SubRegion, Region, Continent, PopSize.
func (t *Table) Frame() dataframe.DataFrame {
	return t.frame
}

// columnValue selects a grouping attribute from a row.
func (r Row) columnValue(column string) (string, bool) {
	switch column {
	case "Country":
		return r.Country, true
	case "Code":
		return r.Code, true
	case "SubRegion":
		return r.SubRegion, true
	case "Region":
		return r.Region, true
	case "Continent":
		return r.Continent, true
	}
	return "", false
}

// PopulationBy sums reference populations grouped by the given column.
func (t *Table) PopulationBy(column string) (map[string]int, error) {
	out := make(map[string]int)
	for _, r := range t.rows {
		v, ok := r.columnValue(column)
		if !ok {
			return nil, fmt.Errorf("unknown reference column %q", column)
		}
		out[v] += r.PopSize
	}
	return out, nil
}

// Values returns the sorted distinct values of the given column.
func (t *Table) Values(column string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, r := range t.rows {
		v, ok := r.columnValue(column)
		if !ok {
			return nil, fmt.Errorf("unknown reference column %q", column)
		}
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out, nil
}
