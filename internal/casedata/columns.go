package casedata

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// DefaultRecoveryLag is the assumed mean days between confirmation and
// recovery when no explicit lag is configured.
const DefaultRecoveryLag = 14

// DateLayout is the layout of Date values in the assembled table.
const DateLayout = "2006-01-02"

// upstreamDateLayout parses the M/D/YY date column headers of the wide files.
const upstreamDateLayout = "1/2/06"

// Id columns of the upstream wide time-series files, in file order.
const (
	ColProvince      = "Province/State"
	ColCountryRegion = "Country/Region"
	ColLat           = "Lat"
	ColLong          = "Long"
)

// Columns of the assembled table.
const (
	ColCountry   = "Country"
	ColCode      = "Code"
	ColSubRegion = "SubRegion"
	ColRegion    = "Region"
	ColContinent = "Continent"
	ColPopSize   = "PopSize"
	ColDate      = "Date"
	ColRepDay    = "RepDay"

	ColConfirmed = "Confirmed"
	ColDeaths    = "Deaths"
	ColRecovered = "Recovered"
	ColActive    = "Active"

	ColNewConfirmed = "NewConfirmed"
	ColNewRecovered = "NewRecovered"
	ColNewDeaths    = "NewDeaths"

	ColLethality        = "Lethality"
	ColPopShare         = "PopShare"
	ColConfirmedPer100K = "ConfirmedPer100K"
	ColDeathsPer100K    = "DeathsPer100K"
	ColRecoveredPer100K = "RecoveredPer100K"
	ColActivePer100K    = "ActivePer100K"
)

// columnOrder is the canonical column order of the assembled table. Query
// results are reordered to match before they are returned or serialized.
var columnOrder = []string{
	ColCountry, ColCode, ColSubRegion, ColRegion, ColContinent, ColPopSize,
	ColDate, ColRepDay,
	ColConfirmed, ColDeaths, ColRecovered, ColActive,
	ColNewConfirmed, ColNewRecovered, ColNewDeaths,
	ColLethality, ColPopShare,
	ColConfirmedPer100K, ColDeathsPer100K, ColRecoveredPer100K, ColActivePer100K,
}

// columnTypes maps every known column to its series type, for snapshot
// decoding and for restoring types after grouped aggregation.
var columnTypes = map[string]series.Type{
	ColProvince:      series.String,
	ColCountryRegion: series.String,
	ColLat:           series.String,
	ColLong:          series.String,

	ColCountry:   series.String,
	ColCode:      series.String,
	ColSubRegion: series.String,
	ColRegion:    series.String,
	ColContinent: series.String,
	ColPopSize:   series.Int,
	ColDate:      series.String,
	ColRepDay:    series.Int,

	ColConfirmed:    series.Int,
	ColDeaths:       series.Int,
	ColRecovered:    series.Int,
	ColActive:       series.Int,
	ColNewConfirmed: series.Int,
	ColNewRecovered: series.Int,
	ColNewDeaths:    series.Int,

	ColLethality:        series.Float,
	ColPopShare:         series.Float,
	ColConfirmedPer100K: series.Float,
	ColDeathsPer100K:    series.Float,
	ColRecoveredPer100K: series.Float,
	ColActivePer100K:    series.Float,
}

// upstreamIDColumns are the pivot candidates of the wide files.
var upstreamIDColumns = []string{ColProvince, ColCountryRegion, ColLat, ColLong}

// GeoColumns are the reference columns a query may match or group by.
var GeoColumns = []string{ColCountry, ColCode, ColContinent, ColSubRegion, ColRegion}

// countColumns are the count columns summed by grouped aggregations.
var countColumns = []string{
	ColConfirmed, ColDeaths, ColRecovered,
	ColNewConfirmed, ColNewRecovered, ColNewDeaths,
	ColActive,
}

// TableColumns returns the canonical column order of the assembled table.
func TableColumns() []string {
	out := make([]string, len(columnOrder))
	copy(out, columnOrder)
	return out
}

// IsGeoColumn reports whether name is a valid query geo column.
func IsGeoColumn(name string) bool {
	for _, c := range GeoColumns {
		if c == name {
			return true
		}
	}
	return false
}

// aggregatedGeoColumn reports whether a geo column sits above country level,
// meaning selections on it combine several reference rows.
func aggregatedGeoColumn(name string) bool {
	switch name {
	case ColContinent, ColSubRegion, ColRegion:
		return true
	}
	return false
}

// orderColumns reorders a frame to the canonical column order. Columns
// absent from the frame are skipped; unknown extras keep their position
// after the known ones.
func orderColumns(df dataframe.DataFrame) dataframe.DataFrame {
	present := make(map[string]bool, len(df.Names()))
	for _, name := range df.Names() {
		present[name] = true
	}

	known := make(map[string]bool, len(columnOrder))
	ordered := make([]string, 0, len(df.Names()))
	for _, name := range columnOrder {
		known[name] = true
		if present[name] {
			ordered = append(ordered, name)
		}
	}
	for _, name := range df.Names() {
		if !known[name] {
			ordered = append(ordered, name)
		}
	}

	return df.Select(ordered)
}

// columnInts extracts a column as ints, treating missing values as zero.
func columnInts(df dataframe.DataFrame, name string) ([]int, error) {
	col := df.Col(name)
	if col.Err != nil {
		return nil, fmt.Errorf("column %s: %w", name, col.Err)
	}
	floats := col.Float()
	out := make([]int, len(floats))
	for i, f := range floats {
		if math.IsNaN(f) {
			continue
		}
		out[i] = int(math.Round(f))
	}
	return out, nil
}

// columnStrings extracts a column's values as strings.
func columnStrings(df dataframe.DataFrame, name string) ([]string, error) {
	col := df.Col(name)
	if col.Err != nil {
		return nil, fmt.Errorf("column %s: %w", name, col.Err)
	}
	return col.Records(), nil
}

// groupKeys builds one composite key per row from the given columns.
func groupKeys(df dataframe.DataFrame, cols []string) ([]string, error) {
	records := make([][]string, len(cols))
	for i, c := range cols {
		recs, err := columnStrings(df, c)
		if err != nil {
			return nil, err
		}
		records[i] = recs
	}

	keys := make([]string, df.Nrow())
	var b strings.Builder
	for i := range keys {
		b.Reset()
		for j := range cols {
			if j > 0 {
				b.WriteByte(unitSep)
			}
			b.WriteString(records[j][i])
		}
		keys[i] = b.String()
	}
	return keys, nil
}

// unitSep separates composite key parts; it cannot occur in upstream values.
const unitSep = 0x1f

// sumBy groups the frame by the key columns and sums the value columns.
// gota's grouped aggregation returns float sums named "<col>_SUM" in map
// iteration order, so the result is renamed, retyped to the canonical column
// types, and re-sorted by the keys.
func sumBy(df dataframe.DataFrame, keys, values []string) (dataframe.DataFrame, error) {
	groups := df.GroupBy(keys...)
	if groups.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("group by %v: %w", keys, groups.Err)
	}

	aggs := make([]dataframe.AggregationType, len(values))
	for i := range aggs {
		aggs[i] = dataframe.Aggregation_SUM
	}
	out := groups.Aggregation(aggs, values)
	if out.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("sum %v by %v: %w", values, keys, out.Err)
	}

	for _, v := range values {
		out = out.Rename(v, v+"_SUM")
	}
	for _, name := range append(append([]string{}, keys...), values...) {
		out = retypeColumn(out, name)
	}
	if out.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("normalize aggregation of %v: %w", values, out.Err)
	}

	orders := make([]dataframe.Order, len(keys))
	for i, k := range keys {
		orders[i] = dataframe.Sort(k)
	}
	out = out.Arrange(orders...)
	return out, out.Err
}

// retypeColumn coerces a known column back to its canonical type. Unknown
// columns are left as the aggregation produced them.
func retypeColumn(df dataframe.DataFrame, name string) dataframe.DataFrame {
	want, ok := columnTypes[name]
	if !ok {
		return df
	}
	col := df.Col(name)
	if col.Err != nil || col.Type() == want {
		return df
	}

	switch want {
	case series.Int:
		floats := col.Float()
		ints := make([]int, len(floats))
		for i, f := range floats {
			if !math.IsNaN(f) {
				ints[i] = int(math.Round(f))
			}
		}
		return df.Mutate(series.New(ints, series.Int, name))
	case series.Float:
		return df.Mutate(series.New(col.Float(), series.Float, name))
	default:
		return df.Mutate(series.New(col.Records(), series.String, name))
	}
}

// dedupeBy drops rows whose value in the given column was already seen,
// keeping the first occurrence.
func dedupeBy(df dataframe.DataFrame, name string) (dataframe.DataFrame, error) {
	values, err := columnStrings(df, name)
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	seen := make(map[string]bool, len(values))
	keep := make([]int, 0, len(values))
	for i, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		keep = append(keep, i)
	}
	out := df.Subset(keep)
	return out, out.Err
}

// uniqueSorted returns the sorted distinct values of a string slice.
func uniqueSorted(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
