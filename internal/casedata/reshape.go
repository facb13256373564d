package casedata

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// wideSeries is one upstream time-series file indexed for merging: counts
// per location key per day, with day columns translated to ISO dates.
type wideSeries struct {
	dates  []string         // ISO dates in file column order
	byDate map[string]int   // ISO date -> index into dates
	ids    map[string][]string // location key -> id column values
	counts map[string][]int // location key -> count per date
	order  []string         // location keys in first-seen order
}

// parseWideSeries validates and indexes a wide time-series frame. Rows that
// repeat a location key are summed cell-wise.
func parseWideSeries(df dataframe.DataFrame) (*wideSeries, error) {
	if df.Err != nil {
		return nil, df.Err
	}
	records := df.Records()
	if len(records) == 0 || len(records[0]) < len(upstreamIDColumns)+1 {
		return nil, fmt.Errorf("time series has no date columns")
	}
	header := records[0]
	for i, want := range upstreamIDColumns {
		if header[i] != want {
			return nil, fmt.Errorf("unexpected id column %q at position %d, want %q", header[i], i, want)
		}
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("time series has no data rows")
	}

	nids := len(upstreamIDColumns)
	ws := &wideSeries{
		byDate: make(map[string]int),
		ids:    make(map[string][]string),
		counts: make(map[string][]int),
	}
	for _, h := range header[nids:] {
		t, err := time.Parse(upstreamDateLayout, h)
		if err != nil {
			return nil, fmt.Errorf("parse date column %q: %w", h, err)
		}
		iso := t.Format(DateLayout)
		ws.byDate[iso] = len(ws.dates)
		ws.dates = append(ws.dates, iso)
	}

	for _, rec := range records[1:] {
		key := strings.Join(rec[:nids], string(rune(unitSep)))
		row, ok := ws.counts[key]
		if !ok {
			row = make([]int, len(ws.dates))
			ws.counts[key] = row
			ws.ids[key] = rec[:nids]
			ws.order = append(ws.order, key)
		}
		for j := range ws.dates {
			v, err := parseCount(rec[nids+j])
			if err != nil {
				return nil, fmt.Errorf("row %q, column %q: %w", rec[1], header[nids+j], err)
			}
			row[j] += v
		}
	}
	return ws, nil
}

// parseCount reads an upstream count cell. Empty cells mean zero; float
// renderings of whole numbers are tolerated.
func parseCount(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse count %q: %w", s, err)
	}
	return int(f), nil
}

// MergeSeries melts the confirmed and deaths wide frames to long format and
// merges them into one frame with a row per (location, day):
//
//	Province/State, Country/Region, Lat, Long, Date, Confirmed, Deaths
//
// Only locations and days present in both inputs are kept.
func MergeSeries(confirmed, deaths dataframe.DataFrame) (dataframe.DataFrame, error) {
	conf, err := parseWideSeries(confirmed)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("confirmed series: %w", err)
	}
	dead, err := parseWideSeries(deaths)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("deaths series: %w", err)
	}

	shared := make([]string, 0, len(conf.dates))
	for _, d := range conf.dates {
		if _, ok := dead.byDate[d]; ok {
			shared = append(shared, d)
		}
	}
	if len(shared) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("confirmed and deaths series share no dates")
	}

	header := append(append([]string{}, upstreamIDColumns...), ColDate, ColConfirmed, ColDeaths)
	records := [][]string{header}
	for _, key := range conf.order {
		drow, ok := dead.counts[key]
		if !ok {
			continue
		}
		crow := conf.counts[key]
		ids := conf.ids[key]
		for _, date := range shared {
			records = append(records, append(append([]string{}, ids...),
				date,
				strconv.Itoa(crow[conf.byDate[date]]),
				strconv.Itoa(drow[dead.byDate[date]]),
			))
		}
	}
	if len(records) == 1 {
		return dataframe.DataFrame{}, fmt.Errorf("confirmed and deaths series share no locations")
	}

	df := dataframe.LoadRecords(records,
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.WithTypes(map[string]series.Type{
			ColConfirmed: series.Int,
			ColDeaths:    series.Int,
		}),
	)
	return df, df.Err
}

// dropNoise removes the upstream artifacts from a merged long frame: the
// "Recovered" pseudo-province rows and locations that never reported a case.
func dropNoise(df dataframe.DataFrame) dataframe.DataFrame {
	out := df.Filter(dataframe.F{Colname: ColProvince, Comparator: series.Neq, Comparando: "Recovered"})
	if out.Err != nil {
		return out
	}
	return out.FilterAggregation(dataframe.Or,
		dataframe.F{Colname: ColConfirmed, Comparator: series.Greater, Comparando: 0},
		dataframe.F{Colname: ColDeaths, Comparator: series.Greater, Comparando: 0},
	)
}

// addReportDays appends the RepDay column: 1-based days since the earliest
// date in the frame.
func addReportDays(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	dates, err := columnStrings(df, ColDate)
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	parsed := make([]time.Time, len(dates))
	var first time.Time
	for i, d := range dates {
		t, err := time.Parse(DateLayout, d)
		if err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("parse date %q: %w", d, err)
		}
		parsed[i] = t
		if i == 0 || t.Before(first) {
			first = t
		}
	}

	days := make([]int, len(parsed))
	for i, t := range parsed {
		days[i] = int(t.Sub(first)/(24*time.Hour)) + 1
	}
	out := df.Mutate(series.New(days, series.Int, ColRepDay))
	return out, out.Err
}

// validatePivot checks that the pivot columns are a non-empty subset of the
// upstream id columns.
func validatePivot(pivot []string) error {
	if len(pivot) == 0 {
		return fmt.Errorf("pivot columns required, allowed: %v", upstreamIDColumns)
	}
	for _, p := range pivot {
		ok := false
		for _, allowed := range upstreamIDColumns {
			if p == allowed {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("unknown pivot column %q, allowed: %v", p, upstreamIDColumns)
		}
	}
	return nil
}

// Reshape builds a long per-day case table from the two wide series frames,
// grouped on the given pivot columns: merge, noise corrections, grouped
// sums, report-day indexing, and a deterministic sort by pivot and day.
func Reshape(confirmed, deaths dataframe.DataFrame, pivot []string) (dataframe.DataFrame, error) {
	if err := validatePivot(pivot); err != nil {
		return dataframe.DataFrame{}, err
	}

	long, err := MergeSeries(confirmed, deaths)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	long = dropNoise(long)
	if long.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("drop noise rows: %w", long.Err)
	}

	grouped, err := sumBy(long, append(append([]string{}, pivot...), ColDate), []string{ColConfirmed, ColDeaths})
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	indexed, err := addReportDays(grouped)
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	orders := make([]dataframe.Order, 0, len(pivot)+1)
	for _, p := range pivot {
		orders = append(orders, dataframe.Sort(p))
	}
	orders = append(orders, dataframe.Sort(ColRepDay))
	out := indexed.Arrange(orders...)
	if out.Err != nil {
		return dataframe.DataFrame{}, out.Err
	}

	columns := append(append([]string{}, pivot...), ColDate, ColRepDay, ColConfirmed, ColDeaths)
	out = out.Select(columns)
	return out, out.Err
}
