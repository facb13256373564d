package casedata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/couchcryptid/corona-data-service/internal/geo"
)

// ErrNoRows reports that a day selection matched nothing.
var ErrNoRows = errors.New("no matching rows")

// SeriesSource provides the two upstream wide time-series frames.
type SeriesSource interface {
	ConfirmedSeries(ctx context.Context) (dataframe.DataFrame, error)
	DeathsSeries(ctx context.Context) (dataframe.DataFrame, error)
}

// Dataset is the assembled per-country case table with its query operations.
// Datasets are immutable except for SetRecoveryLag; concurrent readers need
// no locking as long as nobody changes the lag underneath them.
type Dataset struct {
	frame dataframe.DataFrame
	ref   *geo.Table
	lag   int
	log   *slog.Logger
}

// New wraps an already-assembled frame, typically a decoded snapshot. The
// frame must be non-empty and carry every table column.
func New(frame dataframe.DataFrame, ref *geo.Table, lag int, logger *slog.Logger) (*Dataset, error) {
	if frame.Err != nil {
		return nil, frame.Err
	}
	if ref == nil {
		return nil, errors.New("reference table required")
	}
	if lag <= 0 {
		return nil, fmt.Errorf("recovery lag must be positive, got %d", lag)
	}
	if logger == nil {
		logger = slog.Default()
	}

	present := make(map[string]bool, len(frame.Names()))
	for _, name := range frame.Names() {
		present[name] = true
	}
	var missing []string
	for _, name := range columnOrder {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("frame misses columns %s", strings.Join(missing, ", "))
	}
	if frame.Nrow() == 0 {
		return nil, errors.New("frame has no rows")
	}

	return &Dataset{frame: orderColumns(frame), ref: ref, lag: lag, log: logger}, nil
}

// Builder assembles a Dataset from an upstream source and the reference
// table.
type Builder struct {
	Source SeriesSource
	Ref    *geo.Table
	Lag    int // recovery lag in days; zero means DefaultRecoveryLag
	Logger *slog.Logger
}

// Build fetches both series and assembles the derived per-country table:
// merge, noise corrections, country-name resolution, grouped sums, reference
// attributes, report-day indexing, and the derived columns.
func (b Builder) Build(ctx context.Context) (*Dataset, error) {
	if b.Source == nil {
		return nil, errors.New("series source required")
	}
	if b.Ref == nil {
		return nil, errors.New("reference table required")
	}
	lag := b.Lag
	if lag == 0 {
		lag = DefaultRecoveryLag
	}
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}

	confirmed, err := b.Source.ConfirmedSeries(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch confirmed series: %w", err)
	}
	deaths, err := b.Source.DeathsSeries(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch deaths series: %w", err)
	}

	long, err := MergeSeries(confirmed, deaths)
	if err != nil {
		return nil, err
	}
	long = dropNoise(long)
	if long.Err != nil {
		return nil, fmt.Errorf("drop noise rows: %w", long.Err)
	}

	resolved, err := resolveCountries(long, b.Ref, logger)
	if err != nil {
		return nil, err
	}
	summed, err := sumBy(resolved, []string{ColCountry, ColDate}, []string{ColConfirmed, ColDeaths})
	if err != nil {
		return nil, err
	}

	withGeo := summed.InnerJoin(b.Ref.Frame(), ColCountry)
	if withGeo.Err != nil {
		return nil, fmt.Errorf("join reference attributes: %w", withGeo.Err)
	}
	indexed, err := addReportDays(withGeo)
	if err != nil {
		return nil, err
	}
	indexed = indexed.Arrange(dataframe.Sort(ColCountry), dataframe.Sort(ColRepDay))
	if indexed.Err != nil {
		return nil, fmt.Errorf("sort assembled table: %w", indexed.Err)
	}

	derived, err := deriveStats(indexed, []string{ColCountry}, lag)
	if err != nil {
		return nil, err
	}
	derived, err = derivePopStats(derived)
	if err != nil {
		return nil, err
	}

	frame := orderColumns(derived)
	if frame.Err != nil {
		return nil, frame.Err
	}
	return &Dataset{frame: frame, ref: b.Ref, lag: lag, log: logger}, nil
}

// resolveCountries maps upstream country spellings onto reference names and
// drops locations the reference table does not know. Cruise ships and other
// non-country reporting units fall out here.
func resolveCountries(df dataframe.DataFrame, ref *geo.Table, logger *slog.Logger) (dataframe.DataFrame, error) {
	names, err := columnStrings(df, ColCountryRegion)
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	type resolution struct {
		name string
		ok   bool
	}
	cache := make(map[string]resolution)
	var unknown []string
	keep := make([]int, 0, len(names))
	resolved := make([]string, 0, len(names))
	for i, name := range names {
		r, ok := cache[name]
		if !ok {
			r.name, r.ok = ref.Resolve(name)
			cache[name] = r
			if !r.ok {
				unknown = append(unknown, name)
			}
		}
		if !r.ok {
			continue
		}
		keep = append(keep, i)
		resolved = append(resolved, r.name)
	}
	if len(keep) == 0 {
		return dataframe.DataFrame{}, errors.New("no upstream location matches the reference table")
	}
	if len(unknown) > 0 {
		logger.Warn("dropping unresolved locations",
			"count", len(unknown),
			"names", strings.Join(uniqueSorted(unknown), ", "))
	}

	out := df.Subset(keep)
	if out.Err != nil {
		return dataframe.DataFrame{}, out.Err
	}
	out = out.Mutate(series.New(resolved, series.String, ColCountry))
	out = out.Select([]string{ColCountry, ColDate, ColConfirmed, ColDeaths})
	return out, out.Err
}

// Frame returns the assembled table.
func (d *Dataset) Frame() dataframe.DataFrame { return d.frame }

// Rows returns the number of table rows.
func (d *Dataset) Rows() int { return d.frame.Nrow() }

// Lag returns the recovery lag in days.
func (d *Dataset) Lag() int { return d.lag }

// SetRecoveryLag recomputes the recovery-dependent columns with a new lag.
// Recovered, Active, the daily deltas, and the rates all change with it.
func (d *Dataset) SetRecoveryLag(lag int) error {
	derived, err := deriveStats(d.frame, []string{ColCountry}, lag)
	if err != nil {
		return err
	}
	derived, err = derivePopStats(derived)
	if err != nil {
		return err
	}
	d.frame = orderColumns(derived)
	d.lag = lag
	return nil
}

// Days returns the distinct report dates in chronological order.
func (d *Dataset) Days() []string {
	dates, err := columnStrings(d.frame, ColDate)
	if err != nil {
		return nil
	}
	return uniqueSorted(dates)
}

// ReportDays returns the distinct report-day indexes in ascending order.
func (d *Dataset) ReportDays() []int {
	repDays, err := columnInts(d.frame, ColRepDay)
	if err != nil {
		return nil
	}
	seen := make(map[int]bool)
	var out []int
	for _, r := range repDays {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	sort.Ints(out)
	return out
}

// FirstDay returns the earliest report date.
func (d *Dataset) FirstDay() string {
	days := d.Days()
	if len(days) == 0 {
		return ""
	}
	return days[0]
}

// LastDay returns the latest report date.
func (d *Dataset) LastDay() string {
	days := d.Days()
	if len(days) == 0 {
		return ""
	}
	return days[len(days)-1]
}

// LastReportDay returns the highest report-day index.
func (d *Dataset) LastReportDay() int {
	repDays, err := columnInts(d.frame, ColRepDay)
	if err != nil {
		return 0
	}
	last := 0
	for _, r := range repDays {
		if r > last {
			last = r
		}
	}
	return last
}

// Countries returns the countries present in the table, sorted.
func (d *Dataset) Countries() []string {
	countries, err := columnStrings(d.frame, ColCountry)
	if err != nil {
		return nil
	}
	return uniqueSorted(countries)
}

// Unique returns the sorted distinct values of a geo column.
func (d *Dataset) Unique(column string) ([]string, error) {
	if !IsGeoColumn(column) {
		return nil, fmt.Errorf("unknown geo column %q, allowed: %s", column, strings.Join(GeoColumns, ", "))
	}
	values, err := columnStrings(d.frame, column)
	if err != nil {
		return nil, err
	}
	return uniqueSorted(values), nil
}

// DayQuery selects one reporting day.
type DayQuery struct {
	// Date is the ISO day to select. Empty means the latest day, unless
	// ReportDay is set.
	Date string
	// ReportDay selects by report-day index instead of date. Zero means
	// unset.
	ReportDay int
	// GeoColumn is the grouping column when Fill is set. Empty means
	// Country.
	GeoColumn string
	// Fill aggregates by GeoColumn and adds zero rows for reference areas
	// without reports that day.
	Fill bool
}

// DayRows returns one day's slice of the table. Date and ReportDay are
// mutually exclusive; with neither set the latest day is selected. A day
// with no rows yields an error wrapping ErrNoRows.
func (d *Dataset) DayRows(q DayQuery) (dataframe.DataFrame, error) {
	if q.Date != "" && q.ReportDay != 0 {
		return dataframe.DataFrame{}, errors.New("date and report day are mutually exclusive")
	}
	geocol := q.GeoColumn
	if geocol == "" {
		geocol = ColCountry
	}
	if !IsGeoColumn(geocol) {
		return dataframe.DataFrame{}, fmt.Errorf("unknown geo column %q, allowed: %s", geocol, strings.Join(GeoColumns, ", "))
	}

	var sub dataframe.DataFrame
	var label string
	if q.ReportDay != 0 {
		label = fmt.Sprintf("report day %d", q.ReportDay)
		sub = d.frame.Filter(dataframe.F{Colname: ColRepDay, Comparator: series.Eq, Comparando: q.ReportDay})
	} else {
		day := q.Date
		if day == "" {
			day = d.LastDay()
		}
		label = "day " + day
		sub = d.frame.Filter(dataframe.F{Colname: ColDate, Comparator: series.Eq, Comparando: day})
	}
	if sub.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("select %s: %w", label, sub.Err)
	}
	if sub.Nrow() == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("%s: %w", label, ErrNoRows)
	}

	if !q.Fill {
		return orderColumns(sub), nil
	}
	return d.fillDay(sub, geocol)
}

// fillDay aggregates one day's rows by the geo column and left-joins them
// onto the full list of reference areas, so the slice covers every known
// area. Areas without reports get zero counts, and the rates are recomputed
// from the summed counts.
func (d *Dataset) fillDay(sub dataframe.DataFrame, geocol string) (dataframe.DataFrame, error) {
	dates, err := columnStrings(sub, ColDate)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	repDays, err := columnInts(sub, ColRepDay)
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	agg, err := sumBy(sub, []string{geocol, ColDate, ColRepDay}, countColumns)
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	values, err := d.ref.Values(geocol)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	pop, err := d.ref.PopulationBy(geocol)
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	n := len(values)
	pops := make([]int, n)
	fillDates := make([]string, n)
	fillReps := make([]int, n)
	for i, v := range values {
		pops[i] = pop[v]
		fillDates[i] = dates[0]
		fillReps[i] = repDays[0]
	}
	filler := dataframe.New(
		series.New(values, series.String, geocol),
		series.New(pops, series.Int, ColPopSize),
		series.New(fillDates, series.String, ColDate),
		series.New(fillReps, series.Int, ColRepDay),
	)
	if filler.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("build %s filler: %w", geocol, filler.Err)
	}

	joined := filler.LeftJoin(agg, geocol, ColDate, ColRepDay)
	if joined.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("fill %s slice: %w", geocol, joined.Err)
	}
	for _, name := range countColumns {
		ints, err := columnInts(joined, name)
		if err != nil {
			return dataframe.DataFrame{}, err
		}
		joined = joined.Mutate(series.New(ints, series.Int, name))
	}
	if joined.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("zero missing counts: %w", joined.Err)
	}

	joined, err = deriveLethality(joined)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	joined, err = derivePopStats(joined)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	return orderColumns(joined), nil
}

// RegionQuery selects one geographic area's full history.
type RegionQuery struct {
	// Column is the geo column to match. Empty means Country.
	Column string
	// Value is the area name to match.
	Value string
	// Fill adds zero rows for dataset days before the area's first report.
	Fill bool
}

// RegionRows returns one area's history in report-day order. Selections on a
// column above country level are aggregated from the member countries. An
// unknown area yields an empty frame, not an error.
func (d *Dataset) RegionRows(q RegionQuery) (dataframe.DataFrame, error) {
	column := q.Column
	if column == "" {
		column = ColCountry
	}
	if !IsGeoColumn(column) {
		return dataframe.DataFrame{}, fmt.Errorf("unknown geo column %q, allowed: %s", column, strings.Join(GeoColumns, ", "))
	}

	sub := d.frame.Filter(dataframe.F{Colname: column, Comparator: series.Eq, Comparando: q.Value})
	if sub.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("select %s %q: %w", column, q.Value, sub.Err)
	}
	if sub.Nrow() == 0 {
		d.log.Info("no reports for area", "column", column, "value", q.Value)
		return dataframe.DataFrame{}, nil
	}

	if aggregatedGeoColumn(column) {
		var err error
		sub, err = d.aggregateRegion(sub, column, q.Value)
		if err != nil {
			return dataframe.DataFrame{}, err
		}
	} else {
		drop := make([]string, 0, len(GeoColumns)-1)
		for _, c := range GeoColumns {
			if c != column {
				drop = append(drop, c)
			}
		}
		sub = sub.Drop(drop)
		if sub.Err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("drop identity columns: %w", sub.Err)
		}
	}

	if q.Fill {
		var err error
		sub, err = d.fillRegion(sub, column, q.Value)
		if err != nil {
			return dataframe.DataFrame{}, err
		}
	}
	return orderColumns(sub), nil
}

// aggregateRegion collapses the member countries' rows into one history per
// day: grouped count sums, the area's reference population, recomputed
// rates.
func (d *Dataset) aggregateRegion(sub dataframe.DataFrame, column, value string) (dataframe.DataFrame, error) {
	agg, err := sumBy(sub, []string{column, ColDate, ColRepDay}, countColumns)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	pop, err := d.ref.PopulationBy(column)
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	pops := make([]int, agg.Nrow())
	for i := range pops {
		pops[i] = pop[value]
	}
	agg = agg.Mutate(series.New(pops, series.Int, ColPopSize))
	if agg.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("attach %s population: %w", column, agg.Err)
	}

	agg, err = deriveLethality(agg)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	return derivePopStats(agg)
}

// fillRegion adds zero rows for dataset days the area has no reports for, so
// the history spans every report day.
func (d *Dataset) fillRegion(sub dataframe.DataFrame, column, value string) (dataframe.DataFrame, error) {
	dates, repDays, err := d.dayIndex()
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	pops, err := columnInts(sub, ColPopSize)
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	n := len(dates)
	columns := make([]series.Series, 0, len(sub.Names()))
	for _, name := range sub.Names() {
		switch {
		case name == column:
			area := make([]string, n)
			for i := range area {
				area[i] = value
			}
			columns = append(columns, series.New(area, series.String, name))
		case name == ColPopSize:
			fill := make([]int, n)
			for i := range fill {
				fill[i] = pops[0]
			}
			columns = append(columns, series.New(fill, series.Int, name))
		case name == ColDate:
			columns = append(columns, series.New(dates, series.String, name))
		case name == ColRepDay:
			columns = append(columns, series.New(repDays, series.Int, name))
		case columnTypes[name] == series.Float:
			columns = append(columns, series.New(make([]float64, n), series.Float, name))
		default:
			columns = append(columns, series.New(make([]int, n), series.Int, name))
		}
	}
	zero := dataframe.New(columns...)
	if zero.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("build zero rows: %w", zero.Err)
	}

	out := sub.Concat(zero)
	if out.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("fill %s %q: %w", column, value, out.Err)
	}
	out, err = dedupeBy(out, ColRepDay)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	out = out.Arrange(dataframe.Sort(ColRepDay))
	return out, out.Err
}

// dayIndex returns the distinct (date, report day) pairs of the dataset in
// chronological order.
func (d *Dataset) dayIndex() ([]string, []int, error) {
	dates, err := columnStrings(d.frame, ColDate)
	if err != nil {
		return nil, nil, err
	}
	repDays, err := columnInts(d.frame, ColRepDay)
	if err != nil {
		return nil, nil, err
	}

	byDay := make(map[int]string)
	days := make([]int, 0)
	for i, r := range repDays {
		if _, ok := byDay[r]; !ok {
			byDay[r] = dates[i]
			days = append(days, r)
		}
	}
	sort.Ints(days)

	outDates := make([]string, len(days))
	for i, r := range days {
		outDates[i] = byDay[r]
	}
	return outDates, days, nil
}
