package casedata

import (
	"fmt"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// deriveStats computes the estimated recovery, active, and daily delta
// columns from the cumulative counts, treating rows with equal values in the
// group columns as one location's history. Existing derived columns are
// replaced, so the operation can rerun on an already-derived frame when the
// recovery lag changes.
func deriveStats(df dataframe.DataFrame, group []string, lag int) (dataframe.DataFrame, error) {
	if lag <= 0 {
		return dataframe.DataFrame{}, fmt.Errorf("recovery lag must be positive, got %d", lag)
	}

	confirmed, err := columnInts(df, ColConfirmed)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	deaths, err := columnInts(df, ColDeaths)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	repDays, err := columnInts(df, ColRepDay)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	keys, err := groupKeys(df, group)
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	n := df.Nrow()
	sep := string(rune(unitSep))
	rowAt := make(map[string]int, n)
	for i := 0; i < n; i++ {
		rowAt[keys[i]+sep+strconv.Itoa(repDays[i])] = i
	}
	lookup := func(i, day int) (int, bool) {
		j, ok := rowAt[keys[i]+sep+strconv.Itoa(day)]
		return j, ok
	}

	recovered := make([]int, n)
	active := make([]int, n)
	for i := 0; i < n; i++ {
		if j, ok := lookup(i, repDays[i]-lag); ok {
			if r := confirmed[j] - deaths[i]; r > 0 {
				recovered[i] = r
			}
		}
		active[i] = confirmed[i] - deaths[i] - recovered[i]
	}

	delta := func(values []int) []int {
		out := make([]int, n)
		for i := 0; i < n; i++ {
			prev := 0
			if j, ok := lookup(i, repDays[i]-1); ok {
				prev = values[j]
			}
			out[i] = values[i] - prev
		}
		return out
	}

	out := df.
		Mutate(series.New(recovered, series.Int, ColRecovered)).
		Mutate(series.New(active, series.Int, ColActive)).
		Mutate(series.New(delta(confirmed), series.Int, ColNewConfirmed)).
		Mutate(series.New(delta(recovered), series.Int, ColNewRecovered)).
		Mutate(series.New(delta(deaths), series.Int, ColNewDeaths))
	if out.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("derive counts: %w", out.Err)
	}
	return deriveLethality(out)
}

// deriveLethality computes the closed-case death rate: deaths over
// deaths + recovered, zero while no case has resolved.
func deriveLethality(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	deaths, err := columnInts(df, ColDeaths)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	recovered, err := columnInts(df, ColRecovered)
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	rate := make([]float64, len(deaths))
	for i := range rate {
		if closed := deaths[i] + recovered[i]; closed > 0 {
			rate[i] = float64(deaths[i]) / float64(closed)
		}
	}
	out := df.Mutate(series.New(rate, series.Float, ColLethality))
	return out, out.Err
}

// derivePopStats computes the population-scaled columns: the share of the
// population affected and per-100k incidence for each count column. Rows
// without a usable population get zeros.
func derivePopStats(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	pop, err := columnInts(df, ColPopSize)
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	counts := make(map[string][]int, 4)
	for _, name := range []string{ColConfirmed, ColDeaths, ColRecovered, ColActive} {
		values, err := columnInts(df, name)
		if err != nil {
			return dataframe.DataFrame{}, err
		}
		counts[name] = values
	}

	n := len(pop)
	share := make([]float64, n)
	for i := 0; i < n; i++ {
		if pop[i] <= 0 {
			continue
		}
		affected := counts[ColConfirmed][i] + counts[ColDeaths][i] + counts[ColRecovered][i]
		share[i] = float64(affected) / float64(pop[i])
	}
	out := df.Mutate(series.New(share, series.Float, ColPopShare))

	per100k := []struct{ src, dst string }{
		{ColConfirmed, ColConfirmedPer100K},
		{ColDeaths, ColDeathsPer100K},
		{ColRecovered, ColRecoveredPer100K},
		{ColActive, ColActivePer100K},
	}
	for _, p := range per100k {
		values := make([]float64, n)
		for i, v := range counts[p.src] {
			if pop[i] > 0 {
				values[i] = float64(v) * 100000 / float64(pop[i])
			}
		}
		out = out.Mutate(series.New(values, series.Float, p.dst))
	}
	if out.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("derive population stats: %w", out.Err)
	}
	return out, nil
}
