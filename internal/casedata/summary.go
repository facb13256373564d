package casedata

import (
	"fmt"
)

// ContinentTotal is one continent's cumulative counts on the summary day.
type ContinentTotal struct {
	Continent string `json:"continent"`
	Confirmed int    `json:"confirmed"`
	Deaths    int    `json:"deaths"`
	Recovered int    `json:"recovered"`
	Active    int    `json:"active"`
}

// Summary digests the latest reporting day: table dimensions plus per
// continent totals. It is the payload published after each refresh.
type Summary struct {
	Day       string           `json:"day"`
	ReportDay int              `json:"report_day"`
	Rows      int              `json:"rows"`
	Countries int              `json:"countries"`
	Totals    []ContinentTotal `json:"totals"`
}

// Summarize builds the digest of the latest reporting day. Continents
// without reports appear with zero counts.
func (d *Dataset) Summarize() (Summary, error) {
	slice, err := d.DayRows(DayQuery{GeoColumn: ColContinent, Fill: true})
	if err != nil {
		return Summary{}, fmt.Errorf("summarize latest day: %w", err)
	}

	continents, err := columnStrings(slice, ColContinent)
	if err != nil {
		return Summary{}, err
	}
	counts := make(map[string][]int, 4)
	for _, name := range []string{ColConfirmed, ColDeaths, ColRecovered, ColActive} {
		values, err := columnInts(slice, name)
		if err != nil {
			return Summary{}, err
		}
		counts[name] = values
	}

	totals := make([]ContinentTotal, len(continents))
	for i, c := range continents {
		totals[i] = ContinentTotal{
			Continent: c,
			Confirmed: counts[ColConfirmed][i],
			Deaths:    counts[ColDeaths][i],
			Recovered: counts[ColRecovered][i],
			Active:    counts[ColActive][i],
		}
	}

	return Summary{
		Day:       d.LastDay(),
		ReportDay: d.LastReportDay(),
		Rows:      d.Rows(),
		Countries: len(d.Countries()),
		Totals:    totals,
	}, nil
}
