// Package casedata assembles and queries the per-country COVID-19 case table.
//
// # Data Source
//
// Case counts originate from the Johns Hopkins CSSE COVID-19 repository
// (https://github.com/CSSEGISandData/COVID-19), which publishes two global
// time-series CSVs: cumulative confirmed cases and cumulative deaths. Both
// are wide tables with one row per reporting location and one column per day:
//
//	Province/State, Country/Region, Lat, Long, 1/22/20, 1/23/20, ...
//
// Date column headers use M/D/YY notation. Counts are cumulative, so a
// location's values never decrease under normal reporting.
//
// # Upstream Quirks
//
// Two artifacts are corrected during reshaping:
//
//   - Canada reports a pseudo-province named "Recovered" whose rows carry
//     aggregate recovery numbers, not a real location. Those rows are dropped.
//   - Locations that have never reported a case (confirmed + deaths == 0)
//     are dropped.
//
// Country/Region names do not match the reference table everywhere ("US",
// "Korea, South", "Taiwan*"). Name resolution is handled by the geo package;
// rows whose names cannot be resolved are logged and ignored.
//
// # Table Columns
//
// The assembled table has one row per (country, day):
//
//	Country, Code, SubRegion, Region, Continent, PopSize   reference attributes
//	Date, RepDay                                           ISO date, 1-based day index
//	Confirmed, Deaths                                      cumulative upstream counts
//	Recovered, Active                                      estimated (see below)
//	NewConfirmed, NewRecovered, NewDeaths                  day-over-day deltas
//	Lethality, PopShare, <count>Per100K                    derived rates
//
// RepDay counts from the first date present anywhere in the data, so day 1
// is the same calendar date for every country.
//
// # Recovery Estimation
//
// Upstream publishes no usable recovery series, so recoveries are estimated
// with a fixed-lag heuristic: a case confirmed on day d-lag that has not
// died by day d counts as recovered on day d.
//
//	Recovered(d) = max(0, Confirmed(d-lag) - Deaths(d))    zero before day lag
//	Active(d)    = Confirmed(d) - Deaths(d) - Recovered(d)
//
// The default lag is 14 days (DefaultRecoveryLag).
package casedata
