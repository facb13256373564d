// Package jhu fetches the Johns Hopkins CSSE COVID-19 time-series files.
package jhu

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Default locations of the global wide time-series files.
const (
	DefaultConfirmedURL = "https://raw.githubusercontent.com/CSSEGISandData/COVID-19/master/csse_covid_19_data/csse_covid_19_time_series/time_series_covid19_confirmed_global.csv"
	DefaultDeathsURL    = "https://raw.githubusercontent.com/CSSEGISandData/COVID-19/master/csse_covid_19_data/csse_covid_19_time_series/time_series_covid19_deaths_global.csv"
)

// Client implements casedata.SeriesSource against the upstream CSV files.
type Client struct {
	confirmedURL string
	deathsURL    string
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewClient creates a fetcher for the two wide series files. Empty URLs
// select the public upstream locations.
func NewClient(confirmedURL, deathsURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if confirmedURL == "" {
		confirmedURL = DefaultConfirmedURL
	}
	if deathsURL == "" {
		deathsURL = DefaultDeathsURL
	}
	return &Client{
		confirmedURL: confirmedURL,
		deathsURL:    deathsURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// ConfirmedSeries fetches and parses the cumulative confirmed-cases file.
func (c *Client) ConfirmedSeries(ctx context.Context) (dataframe.DataFrame, error) {
	return c.fetchSeries(ctx, c.confirmedURL, "confirmed")
}

// DeathsSeries fetches and parses the cumulative deaths file.
func (c *Client) DeathsSeries(ctx context.Context) (dataframe.DataFrame, error) {
	return c.fetchSeries(ctx, c.deathsURL, "deaths")
}

func (c *Client) fetchSeries(ctx context.Context, fileURL, source string) (dataframe.DataFrame, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("%s series request: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return dataframe.DataFrame{}, fmt.Errorf("upstream error: status %d: %s", resp.StatusCode, body)
	}

	// All columns stay strings here; the reshape step parses counts itself
	// and type detection over hundreds of date columns is wasted work.
	df := dataframe.ReadCSV(resp.Body,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("parse %s series: %w", source, df.Err)
	}

	c.logger.Debug("fetched series",
		"source", source,
		"rows", df.Nrow(),
		"elapsed", time.Since(start),
	)
	return df, nil
}
