package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/corona-data-service/internal/adapter/http"
	"github.com/couchcryptid/corona-data-service/internal/casedata"
	"github.com/couchcryptid/corona-data-service/internal/geo"
)

// --- mocks ---

type mockSource struct {
	ds       *casedata.Dataset
	readyErr error
}

func (m *mockSource) Dataset() *casedata.Dataset             { return m.ds }
func (m *mockSource) CheckReadiness(_ context.Context) error { return m.readyErr }

type seriesStub struct {
	confirmed dataframe.DataFrame
	deaths    dataframe.DataFrame
}

func (s seriesStub) ConfirmedSeries(_ context.Context) (dataframe.DataFrame, error) {
	return s.confirmed, nil
}

func (s seriesStub) DeathsSeries(_ context.Context) (dataframe.DataFrame, error) {
	return s.deaths, nil
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loadWide(t *testing.T, records [][]string) dataframe.DataFrame {
	t.Helper()
	df := dataframe.LoadRecords(records, dataframe.DetectTypes(false), dataframe.DefaultType(series.String))
	require.NoError(t, df.Err)
	return df
}

// testDataset assembles three countries over three days with lag 2. France
// only reports on the last day, which exercises the fill paths.
func testDataset(t *testing.T) (*casedata.Dataset, *geo.Table) {
	t.Helper()
	ref, err := geo.Load()
	require.NoError(t, err)

	src := seriesStub{
		confirmed: loadWide(t, [][]string{
			{"Province/State", "Country/Region", "Lat", "Long", "1/22/20", "1/23/20", "1/24/20"},
			{"", "Germany", "51.0", "9.0", "1", "3", "6"},
			{"", "US", "38.0", "-97.0", "2", "4", "8"},
			{"", "France", "46.2", "2.2", "0", "0", "2"},
		}),
		deaths: loadWide(t, [][]string{
			{"Province/State", "Country/Region", "Lat", "Long", "1/22/20", "1/23/20", "1/24/20"},
			{"", "Germany", "51.0", "9.0", "0", "1", "1"},
			{"", "US", "38.0", "-97.0", "0", "0", "1"},
			{"", "France", "46.2", "2.2", "0", "0", "0"},
		}),
	}
	ds, err := casedata.Builder{Source: src, Ref: ref, Lag: 2, Logger: discardLogger()}.Build(context.Background())
	require.NoError(t, err)
	return ds, ref
}

func newBareServer(readyErr error) *httpadapter.Server {
	return httpadapter.NewServer(":0", &mockSource{readyErr: readyErr}, discardLogger())
}

func newTestServer(t *testing.T) (*httpadapter.Server, *geo.Table) {
	t.Helper()
	ds, ref := testDataset(t)
	return httpadapter.NewServer(":0", &mockSource{ds: ds}, discardLogger()), ref
}

func get(srv *httpadapter.Server, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decodeRows(t *testing.T, rec *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	return rows
}

func rowWhere(t *testing.T, rows []map[string]any, column, value string) map[string]any {
	t.Helper()
	for _, row := range rows {
		if row[column] == value {
			return row
		}
	}
	t.Fatalf("no row with %s=%q", column, value)
	return nil
}

// --- tests ---

func TestHealthzReturns200(t *testing.T) {
	srv := newBareServer(nil)

	rec := get(srv, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	srv := newBareServer(nil)

	rec := get(srv, "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	srv := newBareServer(errors.New("dataset not loaded yet"))

	rec := get(srv, "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "dataset not loaded yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newBareServer(nil)

	rec := get(srv, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestDataRoutesReturn503BeforeFirstLoad(t *testing.T) {
	srv := newBareServer(nil)

	for _, target := range []string{"/v1/days", "/v1/day", "/v1/region?value=Germany"} {
		rec := get(srv, target)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "dataset not loaded yet", body["error"], target)
	}
}

func TestDaysEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(srv, "/v1/days")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Days          []string `json:"days"`
		FirstDay      string   `json:"first_day"`
		LastDay       string   `json:"last_day"`
		LastReportDay int      `json:"last_report_day"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"2020-01-22", "2020-01-23", "2020-01-24"}, body.Days)
	assert.Equal(t, "2020-01-22", body.FirstDay)
	assert.Equal(t, "2020-01-24", body.LastDay)
	assert.Equal(t, 3, body.LastReportDay)
}

func TestDayEndpointDefaultsToLatest(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(srv, "/v1/day")

	assert.Equal(t, http.StatusOK, rec.Code)

	rows := decodeRows(t, rec)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, "2020-01-24", row["Date"])
	}

	germany := rowWhere(t, rows, "Country", "Germany")
	assert.Equal(t, "Europe", germany["Continent"])
	assert.Equal(t, float64(6), germany["Confirmed"])
	assert.Equal(t, float64(1), germany["Deaths"])
	assert.Equal(t, float64(5), germany["Active"])

	us := rowWhere(t, rows, "Country", "United States")
	assert.Equal(t, float64(8), us["Confirmed"])
	assert.Equal(t, float64(1), us["Recovered"])
	assert.Equal(t, 0.5, us["Lethality"])
}

func TestDayEndpointSelectsByDate(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(srv, "/v1/day?date=2020-01-23")

	assert.Equal(t, http.StatusOK, rec.Code)

	rows := decodeRows(t, rec)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, "2020-01-23", row["Date"])
	}
}

func TestDayEndpointSelectsByReportDay(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(srv, "/v1/day?repday=1")

	assert.Equal(t, http.StatusOK, rec.Code)

	rows := decodeRows(t, rec)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, float64(1), row["RepDay"])
	}
}

func TestDayEndpointFillsByContinent(t *testing.T) {
	srv, ref := newTestServer(t)

	rec := get(srv, "/v1/day?fill=true&by=Continent")

	assert.Equal(t, http.StatusOK, rec.Code)

	continents, err := ref.Values("Continent")
	require.NoError(t, err)
	pop, err := ref.PopulationBy("Continent")
	require.NoError(t, err)

	rows := decodeRows(t, rec)
	require.Len(t, rows, len(continents))

	europe := rowWhere(t, rows, "Continent", "Europe")
	assert.Equal(t, "2020-01-24", europe["Date"])
	assert.Equal(t, float64(8), europe["Confirmed"])
	assert.Equal(t, float64(1), europe["Deaths"])
	assert.Equal(t, float64(pop["Europe"]), europe["PopSize"])

	// Continents without any reports come back as zero rows.
	africa := rowWhere(t, rows, "Continent", "Africa")
	assert.Equal(t, float64(0), africa["Confirmed"])
	assert.Equal(t, float64(0), africa["Lethality"])
}

func TestDayEndpointRejectsBadParams(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		target  string
		wantErr string
	}{
		{"/v1/day?date=Jan-24", "date must be YYYY-MM-DD"},
		{"/v1/day?repday=first", "repday must be a positive integer"},
		{"/v1/day?repday=0", "repday must be a positive integer"},
		{"/v1/day?fill=maybe", "fill must be true or false"},
		{"/v1/day?date=2020-01-23&repday=2", "mutually exclusive"},
		{"/v1/day?by=Lethality", `unknown geo column "Lethality"`},
	}
	for _, tc := range tests {
		rec := get(srv, tc.target)

		assert.Equal(t, http.StatusBadRequest, rec.Code, tc.target)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Contains(t, body["error"], tc.wantErr, tc.target)
	}
}

func TestDayEndpointUnknownDayReturns404(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, target := range []string{"/v1/day?date=2019-12-31", "/v1/day?repday=9"} {
		rec := get(srv, target)

		assert.Equal(t, http.StatusNotFound, rec.Code, target)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Contains(t, body["error"], "no matching rows", target)
	}
}

func TestRegionEndpointCountryHistory(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(srv, "/v1/region?value=Germany")

	assert.Equal(t, http.StatusOK, rec.Code)

	rows := decodeRows(t, rec)
	require.Len(t, rows, 3)
	for i, row := range rows {
		assert.Equal(t, "Germany", row["Country"])
		assert.Equal(t, float64(i+1), row["RepDay"])
	}
	// History rows keep the population but drop the other geo attributes.
	assert.Contains(t, rows[0], "PopSize")
	assert.NotContains(t, rows[0], "Code")
	assert.NotContains(t, rows[0], "Continent")
}

func TestRegionEndpointAggregatesContinent(t *testing.T) {
	srv, ref := newTestServer(t)

	rec := get(srv, "/v1/region?column=Continent&value=North+America")

	assert.Equal(t, http.StatusOK, rec.Code)

	pop, err := ref.PopulationBy("Continent")
	require.NoError(t, err)

	rows := decodeRows(t, rec)
	require.Len(t, rows, 3)
	last := rows[len(rows)-1]
	assert.Equal(t, "North America", last["Continent"])
	assert.Equal(t, float64(8), last["Confirmed"])
	assert.Equal(t, float64(pop["North America"]), last["PopSize"])
}

func TestRegionEndpointFillsMissingDays(t *testing.T) {
	srv, ref := newTestServer(t)

	rec := get(srv, "/v1/region?value=France&fill=true")

	assert.Equal(t, http.StatusOK, rec.Code)

	france, ok := ref.Row("France")
	require.True(t, ok)

	rows := decodeRows(t, rec)
	require.Len(t, rows, 3)

	// France only reports on day 3; the earlier days are zero rows.
	assert.Equal(t, "2020-01-22", rows[0]["Date"])
	assert.Equal(t, float64(0), rows[0]["Confirmed"])
	assert.Equal(t, float64(france.PopSize), rows[0]["PopSize"])
	assert.Equal(t, float64(2), rows[2]["Confirmed"])
}

func TestRegionEndpointUnknownAreaReturnsEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(srv, "/v1/region?value=Atlantis")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestRegionEndpointRejectsBadParams(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		target  string
		wantErr string
	}{
		{"/v1/region", "value parameter is required"},
		{"/v1/region?column=Deaths&value=x", `unknown geo column "Deaths"`},
		{"/v1/region?value=Germany&fill=nope", "fill must be true or false"},
	}
	for _, tc := range tests {
		rec := get(srv, tc.target)

		assert.Equal(t, http.StatusBadRequest, rec.Code, tc.target)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Contains(t, body["error"], tc.wantErr, tc.target)
	}
}
