package jhu

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const confirmedCSV = `Province/State,Country/Region,Lat,Long,1/22/20,1/23/20
Hubei,Mainland China,30.98,112.27,2,10
,Germany,51.17,10.45,0,1
`

const deathsCSV = `Province/State,Country/Region,Lat,Long,1/22/20,1/23/20
Hubei,Mainland China,30.98,112.27,0,1
,Germany,51.17,10.45,0,0
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seriesServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/confirmed.csv", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, confirmedCSV)
	})
	mux.HandleFunc("/deaths.csv", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, deathsCSV)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_ConfirmedSeries_Success(t *testing.T) {
	srv := seriesServer(t)
	c := NewClient(srv.URL+"/confirmed.csv", srv.URL+"/deaths.csv", 5*time.Second, testLogger())

	df, err := c.ConfirmedSeries(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Province/State", "Country/Region", "Lat", "Long", "1/22/20", "1/23/20",
	}, df.Names())
	require.Equal(t, 2, df.Nrow())
	// Cells stay raw strings for the reshape step.
	assert.Equal(t, []string{"Hubei", "Mainland China", "30.98", "112.27", "2", "10"}, df.Records()[1])
}

func TestClient_DeathsSeries_Success(t *testing.T) {
	srv := seriesServer(t)
	c := NewClient(srv.URL+"/confirmed.csv", srv.URL+"/deaths.csv", 5*time.Second, testLogger())

	df, err := c.DeathsSeries(context.Background())
	require.NoError(t, err)

	require.Equal(t, 2, df.Nrow())
	assert.Equal(t, []string{"Hubei", "Mainland China", "30.98", "112.27", "0", "1"}, df.Records()[1])
}

func TestClient_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, 5*time.Second, testLogger())
	_, err := c.ConfirmedSeries(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream error: status 500")
	assert.Contains(t, err.Error(), "upstream exploded")
}

func TestClient_ParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "Province/State,Country/Region\n\"broken")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, 5*time.Second, testLogger())
	_, err := c.ConfirmedSeries(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse confirmed series")
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, 50*time.Millisecond, testLogger())
	_, err := c.DeathsSeries(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deaths series request")
}

func TestClient_ContextCanceled(t *testing.T) {
	srv := seriesServer(t)
	c := NewClient(srv.URL+"/confirmed.csv", srv.URL+"/deaths.csv", 5*time.Second, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ConfirmedSeries(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "confirmed series request")
}

func TestNewClient_DefaultURLs(t *testing.T) {
	c := NewClient("", "", 5*time.Second, testLogger())
	assert.Equal(t, DefaultConfirmedURL, c.confirmedURL)
	assert.Equal(t, DefaultDeathsURL, c.deathsURL)
}
