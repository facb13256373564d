package refresh_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/corona-data-service/internal/casedata"
	"github.com/couchcryptid/corona-data-service/internal/geo"
	"github.com/couchcryptid/corona-data-service/internal/observability"
	"github.com/couchcryptid/corona-data-service/internal/refresh"
	"github.com/couchcryptid/corona-data-service/internal/store"
)

// --- mocks ---

type fakeSource struct {
	confirmed dataframe.DataFrame
	deaths    dataframe.DataFrame
	fetches   *int
	failAfter int // fail fetches beyond this many; negative fails at once, zero never
}

func (s fakeSource) ConfirmedSeries(context.Context) (dataframe.DataFrame, error) {
	*s.fetches++
	if s.failAfter < 0 || (s.failAfter > 0 && *s.fetches > s.failAfter) {
		return dataframe.DataFrame{}, errors.New("upstream down")
	}
	return s.confirmed, nil
}

func (s fakeSource) DeathsSeries(context.Context) (dataframe.DataFrame, error) {
	return s.deaths, nil
}

type mockPublisher struct {
	summaries []casedata.Summary
	err       error
}

func (m *mockPublisher) PublishSummary(_ context.Context, summary casedata.Summary) error {
	if m.err != nil {
		return m.err
	}
	m.summaries = append(m.summaries, summary)
	return nil
}

// --- helpers ---

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loadWide(t *testing.T, records [][]string) dataframe.DataFrame {
	t.Helper()
	df := dataframe.LoadRecords(records,
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	require.NoError(t, df.Err)
	return df
}

func newTestStore(t *testing.T, failAfter int) (*store.Store, *int, string) {
	t.Helper()
	ref, err := geo.Load()
	require.NoError(t, err)

	confirmed := loadWide(t, [][]string{
		{"Province/State", "Country/Region", "Lat", "Long", "1/22/20", "1/23/20", "1/24/20"},
		{"", "Germany", "51.17", "10.45", "1", "3", "6"},
		{"", "US", "37.09", "-95.71", "2", "4", "8"},
	})
	deaths := loadWide(t, [][]string{
		{"Province/State", "Country/Region", "Lat", "Long", "1/22/20", "1/23/20", "1/24/20"},
		{"", "Germany", "51.17", "10.45", "0", "1", "1"},
		{"", "US", "37.09", "-95.71", "0", "0", "1"},
	})

	fetches := new(int)
	builder := casedata.Builder{
		Source: fakeSource{confirmed: confirmed, deaths: deaths, fetches: fetches, failAfter: failAfter},
		Ref:    ref,
		Lag:    2,
		Logger: discardLogger(),
	}

	path := filepath.Join(t.TempDir(), "snap.csv")
	st, err := store.New(path, builder, discardLogger())
	require.NoError(t, err)
	return st, fetches, path
}

// newRefresher wires a refresher with an interval long enough that the
// schedule never fires during a test.
func newRefresher(t *testing.T, st *store.Store, path string, pub refresh.SummaryPublisher) *refresh.Refresher {
	t.Helper()
	watcher := store.NewWatcher(path, time.Minute)
	r := refresh.New(st, watcher, pub, time.Hour, discardLogger(), newTestMetrics())
	t.Cleanup(r.Stop)
	return r
}

// --- tests ---

func TestRefresher_CheckReadiness_BeforeStart(t *testing.T) {
	st, _, path := newTestStore(t, 0)
	r := newRefresher(t, st, path, nil)

	assert.Nil(t, r.Dataset())
	err := r.CheckReadiness(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dataset not loaded yet")
}

func TestRefresher_Start_LoadsSavesAndPublishes(t *testing.T) {
	st, fetches, path := newTestStore(t, 0)
	pub := &mockPublisher{}
	r := newRefresher(t, st, path, pub)

	require.NoError(t, r.Start(context.Background()))

	require.NotNil(t, r.Dataset())
	assert.NoError(t, r.CheckReadiness(context.Background()))
	assert.Equal(t, 6, r.Dataset().Rows())
	assert.Equal(t, 1, *fetches)

	// The freshly built dataset is persisted and announced.
	_, err := os.Stat(path)
	assert.NoError(t, err)
	require.Len(t, pub.summaries, 1)
	assert.Equal(t, "2020-01-24", pub.summaries[0].Day)
	assert.Equal(t, 6, pub.summaries[0].Rows)
	assert.Equal(t, 2, pub.summaries[0].Countries)
}

func TestRefresher_Start_RestoredSnapshotSkipsPublish(t *testing.T) {
	st, fetches, path := newTestStore(t, 0)

	// Persist a snapshot first, the way a previous run would have.
	built, _, err := st.Load(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.Save(built))

	pub := &mockPublisher{}
	r := newRefresher(t, st, path, pub)
	require.NoError(t, r.Start(context.Background()))

	assert.NotNil(t, r.Dataset())
	assert.Equal(t, 1, *fetches)
	// The snapshot's summary went out when it was built.
	assert.Empty(t, pub.summaries)
}

func TestRefresher_Start_LoadFails(t *testing.T) {
	st, _, path := newTestStore(t, -1)
	r := newRefresher(t, st, path, &mockPublisher{})

	err := r.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initial load")
	assert.Nil(t, r.Dataset())
}

func TestRefresher_Refresh_SwapsAndPublishes(t *testing.T) {
	st, fetches, path := newTestStore(t, 0)
	pub := &mockPublisher{}
	r := newRefresher(t, st, path, pub)
	require.NoError(t, r.Start(context.Background()))

	require.NoError(t, r.Refresh(context.Background()))

	assert.Equal(t, 2, *fetches)
	require.Len(t, pub.summaries, 2)
	assert.Equal(t, pub.summaries[0].Day, pub.summaries[1].Day)
	assert.NotNil(t, r.Dataset())
}

func TestRefresher_Refresh_RebuildFailure(t *testing.T) {
	st, _, path := newTestStore(t, 1)
	pub := &mockPublisher{}
	r := newRefresher(t, st, path, pub)
	require.NoError(t, r.Start(context.Background()))

	err := r.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream down")

	// The previously served dataset stays up.
	assert.NotNil(t, r.Dataset())
	assert.NoError(t, r.CheckReadiness(context.Background()))
	require.Len(t, pub.summaries, 1)
}

func TestRefresher_Refresh_PublishFailureTolerated(t *testing.T) {
	st, _, path := newTestStore(t, 0)
	pub := &mockPublisher{err: errors.New("broker unreachable")}
	r := newRefresher(t, st, path, pub)
	require.NoError(t, r.Start(context.Background()))

	// Publishing is best effort; the refresh itself succeeds.
	require.NoError(t, r.Refresh(context.Background()))
	assert.NotNil(t, r.Dataset())
	assert.Empty(t, pub.summaries)
}

func TestRefresher_NilPublisher(t *testing.T) {
	st, _, path := newTestStore(t, 0)
	r := newRefresher(t, st, path, nil)

	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Refresh(context.Background()))
	assert.NotNil(t, r.Dataset())
}
