package store_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/corona-data-service/internal/store"
)

func TestNewWatcher_DefaultMaxAge(t *testing.T) {
	assert.Equal(t, store.DefaultMaxAge, store.NewWatcher("x", 0).MaxAge())
	assert.Equal(t, store.DefaultMaxAge, store.NewWatcher("x", -time.Second).MaxAge())
	assert.Equal(t, time.Hour, store.NewWatcher("x", time.Hour).MaxAge())
}

func TestWatcher_Stale_MissingFile(t *testing.T) {
	w := store.NewWatcher(filepath.Join(t.TempDir(), "nope.csv"), time.Minute)

	assert.True(t, w.Stale())
	assert.Equal(t, time.Duration(0), w.Age())
}

func TestWatcher_Stale_AgesOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.csv")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	fc := clockwork.NewFakeClockAt(time.Now())
	store.SetClock(fc)
	t.Cleanup(func() { store.SetClock(nil) })

	w := store.NewWatcher(path, time.Minute)
	assert.False(t, w.Stale())

	fc.Advance(2 * time.Minute)
	assert.True(t, w.Stale())
	assert.Greater(t, w.Age(), time.Minute)
}
