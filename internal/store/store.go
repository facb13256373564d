// Package store persists the assembled case table as a CSV snapshot and
// decides when the snapshot is stale enough to rebuild from upstream.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/corona-data-service/internal/casedata"
)

// Store loads, saves, and rebuilds the dataset snapshot at a fixed path.
type Store struct {
	path    string
	temp    bool
	builder casedata.Builder
	logger  *slog.Logger
}

// New creates a store at path. An empty path selects a throwaway file under
// the system temp directory; loads then always rebuild instead of reading a
// previous snapshot.
func New(path string, builder casedata.Builder, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	temp := false
	if path == "" {
		f, err := os.CreateTemp("", "coronadata-*.csv")
		if err != nil {
			return nil, fmt.Errorf("create temp snapshot: %w", err)
		}
		path = f.Name()
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("close temp snapshot: %w", err)
		}
		temp = true
	}
	return &Store{path: path, temp: temp, builder: builder, logger: logger}, nil
}

// Path returns the snapshot location.
func (s *Store) Path() string { return s.path }

// Temporary reports whether the snapshot lives in a throwaway temp file.
func (s *Store) Temporary() bool { return s.temp }

// Load returns the dataset, reading the snapshot when a readable one exists
// and rebuilding from upstream otherwise. The restored result reports which
// path was taken.
func (s *Store) Load(ctx context.Context) (*casedata.Dataset, bool, error) {
	if !s.temp {
		switch _, err := os.Stat(s.path); {
		case err == nil:
			ds, err := s.read()
			if err == nil {
				s.logger.Info("snapshot restored", "path", s.path, "rows", ds.Rows())
				return ds, true, nil
			}
			s.logger.Warn("snapshot unreadable, rebuilding", "path", s.path, "error", err)
		case !errors.Is(err, fs.ErrNotExist):
			return nil, false, fmt.Errorf("stat snapshot: %w", err)
		}
	}

	ds, err := s.Rebuild(ctx)
	if err != nil {
		return nil, false, err
	}
	return ds, false, nil
}

// Rebuild fetches upstream and assembles a fresh dataset.
func (s *Store) Rebuild(ctx context.Context) (*casedata.Dataset, error) {
	return s.builder.Build(ctx)
}

// read decodes the snapshot file. Snapshots carry derived columns from
// whichever recovery lag wrote them, so the configured lag is reapplied.
func (s *Store) read() (*casedata.Dataset, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	frame, err := casedata.DecodeCSV(f)
	if err != nil {
		return nil, err
	}

	lag := s.builder.Lag
	if lag == 0 {
		lag = casedata.DefaultRecoveryLag
	}
	ds, err := casedata.New(frame, s.builder.Ref, lag, s.builder.Logger)
	if err != nil {
		return nil, err
	}
	if err := ds.SetRecoveryLag(lag); err != nil {
		return nil, err
	}
	return ds, nil
}

// Save writes the dataset snapshot atomically: a temp file in the snapshot
// directory renamed over the previous one.
func (s *Store) Save(ds *casedata.Dataset) error {
	f, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	defer os.Remove(f.Name())

	if err := casedata.EncodeCSV(f, ds.Frame()); err != nil {
		f.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(f.Name(), s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}

	s.logger.Debug("snapshot saved", "path", s.path, "rows", ds.Rows())
	return nil
}
