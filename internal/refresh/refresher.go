// Package refresh keeps the served dataset current: a scheduled staleness
// check that rebuilds from upstream, saves the snapshot, and publishes the
// day summary.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron"

	"github.com/couchcryptid/corona-data-service/internal/casedata"
	"github.com/couchcryptid/corona-data-service/internal/observability"
	"github.com/couchcryptid/corona-data-service/internal/store"
)

// SummaryPublisher publishes the day digest after a successful refresh.
type SummaryPublisher interface {
	PublishSummary(ctx context.Context, summary casedata.Summary) error
}

// Refresher owns the served dataset: it loads the initial copy, swaps in
// rebuilt ones when the snapshot goes stale, and hands the current copy to
// the HTTP layer.
type Refresher struct {
	store     *store.Store
	watcher   *store.Watcher
	publisher SummaryPublisher // nil when publishing is disabled
	interval  time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu sync.RWMutex
	ds *casedata.Dataset

	cron *cron.Cron
}

// New creates a Refresher. publisher may be nil when publishing is disabled.
func New(st *store.Store, watcher *store.Watcher, publisher SummaryPublisher, interval time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Refresher {
	return &Refresher{
		store:     st,
		watcher:   watcher,
		publisher: publisher,
		interval:  interval,
		logger:    logger,
		metrics:   metrics,
	}
}

// Dataset returns the currently served dataset, or nil before the first
// load.
func (r *Refresher) Dataset() *casedata.Dataset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ds
}

// CheckReadiness returns nil once a dataset is loaded, or an error
// describing why the service is not yet ready.
func (r *Refresher) CheckReadiness(_ context.Context) error {
	if r.Dataset() == nil {
		return errors.New("dataset not loaded yet")
	}
	return nil
}

// Start loads the initial dataset and schedules the staleness checks. It
// returns once the first dataset is served.
func (r *Refresher) Start(ctx context.Context) error {
	ds, restored, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("initial load: %w", err)
	}
	source := "upstream"
	if restored {
		source = "snapshot"
	}
	r.metrics.DatasetLoads.WithLabelValues(source).Inc()
	r.swap(ds)
	r.logger.Info("dataset loaded",
		"source", source,
		"rows", ds.Rows(),
		"countries", len(ds.Countries()),
		"last_day", ds.LastDay(),
	)

	// A restored snapshot was saved and published when it was built.
	if !restored {
		if err := r.store.Save(ds); err != nil {
			r.logger.Warn("save snapshot failed", "path", r.store.Path(), "error", err)
		}
		r.publish(ctx, ds)
	}

	c := cron.New()
	if err := c.AddFunc(fmt.Sprintf("@every %s", r.interval), func() { r.tick(ctx) }); err != nil {
		return fmt.Errorf("schedule refresh: %w", err)
	}
	c.Start()
	r.cron = c
	r.logger.Info("refresh scheduled", "interval", r.interval, "max_age", r.watcher.MaxAge())
	return nil
}

// Stop halts the scheduled checks. A refresh already underway finishes.
func (r *Refresher) Stop() {
	if r.cron != nil {
		r.cron.Stop()
	}
}

// tick runs one staleness check, rebuilding when the snapshot has expired.
func (r *Refresher) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !r.watcher.Stale() {
		return
	}
	r.logger.Info("snapshot stale, rebuilding", "age", r.watcher.Age())
	if err := r.Refresh(ctx); err != nil {
		r.logger.Error("refresh failed", "error", err)
	}
}

// Refresh rebuilds from upstream, saves the snapshot, swaps the served
// dataset, and publishes the day summary.
func (r *Refresher) Refresh(ctx context.Context) error {
	start := time.Now()
	r.metrics.RefreshRuns.Inc()

	ds, err := r.store.Rebuild(ctx)
	if err != nil {
		r.metrics.RefreshErrors.Inc()
		return err
	}
	if err := r.store.Save(ds); err != nil {
		r.metrics.RefreshErrors.Inc()
		return err
	}
	r.swap(ds)
	r.metrics.RefreshDuration.Observe(time.Since(start).Seconds())
	r.logger.Info("dataset refreshed",
		"rows", ds.Rows(),
		"last_day", ds.LastDay(),
		"elapsed", time.Since(start),
	)

	r.publish(ctx, ds)
	return nil
}

// swap replaces the served dataset and updates the dimension gauges.
func (r *Refresher) swap(ds *casedata.Dataset) {
	r.mu.Lock()
	r.ds = ds
	r.mu.Unlock()

	r.metrics.DatasetRows.Set(float64(ds.Rows()))
	r.metrics.DatasetCountries.Set(float64(len(ds.Countries())))
	r.metrics.DatasetLastDay.Set(float64(ds.LastReportDay()))
	r.metrics.ServiceReady.Set(1)
}

// publish sends the day summary when a publisher is configured. Publish
// failures do not fail the refresh; the next run retries.
func (r *Refresher) publish(ctx context.Context, ds *casedata.Dataset) {
	if r.publisher == nil {
		return
	}
	summary, err := ds.Summarize()
	if err != nil {
		r.metrics.PublishErrors.Inc()
		r.logger.Error("summarize failed", "error", err)
		return
	}
	if err := r.publisher.PublishSummary(ctx, summary); err != nil {
		r.metrics.PublishErrors.Inc()
		r.logger.Error("publish summary failed", "day", summary.Day, "error", err)
		return
	}
	r.metrics.SummariesPublished.Inc()
}
