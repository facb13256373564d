package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// refresh loop and the served dataset.
type Metrics struct {
	RefreshRuns     prometheus.Counter
	RefreshErrors   prometheus.Counter
	RefreshDuration prometheus.Histogram

	// Startup and publishing metrics.
	DatasetLoads       *prometheus.CounterVec // labels: source={snapshot,upstream}
	SummariesPublished prometheus.Counter
	PublishErrors      prometheus.Counter

	// Served dataset dimensions.
	DatasetRows      prometheus.Gauge
	DatasetCountries prometheus.Gauge
	DatasetLastDay   prometheus.Gauge
	ServiceReady     prometheus.Gauge
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RefreshRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corona_data",
			Name:      "refresh_runs_total",
			Help:      "Total refresh attempts against the upstream files.",
		}),
		RefreshErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corona_data",
			Name:      "refresh_errors_total",
			Help:      "Total refresh attempts that failed.",
		}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "corona_data",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a complete fetch-assemble-save cycle.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		DatasetLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "corona_data",
			Name:      "dataset_loads_total",
			Help:      "Dataset loads by source.",
		}, []string{"source"}),
		SummariesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corona_data",
			Name:      "summaries_published_total",
			Help:      "Total day summaries published to Kafka.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corona_data",
			Name:      "publish_errors_total",
			Help:      "Total summary publish failures.",
		}),
		DatasetRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "corona_data",
			Name:      "dataset_rows",
			Help:      "Rows in the served table.",
		}),
		DatasetCountries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "corona_data",
			Name:      "dataset_countries",
			Help:      "Countries in the served table.",
		}),
		DatasetLastDay: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "corona_data",
			Name:      "dataset_last_report_day",
			Help:      "Report-day index of the latest served day.",
		}),
		ServiceReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "corona_data",
			Name:      "service_ready",
			Help:      "1 when a dataset is loaded and served, 0 before.",
		}),
	}

	prometheus.MustRegister(
		m.RefreshRuns,
		m.RefreshErrors,
		m.RefreshDuration,
		m.DatasetLoads,
		m.SummariesPublished,
		m.PublishErrors,
		m.DatasetRows,
		m.DatasetCountries,
		m.DatasetLastDay,
		m.ServiceReady,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		RefreshRuns:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "corona_data", Name: "refresh_runs_total"}),
		RefreshErrors:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "corona_data", Name: "refresh_errors_total"}),
		RefreshDuration:    prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "corona_data", Name: "refresh_duration_seconds"}),
		DatasetLoads:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "corona_data", Name: "dataset_loads_total"}, []string{"source"}),
		SummariesPublished: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "corona_data", Name: "summaries_published_total"}),
		PublishErrors:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "corona_data", Name: "publish_errors_total"}),
		DatasetRows:        prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "corona_data", Name: "dataset_rows"}),
		DatasetCountries:   prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "corona_data", Name: "dataset_countries"}),
		DatasetLastDay:     prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "corona_data", Name: "dataset_last_report_day"}),
		ServiceReady:       prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "corona_data", Name: "service_ready"}),
	}
}
