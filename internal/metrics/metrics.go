// Package metrics exposes curation pipeline metrics for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hotdog-curator/internal/models"
)

const namespace = "curator"

// Metrics holds the pipeline collectors
type Metrics struct {
	registry *prometheus.Registry

	ScansTotal         *prometheus.CounterVec
	ScanDuration       *prometheus.HistogramVec
	CandidatesTotal    *prometheus.CounterVec
	SourcesSkipped     *prometheus.CounterVec
	LockConflictsTotal *prometheus.CounterVec
	QueueSize          prometheus.Gauge
	QueueByType        *prometheus.GaugeVec
	DaysOfContent      prometheus.Gauge
}

// New creates metrics on a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		ScansTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_scans_total",
			Help:      "Source scans attempted, by source and outcome",
		}, []string{"source", "outcome"}),
		ScanDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of scan runs",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"kind"}),
		CandidatesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_processed_total",
			Help:      "Candidates processed, by source and action",
		}, []string{"source", "action"}),
		SourcesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sources_skipped_total",
			Help:      "Sources skipped by the queue balance policy",
		}, []string{"source"}),
		LockConflictsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_lock_conflicts_total",
			Help:      "Scans skipped because another run held the source lock",
		}, []string{"source"}),
		QueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_size",
			Help:      "Approved entries waiting to be posted",
		}),
		QueueByType: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_entries",
			Help:      "Approved, unposted entries by content type",
		}, []string{"content_type"}),
		DaysOfContent: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_days_of_content",
			Help:      "Days of content left at the configured posting rate",
		}),
	}
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStats updates the queue gauges
func (m *Metrics) ObserveStats(stats *models.QueueStats) {
	if m == nil || stats == nil {
		return
	}
	m.QueueSize.Set(float64(stats.Total))
	m.DaysOfContent.Set(stats.DaysOfContent)
	for _, ct := range models.ContentTypes {
		m.QueueByType.WithLabelValues(string(ct)).Set(float64(stats.ByContentType[ct].Count))
	}
}
