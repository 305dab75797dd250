// Package observability defines the Prometheus metrics exported by maritimeviz.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "maritimeviz"

// Metrics holds the counters, histograms and gauges for ingest, storage and
// the Global Fishing Watch client.
type Metrics struct {
	// Decoding.
	LinesRead       prometheus.Counter
	MessagesDecoded *prometheus.CounterVec // labels: type={1,2,3,5}
	DecodeErrors    *prometheus.CounterVec // labels: reason={not_ais,checksum,malformed,armor,bit_count}
	MessagesSkipped prometheus.Counter

	// Storage.
	RowsStored *prometheus.CounterVec // labels: table={ais_msg_123,ais_msg_5}

	// Ingest jobs.
	IngestDuration   prometheus.Histogram
	IngestJobsActive prometheus.Gauge
	IngestJobs       *prometheus.CounterVec // labels: outcome={complete,error}

	// Global Fishing Watch.
	GFWRequests *prometheus.CounterVec   // labels: endpoint, outcome={success,error}
	GFWCache    *prometheus.CounterVec   // labels: endpoint, result={hit,miss}
	GFWDuration *prometheus.HistogramVec // labels: endpoint

	// Publishing.
	MessagesPublished prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests can
// build as many as they need.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		LinesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_read_total",
			Help:      "Total NMEA lines read from input files.",
		}),
		MessagesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_decoded_total",
			Help:      "AIS messages decoded by message type.",
		}, []string{"type"}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Lines that failed to decode, by reason.",
		}, []string{"reason"}),
		MessagesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_skipped_total",
			Help:      "Complete messages of types that are not stored.",
		}),
		RowsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_stored_total",
			Help:      "Rows appended to the database, by table.",
		}, []string{"table"}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Duration of a complete file ingest.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		}),
		IngestJobsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingest_jobs_active",
			Help:      "Ingest jobs currently running.",
		}),
		IngestJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_jobs_total",
			Help:      "Finished ingest jobs by outcome.",
		}, []string{"outcome"}),
		GFWRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gfw_requests_total",
			Help:      "Global Fishing Watch API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		GFWCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gfw_cache_total",
			Help:      "Global Fishing Watch cache lookups by endpoint and result.",
		}, []string{"endpoint", "result"}),
		GFWDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gfw_request_duration_seconds",
			Help:      "Global Fishing Watch API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		MessagesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_published_total",
			Help:      "Position reports written to Kafka.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.LinesRead,
		m.MessagesDecoded,
		m.DecodeErrors,
		m.MessagesSkipped,
		m.RowsStored,
		m.IngestDuration,
		m.IngestJobsActive,
		m.IngestJobs,
		m.GFWRequests,
		m.GFWCache,
		m.GFWDuration,
		m.MessagesPublished,
	}
}
