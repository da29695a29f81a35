package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	StoriesTotal    prometheus.Counter
	DownloadsTotal  *prometheus.CounterVec
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_scraper_requests_total",
			Help: "Total HTTP requests issued by the scraper.",
		},
		[]string{"kind"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "archive_scraper_request_duration_seconds",
			Help:    "HTTP request latency for scraper requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	stories := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "archive_scraper_stories_total",
			Help: "Total number of story records sent to the pipeline.",
		},
	)
	downloads := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_scraper_downloads_total",
			Help: "Total content download outcomes.",
		},
		[]string{"outcome"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "archive_scraper_retries_total",
			Help: "Total number of retry attempts made.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_scraper_errors_total",
			Help: "Total number of scraper errors by category.",
		},
		[]string{"category"},
	)

	registry.MustRegister(requests, requestDuration, stories, downloads, retries, errorsTotal)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		StoriesTotal:    stories,
		DownloadsTotal:  downloads,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
	}
}

// IncRequest increments the requests counter for a request kind.
func (m *Metrics) IncRequest(kind string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(kind).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncStories increments the story records counter.
func (m *Metrics) IncStories() {
	if m == nil {
		return
	}
	m.StoriesTotal.Inc()
}

// IncDownload increments the download counter for an outcome label.
func (m *Metrics) IncDownload(outcome string) {
	if m == nil {
		return
	}
	m.DownloadsTotal.WithLabelValues(outcome).Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a category.
func (m *Metrics) IncError(category Category) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(string(category)).Inc()
}
