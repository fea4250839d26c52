// Package metrics defines the Prometheus collectors for the indexing
// pipeline and serves them for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	DocsIndexedTotal       *prometheus.CounterVec
	IndexLatency           prometheus.Histogram
	PostingsCreatedTotal   prometheus.Counter
	LocationsAppendedTotal prometheus.Counter
	DuplicateCommitsTotal  *prometheus.CounterVec
	IndexFlushesTotal      *prometheus.CounterVec
	MemoryStoreBytes       prometheus.Gauge
	ActiveSegments         prometheus.Gauge
	CacheHitsTotal         prometheus.Counter
	CacheMissesTotal       prometheus.Counter
}

// New creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in binaries and prometheus.NewRegistry() in
// tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DocsIndexedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kensaku_documents_indexed_total",
				Help: "Documents processed by the indexer, by status (ok, failed).",
			},
			[]string{"status"},
		),
		IndexLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kensaku_index_document_seconds",
				Help:    "Time to tokenize a document and commit its postings.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),
		PostingsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kensaku_postings_created_total",
				Help: "Posting records created.",
			},
		),
		LocationsAppendedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kensaku_locations_appended_total",
				Help: "Occurrence positions appended to posting records.",
			},
		),
		DuplicateCommitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kensaku_duplicate_commits_total",
				Help: "Commits that hit an existing (document, word) record, by policy.",
			},
			[]string{"policy"},
		),
		IndexFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kensaku_index_flushes_total",
				Help: "Segment flushes by status.",
			},
			[]string{"status"},
		),
		MemoryStoreBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "kensaku_memory_store_bytes",
				Help: "Approximate size of unflushed posting records.",
			},
		),
		ActiveSegments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "kensaku_active_segments",
				Help: "Segment files open for lookups.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kensaku_lookup_cache_hits_total",
				Help: "Posting lookups served from the cache.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kensaku_lookup_cache_misses_total",
				Help: "Posting lookups that missed the cache.",
			},
		),
	}

	reg.MustRegister(
		m.DocsIndexedTotal,
		m.IndexLatency,
		m.PostingsCreatedTotal,
		m.LocationsAppendedTotal,
		m.DuplicateCommitsTotal,
		m.IndexFlushesTotal,
		m.MemoryStoreBytes,
		m.ActiveSegments,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)
	return m
}

// Handler returns the scrape handler for the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}
