// Package telemetry provides application-level observability for CivicScan.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<CSC_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint returns data in the Prometheus text exposition
// format and is intended to be scraped by a Prometheus server every 15–60 seconds.
// It is NOT served by the Gin router, so authentication middleware never applies
// to it; keep the port firewalled accordingly.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Scrape pipeline counters (documents fetched, pages scanned, keyword matches, retries)
//   - Scrape job outcome counters
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/jobs/:id) rather than
// the raw request URL to prevent unbounded label cardinality from user-supplied
// path segments such as job IDs.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}.
// The path label holds the Gin route template (e.g. /api/jobs/:id/results),
// NOT the raw URL, to prevent unbounded cardinality.
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and buckets
// from 5 ms to 30 s.  Use histogram_quantile to compute latency percentiles.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Scrape pipeline metrics — recorded by internal/scraper during job execution.
//
// ScrapeDocumentsFetchedTotal counts successfully downloaded documents, by
// document kind ("minutes" or "package").  ScrapeFetchFailuresTotal counts
// downloads that exhausted all retries.  ScrapeFetchRetriesTotal counts
// individual retry attempts, which makes flaky upstream sites visible before
// they start failing outright.
//
// Example PromQL queries:
//   - Fetch failure ratio:  rate(scrape_fetch_failures_total[1h]) / rate(scrape_documents_fetched_total[1h])
//   - Retry pressure:       rate(scrape_fetch_retries_total[1h])
var (
	ScrapeDocumentsFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_documents_fetched_total",
			Help: "Total number of documents successfully downloaded, by document kind.",
		},
		[]string{"kind"},
	)

	ScrapeFetchFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scrape_fetch_failures_total",
			Help: "Total number of document downloads that failed after all retries.",
		},
	)

	ScrapeFetchRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scrape_fetch_retries_total",
			Help: "Total number of individual document download retry attempts.",
		},
	)

	ScrapePagesScannedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scrape_pages_scanned_total",
			Help: "Total number of PDF pages scanned for keywords.",
		},
	)

	ScrapeMatchesFoundTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scrape_matches_found_total",
			Help: "Total number of keyword matches recorded.",
		},
	)
)

// ScrapeJobsCompletedTotal is a CounterVec with label {status} incremented once
// per job reaching a terminal state.  status is one of "completed", "failed",
// or "cancelled".
//
// Example PromQL queries:
//   - Failure rate:  rate(scrape_jobs_completed_total{status="failed"}[24h])
var ScrapeJobsCompletedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scrape_jobs_completed_total",
		Help: "Total number of scrape jobs that reached a terminal state, by status.",
	},
	[]string{"status"},
)

// ScrapeJobDuration observes the wall-clock duration of each scrape job from
// the running transition to its terminal transition.
var ScrapeJobDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "scrape_job_duration_seconds",
		Help:    "Duration of a scrape job from start to terminal state.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	},
)

// StorageCleanupFilesRemovedTotal is a CounterVec with label {category}
// incremented by the retention job and by explicit admin cleanup requests.
var StorageCleanupFilesRemovedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storage_cleanup_files_removed_total",
		Help: "Total number of stored files removed by cleanup, by storage category.",
	},
	[]string{"category"},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go:
//
//	telemetry.StartDBStatsCollector(database)
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
