// Package metrics exposes fetch orchestration counters over Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BatchesFetched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "xscraper_batches_fetched_total",
		Help: "Total extractor batches fetched",
	})
	EntriesMerged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "xscraper_entries_merged_total",
		Help: "Total new timeline entries merged",
	})
	ExtractorFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xscraper_extractor_failures_total",
		Help: "Extractor failures by error class",
	}, []string{"class"})
	SessionsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xscraper_sessions_finished_total",
		Help: "Fetch sessions by final status",
	}, []string{"status"})
	SessionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "xscraper_session_duration_seconds",
		Help:    "Fetch session duration seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(
		BatchesFetched,
		EntriesMerged,
		ExtractorFailures,
		SessionsFinished,
		SessionDuration,
	)
}

// StartServer serves /metrics on addr in the background. An empty addr
// disables the listener.
func StartServer(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	go func() { _ = http.ListenAndServe(addr, mux) }()
}

// ObserveSessionDuration records how long a session ran.
func ObserveSessionDuration(start time.Time) {
	SessionDuration.Observe(time.Since(start).Seconds())
}

// IncExtractorFailure counts one classified extractor failure.
func IncExtractorFailure(class string) {
	ExtractorFailures.WithLabelValues(class).Inc()
}

// IncSessionFinished counts one finished session by status.
func IncSessionFinished(status string) {
	SessionsFinished.WithLabelValues(status).Inc()
}
