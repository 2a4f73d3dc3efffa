package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SyncRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lytter_sync_runs_total",
		Help: "Total sync runs",
	})
	SyncErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lytter_sync_errors_total",
		Help: "Total sync runs that failed",
	})
	SyncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lytter_sync_duration_seconds",
		Help:    "Sync run duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	PagesFetched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lytter_pages_fetched_total",
		Help: "Total remote pages fetched",
	})
	PagesSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lytter_pages_skipped_total",
		Help: "Total remote pages skipped after transient failures",
	})
	ScrobblesInserted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lytter_scrobbles_inserted_total",
		Help: "Total scrobbles newly inserted",
	})
	GapsFound = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lytter_gaps_found_total",
		Help: "Total suspicious gaps detected",
	})
	GapsFilled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lytter_gaps_filled_total",
		Help: "Total scrobbles inserted by gap backfill",
	})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lytter_api_retries_total",
		Help: "Total API retry attempts",
	}, []string{"endpoint"})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lytter_command_runs_total",
		Help: "Total CLI command invocations",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lytter_command_errors_total",
		Help: "Total CLI command failures",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(SyncRuns, SyncErrors, SyncDuration, PagesFetched,
		PagesSkipped, ScrobblesInserted, GapsFound, GapsFilled, APIRetries,
		CommandRuns, CommandErrors)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, nil) }()
}

// ObserveSyncDuration records a run duration.
func ObserveSyncDuration(start time.Time) {
	SyncDuration.Observe(time.Since(start).Seconds())
}

// IncAPIRetry increments the retry counter for an endpoint.
func IncAPIRetry(endpoint string) { APIRetries.WithLabelValues(endpoint).Inc() }

// IncCommandRun counts a CLI command invocation.
func IncCommandRun(cmd string) { CommandRuns.WithLabelValues(cmd).Inc() }

// IncCommandError counts a failed CLI command.
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }
