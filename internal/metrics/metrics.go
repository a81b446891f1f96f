package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheResult captures how the worker answered a request.
type CacheResult string

const (
	// CacheResultHit indicates the response came from a partition.
	CacheResultHit CacheResult = "hit"
	// CacheResultMiss indicates the response came from the network and was stored.
	CacheResultMiss CacheResult = "miss"
	// CacheResultFallback indicates the network failed and a cached copy was served.
	CacheResultFallback CacheResult = "fallback"
	// CacheResultBypass indicates the request was not eligible for caching.
	CacheResultBypass CacheResult = "bypass"
	// CacheResultError indicates neither the network nor a partition could answer.
	CacheResultError CacheResult = "error"
)

// AccessOutcome captures the result of a code submission.
type AccessOutcome string

const (
	AccessOutcomeSuccess AccessOutcome = "success"
	AccessOutcomeFailure AccessOutcome = "failure"
	AccessOutcomeLocked  AccessOutcome = "locked"
)

// Recorder publishes Prometheus metrics for the cache worker and the access guard.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	cacheRequests      *prometheus.CounterVec
	fetchLatency       *prometheus.HistogramVec
	evictions          *prometheus.CounterVec
	revalidationErrors prometheus.Counter

	accessAttempts *prometheus.CounterVec
	lockouts       prometheus.Counter
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a dedicated
// registry is created so several recorders can coexist in one process.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	cacheRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "newsedge",
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Requests answered by the cache worker.",
	}, []string{"partition", "strategy", "result"})

	fetchLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "newsedge",
		Subsystem: "cache",
		Name:      "fetch_duration_seconds",
		Help:      "Latency distribution for upstream fetches issued by the worker.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"strategy"})

	evictions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "newsedge",
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Entries removed from a partition to stay within its budget.",
	}, []string{"partition"})

	revalidationErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "newsedge",
		Subsystem: "cache",
		Name:      "revalidation_errors_total",
		Help:      "Background revalidations that failed.",
	})

	accessAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "newsedge",
		Subsystem: "access",
		Name:      "attempts_total",
		Help:      "Access code submissions by outcome.",
	}, []string{"outcome", "reason"})

	lockouts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "newsedge",
		Subsystem: "access",
		Name:      "lockouts_total",
		Help:      "Failed submissions that tipped a profile into lockout.",
	})

	reg.MustRegister(cacheRequests, fetchLatency, evictions, revalidationErrors, accessAttempts, lockouts)

	return &Recorder{
		gatherer:           reg,
		handler:            promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		cacheRequests:      cacheRequests,
		fetchLatency:       fetchLatency,
		evictions:          evictions,
		revalidationErrors: revalidationErrors,
		accessAttempts:     accessAttempts,
		lockouts:           lockouts,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveCacheRequest counts one request answered by a strategy.
func (r *Recorder) ObserveCacheRequest(partition, strategy string, result CacheResult) {
	if r == nil {
		return
	}
	resultLabel := string(result)
	if resultLabel == "" {
		resultLabel = string(CacheResultBypass)
	}
	r.cacheRequests.WithLabelValues(normalizeLabel(partition), normalizeLabel(strategy), resultLabel).Inc()
}

// ObserveFetch records the latency of an upstream fetch.
func (r *Recorder) ObserveFetch(strategy string, duration time.Duration) {
	if r == nil {
		return
	}
	r.fetchLatency.WithLabelValues(normalizeLabel(strategy)).Observe(duration.Seconds())
}

func (r *Recorder) ObserveEvictions(partition string, count int) {
	if r == nil || count <= 0 {
		return
	}
	r.evictions.WithLabelValues(normalizeLabel(partition)).Add(float64(count))
}

func (r *Recorder) ObserveRevalidationError() {
	if r == nil {
		return
	}
	r.revalidationErrors.Inc()
}

// ObserveAccessAttempt counts a code submission. Reason is empty for successes.
func (r *Recorder) ObserveAccessAttempt(outcome AccessOutcome, reason string) {
	if r == nil {
		return
	}
	reasonLabel := strings.TrimSpace(reason)
	if reasonLabel == "" {
		reasonLabel = "none"
	}
	r.accessAttempts.WithLabelValues(normalizeLabel(string(outcome)), reasonLabel).Inc()
}

func (r *Recorder) ObserveLockout() {
	if r == nil {
		return
	}
	r.lockouts.Inc()
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
