package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes Prometheus metrics for ingestion runs and inbound HTTP
// requests. It owns a private registry so tests can construct collectors
// without global-registration collisions.
type Collector struct {
	registry *prometheus.Registry

	runTotal    *prometheus.CounterVec
	runDuration prometheus.Histogram
	rowsLoaded  *prometheus.CounterVec

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
}

// NewCollector constructs a collector with default histograms/counters.
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	runTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tokenledger",
		Subsystem: "ingest",
		Name:      "runs_total",
		Help:      "Total number of per-date ingestion runs by outcome.",
	}, []string{"status"})

	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tokenledger",
		Subsystem: "ingest",
		Name:      "run_duration_seconds",
		Help:      "Duration distribution for per-date ingestion runs.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	rowsLoaded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tokenledger",
		Subsystem: "ingest",
		Name:      "rows_loaded_total",
		Help:      "Total number of rows loaded into the warehouse by table.",
	}, []string{"table"})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tokenledger",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for inbound HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tokenledger",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of inbound HTTP requests.",
	}, []string{"method", "path", "status"})

	for _, c := range []prometheus.Collector{
		runTotal, runDuration, rowsLoaded, requestDuration, requestTotal,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &Collector{
		registry:        registry,
		runTotal:        runTotal,
		runDuration:     runDuration,
		rowsLoaded:      rowsLoaded,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
	}, nil
}

// RecordRun records one finished ingestion run.
func (c *Collector) RecordRun(status string, duration time.Duration) {
	c.runTotal.WithLabelValues(status).Inc()
	c.runDuration.Observe(duration.Seconds())
}

// AddRowsLoaded counts rows committed to one warehouse table.
func (c *Collector) AddRowsLoaded(table string, n int) {
	if n <= 0 {
		return
	}
	c.rowsLoaded.WithLabelValues(table).Add(float64(n))
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := r.URL.Path

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
