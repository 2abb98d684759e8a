package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spacetrace_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spacetrace_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	propagationDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "spacetrace_propagation_batch_duration_seconds",
		Help:    "Duration of one catalog propagation batch.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	propagationObjectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spacetrace_propagation_objects_total",
			Help: "Objects propagated, by result.",
		},
		[]string{"result"},
	)

	propagationWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spacetrace_propagation_workers",
		Help: "Configured propagation worker pool size.",
	})

	tleDatasetCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spacetrace_tle_dataset_objects",
		Help: "Objects in the current TLE dataset.",
	})

	tleDatasetAgeSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spacetrace_tle_dataset_age_seconds",
		Help: "Age of the current TLE dataset.",
	})

	tleFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spacetrace_tle_fetch_total",
			Help: "TLE refresh attempts, by result.",
		},
		[]string{"result"},
	)

	analysisTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spacetrace_analysis_total",
			Help: "Safety analyses, by outcome (safe, warning, danger, superseded, error).",
		},
		[]string{"outcome"},
	)

	analysisDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "spacetrace_analysis_duration_seconds",
		Help:    "Duration of a single flight safety analysis.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	conflictScanDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "spacetrace_conflict_scan_duration_seconds",
		Help:    "Duration of a full flight conflict scan.",
		Buckets: prometheus.DefBuckets,
	})

	conflictsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spacetrace_conflicts_active",
		Help: "Conflicting flight pairs found by the last scan.",
	})

	registeredFlights = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spacetrace_registered_flights",
		Help: "Registered flights.",
	})

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spacetrace_stream_connections_total",
			Help: "SSE connection events (connect, disconnect).",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spacetrace_streams_active",
		Help: "Open SSE streams.",
	})

	streamMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spacetrace_stream_messages_total",
		Help: "SSE data messages sent.",
	})

	streamBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spacetrace_stream_bytes_total",
		Help: "Bytes written to SSE streams.",
	})

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spacetrace_stream_errors_total",
			Help: "SSE errors, by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		propagationDurationSeconds,
		propagationObjectsTotal,
		propagationWorkers,
		tleDatasetCount,
		tleDatasetAgeSeconds,
		tleFetchTotal,
		analysisTotal,
		analysisDurationSeconds,
		conflictScanDurationSeconds,
		conflictsActive,
		registeredFlights,
		streamConnectionsTotal,
		streamsActive,
		streamMessagesTotal,
		streamBytesTotal,
		streamErrorsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPropagation records one propagation batch.
func RecordPropagation(d time.Duration, success, failed int) {
	propagationDurationSeconds.Observe(d.Seconds())
	propagationObjectsTotal.WithLabelValues("success").Add(float64(success))
	propagationObjectsTotal.WithLabelValues("error").Add(float64(failed))
}

func SetPropagationWorkers(n int)   { propagationWorkers.Set(float64(n)) }
func SetTLEDatasetCount(n int)      { tleDatasetCount.Set(float64(n)) }
func SetTLEDatasetAge(sec float64)  { tleDatasetAgeSeconds.Set(sec) }
func IncTLEFetch(result string)     { tleFetchTotal.WithLabelValues(result).Inc() }
func SetConflictsActive(n int)      { conflictsActive.Set(float64(n)) }
func SetRegisteredFlights(n int)    { registeredFlights.Set(float64(n)) }
func IncStreamConnections(e string) { streamConnectionsTotal.WithLabelValues(e).Inc() }
func IncStreamsActive()             { streamsActive.Inc() }
func DecStreamsActive()             { streamsActive.Dec() }
func IncStreamMessages()            { streamMessagesTotal.Inc() }
func AddStreamBytes(n int64)        { streamBytesTotal.Add(float64(n)) }
func IncStreamErrors(reason string) { streamErrorsTotal.WithLabelValues(reason).Inc() }

// RecordAnalysis records a finished (or abandoned) safety analysis.
func RecordAnalysis(outcome string, d time.Duration) {
	analysisTotal.WithLabelValues(outcome).Inc()
	analysisDurationSeconds.Observe(d.Seconds())
}

// RecordConflictScan records a conflict scan and its result size.
func RecordConflictScan(d time.Duration, pairs int) {
	conflictScanDurationSeconds.Observe(d.Seconds())
	conflictsActive.Set(float64(pairs))
}

// knownRoutes are exact paths reported under their own label.
var knownRoutes = map[string]bool{
	"/":                        true,
	"/healthz":                 true,
	"/readyz":                  true,
	"/metrics":                 true,
	"/api/v1/tle/metadata":     true,
	"/api/v1/tle/fetch":        true,
	"/api/v1/conflicts":        true,
	"/api/v1/stream/conflicts": true,
	"/api/register-flight":     true,
}

// normalizeRoute collapses parameterized paths into one label per route so
// the path label's cardinality stays bounded. Unknown paths become "other".
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}

	if id, ok := strings.CutPrefix(path, "/api/v1/propagate/"); ok && isNumeric(id) {
		return "/api/v1/propagate/{norad_id}"
	}

	if rest, ok := strings.CutPrefix(path, "/api/register-flight/"); ok {
		id, tail, _ := strings.Cut(rest, "/")
		if isNumeric(id) {
			switch tail {
			case "":
				return "/api/register-flight/{id}"
			case "visibility":
				return "/api/register-flight/{id}/visibility"
			}
		}
	}

	if rest, ok := strings.CutPrefix(path, "/api/v1/flights/"); ok {
		id, tail, _ := strings.Cut(rest, "/")
		if isNumeric(id) && (tail == "trajectory" || tail == "safety") {
			return "/api/v1/flights/{id}/" + tail
		}
	}

	return "other"
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush lets SSE handlers flush through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := normalizeRoute(r.URL.Path)
		httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rw.statusCode)).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
