package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/playdrop/internal/version"
)

// ServerMetrics owns a private registry; nothing is registered globally so
// tests can build as many as they like.
type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	// http
	inflight    prometheus.Gauge
	reqTotal    *prometheus.CounterVec
	reqDur      *prometheus.HistogramVec
	respBytes   *prometheus.HistogramVec
	errorsTotal *prometheus.CounterVec
	panics      prometheus.Counter
	limited     prometheus.Counter
	limiterFull prometheus.Counter

	// process
	buildInfo       *prometheus.GaugeVec
	profilingActive prometheus.Gauge

	// publish
	publishTotal     *prometheus.CounterVec
	publishDuration  prometheus.Histogram
	extractedEntries prometheus.Histogram
	extractedBytes   prometheus.Histogram
	entriesDropped   *prometheus.CounterVec
	uploadsActive    prometheus.Gauge

	// sweeper
	sweepsTotal    prometheus.Counter
	sweepReclaimed *prometheus.CounterVec
	sweepErrors    prometheus.Counter
	sweepDuration  prometheus.Histogram
	sweepLastRun   prometheus.Gauge
}

var (
	latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
	sizeBuckets    = []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 52428800}
)

// New builds the registry with the go and process collectors. HTTP series are
// labelled by method, route pattern and status only so request paths never
// become label values.
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	counter := func(name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	}
	gauge := func(name, help string) prometheus.Gauge {
		return f.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	}
	histogram := func(name, help string, buckets []float64) prometheus.Histogram {
		return f.NewHistogram(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets})
	}

	m := &ServerMetrics{reg: reg}

	m.inflight = gauge("http_inflight_requests", "Requests currently being served")
	m.reqTotal = counterVec("http_requests_total", "HTTP requests by method, route and status", "method", "route", "status")
	m.reqDur = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by method and route",
		Buckets: latencyBuckets,
	}, []string{"method", "route"})
	m.respBytes = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_response_size_bytes",
		Help:    "HTTP response body size by method and route",
		Buckets: sizeBuckets,
	}, []string{"method", "route"})
	m.errorsTotal = counterVec("http_errors_total", "HTTP 5xx responses by method and route", "method", "route")
	m.panics = counter("http_panic_total", "Handler panics recovered by the servers")
	m.limited = counter("http_requests_rate_limited_total", "Uploads refused by the per-ip limiter")
	m.limiterFull = counter("http_requests_rate_limited_capacity_total", "Times the limiter refused to track a new client")

	m.buildInfo = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata, always 1",
	}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"})
	m.profilingActive = gauge("profiling_active", "1 while continuous profiling is running")

	m.publishTotal = counterVec("playdrop_publish_total", "Publish attempts by result (ok or failure code)", "result")
	m.publishDuration = histogram("playdrop_publish_duration_seconds",
		"Time to validate, extract, locate and register an upload",
		[]float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60})
	m.extractedEntries = histogram("playdrop_extracted_files", "Files written per published upload",
		prometheus.ExponentialBuckets(1, 4, 9))
	m.extractedBytes = histogram("playdrop_extracted_bytes", "Bytes written per published upload",
		prometheus.ExponentialBuckets(4096, 4, 10))
	m.entriesDropped = counterVec("playdrop_entries_dropped_total",
		"Archive entries not written, by reason (rejected or skipped)", "reason")
	m.uploadsActive = gauge("playdrop_uploads_active", "Published uploads currently servable")

	m.sweepsTotal = counter("playdrop_sweeps_total", "Retention sweeps run")
	m.sweepReclaimed = counterVec("playdrop_sweep_reclaimed_total",
		"Upload directories reclaimed by the sweeper, by kind (expired or orphan)", "kind")
	m.sweepErrors = counter("playdrop_sweep_errors_total", "Per-candidate sweep failures")
	m.sweepDuration = histogram("playdrop_sweep_duration_seconds", "Time taken by a retention sweep",
		[]float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30})
	m.sweepLastRun = gauge("playdrop_sweep_last_run_timestamp_seconds", "Unix time of the last completed sweep")

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
	return m
}

func (m *ServerMetrics) IncHttpPanic() {
	m.panics.Inc()
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

// SetBuildInfoFromVersion publishes the build_info series; call once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi version.Info) {
	m.buildInfo.WithLabelValues(app, component, vi.Version, vi.Commit, vi.CommitDate,
		vi.BuildId, vi.BuildDate, vi.Dirty(), vi.GoVersion).Set(1)
}

func (m *ServerMetrics) IncRateLimitDenied() {
	m.limited.Inc()
}

func (m *ServerMetrics) IncRateLimitCapacity() {
	m.limiterFull.Inc()
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	v := 0.0
	if active {
		v = 1
	}
	m.profilingActive.Set(v)
}

// publish.Metrics

func (m *ServerMetrics) IncPublish(result string) {
	m.publishTotal.WithLabelValues(result).Inc()
}

func (m *ServerMetrics) ObservePublishDuration(seconds float64) {
	m.publishDuration.Observe(seconds)
}

func (m *ServerMetrics) ObserveExtraction(files, rejected, skipped int, bytes int64) {
	m.extractedEntries.Observe(float64(files))
	m.extractedBytes.Observe(float64(bytes))
	if rejected > 0 {
		m.entriesDropped.WithLabelValues("rejected").Add(float64(rejected))
	}
	if skipped > 0 {
		m.entriesDropped.WithLabelValues("skipped").Add(float64(skipped))
	}
}

// SetUploadsActive is shared by the gateway and the sweeper.
func (m *ServerMetrics) SetUploadsActive(n int) {
	m.uploadsActive.Set(float64(n))
}

// uploads.SweeperMetrics

func (m *ServerMetrics) IncSweeps() {
	m.sweepsTotal.Inc()
	m.sweepLastRun.SetToCurrentTime()
}

func (m *ServerMetrics) AddSweepReclaimed(kind string, n int) {
	if n > 0 {
		m.sweepReclaimed.WithLabelValues(kind).Add(float64(n))
	}
}

func (m *ServerMetrics) IncSweepError() {
	m.sweepErrors.Inc()
}

func (m *ServerMetrics) ObserveSweepDuration(seconds float64) {
	m.sweepDuration.Observe(seconds)
}
