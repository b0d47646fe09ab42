package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chain_sentinel"

// Metrics holds application metrics on a private Prometheus registry
type Metrics struct {
	registry  *prometheus.Registry
	StartTime time.Time

	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	scans             *prometheus.CounterVec
	scanDuration      *prometheus.HistogramVec
	analyzerDuration  *prometheus.HistogramVec
	analyzerFailures  *prometheus.CounterVec
	providerCalls     *prometheus.CounterVec
	providerDuration  *prometheus.HistogramVec
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	rateLimitBlocks   *prometheus.CounterVec
	rateLimitFallback prometheus.Counter
	policyOverrides   *prometheus.CounterVec
	auditFailures     *prometheus.CounterVec
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry:  reg,
		StartTime: time.Now(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total", Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds", Help: "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "scans_total", Help: "Completed scans by type, level and decision.",
		}, []string{"scan_type", "risk_level", "decision"}),
		scanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "scan_duration_seconds", Help: "End-to-end scan latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"scan_type"}),
		analyzerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "analyzer_duration_seconds", Help: "Per-analyzer latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"analyzer"}),
		analyzerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "analyzer_failures_total", Help: "Analyzer runs that errored or panicked.",
		}, []string{"analyzer"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "provider_calls_total", Help: "External provider calls by outcome.",
		}, []string{"provider", "outcome"}),
		providerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "provider_call_duration_seconds", Help: "External provider latency including retries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_hits_total", Help: "Scan cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_misses_total", Help: "Scan cache misses.",
		}),
		rateLimitBlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rate_limit_blocks_total", Help: "Requests rejected by the rate limiter.",
		}, []string{"endpoint"}),
		rateLimitFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rate_limit_fallback_total", Help: "Decisions taken by the in-memory limiter because Redis failed.",
		}),
		policyOverrides: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "policy_overrides_total", Help: "Verdicts changed by the degradation policy.",
		}, []string{"mode"}),
		auditFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "audit_failures_total", Help: "Audit records that could not be written.",
		}, []string{"sink"}),
	}

	reg.MustRegister(
		m.requests, m.requestDuration,
		m.scans, m.scanDuration,
		m.analyzerDuration, m.analyzerFailures,
		m.providerCalls, m.providerDuration,
		m.cacheHits, m.cacheMisses,
		m.rateLimitBlocks, m.rateLimitFallback,
		m.policyOverrides, m.auditFailures,
	)
	return m
}

// Registry exposes the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one HTTP request
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveScan records one completed scan
func (m *Metrics) ObserveScan(scanType, level, decision string, d time.Duration) {
	m.scans.WithLabelValues(scanType, level, decision).Inc()
	m.scanDuration.WithLabelValues(scanType).Observe(d.Seconds())
}

// ObserveAnalyzer matches the analyzer registry's observer hook
func (m *Metrics) ObserveAnalyzer(name string, d time.Duration, err error) {
	m.analyzerDuration.WithLabelValues(name).Observe(d.Seconds())
	if err != nil {
		m.analyzerFailures.WithLabelValues(name).Inc()
	}
}

// ObserveProvider matches the resilience client's observer hook
func (m *Metrics) ObserveProvider(provider string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.providerCalls.WithLabelValues(provider, outcome).Inc()
	m.providerDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// IncrementCacheHit increments cache hit count
func (m *Metrics) IncrementCacheHit() { m.cacheHits.Inc() }

// IncrementCacheMiss increments cache miss count
func (m *Metrics) IncrementCacheMiss() { m.cacheMisses.Inc() }

// IncrementRateLimitEndpoint increments rate limit blocks for a specific endpoint
func (m *Metrics) IncrementRateLimitEndpoint(endpoint string) {
	m.rateLimitBlocks.WithLabelValues(endpoint).Inc()
}

// IncrementRateLimitFallback increments fallback rate limiter usage count
func (m *Metrics) IncrementRateLimitFallback() { m.rateLimitFallback.Inc() }

// IncrementPolicyOverride counts a verdict changed by the policy engine
func (m *Metrics) IncrementPolicyOverride(mode string) {
	m.policyOverrides.WithLabelValues(mode).Inc()
}

// IncrementAuditFailure counts a failed audit write
func (m *Metrics) IncrementAuditFailure(sink string) {
	m.auditFailures.WithLabelValues(sink).Inc()
}

// Uptime returns the time since the metrics were created
func (m *Metrics) Uptime() time.Duration { return time.Since(m.StartTime) }
