package monitoring

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsObservers(t *testing.T) {
	m := NewMetrics()

	m.ObserveAnalyzer("structural", 10*time.Millisecond, nil)
	m.ObserveAnalyzer("market", 10*time.Millisecond, errors.New("down"))
	m.ObserveProvider("dexscreener", time.Millisecond, nil)
	m.ObserveProvider("dexscreener", time.Millisecond, errors.New("503"))
	m.ObserveScan("token", "HIGH", "BLOCK", time.Second)
	m.IncrementCacheHit()
	m.IncrementCacheMiss()
	m.IncrementCacheMiss()
	m.IncrementPolicyOverride("STRICT")
	m.IncrementAuditFailure("kafka")
	m.IncrementRateLimitEndpoint("/v1/scan/token")
	m.IncrementRateLimitFallback()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.analyzerFailures.WithLabelValues("market")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.analyzerFailures.WithLabelValues("structural")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.providerCalls.WithLabelValues("dexscreener", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.providerCalls.WithLabelValues("dexscreener", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scans.WithLabelValues("token", "HIGH", "BLOCK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheHits))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheMisses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.policyOverrides.WithLabelValues("STRICT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.auditFailures.WithLabelValues("kafka")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimitBlocks.WithLabelValues("/v1/scan/token")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimitFallback))
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.ObserveScan("transaction", "LOW", "ALLOW", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `chain_sentinel_scans_total{decision="ALLOW",risk_level="LOW",scan_type="transaction"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMonitoringMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()
	var buf bytes.Buffer
	logger := NewLoggerWithOptions(&buf, slog.LevelDebug)

	r := gin.New()
	r.Use(MonitoringMiddleware(m, logger))
	r.GET("/v1/items/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/items/42", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/v1/items/:id", "204")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "unmatched", "404")))
	assert.Contains(t, buf.String(), `"msg":"HTTP Request"`)
}

func TestSecurityMonitoringMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := NewLoggerWithOptions(&buf, slog.LevelDebug)

	r := gin.New()
	r.Use(SecurityMonitoringMiddleware(logger))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0")
	r.ServeHTTP(httptest.NewRecorder(), req)
	assert.Empty(t, buf.String())

	req = httptest.NewRequest(http.MethodGet, "/health?q=1%20UNION%20SELECT%20password", nil)
	req.Header.Set("User-Agent", "sqlmap/1.7")
	r.ServeHTTP(httptest.NewRecorder(), req)
	assert.Contains(t, buf.String(), "suspicious_activity_detected")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestExternalAPILogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOptions(&buf, slog.LevelDebug)

	logger.ExternalAPILogger("honeypot", 20*time.Millisecond, errors.New("timeout"))
	line := buf.String()
	assert.True(t, strings.Contains(line, `"level":"WARN"`))
	assert.Contains(t, line, `"provider":"honeypot"`)
	assert.Contains(t, line, `"error":"timeout"`)
}

func TestTracingMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()
	var buf bytes.Buffer
	logger := NewLoggerWithOptions(&buf, slog.LevelDebug)

	var seen string
	r := gin.New()
	r.Use(TracingMiddleware())
	r.Use(MonitoringMiddleware(m, logger))
	r.GET("/v1/items", func(c *gin.Context) {
		seen = TraceID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	t.Run("keeps a valid caller ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/items", nil)
		req.Header.Set(TraceHeader, "wallet-ext.42")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, "wallet-ext.42", rec.Header().Get(TraceHeader))
		assert.Equal(t, "wallet-ext.42", seen)
		assert.Contains(t, buf.String(), `"trace_id":"wallet-ext.42"`)
	})

	t.Run("replaces an unsafe ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/items", nil)
		req.Header.Set(TraceHeader, `x"; drop`)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		id := rec.Header().Get(TraceHeader)
		assert.Len(t, id, 32)
		assert.Equal(t, id, seen)
	})

	t.Run("generates one when absent", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/items", nil))
		assert.Len(t, rec.Header().Get(TraceHeader), 32)
	})
}

func TestLoggerWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOptions(&buf, slog.LevelDebug)

	assert.Same(t, logger, logger.WithContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()))

	ctx := WithTraceID(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "abc")
	logger.WithContext(ctx).ScanLogger("token", "0xabc", 1, 12.5, "LOW", "ALLOW", time.Millisecond, false)
	assert.Contains(t, buf.String(), `"trace_id":"abc"`)
}
