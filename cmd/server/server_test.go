package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/chain-sentinel/internal/analyzers"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/audit"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/cache"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/calibration"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/middleware"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/monitoring"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/policy"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/ratelimit"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/resilience"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/risk"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/scanner"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/security"
)

const (
	tokenAddr = "0xdAC17F958D2ee523a2206206994597C13D831ec7"
	signer    = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
)

type fixedAnalyzer struct {
	name  string
	score float64
}

func (f fixedAnalyzer) Name() string    { return f.name }
func (f fixedAnalyzer) Weight() float64 { return 1 }

func (f fixedAnalyzer) Analyze(context.Context, risk.AnalysisContext) (risk.AnalyzerResult, error) {
	return risk.AnalyzerResult{Name: f.name, Weight: 1, Score: f.score, Flags: []string{}}, nil
}

type testOptions struct {
	ipLimit  int
	withAuth bool
}

type testServer struct {
	router *gin.Engine
	app    *app
	auth   *security.AdminAuth
}

func newTestServer(t *testing.T, opts testOptions) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := audit.OpenStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	verdicts := cache.NewCache[scanner.Verdict](time.Minute)
	t.Cleanup(verdicts.Close)

	reg := func(name string) *analyzers.Registry {
		return analyzers.NewRegistry().MustRegister(fixedAnalyzer{name: name, score: 20})
	}
	metrics := monitoring.NewMetrics()
	logger := monitoring.NewLoggerWithOptions(io.Discard, slog.LevelError)

	svc := scanner.New(risk.NewEngine(calibration.DefaultConfig()), policy.NewEngine(policy.Balanced),
		scanner.WithRegistry(scanner.ScanToken, reg(risk.CategoryStructural)),
		scanner.WithRegistry(scanner.ScanTransaction, reg(analyzers.NameIntent)),
		scanner.WithRegistry(scanner.ScanSignature, reg(analyzers.NameSignature)),
		scanner.WithCache(verdicts),
		scanner.WithAudit(store),
		scanner.WithMetrics(metrics),
		scanner.WithLogger(logger),
	)

	rlCfg := ratelimit.DefaultConfig()
	rlCfg.IPLimit = 1000
	if opts.ipLimit > 0 {
		rlCfg.IPLimit = opts.ipLimit
	}
	limiter := ratelimit.NewRateLimiter(nil, rlCfg, metrics)
	t.Cleanup(limiter.Close)

	ts := &testServer{}
	a := &app{
		scanner:     svc,
		audit:       store,
		limiter:     limiter,
		security:    security.NewSecurityMiddleware(security.DefaultSecurityConfig()),
		health:      resilience.NewHealthTracker(resilience.DefaultHealthConfig()),
		metrics:     metrics,
		logger:      logger,
		cache:       verdicts,
		compression: middleware.NewCompressor(middleware.DefaultCompressionConfig()),
	}
	if opts.withAuth {
		auth, err := security.NewAdminAuth("test-secret", time.Hour)
		require.NoError(t, err)
		a.auth = auth
		ts.auth = auth
	}
	ts.app = a
	ts.router = a.router()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) bearer(t *testing.T) []string {
	t.Helper()
	token, err := ts.auth.IssueToken("ops@example.com")
	require.NoError(t, err)
	return []string{"Authorization", "Bearer " + token}
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, testOptions{})

	tests := []struct {
		name           string
		method         string
		expectedStatus int
	}{
		{"GET /health returns OK status", http.MethodGet, http.StatusOK},
		{"POST /health not routed", http.MethodPost, http.StatusNotFound},
		{"DELETE /health not routed", http.MethodDelete, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, tt.method, "/health", "")
			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				body := decodeBody(t, w)
				assert.Equal(t, "ok", body["status"])
				assert.Equal(t, "BALANCED", body["policy_mode"])
				assert.Equal(t, version, body["version"])
			}
		})
	}
}

func TestServicesAndMetrics(t *testing.T) {
	ts := newTestServer(t, testOptions{})

	w := ts.do(t, http.MethodGet, "/health/services", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Contains(t, body, "audit_db")
	assert.Contains(t, body, "verdict_cache")

	ts.do(t, http.MethodPost, "/v1/scan/token", `{"address":"`+tokenAddr+`"}`)
	w = ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "chain_sentinel_scans_total")
}

func TestScanTokenEndpoint(t *testing.T) {
	ts := newTestServer(t, testOptions{})

	tests := []struct {
		name           string
		body           string
		expectedStatus int
	}{
		{"valid address", `{"chain_id":1,"address":"` + tokenAddr + `"}`, http.StatusOK},
		{"missing address", `{"chain_id":1}`, http.StatusBadRequest},
		{"malformed address", `{"address":"0x1234"}`, http.StatusBadRequest},
		{"invalid json", `{"address":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/v1/scan/token", tt.body)
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			if tt.expectedStatus != http.StatusOK {
				return
			}
			body := decodeBody(t, w)
			assert.NotEmpty(t, body["scan_id"])
			assert.Equal(t, "token", body["scan_type"])
			assert.Contains(t, []any{"ALLOW", "WARN", "BLOCK"}, body["decision"])
			assert.Contains(t, body, "probability")
			assert.Contains(t, body, "analyzers")
		})
	}

	// second scan of the same token is served from cache
	w := ts.do(t, http.MethodPost, "/v1/scan/token", `{"address":"`+tokenAddr+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["cached"])
}

func TestFirewallEndpoints(t *testing.T) {
	ts := newTestServer(t, testOptions{})

	tests := []struct {
		name           string
		path           string
		body           string
		expectedStatus int
	}{
		{"transaction", "/v1/firewall/transaction", `{"to":"` + tokenAddr + `","data":"0x095ea7b3"}`, http.StatusOK},
		{"transaction bad hex", "/v1/firewall/transaction", `{"to":"` + tokenAddr + `","data":"0xzz"}`, http.StatusBadRequest},
		{"transaction markup in name", "/v1/firewall/transaction", `{"to":"` + tokenAddr + `","function_name":"<script>"}`, http.StatusBadRequest},
		{"signature", "/v1/firewall/signature", `{"from":"` + signer + `","typed_data":{"domain":{}}}`, http.StatusOK},
		{"signature missing payload", "/v1/firewall/signature", `{"from":"` + signer + `"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
		})
	}
}

func TestContentTypeEnforced(t *testing.T) {
	ts := newTestServer(t, testOptions{})
	w := ts.do(t, http.MethodPost, "/v1/scan/token", `address=x`, "Content-Type", "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestRateLimitedScans(t *testing.T) {
	ts := newTestServer(t, testOptions{ipLimit: 2})
	body := `{"address":"` + tokenAddr + `"}`

	for i := 0; i < 2; i++ {
		w := ts.do(t, http.MethodPost, "/v1/scan/token", body)
		require.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Limit"))
	}
	w := ts.do(t, http.MethodPost, "/v1/scan/token", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// health is never limited
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health", "").Code)
}

func TestAdminRoutesDisabledWithoutSecret(t *testing.T) {
	ts := newTestServer(t, testOptions{})
	w := ts.do(t, http.MethodPost, "/v1/outcomes", `{"target":"`+tokenAddr+`","label":"scam"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOutcomeFlow(t *testing.T) {
	ts := newTestServer(t, testOptions{withAuth: true})
	auth := ts.bearer(t)
	outcome := `{"chain_id":1,"target":"` + tokenAddr + `","label":"scam","source":"incident-42"}`

	// no token
	w := ts.do(t, http.MethodPost, "/v1/outcomes", outcome)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// bad token
	w = ts.do(t, http.MethodPost, "/v1/outcomes", outcome, "Authorization", "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// not scanned yet
	w = ts.do(t, http.MethodPost, "/v1/outcomes", outcome, auth...)
	assert.Equal(t, http.StatusNotFound, w.Code, w.Body.String())

	// bad label
	w = ts.do(t, http.MethodPost, "/v1/outcomes", `{"target":"`+tokenAddr+`","label":"maybe"}`, auth...)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/v1/scan/token", `{"address":"`+tokenAddr+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	scanID := decodeBody(t, w)["scan_id"].(string)

	w = ts.do(t, http.MethodPost, "/v1/outcomes", outcome, auth...)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, "scam", body["label"])
	assert.Equal(t, "incident-42", body["source"])

	samples, err := ts.app.audit.LabeledSamples(context.Background(), "token")
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, calibration.LabelScam, samples[0].Label)

	w = ts.do(t, http.MethodGet, "/v1/audit/recent?limit=10", "", auth...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decodeBody(t, w)["count"])

	w = ts.do(t, http.MethodGet, "/v1/audit/"+scanID, "", auth...)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/v1/audit/does-not-exist", "", auth...)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/v1/admin/calibration", "", auth...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, calibration.DefaultHighThreshold, decodeBody(t, w)["high_threshold"])
}

func TestSecurityHeaders(t *testing.T) {
	ts := newTestServer(t, testOptions{})
	w := ts.do(t, http.MethodGet, "/health", "")
	assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestTraceIDAndCompression(t *testing.T) {
	ts := newTestServer(t, testOptions{})

	w := ts.do(t, http.MethodPost, "/v1/scan/token", `{"address":"nope"}`, monitoring.TraceHeader, "req-123")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "req-123", w.Header().Get(monitoring.TraceHeader))

	w = ts.do(t, http.MethodGet, "/health", "", "Accept-Encoding", "gzip")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.NewDecoder(zr).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestConcurrentScans_ThreadSafety(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping thread safety test in short mode")
	}
	ts := newTestServer(t, testOptions{})

	const numGoroutines = 20
	const requestsPerGoroutine = 5

	paths := []struct{ path, body string }{
		{"/v1/scan/token", `{"address":"` + tokenAddr + `"}`},
		{"/v1/firewall/transaction", `{"to":"` + tokenAddr + `","data":"0x"}`},
		{"/v1/firewall/signature", `{"from":"` + signer + `","typed_data":{}}`},
	}

	results := make(chan int, numGoroutines*requestsPerGoroutine)
	for i := 0; i < numGoroutines; i++ {
		go func(i int) {
			for j := 0; j < requestsPerGoroutine; j++ {
				p := paths[(i+j)%len(paths)]
				req := httptest.NewRequest(http.MethodPost, p.path, bytes.NewBufferString(p.body))
				req.Header.Set("Content-Type", "application/json")
				w := httptest.NewRecorder()
				ts.router.ServeHTTP(w, req)
				results <- w.Code
			}
		}(i)
	}

	var errorCount int
	for i := 0; i < numGoroutines*requestsPerGoroutine; i++ {
		if code := <-results; code != http.StatusOK {
			errorCount++
		}
	}
	assert.Equal(t, 0, errorCount, "No errors should occur in concurrent requests")
}

func TestDefaultChain(t *testing.T) {
	assert.Equal(t, int64(1), defaultChain(map[int64]string{56: "b", 1: "a"}))
	assert.Equal(t, int64(56), defaultChain(map[int64]string{137: "p", 56: "b"}))
	assert.Equal(t, int64(0), defaultChain(nil))
}
