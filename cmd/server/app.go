package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/ZanzyTHEbar/chain-sentinel/docs"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/audit"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/cache"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/errors"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/middleware"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/monitoring"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/ratelimit"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/resilience"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/rpcproxy"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/scanner"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/security"
)

const version = "1.0.0"

// Endpoint names used for per-endpoint rate limits.
const (
	endpointScanToken   = "scan_token"
	endpointTransaction = "firewall_transaction"
	endpointSignature   = "firewall_signature"
	endpointRPC         = "rpc"
)

// app holds everything the HTTP layer serves. auth, proxy, redis, cache and
// compression may be nil.
type app struct {
	scanner     *scanner.Service
	audit       *audit.Store
	limiter     *ratelimit.RateLimiter
	redis       *ratelimit.RedisClient
	auth        *security.AdminAuth
	security    *security.SecurityMiddleware
	proxy       *rpcproxy.Proxy
	health      *resilience.HealthTracker
	metrics     *monitoring.Metrics
	logger      *monitoring.Logger
	cache       *cache.Cache[scanner.Verdict]
	compression *middleware.Compressor
}

func (a *app) router() *gin.Engine {
	r := gin.New()
	cfg := a.security.Config()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		a.logger.Warn("Invalid trusted proxies", "error", err)
	}

	// tracing and monitoring first to capture every request
	r.Use(monitoring.TracingMiddleware())
	r.Use(monitoring.MonitoringMiddleware(a.metrics, a.logger))
	r.Use(monitoring.SecurityMonitoringMiddleware(a.logger))
	if a.compression != nil {
		r.Use(a.compression.Handler())
	}

	r.Use(errors.ErrorHandler())
	r.Use(errors.RecoveryHandler())

	r.Use(security.SecurityHeadersMiddleware(cfg.EnableHSTS))
	r.Use(security.CSPMiddleware("/swagger", cfg.CSPReportURI))
	r.Use(a.security.CORS())
	r.Use(a.security.RequestTimeout)
	r.Use(a.security.LimitBody)
	r.Use(a.security.ValidateContentType)

	r.GET("/health", a.handleHealth)
	r.GET("/health/services", a.handleServices)
	r.GET("/metrics", gin.WrapH(a.metrics.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/v1", a.limiter.IPRateLimitMiddleware())
	{
		v1.POST("/scan/token", a.limiter.EndpointRateLimitMiddleware(endpointScanToken, 0), a.handleScanToken)
		v1.POST("/firewall/transaction", a.limiter.EndpointRateLimitMiddleware(endpointTransaction, 0), a.handleScanTransaction)
		v1.POST("/firewall/signature", a.limiter.EndpointRateLimitMiddleware(endpointSignature, 0), a.handleScanSignature)
		v1.GET("/ratelimit/status", a.limiter.HandleRateLimitStatus())
	}

	if a.proxy != nil {
		r.POST("/rpc", a.limiter.IPRateLimitMiddleware(), a.limiter.EndpointRateLimitMiddleware(endpointRPC, 0), a.proxy.Handle)
	}

	if a.auth != nil {
		admin := r.Group("/v1", a.auth.Middleware())
		{
			admin.POST("/outcomes", a.handleRecordOutcome)
			admin.GET("/audit/recent", a.handleRecentAudit)
			admin.GET("/audit/:id", a.handleGetAudit)
			admin.GET("/admin/calibration", a.handleCalibration)
			admin.GET("/admin/ratelimit", a.limiter.HandleAdminRateLimits())
			admin.DELETE("/admin/ratelimit/:ip", a.limiter.HandleAdminInvalidateIP())
		}
	}

	return r
}

func (a *app) handleHealth(c *gin.Context) {
	services := a.health.Snapshot()

	resp := gin.H{
		"status":      "ok",
		"timestamp":   time.Now().Format(time.RFC3339),
		"version":     version,
		"uptime_s":    int64(a.metrics.Uptime().Seconds()),
		"policy_mode": a.scanner.PolicyMode(),
		"services":    services,
	}

	if err := a.audit.Ping(c.Request.Context()); err != nil {
		resp["status"] = "degraded"
		resp["audit_error"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}

	for _, s := range services {
		if s.Level == resilience.LevelUnavailable {
			resp["status"] = "degraded"
			break
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (a *app) handleServices(c *gin.Context) {
	resp := gin.H{
		"services":  a.health.Snapshot(),
		"audit_db":  a.audit.GetPoolStats(),
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if a.cache != nil {
		resp["verdict_cache"] = a.cache.Stats()
	}
	if a.redis != nil {
		stats := a.redis.GetPoolStats()
		if err := a.redis.HealthCheck(c.Request.Context()); err != nil {
			stats["error"] = err.Error()
		}
		resp["redis"] = stats
	}
	if a.compression != nil {
		resp["compression"] = a.compression.GetStats()
	}
	c.JSON(http.StatusOK, resp)
}
