package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/chain-sentinel/internal/analyzers"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/audit"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/cache"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/calibration"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/chains"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/config"
	apperrors "github.com/ZanzyTHEbar/chain-sentinel/internal/errors"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/middleware"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/monitoring"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/policy"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/providers"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/providers/dex"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/providers/evm"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/providers/honeypot"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/providers/reputation"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/providers/simulation"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/ratelimit"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/resilience"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/risk"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/rpcproxy"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/scanner"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/security"
)

// @title        chain-sentinel API
// @version      1.0
// @description  Composite risk scoring for EVM tokens, transactions and signature requests.
// @BasePath     /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured logging setup
	level := monitoring.ParseLevel(cfg.Server.LogLevel)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
	gin.SetMode(cfg.Server.GinMode)

	appMetrics := monitoring.NewMetrics()
	appLogger := monitoring.NewLoggerWithOptions(os.Stdout, level)
	health := resilience.NewHealthTracker(resilience.DefaultHealthConfig())

	observeProvider := func(provider string, d time.Duration, err error) {
		appMetrics.ObserveProvider(provider, d, err)
		appLogger.ExternalAPILogger(provider, d, err)
	}
	newClient := func(name string, opts ...resilience.ClientOption) *resilience.Client {
		base := []resilience.ClientOption{
			resilience.WithTimeout(cfg.Providers.Timeout),
			resilience.WithBreaker(cfg.Providers.Breaker),
			resilience.WithHealth(health),
			resilience.WithObserver(observeProvider),
		}
		return resilience.NewClient(name, append(base, opts...)...)
	}

	// Chain data providers
	var hp evm.HoneypotChecker
	if cfg.Providers.HoneypotURL != "" {
		hp = honeypot.New(newClient("honeypot"), cfg.Providers.HoneypotURL, cfg.Providers.HoneypotKey)
	}

	router := providers.NewRouter()
	upstreams := make(map[int64]string, len(cfg.Chains))
	var adapters []*evm.Adapter
	for _, cc := range cfg.Chains {
		chain, _ := chains.Lookup(cc.ID)

		explorerURL := cc.ExplorerURL
		if explorerURL == "" {
			explorerURL = chain.ExplorerAPI
		}
		var explorer *evm.Explorer
		if explorerURL != "" {
			explorer = evm.NewExplorer(newClient("explorer-"+chain.Name), explorerURL, cc.ExplorerKey, cc.ID)
		}

		dialCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		adapter, err := evm.Dial(dialCtx, chain, cc.RPCURL, explorer, hp)
		cancel()
		if err != nil {
			slog.Error("Failed to connect chain", "chain", chain.Name, "error", err)
			continue
		}
		router.Register(cc.ID, adapter)
		adapters = append(adapters, adapter)
		upstreams[cc.ID] = cc.RPCURL
		slog.Info("Chain enabled", "chain", chain.Name, "chain_id", cc.ID)
	}
	if len(adapters) == 0 {
		slog.Warn("No chains configured; structural and honeypot analysis will report no data")
	}

	deps := scanner.Deps{
		Chains:        router,
		ScamDB:        providers.NewStaticScamDB(cfg.ScamDB.Addresses, cfg.ScamDB.CodeHashes),
		ExtraSpenders: cfg.SpendersByChain(),
	}
	if cfg.Providers.DexURL != "" {
		deps.Market = dex.New(newClient("dexscreener"), cfg.Providers.DexURL)
	}
	if cfg.Providers.ReputationURL != "" {
		deps.Reputation = reputation.New(newClient("reputation"), cfg.Providers.ReputationURL, cfg.Providers.ReputationKey)
	}
	if cfg.Providers.SimulationURL != "" {
		deps.Simulator = simulation.New(newClient("simulation"), cfg.Providers.SimulationURL, cfg.Providers.SimulationKey)
	}

	registries := scanner.DefaultRegistries(deps,
		analyzers.WithObserver(appMetrics.ObserveAnalyzer),
		analyzers.WithAnalyzerTimeout(cfg.AnalyzerTimeout),
		analyzers.WithLogger(slog.Default()),
	)

	// Scoring
	calStore := calibration.NewStore(cfg.Calibration.DataDir)
	engine, err := loadEngine(calStore, cfg)
	if err != nil {
		slog.Error("Failed to load calibration", "error", err)
		os.Exit(1)
	}
	mode, _ := policy.ParseMode(cfg.PolicyMode)

	// Audit trail
	store, err := audit.OpenStore(cfg.Audit.DataDir)
	if err != nil {
		slog.Error("Failed to open audit store", "error", err)
		os.Exit(1)
	}
	defer apperrors.SafeClose(store, "audit store")

	sinks := []audit.Sink{{Name: "sqlite", Recorder: store}}
	var kafkaSink *audit.KafkaSink
	if len(cfg.Audit.KafkaBrokers) > 0 {
		kafkaSink, err = audit.NewKafkaSink(cfg.Audit.KafkaBrokers, cfg.Audit.KafkaTopic)
		if err != nil {
			slog.Warn("Kafka audit sink disabled", "error", err)
		} else {
			sinks = append(sinks, audit.Sink{Name: "kafka", Recorder: kafkaSink})
		}
	}
	recorder := audit.NewAsync(cfg.Audit.QueueSize, appMetrics, sinks...)

	retentionCtx, stopRetention := context.WithCancel(context.Background())
	defer stopRetention()
	go store.RunRetention(retentionCtx, cfg.Audit.Retention, time.Hour)

	verdictCache := cache.NewCache[scanner.Verdict](cfg.CacheTTL, cache.WithMetrics[scanner.Verdict](appMetrics))

	svc := scanner.New(engine, policy.NewEngine(mode),
		scanner.WithRegistries(registries),
		scanner.WithCache(verdictCache),
		scanner.WithAudit(recorder),
		scanner.WithMetrics(appMetrics),
		scanner.WithLogger(appLogger),
	)

	// Rate limiting
	redisClient, err := ratelimit.NewRedisClient(cfg.Redis)
	if err != nil {
		slog.Warn("Redis unavailable, using in-memory rate limits", "error", err)
	}
	limiter := ratelimit.NewRateLimiter(redisClient, cfg.RateLimit, appMetrics)

	var auth *security.AdminAuth
	if cfg.Auth.JWTSecret != "" {
		auth, err = security.NewAdminAuth(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		if err != nil {
			slog.Error("Failed to initialise admin auth", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Warn("JWT_SECRET not set; admin endpoints disabled")
	}

	var proxy *rpcproxy.Proxy
	if len(upstreams) > 0 {
		// sends are not idempotent
		rpcClient := newClient("rpc-upstream", resilience.WithRetry(resilience.RetryConfig{MaxAttempts: 1}))
		proxy = rpcproxy.New(svc, rpcClient, upstreams, defaultChain(upstreams), slog.Default())
	}

	a := &app{
		scanner:     svc,
		audit:       store,
		limiter:     limiter,
		redis:       redisClient,
		auth:        auth,
		security:    security.NewSecurityMiddleware(cfg.Security),
		proxy:       proxy,
		health:      health,
		metrics:     appMetrics,
		logger:      appLogger,
		cache:       verdictCache,
		compression: middleware.NewCompressor(middleware.DefaultCompressionConfig()),
	}
	r := a.router()

	// Performance profiling endpoints (development only)
	if os.Getenv("ENABLE_PROFILING") == "true" {
		slog.Info("Enabling performance profiling endpoints")
		r.GET("/debug/pprof/*filepath", gin.WrapF(pprof.Index))
		r.GET("/debug/pprof/cmdline", gin.WrapF(pprof.Cmdline))
		r.GET("/debug/pprof/profile", gin.WrapF(pprof.Profile))
		r.GET("/debug/pprof/symbol", gin.WrapF(pprof.Symbol))
		r.GET("/debug/pprof/trace", gin.WrapF(pprof.Trace))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("Starting server", "port", cfg.Server.Port, "policy_mode", mode, "chains", len(upstreams))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// SIGHUP reloads calibration; SIGINT/SIGTERM shut down
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for s := range sig {
		if s != syscall.SIGHUP {
			break
		}
		next, err := loadEngine(calStore, cfg)
		if err != nil {
			slog.Error("Calibration reload failed", "error", err)
			continue
		}
		svc.SetEngine(next)
		cal := next.Calibration()
		slog.Info("Calibration reloaded",
			"name", cfg.Calibration.Name,
			"high_threshold", cal.HighThreshold,
			"medium_threshold", cal.MediumThreshold,
			"samples", cal.SampleCount,
		)
	}
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	stopRetention()
	if err := recorder.Close(ctx); err != nil {
		slog.Warn("Audit queue not drained", "error", err)
	}
	if kafkaSink != nil {
		apperrors.SafeClose(kafkaSink, "kafka sink")
	}
	limiter.Close()
	if redisClient != nil {
		apperrors.SafeClose(redisClient, "redis")
	}
	verdictCache.Close()
	for _, ad := range adapters {
		ad.Close()
	}

	slog.Info("Server exited")
}

// loadEngine builds a risk engine from the stored calibration, applying any
// thresholds pinned in the config file.
func loadEngine(store *calibration.Store, cfg config.Config) (*risk.Engine, error) {
	cal, err := store.Load(cfg.Calibration.Name)
	if err != nil {
		return nil, err
	}
	if cfg.Calibration.HighThreshold > 0 {
		cal.HighThreshold = cfg.Calibration.HighThreshold
		cal.MediumThreshold = cfg.Calibration.MediumThreshold
	}
	if err := cal.Validate(); err != nil {
		return nil, fmt.Errorf("calibration %q: %w", cfg.Calibration.Name, err)
	}
	return risk.NewEngine(cal, risk.WithEscalation(cfg.Escalation)), nil
}

func defaultChain(upstreams map[int64]string) int64 {
	if _, ok := upstreams[risk.DefaultChainID]; ok {
		return risk.DefaultChainID
	}
	var lowest int64
	for id := range upstreams {
		if lowest == 0 || id < lowest {
			lowest = id
		}
	}
	return lowest
}
