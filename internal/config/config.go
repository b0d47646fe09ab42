// Package config loads the server configuration from a YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/chain-sentinel/internal/chains"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/policy"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/ratelimit"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/resilience"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/risk"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/security"
)

type ServerConfig struct {
	Port            string        `yaml:"port"`
	GinMode         string        `yaml:"gin_mode"`
	LogLevel        string        `yaml:"log_level"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type CalibrationConfig struct {
	DataDir string `yaml:"data_dir"`
	Name    string `yaml:"name"`
	// Non-zero thresholds override whatever the store holds.
	HighThreshold   float64 `yaml:"high_threshold"`
	MediumThreshold float64 `yaml:"medium_threshold"`
}

type ChainConfig struct {
	ID          int64             `yaml:"id"`
	RPCURL      string            `yaml:"rpc_url"`
	ExplorerURL string            `yaml:"explorer_url"`
	ExplorerKey string            `yaml:"explorer_key"`
	Spenders    map[string]string `yaml:"spenders"`
}

type ProvidersConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	DexURL        string        `yaml:"dex_url"`
	HoneypotURL   string        `yaml:"honeypot_url"`
	HoneypotKey   string        `yaml:"honeypot_key"`
	ReputationURL string        `yaml:"reputation_url"`
	ReputationKey string        `yaml:"reputation_key"`
	SimulationURL string        `yaml:"simulation_url"`
	SimulationKey string        `yaml:"simulation_key"`
	// zero fields take the breaker defaults
	Breaker resilience.CircuitBreakerConfig `yaml:"breaker"`
}

type AuditConfig struct {
	DataDir      string   `yaml:"data_dir"`
	QueueSize    int      `yaml:"queue_size"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
	// Scans older than Retention are pruned unless their target is labeled.
	// Zero keeps everything.
	Retention time.Duration `yaml:"retention"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type ScamDBConfig struct {
	Addresses  map[string]string `yaml:"addresses"`
	CodeHashes map[string]string `yaml:"code_hashes"`
}

// Config is the full server configuration.
type Config struct {
	Server          ServerConfig            `yaml:"server"`
	PolicyMode      string                  `yaml:"policy_mode"`
	AnalyzerTimeout time.Duration           `yaml:"analyzer_timeout"`
	CacheTTL        time.Duration           `yaml:"cache_ttl"`
	Calibration     CalibrationConfig       `yaml:"calibration"`
	Escalation      risk.EscalationPolicy   `yaml:"escalation"`
	Chains          []ChainConfig           `yaml:"chains"`
	Providers       ProvidersConfig         `yaml:"providers"`
	Redis           ratelimit.RedisConfig   `yaml:"redis"`
	RateLimit       ratelimit.Config        `yaml:"rate_limit"`
	Audit           AuditConfig             `yaml:"audit"`
	Auth            AuthConfig              `yaml:"auth"`
	Security        security.SecurityConfig `yaml:"security"`
	ScamDB          ScamDBConfig            `yaml:"scam_db"`
}

// Default returns a configuration that runs locally with no external keys.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			GinMode:         "release",
			LogLevel:        "info",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    45 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		PolicyMode:      string(policy.Balanced),
		AnalyzerTimeout: 8 * time.Second,
		CacheTTL:        5 * time.Minute,
		Calibration:     CalibrationConfig{DataDir: "./data/calibration", Name: "default"},
		Escalation:      risk.DefaultEscalationPolicy(),
		Providers: ProvidersConfig{
			Timeout:       10 * time.Second,
			DexURL:        "https://api.dexscreener.com",
			HoneypotURL:   "https://api.honeypot.is",
			ReputationURL: "",
			SimulationURL: "",
		},
		RateLimit: ratelimit.DefaultConfig(),
		Audit: AuditConfig{
			DataDir:    "./data",
			QueueSize:  256,
			KafkaTopic: "chain-sentinel.verdicts",
			Retention:  90 * 24 * time.Hour,
		},
		Auth:     AuthConfig{TokenTTL: 24 * time.Hour},
		Security: security.DefaultSecurityConfig(),
	}
}

// Load reads path (when non-empty) over Default and applies environment
// overrides. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnvOrDefault("PORT", c.Server.Port)
	c.Server.GinMode = getEnvOrDefault("GIN_MODE", c.Server.GinMode)
	c.Server.LogLevel = getEnvOrDefault("LOG_LEVEL", c.Server.LogLevel)
	c.PolicyMode = getEnvOrDefault("POLICY_MODE", c.PolicyMode)
	c.Calibration.DataDir = getEnvOrDefault("CALIBRATION_DIR", c.Calibration.DataDir)
	c.Audit.DataDir = getEnvOrDefault("DATA_DIR", c.Audit.DataDir)
	c.Audit.KafkaTopic = getEnvOrDefault("KAFKA_TOPIC", c.Audit.KafkaTopic)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Audit.KafkaBrokers = splitCSV(brokers)
	}
	c.Redis.Addr = getEnvOrDefault("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", c.Redis.Password)
	c.Auth.JWTSecret = getEnvOrDefault("JWT_SECRET", c.Auth.JWTSecret)
	c.Providers.HoneypotKey = getEnvOrDefault("HONEYPOT_API_KEY", c.Providers.HoneypotKey)
	c.Providers.ReputationURL = getEnvOrDefault("REPUTATION_API_URL", c.Providers.ReputationURL)
	c.Providers.ReputationKey = getEnvOrDefault("REPUTATION_API_KEY", c.Providers.ReputationKey)
	c.Providers.SimulationURL = getEnvOrDefault("SIMULATION_API_URL", c.Providers.SimulationURL)
	c.Providers.SimulationKey = getEnvOrDefault("SIMULATION_API_KEY", c.Providers.SimulationKey)
	if os.Getenv("ENABLE_HSTS") == "true" {
		c.Security.EnableHSTS = true
	}

	explorerKey := os.Getenv("EXPLORER_API_KEY")
	for i := range c.Chains {
		ch := &c.Chains[i]
		ch.RPCURL = getEnvOrDefault("RPC_URL_"+strconv.FormatInt(ch.ID, 10), ch.RPCURL)
		if ch.ExplorerKey == "" {
			ch.ExplorerKey = explorerKey
		}
	}

	// RPC_URL_<id> also enables chains the file does not list
	for _, id := range chains.IDs() {
		url := os.Getenv("RPC_URL_" + strconv.FormatInt(id, 10))
		if url == "" || c.hasChain(id) {
			continue
		}
		c.Chains = append(c.Chains, ChainConfig{ID: id, RPCURL: url, ExplorerKey: explorerKey})
	}
}

func (c *Config) hasChain(id int64) bool {
	for _, ch := range c.Chains {
		if ch.ID == id {
			return true
		}
	}
	return false
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error

	if _, err := policy.ParseMode(c.PolicyMode); err != nil {
		errs = append(errs, err)
	}

	hi, med := c.Calibration.HighThreshold, c.Calibration.MediumThreshold
	if hi != 0 || med != 0 {
		if hi <= 0 || hi > 100 {
			errs = append(errs, fmt.Errorf("calibration.high_threshold %.1f out of range (0,100]", hi))
		}
		if med < 0 || med >= hi {
			errs = append(errs, fmt.Errorf("calibration.medium_threshold %.1f must be below high_threshold %.1f", med, hi))
		}
	}

	seen := make(map[int64]bool, len(c.Chains))
	for _, ch := range c.Chains {
		if _, ok := chains.Lookup(ch.ID); !ok {
			errs = append(errs, fmt.Errorf("chain %d is not supported", ch.ID))
		}
		if strings.TrimSpace(ch.RPCURL) == "" {
			errs = append(errs, fmt.Errorf("chain %d: empty rpc_url", ch.ID))
		}
		if seen[ch.ID] {
			errs = append(errs, fmt.Errorf("chain %d listed twice", ch.ID))
		}
		seen[ch.ID] = true
	}

	if c.AnalyzerTimeout < 0 {
		errs = append(errs, fmt.Errorf("analyzer_timeout must not be negative"))
	}
	if c.Escalation.RugFloor < 0 || c.Escalation.RugFloor > 100 || c.Escalation.HoneypotFloor < 0 || c.Escalation.HoneypotFloor > 100 {
		errs = append(errs, fmt.Errorf("escalation floors must be within [0,100]"))
	}
	if c.Audit.Retention < 0 {
		errs = append(errs, fmt.Errorf("audit.retention must not be negative"))
	}
	if len(c.Audit.KafkaBrokers) > 0 && c.Audit.KafkaTopic == "" {
		errs = append(errs, fmt.Errorf("audit.kafka_topic is required when brokers are set"))
	}

	return errors.Join(errs...)
}

// SpendersByChain collects the configured extra approval whitelists.
func (c Config) SpendersByChain() map[int64]map[string]string {
	out := make(map[int64]map[string]string)
	for _, ch := range c.Chains {
		if len(ch.Spenders) > 0 {
			out[ch.ID] = ch.Spenders
		}
	}
	return out
}

// getEnvOrDefault returns environment variable value or default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
