package resilience

import (
	"sort"
	"sync"
	"time"
)

// HealthLevel summarises a provider's recent error rate.
type HealthLevel string

const (
	LevelHealthy     HealthLevel = "healthy"
	LevelDegraded    HealthLevel = "degraded"
	LevelUnavailable HealthLevel = "unavailable"
)

// HealthConfig holds the error-rate thresholds and accounting window.
type HealthConfig struct {
	Window            time.Duration `json:"window" yaml:"window"`
	DegradedThreshold float64       `json:"degraded_threshold" yaml:"degraded_threshold"`
	DownThreshold     float64       `json:"down_threshold" yaml:"down_threshold"`
}

// DefaultHealthConfig returns a 5 minute window, 10% degraded, 50% down.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		Window:            5 * time.Minute,
		DegradedThreshold: 0.10,
		DownThreshold:     0.50,
	}
}

// ProviderStatus is one provider's row in /health/services.
type ProviderStatus struct {
	Name        string      `json:"name"`
	Level       HealthLevel `json:"level"`
	Requests    int64       `json:"requests"`
	Failures    int64       `json:"failures"`
	ErrorRate   float64     `json:"error_rate"`
	LastError   string      `json:"last_error,omitempty"`
	LastErrorAt *time.Time  `json:"last_error_at,omitempty"`
	Breaker     string      `json:"circuit_breaker,omitempty"`
}

type providerStats struct {
	windowStart time.Time
	requests    int64
	failures    int64
	lastError   string
	lastErrorAt time.Time
	breaker     *CircuitBreaker
}

// HealthTracker aggregates provider outcomes per accounting window.
type HealthTracker struct {
	cfg HealthConfig
	now func() time.Time

	mu        sync.Mutex
	providers map[string]*providerStats
}

// NewHealthTracker creates a tracker.
func NewHealthTracker(cfg HealthConfig) *HealthTracker {
	if cfg.Window <= 0 {
		cfg = DefaultHealthConfig()
	}
	return &HealthTracker{cfg: cfg, now: time.Now, providers: make(map[string]*providerStats)}
}

// Attach registers a provider and its breaker.
func (h *HealthTracker) Attach(name string, breaker *CircuitBreaker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats(name).breaker = breaker
}

// RecordSuccess counts a successful round trip.
func (h *HealthTracker) RecordSuccess(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats(name).requests++
}

// RecordFailure counts a failed round trip.
func (h *HealthTracker) RecordFailure(name string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.stats(name)
	s.requests++
	s.failures++
	if err != nil {
		s.lastError = err.Error()
	}
	s.lastErrorAt = h.now()
}

// Available is false when the provider's breaker is open or its error rate
// is above the down threshold.
func (h *HealthTracker) Available(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.providers[name]
	if !ok {
		return true
	}
	return h.level(s) != LevelUnavailable
}

// Snapshot returns every tracked provider sorted by name.
func (h *HealthTracker) Snapshot() []ProviderStatus {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]ProviderStatus, 0, len(h.providers))
	for name, s := range h.providers {
		h.roll(s)
		st := ProviderStatus{
			Name:      name,
			Level:     h.level(s),
			Requests:  s.requests,
			Failures:  s.failures,
			ErrorRate: errorRate(s),
			LastError: s.lastError,
		}
		if !s.lastErrorAt.IsZero() {
			at := s.lastErrorAt
			st.LastErrorAt = &at
		}
		if s.breaker != nil {
			st.Breaker = s.breaker.State().String()
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (h *HealthTracker) stats(name string) *providerStats {
	s, ok := h.providers[name]
	if !ok {
		s = &providerStats{windowStart: h.now()}
		h.providers[name] = s
	}
	h.roll(s)
	return s
}

func (h *HealthTracker) roll(s *providerStats) {
	if h.now().Sub(s.windowStart) > h.cfg.Window {
		s.windowStart = h.now()
		s.requests = 0
		s.failures = 0
	}
}

func (h *HealthTracker) level(s *providerStats) HealthLevel {
	if s.breaker != nil && s.breaker.State() == StateOpen {
		return LevelUnavailable
	}
	rate := errorRate(s)
	switch {
	case rate >= h.cfg.DownThreshold && s.requests > 0:
		return LevelUnavailable
	case rate >= h.cfg.DegradedThreshold && s.requests > 0:
		return LevelDegraded
	default:
		return LevelHealthy
	}
}

func errorRate(s *providerStats) float64 {
	if s.requests == 0 {
		return 0
	}
	return float64(s.failures) / float64(s.requests)
}
