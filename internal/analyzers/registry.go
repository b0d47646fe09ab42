package analyzers

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ZanzyTHEbar/chain-sentinel/internal/risk"
)

const weightTolerance = 1e-9

// Observer receives the duration and outcome of every analyzer run.
type Observer func(name string, d time.Duration, err error)

// Registry runs a set of analyzers concurrently. It is safe for concurrent
// use; Run snapshots the analyzer list so registration never races a scan.
type Registry struct {
	mu        sync.RWMutex
	analyzers []Analyzer
	observer  Observer
	timeout   time.Duration
	logger    *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithObserver installs a per-analyzer observer.
func WithObserver(o Observer) RegistryOption {
	return func(r *Registry) { r.observer = o }
}

// WithAnalyzerTimeout bounds each analyzer's run.
func WithAnalyzerTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.timeout = d }
}

// WithLogger sets the logger used for contained failures.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds an analyzer. Names must be unique.
func (r *Registry) Register(a Analyzer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.analyzers {
		if existing.Name() == a.Name() {
			return fmt.Errorf("analyzer %q already registered", a.Name())
		}
	}
	r.analyzers = append(r.analyzers, a)
	return nil
}

// MustRegister is Register for static wiring.
func (r *Registry) MustRegister(as ...Analyzer) *Registry {
	for _, a := range as {
		if err := r.Register(a); err != nil {
			panic(err)
		}
	}
	return r
}

// Remove drops the analyzer called name and reports whether it existed.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, a := range r.analyzers {
		if a.Name() == name {
			r.analyzers = append(r.analyzers[:i:i], r.analyzers[i+1:]...)
			return true
		}
	}
	return false
}

// Names lists analyzers in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.analyzers))
	for i, a := range r.analyzers {
		names[i] = a.Name()
	}
	return names
}

// TotalWeight is the raw sum of declared weights.
func (r *Registry) TotalWeight() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total float64
	for _, a := range r.analyzers {
		total += a.Weight()
	}
	return total
}

// Len returns the number of registered analyzers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.analyzers)
}

// Run executes every analyzer concurrently and returns one result per
// analyzer in registration order. An analyzer that errors or panics is
// replaced by a failed result with score 0. Weights are renormalised to sum
// to 1 when they do not already.
//
// If ctx is cancelled the run is abandoned and ctx.Err() is returned.
func (r *Registry) Run(ctx context.Context, actx risk.AnalysisContext) ([]risk.AnalyzerResult, error) {
	r.mu.RLock()
	snapshot := make([]Analyzer, len(r.analyzers))
	copy(snapshot, r.analyzers)
	r.mu.RUnlock()

	results := make([]risk.AnalyzerResult, len(snapshot))
	if len(snapshot) == 0 {
		return results, ctx.Err()
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, a := range snapshot {
		g.Go(func() error {
			start := time.Now()
			res, err := r.runOne(gctx, a, actx)
			if r.observer != nil {
				r.observer(a.Name(), time.Since(start), err)
			}
			if err != nil {
				r.logger.Warn("Analyzer failed",
					"analyzer", a.Name(),
					"target", actx.Target,
					"chain_id", actx.ChainID,
					"error", err,
				)
				results[i] = risk.AnalyzerResult{
					Name:   a.Name(),
					Weight: a.Weight(),
					Flags:  []string{},
					Error:  err.Error(),
				}
				return nil
			}
			results[i] = detach(a, res)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	normalizeWeights(results)
	return results, nil
}

func (r *Registry) runOne(ctx context.Context, a Analyzer, actx risk.AnalysisContext) (res risk.AnalyzerResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Analyzer panicked", "analyzer", a.Name(), "panic", rec, "stack", string(debug.Stack()))
			err = fmt.Errorf("analyzer %s panicked: %v", a.Name(), rec)
		}
	}()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return a.Analyze(ctx, actx)
}

// detach copies an analyzer's result so later normalisation never writes
// through to memory the analyzer still owns.
func detach(a Analyzer, res risk.AnalyzerResult) risk.AnalyzerResult {
	out := risk.AnalyzerResult{
		Name:   a.Name(),
		Weight: a.Weight(),
		Score:  clampScore(res.Score),
		Flags:  append([]string{}, res.Flags...),
		Error:  res.Error,
	}
	if res.Data != nil {
		out.Data = make(map[string]any, len(res.Data))
		for k, v := range res.Data {
			out.Data[k] = v
		}
	}
	return out
}

func normalizeWeights(results []risk.AnalyzerResult) {
	var total float64
	for _, res := range results {
		total += res.Weight
	}
	if total <= 0 || math.Abs(total-1) <= weightTolerance {
		return
	}
	for i := range results {
		results[i].Weight /= total
	}
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
