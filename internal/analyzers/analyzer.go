// Package analyzers holds the pluggable risk analyzers and the registry that
// runs them concurrently.
package analyzers

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/chain-sentinel/internal/risk"
)

// Analyzer names.
const (
	NameStructural = risk.CategoryStructural
	NameMarket     = risk.CategoryMarket
	NameBehavioral = risk.CategoryBehavioral
	NameHoneypot   = risk.CategoryHoneypot
	NameIntent     = "intent"
	NameSignature  = "signature"
)

// Default weights.
const (
	DefaultStructuralWeight = 0.40
	DefaultMarketWeight     = 0.25
	DefaultBehavioralWeight = 0.20
	DefaultHoneypotWeight   = 0.15
	DefaultIntentWeight     = 0.15
	DefaultSignatureWeight  = 0.10
)

// malformedInputScore is the fixed suspicion for input that cannot be parsed.
const malformedInputScore = 15

// Analyzer inspects one AnalysisContext and reports a score in [0,100].
//
// Expected absence of data is reported as score 0 with an informational
// flag. Errors are reserved for provider failures; the registry turns them
// into failed results.
type Analyzer interface {
	Name() string
	Weight() float64
	Analyze(ctx context.Context, actx risk.AnalysisContext) (risk.AnalyzerResult, error)
}

// base carries the constructor-injected identity every analyzer shares.
type base struct {
	name   string
	weight float64
}

func newBase(name string, weight float64) base {
	if weight <= 0 || weight > 1 {
		panic(fmt.Sprintf("analyzer %s: weight %v outside (0,1]", name, weight))
	}
	return base{name: name, weight: weight}
}

func (b base) Name() string    { return b.name }
func (b base) Weight() float64 { return b.weight }

// result starts a result for this analyzer.
func (b base) result() risk.AnalyzerResult {
	return risk.AnalyzerResult{
		Name:   b.name,
		Weight: b.weight,
		Flags:  []string{},
		Data:   map[string]any{},
	}
}

// noData is the "nothing to report" result.
func (b base) noData(flag string, data map[string]any) risk.AnalyzerResult {
	res := b.result()
	if flag != "" {
		res.Flags = append(res.Flags, flag)
	}
	for k, v := range data {
		res.Data[k] = v
	}
	return res
}

// points accumulates a score and its flags.
type points struct {
	score float64
	flags []string
}

func (p *points) add(n float64, flag string, args ...any) {
	p.score += n
	if len(args) > 0 {
		flag = fmt.Sprintf(flag, args...)
	}
	p.flags = append(p.flags, flag)
}

func (p *points) clamped() float64 {
	switch {
	case p.score < 0:
		return 0
	case p.score > 100:
		return 100
	}
	return p.score
}
