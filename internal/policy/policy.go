package policy

import (
	"fmt"
	"math"
	"strings"

	"github.com/ZanzyTHEbar/chain-sentinel/internal/risk"
)

// Mode selects how a verdict reacts to failed analyzers.
type Mode string

const (
	// Strict treats any unavailable source as a reason to block.
	Strict Mode = "STRICT"
	// Balanced keeps the computed verdict and adds an advisory flag.
	Balanced Mode = "BALANCED"
)

// BlockRecommended is the override marker set in strict mode.
const BlockRecommended = "BLOCK_RECOMMENDED"

const strictProbabilityFloor = 80.0

// ParseMode parses a mode name case-insensitively. Empty input yields Balanced.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToUpper(strings.TrimSpace(s))) {
	case Strict:
		return Strict, nil
	case Balanced, "":
		return Balanced, nil
	}
	return "", fmt.Errorf("unknown policy mode %q", s)
}

// Engine applies degraded-source policy to a computed RiskOutput.
type Engine struct {
	mode Mode
}

// NewEngine creates a policy engine for mode.
func NewEngine(mode Mode) *Engine {
	return &Engine{mode: mode}
}

// Mode returns the configured mode.
func (e *Engine) Mode() Mode { return e.mode }

// Apply returns a copy of out annotated with the failure state of results.
// With no failures the verdict is unchanged apart from the annotations.
func (e *Engine) Apply(results []risk.AnalyzerResult, out risk.RiskOutput) risk.RiskOutput {
	adjusted := out.Clone()
	adjusted.PolicyMode = string(e.mode)
	adjusted.PolicyOverride = ""

	var failed []string
	for _, r := range results {
		if r.Failed() {
			failed = append(failed, r.Name)
		}
	}
	adjusted.HasFailures = len(failed) > 0
	adjusted.FailedAnalyzers = failed
	if !adjusted.HasFailures {
		return adjusted
	}

	names := strings.Join(failed, ", ")
	switch e.mode {
	case Strict:
		adjusted.RiskLevel = risk.RiskHigh
		adjusted.Probability = math.Max(adjusted.Probability, strictProbabilityFloor)
		adjusted.PolicyOverride = BlockRecommended
		adjusted.CriticalFlags = append(
			[]string{fmt.Sprintf("Analysis incomplete: %s unavailable (strict policy)", names)},
			adjusted.CriticalFlags...,
		)
	default:
		adjusted.CriticalFlags = append(adjusted.CriticalFlags,
			fmt.Sprintf("Advisory: %s unavailable; verdict based on partial data", names))
	}
	return adjusted
}
