package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/chain-sentinel/internal/risk"
)

func lowOutput() risk.RiskOutput {
	return risk.RiskOutput{
		Probability:    12.5,
		RiskLevel:      risk.RiskLow,
		Archetype:      risk.ArchetypeLegitimate,
		CriticalFlags:  []string{"Low liquidity ($8000)"},
		Confidence:     75,
		CategoryScores: map[string]float64{"structural": 0, "market": 30, "honeypot": 0},
	}
}

func resultsWithFailure() []risk.AnalyzerResult {
	return []risk.AnalyzerResult{
		{Name: "structural", Weight: 0.5, Score: 0},
		{Name: "market", Weight: 0.3, Score: 30},
		{Name: "honeypot", Weight: 0.2, Error: "upstream timeout"},
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"strict", Strict, false},
		{"STRICT", Strict, false},
		{" Balanced ", Balanced, false},
		{"", Balanced, false},
		{"paranoid", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyStrictWithFailure(t *testing.T) {
	in := lowOutput()
	out := NewEngine(Strict).Apply(resultsWithFailure(), in)

	assert.Equal(t, risk.RiskHigh, out.RiskLevel)
	assert.Equal(t, 80.0, out.Probability)
	assert.Equal(t, BlockRecommended, out.PolicyOverride)
	assert.True(t, out.HasFailures)
	assert.Equal(t, []string{"honeypot"}, out.FailedAnalyzers)
	require.NotEmpty(t, out.CriticalFlags)
	assert.Contains(t, out.CriticalFlags[0], "honeypot")
	assert.Equal(t, "STRICT", out.PolicyMode)

	// input untouched
	assert.Equal(t, lowOutput(), in)
}

func TestApplyStrictKeepsHigherProbability(t *testing.T) {
	in := lowOutput()
	in.Probability = 93
	out := NewEngine(Strict).Apply(resultsWithFailure(), in)
	assert.Equal(t, 93.0, out.Probability)
}

func TestApplyBalancedWithFailure(t *testing.T) {
	in := lowOutput()
	out := NewEngine(Balanced).Apply(resultsWithFailure(), in)

	assert.Equal(t, in.Probability, out.Probability)
	assert.Equal(t, in.RiskLevel, out.RiskLevel)
	assert.Empty(t, out.PolicyOverride)
	assert.True(t, out.HasFailures)
	last := out.CriticalFlags[len(out.CriticalFlags)-1]
	assert.Contains(t, last, "Advisory")
	assert.Contains(t, last, "honeypot")
}

func TestApplyWithoutFailures(t *testing.T) {
	results := []risk.AnalyzerResult{{Name: "structural", Weight: 1}}
	for _, mode := range []Mode{Strict, Balanced} {
		out := NewEngine(mode).Apply(results, lowOutput())

		assert.False(t, out.HasFailures)
		assert.Empty(t, out.PolicyOverride)
		assert.Equal(t, lowOutput().Probability, out.Probability)
		assert.Equal(t, lowOutput().CriticalFlags, out.CriticalFlags)
	}
}
