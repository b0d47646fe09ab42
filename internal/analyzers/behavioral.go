package analyzers

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZanzyTHEbar/chain-sentinel/internal/providers"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/risk"
)

// Behavioral scores the reputation of the acting wallet: From when the
// caller supplied it, otherwise the target.
type Behavioral struct {
	base
	provider providers.ReputationProvider
}

// NewBehavioral creates the analyzer.
func NewBehavioral(weight float64, provider providers.ReputationProvider) *Behavioral {
	return &Behavioral{base: newBase(NameBehavioral, weight), provider: provider}
}

func (b *Behavioral) Analyze(ctx context.Context, actx risk.AnalysisContext) (risk.AnalyzerResult, error) {
	subject := actx.Subject()
	if b.provider == nil {
		return b.noData("Reputation data unavailable", nil), nil
	}

	rep, err := b.provider.WalletReputation(ctx, actx.ChainID, subject)
	if errors.Is(err, providers.ErrNotFound) {
		return b.noData("No reputation history for "+subject, map[string]any{"subject": subject}), nil
	}
	if err != nil {
		return risk.AnalyzerResult{}, fmt.Errorf("wallet reputation: %w", err)
	}

	score := rep.Score
	sig := risk.BehavioralSignals{
		Present:          true,
		ReputationScore:  &score,
		LowReputation:    rep.Low,
		SevereReputation: rep.Severe,
		ScamFlags:        rep.ScamFlags,
	}

	res := b.result()
	res.Score, res.Flags = risk.ScoreBehavioral(sig)
	res.Data[risk.SignalsKey] = sig
	res.Data["subject"] = subject
	res.Data["reputation"] = rep
	return res, nil
}
