package analyzers

import (
	"context"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/chain-sentinel/internal/providers"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/risk"
)

// Structural scores the contract itself: verification, age, privileged
// functions, and scam database matches.
type Structural struct {
	base
	chains providers.ChainRouter
	scamDB providers.ScamDatabase
	now    func() time.Time
}

// NewStructural creates the analyzer. scamDB may be nil.
func NewStructural(weight float64, chains providers.ChainRouter, scamDB providers.ScamDatabase) *Structural {
	return &Structural{
		base:   newBase(NameStructural, weight),
		chains: chains,
		scamDB: scamDB,
		now:    time.Now,
	}
}

func (s *Structural) Analyze(ctx context.Context, actx risk.AnalysisContext) (risk.AnalyzerResult, error) {
	p, ok := s.chains.ForChain(actx.ChainID)
	if !ok {
		return s.noData(fmt.Sprintf("Chain %d not supported", actx.ChainID), map[string]any{"supported": false}), nil
	}

	info, err := p.ContractInfo(ctx, actx.Target)
	if err != nil {
		return risk.AnalyzerResult{}, fmt.Errorf("contract info: %w", err)
	}
	if !info.Exists {
		return s.noData("No contract code at address", map[string]any{"exists": false}), nil
	}

	var matches []string
	if s.scamDB != nil {
		matches, err = s.scamDB.Lookup(ctx, actx.ChainID, actx.Target, info.CodeHash)
		if err != nil {
			return risk.AnalyzerResult{}, fmt.Errorf("scam lookup: %w", err)
		}
	}

	sig := risk.StructuralSignals{
		Present:            true,
		Verified:           info.Verified,
		AgeDays:            info.AgeDays(s.now()),
		HasMint:            info.HasMint,
		HasProxy:           info.HasProxy,
		HasPause:           info.HasPause,
		HasBlacklist:       info.HasBlacklist,
		ScamMatches:        matches,
		OwnershipRenounced: risk.Unknown,
	}
	if info.OwnershipRenounced != nil {
		sig.OwnershipRenounced = risk.TristateOf(*info.OwnershipRenounced)
	}
	sig.VerificationUnknown = info.VerificationUnknown

	res := s.result()
	res.Score, res.Flags = risk.ScoreStructural(sig)
	res.Data[risk.SignalsKey] = sig
	res.Data["contract"] = info
	return res, nil
}
