package analyzers

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZanzyTHEbar/chain-sentinel/internal/providers"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/risk"
)

// Honeypot scores a buy/sell simulation of the token.
type Honeypot struct {
	base
	chains providers.ChainRouter
}

// NewHoneypot creates the analyzer.
func NewHoneypot(weight float64, chains providers.ChainRouter) *Honeypot {
	return &Honeypot{base: newBase(NameHoneypot, weight), chains: chains}
}

func (h *Honeypot) Analyze(ctx context.Context, actx risk.AnalysisContext) (risk.AnalyzerResult, error) {
	p, ok := h.chains.ForChain(actx.ChainID)
	if !ok {
		return h.noData(fmt.Sprintf("Chain %d not supported", actx.ChainID), map[string]any{"supported": false}), nil
	}

	info, err := p.HoneypotInfo(ctx, actx.Target)
	if errors.Is(err, providers.ErrNotFound) {
		return h.noData("Honeypot simulation unavailable", nil), nil
	}
	if err != nil {
		return risk.AnalyzerResult{}, fmt.Errorf("honeypot check: %w", err)
	}

	sig := risk.HoneypotSignals{
		Present:          true,
		IsHoneypot:       info.IsHoneypot,
		Reason:           info.Reason,
		SimulationFailed: !info.Simulated,
		CannotSell:       info.CannotSell,
		BuyTax:           info.BuyTax,
		SellTax:          info.SellTax,
	}

	res := h.result()
	res.Score, res.Flags = risk.ScoreHoneypot(sig)
	res.Data[risk.SignalsKey] = sig
	return res, nil
}
