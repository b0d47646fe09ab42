package analyzers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/chain-sentinel/internal/providers"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/risk"
)

// Market scores the token's deepest trading pair.
type Market struct {
	base
	provider providers.MarketDataProvider
	now      func() time.Time
}

// NewMarket creates the analyzer.
func NewMarket(weight float64, provider providers.MarketDataProvider) *Market {
	return &Market{base: newBase(NameMarket, weight), provider: provider, now: time.Now}
}

func (m *Market) Analyze(ctx context.Context, actx risk.AnalysisContext) (risk.AnalyzerResult, error) {
	if m.provider == nil {
		return m.noData("Market data unavailable", nil), nil
	}

	md, err := m.provider.MarketData(ctx, actx.ChainID, actx.Target)
	if errors.Is(err, providers.ErrNotFound) {
		return m.noData("No DEX trading pairs found", map[string]any{"listed": false}), nil
	}
	if err != nil {
		return risk.AnalyzerResult{}, fmt.Errorf("market data: %w", err)
	}

	sig := risk.MarketSignals{
		Present:            true,
		LiquidityUSD:       md.LiquidityUSD,
		Volume24h:          md.Volume24h,
		PriceChange24h:     md.PriceChange24h,
		FDV:                md.FDV,
		PairAgeHours:       md.PairAgeHours(m.now()),
		WashTradeSuspected: md.WashTradeSuspected,
	}

	res := m.result()
	res.Score, res.Flags = risk.ScoreMarket(sig)
	res.Data[risk.SignalsKey] = sig
	res.Data["pair"] = md
	return res, nil
}
