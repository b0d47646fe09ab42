// Package dex reads token market data from a DexScreener-compatible indexer.
package dex

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/chain-sentinel/internal/chains"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/providers"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/resilience"
)

// DefaultBaseURL is the public indexer endpoint.
const DefaultBaseURL = "https://api.dexscreener.com"

// Client implements providers.MarketDataProvider.
type Client struct {
	http    *resilience.Client
	baseURL string
}

// New creates a client.
func New(hc *resilience.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{http: hc, baseURL: strings.TrimRight(baseURL, "/")}
}

// DexScreenerPair represents a trading pair from DexScreener
type DexScreenerPair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	Liquidity   *struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	PriceChange struct {
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
	FDV           float64  `json:"fdv"`
	PairCreatedAt int64    `json:"pairCreatedAt"`
	Labels        []string `json:"labels"`
}

type tokensResponse struct {
	Pairs []DexScreenerPair `json:"pairs"`
}

// MarketData returns the deepest pair for token on chainID.
func (c *Client) MarketData(ctx context.Context, chainID int64, token string) (providers.MarketData, error) {
	chain, ok := chains.Lookup(chainID)
	if !ok {
		return providers.MarketData{}, fmt.Errorf("dex: no indexer slug for chain %d: %w", chainID, providers.ErrNotFound)
	}

	var resp tokensResponse
	if err := c.http.GetJSON(ctx, c.baseURL+"/latest/dex/tokens/"+url.PathEscape(token), nil, &resp); err != nil {
		return providers.MarketData{}, err
	}

	var best *DexScreenerPair
	for i := range resp.Pairs {
		p := &resp.Pairs[i]
		if p.ChainID != chain.DexSlug {
			continue
		}
		if best == nil || liquidity(p) > liquidity(best) {
			best = p
		}
	}
	if best == nil {
		return providers.MarketData{}, providers.ErrNotFound
	}

	md := providers.MarketData{
		PairAddress:    best.PairAddress,
		DEX:            best.DexID,
		LiquidityUSD:   liquidity(best),
		Volume24h:      best.Volume.H24,
		PriceChange24h: best.PriceChange.H24,
		FDV:            best.FDV,
	}
	if best.PairCreatedAt > 0 {
		created := time.UnixMilli(best.PairCreatedAt).UTC()
		md.PairCreatedAt = &created
	}
	for _, l := range best.Labels {
		if strings.EqualFold(l, "wash-trading") {
			md.WashTradeSuspected = true
		}
	}
	return md, nil
}

func liquidity(p *DexScreenerPair) float64 {
	if p.Liquidity == nil {
		return 0
	}
	return p.Liquidity.USD
}
