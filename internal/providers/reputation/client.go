// Package reputation queries a wallet reputation service.
package reputation

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ZanzyTHEbar/chain-sentinel/internal/providers"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/resilience"
)

const (
	lowScore    = 40
	severeScore = 15
)

var severeTiers = map[string]bool{"blocked": true, "sanctioned": true, "drainer": true}

// Client implements providers.ReputationProvider.
type Client struct {
	http    *resilience.Client
	baseURL string
	apiKey  string
}

// New creates a client.
func New(hc *resilience.Client, baseURL, apiKey string) *Client {
	return &Client{http: hc, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

type walletResponse struct {
	Address string   `json:"address"`
	Score   float64  `json:"score"`
	Tier    string   `json:"tier"`
	Flags   []string `json:"flags"`
}

// WalletReputation looks up address. Scores run 0 (worst) to 100.
func (c *Client) WalletReputation(ctx context.Context, chainID int64, address string) (providers.Reputation, error) {
	var headers map[string]string
	if c.apiKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + c.apiKey}
	}

	u := c.baseURL + "/v1/wallets/" + url.PathEscape(address) + "?chain_id=" + strconv.FormatInt(chainID, 10)
	var resp walletResponse
	if err := c.http.GetJSON(ctx, u, headers, &resp); err != nil {
		var httpErr *resilience.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return providers.Reputation{}, providers.ErrNotFound
		}
		return providers.Reputation{}, err
	}

	tier := strings.ToLower(resp.Tier)
	return providers.Reputation{
		Address:   address,
		Score:     resp.Score,
		Tier:      tier,
		Low:       resp.Score < lowScore,
		Severe:    resp.Score < severeScore || severeTiers[tier],
		ScamFlags: resp.Flags,
	}, nil
}
