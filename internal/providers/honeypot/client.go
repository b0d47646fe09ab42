// Package honeypot queries a honeypot.is-compatible buy/sell simulator.
package honeypot

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

// DefaultBaseURL is the public simulator endpoint.
const DefaultBaseURL = "https://api.honeypot.is"

// Client implements evm.HoneypotChecker.
type Client struct {
	http    *resilience.Client
	baseURL string
	apiKey  string
}

// New creates a client.
func New(hc *resilience.Client, baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{http: hc, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

type response struct {
	SimulationSuccess bool   `json:"simulationSuccess"`
	SimulationError   string `json:"simulationError"`
	HoneypotResult    *struct {
		IsHoneypot     bool   `json:"isHoneypot"`
		HoneypotReason string `json:"honeypotReason"`
	} `json:"honeypotResult"`
	SimulationResult *struct {
		BuyTax  *float64 `json:"buyTax"`
		SellTax *float64 `json:"sellTax"`
	} `json:"simulationResult"`
}

var cannotSellHints = []string{"cannot sell", "unable to sell", "sell failed", "sell reverted"}

// Check simulates a buy and sell of token on chainID.
func (c *Client) Check(ctx context.Context, chainID int64, token string) (providers.HoneypotInfo, error) {
	q := url.Values{}
	q.Set("address", token)
	q.Set("chainID", strconv.FormatInt(chainID, 10))

	var headers map[string]string
	if c.apiKey != "" {
		headers = map[string]string{"X-API-KEY": c.apiKey}
	}

	var resp response
	err := c.http.GetJSON(ctx, c.baseURL+"/v2/IsHoneypot?"+q.Encode(), headers, &resp)
	if err != nil {
		var httpErr *resilience.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return providers.HoneypotInfo{}, providers.ErrNotFound
		}
		return providers.HoneypotInfo{}, err
	}

	info := providers.HoneypotInfo{Simulated: resp.SimulationSuccess}
	if !resp.SimulationSuccess && resp.SimulationError != "" {
		info.Reason = resp.SimulationError
	}
	if resp.HoneypotResult != nil {
		info.IsHoneypot = resp.HoneypotResult.IsHoneypot
		if resp.HoneypotResult.HoneypotReason != "" {
			info.Reason = resp.HoneypotResult.HoneypotReason
		}
	}
	if resp.SimulationResult != nil {
		info.BuyTax = resp.SimulationResult.BuyTax
		info.SellTax = resp.SimulationResult.SellTax
	}

	reason := strings.ToLower(info.Reason)
	for _, hint := range cannotSellHints {
		if strings.Contains(reason, hint) {
			info.CannotSell = true
			break
		}
	}
	if info.SellTax != nil && *info.SellTax >= 99 {
		info.CannotSell = true
	}

	return info, nil
}
