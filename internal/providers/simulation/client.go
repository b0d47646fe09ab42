// Package simulation calls an external transaction dry-run service.
package simulation

import (
	"context"
	"strings"

	"github.com/ZanzyTHEbar/chain-sentinel/internal/providers"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/resilience"
)

// Client implements providers.Simulator.
type Client struct {
	http    *resilience.Client
	baseURL string
	apiKey  string
}

// New creates a client.
func New(hc *resilience.Client, baseURL, apiKey string) *Client {
	return &Client{http: hc, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

// Simulate posts req to /v1/simulate.
func (c *Client) Simulate(ctx context.Context, req providers.SimulationRequest) (providers.SimulationResult, error) {
	var headers map[string]string
	if c.apiKey != "" {
		headers = map[string]string{"X-API-Key": c.apiKey}
	}

	var res providers.SimulationResult
	if err := c.http.PostJSON(ctx, c.baseURL+"/v1/simulate", headers, req, &res); err != nil {
		return providers.SimulationResult{}, err
	}
	return res, nil
}
