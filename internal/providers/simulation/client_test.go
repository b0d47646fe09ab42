package simulation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/chain-sentinel/internal/providers"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/resilience"
)

func TestSimulate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/simulate", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("X-API-Key"))

		var req providers.SimulationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(1), req.ChainID)

		_, _ = w.Write([]byte(`{"success":false,"revert_reason":"ERC20: insufficient allowance","warnings":["approval to unknown contract"]}`))
	}))
	defer srv.Close()

	c := New(resilience.NewClient("simulation", resilience.WithHTTPClient(srv.Client())), srv.URL, "k")
	res, err := c.Simulate(context.Background(), providers.SimulationRequest{ChainID: 1, From: "0xa", To: "0xb", Data: "0x"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "ERC20: insufficient allowance", res.RevertReason)
	assert.Equal(t, []string{"approval to unknown contract"}, res.Warnings)
}
