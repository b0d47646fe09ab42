package honeypot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/chain-sentinel/internal/providers"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/resilience"
)

func TestCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/IsHoneypot", r.URL.Path)
		assert.Equal(t, "56", r.URL.Query().Get("chainID"))
		switch r.URL.Query().Get("address") {
		case "0xhoney":
			_, _ = w.Write([]byte(`{"simulationSuccess":true,"honeypotResult":{"isHoneypot":true,"honeypotReason":"Sell failed: TRANSFER_FROM_FAILED"},"simulationResult":{"buyTax":5,"sellTax":100}}`))
		case "0xclean":
			_, _ = w.Write([]byte(`{"simulationSuccess":true,"honeypotResult":{"isHoneypot":false},"simulationResult":{"buyTax":1,"sellTax":2}}`))
		case "0xbroken":
			_, _ = w.Write([]byte(`{"simulationSuccess":false,"simulationError":"no liquidity"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(resilience.NewClient("honeypot", resilience.WithHTTPClient(srv.Client())), srv.URL, "")
	ctx := context.Background()

	info, err := c.Check(ctx, 56, "0xhoney")
	require.NoError(t, err)
	assert.True(t, info.IsHoneypot)
	assert.True(t, info.CannotSell)
	require.NotNil(t, info.SellTax)
	assert.Equal(t, 100.0, *info.SellTax)

	info, err = c.Check(ctx, 56, "0xclean")
	require.NoError(t, err)
	assert.True(t, info.Simulated)
	assert.False(t, info.IsHoneypot)
	assert.False(t, info.CannotSell)

	info, err = c.Check(ctx, 56, "0xbroken")
	require.NoError(t, err)
	assert.False(t, info.Simulated)
	assert.Equal(t, "no liquidity", info.Reason)

	_, err = c.Check(ctx, 56, "0xunknown")
	assert.ErrorIs(t, err, providers.ErrNotFound)
}
