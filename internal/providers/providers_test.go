package providers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopChain struct{}

func (nopChain) ContractInfo(context.Context, string) (ContractInfo, error) { return ContractInfo{}, nil }
func (nopChain) HoneypotInfo(context.Context, string) (HoneypotInfo, error) { return HoneypotInfo{}, nil }
func (nopChain) IsContract(context.Context, string) (bool, error)           { return false, nil }

func TestRouter(t *testing.T) {
	r := NewRouter()
	r.Register(1, nopChain{})

	_, ok := r.ForChain(1)
	assert.True(t, ok)

	_, ok = r.ForChain(56)
	assert.False(t, ok)
}

func TestStaticScamDB(t *testing.T) {
	db := NewStaticScamDB(
		map[string]string{"0xAbC0000000000000000000000000000000000001": "fake USDT"},
		map[string]string{"0xDEADBEEF": "drainer kit v2"},
	)

	matches, err := db.Lookup(context.Background(), 1, "0xabc0000000000000000000000000000000000001", "0xdeadbeef")
	require.NoError(t, err)
	assert.Equal(t, []string{"fake USDT", "drainer kit v2"}, matches)

	matches, err = db.Lookup(context.Background(), 1, "0x0000000000000000000000000000000000000002", "")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestAges(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	created := now.Add(-72 * time.Hour)

	assert.Nil(t, ContractInfo{}.AgeDays(now))
	require.NotNil(t, ContractInfo{CreatedAt: &created}.AgeDays(now))
	assert.InDelta(t, 3.0, *ContractInfo{CreatedAt: &created}.AgeDays(now), 1e-9)

	assert.Nil(t, MarketData{}.PairAgeHours(now))
	assert.InDelta(t, 72.0, *MarketData{PairCreatedAt: &created}.PairAgeHours(now), 1e-9)
}
