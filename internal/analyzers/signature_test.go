package analyzers

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/chain-sentinel/internal/risk"
)

const (
	maxUint256Dec = "115792089237316195423570985008687907853269984665640564039457584007913129639935"
	maxUint160Dec = "1461501637330902918203684832716283019655932542975"
	offerer       = "0x4444444444444444444444444444444444444444"
)

func typedData(primary string, message map[string]any) map[string]any {
	return map[string]any{
		"types": map[string]any{
			"EIP712Domain": []map[string]string{
				{"name": "name", "type": "string"},
				{"name": "chainId", "type": "uint256"},
				{"name": "verifyingContract", "type": "address"},
			},
		},
		"primaryType": primary,
		"domain": map[string]any{
			"name":              "Test",
			"chainId":           1,
			"verifyingContract": tokenAddr,
		},
		"message": message,
	}
}

func sigContext(td any) risk.AnalysisContext {
	return risk.NewAnalysisContext(tokenAddr, 1, walletAddr, map[string]any{
		ExtraTypedData:  td,
		ExtraSignMethod: "eth_signTypedData_v4",
	})
}

func TestSignature(t *testing.T) {
	now := fixedNow().Unix()
	farDeadline := fmt.Sprint(now + 2*secondsPerYear)
	nearDeadline := fmt.Sprint(now + 3600)

	tests := []struct {
		name  string
		td    any
		score float64
		flags []string
	}{
		{
			name: "unlimited permit to unknown spender",
			td: typedData(TypePermit, map[string]any{
				"owner": walletAddr, "spender": unknownAddr, "value": maxUint256Dec, "nonce": 0, "deadline": farDeadline,
			}),
			score: 65,
		},
		{
			name: "bounded permit to known router",
			td: typedData(TypePermit, map[string]any{
				"owner": walletAddr, "spender": uniV2Router, "value": "1000", "nonce": 0, "deadline": nearDeadline,
			}),
			score: 0,
		},
		{
			name: "permit without spender",
			td: typedData(TypePermit, map[string]any{
				"owner": walletAddr, "value": "1000", "deadline": nearDeadline,
			}),
			score: 15,
			flags: []string{"Permit does not name a valid spender"},
		},
		{
			name: "permit2 single to universal router",
			td: typedData(TypePermitSingle, map[string]any{
				"details": map[string]any{
					"token": tokenAddr, "amount": maxUint160Dec, "expiration": nearDeadline, "nonce": 0,
				},
				"spender":     uniUniversal,
				"sigDeadline": nearDeadline,
			}),
			score: 25,
			flags: []string{"Unlimited Permit2 allowance"},
		},
		{
			name: "permit2 single everything wrong",
			td: typedData(TypePermitSingle, map[string]any{
				"details": map[string]any{
					"token": tokenAddr, "amount": maxUint160Dec, "expiration": farDeadline, "nonce": 0,
				},
				"spender":     unknownAddr,
				"sigDeadline": nearDeadline,
			}),
			score: 55,
		},
		{
			name: "permit2 batch",
			td: typedData(TypePermitBatch, map[string]any{
				"details": []any{
					map[string]any{"token": tokenAddr, "amount": maxUint160Dec, "expiration": farDeadline, "nonce": 0},
					map[string]any{"token": walletAddr, "amount": maxUint160Dec, "expiration": nearDeadline, "nonce": 0},
					map[string]any{"token": offerer, "amount": "10", "expiration": nearDeadline, "nonce": 0},
				},
				"spender":     unknownAddr,
				"sigDeadline": nearDeadline,
			}),
			score: 65,
		},
		{
			name:  "seaport listing for nothing",
			td:    seaportOrder("0"),
			score: 50,
			flags: []string{"NFT listing for zero consideration"},
		},
		{
			name:  "seaport listing for dust",
			td:    seaportOrder("100000000000000"),
			score: 30,
		},
		{
			name:  "seaport listing at fair price",
			td:    seaportOrder("2000000000000000000"),
			score: 0,
		},
		{
			name:  "unknown primary type",
			td:    typedData("Mail", map[string]any{"contents": "hello"}),
			score: 0,
		},
		{
			name:  "malformed json",
			td:    `{"primaryType": "Permit", "message": `,
			score: 15,
			flags: []string{"Typed data could not be parsed"},
		},
		{
			name:  "missing primary type",
			td:    `{"message": {}}`,
			score: 15,
		},
	}

	a := NewSignature(DefaultSignatureWeight, nil)
	a.now = fixedNow

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := a.Analyze(context.Background(), sigContext(tt.td))
			require.NoError(t, err)
			assert.Equal(t, tt.score, res.Score)
			if tt.flags != nil {
				assert.Equal(t, tt.flags, res.Flags)
			}
		})
	}
}

func seaportOrder(payment string) map[string]any {
	return typedData(TypeOrderComponents, map[string]any{
		"offerer": offerer,
		"offer": []any{
			map[string]any{"itemType": 2, "token": tokenAddr, "identifierOrCriteria": "42", "startAmount": "1", "endAmount": "1"},
		},
		"consideration": []any{
			map[string]any{"itemType": 0, "token": "0x0000000000000000000000000000000000000000", "identifierOrCriteria": "0",
				"startAmount": payment, "endAmount": payment, "recipient": offerer},
			// marketplace fee does not count toward the seller's proceeds
			map[string]any{"itemType": 0, "token": "0x0000000000000000000000000000000000000000", "identifierOrCriteria": "0",
				"startAmount": "5000000000000000000", "endAmount": "5000000000000000000", "recipient": unknownAddr},
		},
	})
}

func TestSignatureInputShapes(t *testing.T) {
	a := NewSignature(DefaultSignatureWeight, nil)
	a.now = fixedNow

	td := typedData(TypePermit, map[string]any{"spender": unknownAddr, "value": "1", "deadline": "0"})
	raw, err := json.Marshal(td)
	require.NoError(t, err)

	for name, input := range map[string]any{"map": td, "string": string(raw), "bytes": raw, "raw": json.RawMessage(raw)} {
		t.Run(name, func(t *testing.T) {
			res, err := a.Analyze(context.Background(), sigContext(input))
			require.NoError(t, err)
			assert.Equal(t, 25.0, res.Score)
			assert.Equal(t, TypePermit, res.Data["primary_type"])
			assert.Equal(t, int64(1), res.Data["chain_id"])
		})
	}
}

func TestSignatureWithoutTypedData(t *testing.T) {
	a := NewSignature(DefaultSignatureWeight, nil)

	for _, method := range []string{"personal_sign", "eth_sign"} {
		res, err := a.Analyze(context.Background(), risk.NewAnalysisContext(tokenAddr, 1, walletAddr, map[string]any{
			ExtraSignMethod: method,
		}))
		require.NoError(t, err)
		assert.Zero(t, res.Score)
		assert.Equal(t, method, res.Data["sign_method"])
	}
}
