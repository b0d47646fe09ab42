package analyzers

import (
	"encoding/json"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gmath "github.com/ethereum/go-ethereum/common/math"
)

const secondsPerYear = 365 * 24 * 60 * 60

// toBigInt accepts the shapes JSON decoding and callers hand us for EVM
// integers: decimal or 0x strings, JSON numbers, and native ints.
func toBigInt(v any) (*big.Int, bool) {
	switch n := v.(type) {
	case nil:
		return nil, false
	case *big.Int:
		if n == nil {
			return nil, false
		}
		return new(big.Int).Set(n), true
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return nil, false
		}
		return gmath.ParseBig256(s)
	case json.Number:
		return gmath.ParseBig256(n.String())
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
			return nil, false
		}
		i, _ := big.NewFloat(n).Int(nil)
		return i, true
	case int:
		return big.NewInt(int64(n)), true
	case int64:
		return big.NewInt(n), true
	case uint64:
		return new(big.Int).SetUint64(n), true
	}
	return nil, false
}

// isUnlimited reports amounts at or above half the range of a uintN, which
// covers max-uint and the common "effectively infinite" variants.
func isUnlimited(v *big.Int, bits uint) bool {
	if v == nil {
		return false
	}
	return v.Cmp(new(big.Int).Lsh(big.NewInt(1), bits-1)) >= 0
}

// farFuture reports a unix timestamp more than a year after now.
func farFuture(ts *big.Int, now int64) bool {
	if ts == nil {
		return false
	}
	return ts.Cmp(big.NewInt(now+secondsPerYear)) > 0
}

// decodeCalldata accepts hex with or without the 0x prefix.
func decodeCalldata(v any) ([]byte, error) {
	switch d := v.(type) {
	case []byte:
		return d, nil
	case string:
		s := strings.TrimSpace(d)
		if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
			s = "0x" + s
		}
		return hexutil.Decode(strings.ToLower(s))
	}
	return nil, hexutil.ErrSyntax
}

func parseAddress(v any) (common.Address, bool) {
	s, ok := v.(string)
	if !ok || !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}
