// Package chains holds the static per-chain tables the EVM adapter and the
// intent/signature analyzers share: names, indexer slugs, and the spenders
// that are trusted to receive approvals.
package chains

import (
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Chain describes one supported EVM network.
type Chain struct {
	ID           int64
	Name         string
	NativeSymbol string
	// DexSlug is the chain identifier used by DEX indexers.
	DexSlug string
	// ExplorerAPI is the default Etherscan-compatible endpoint.
	ExplorerAPI string
	routers     map[common.Address]string
}

// contracts deployed at the same address on every supported chain
var universal = map[common.Address]string{
	common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3"): "Uniswap Permit2",
	common.HexToAddress("0x1111111254EEB25477B68fb85Ed929f73A960582"): "1inch Aggregation Router v5",
	common.HexToAddress("0x00000000000000ADc04C56Bf30aC9d3c0aAF14dC"): "Seaport 1.5",
	common.HexToAddress("0x0000000000000068F116a894984e2DB1123eB395"): "Seaport 1.6",
}

var registry = map[int64]Chain{
	1: {
		ID: 1, Name: "ethereum", NativeSymbol: "ETH", DexSlug: "ethereum",
		ExplorerAPI: "https://api.etherscan.io/api",
		routers: map[common.Address]string{
			common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"): "Uniswap V2 Router",
			common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564"): "Uniswap V3 SwapRouter",
			common.HexToAddress("0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45"): "Uniswap SwapRouter02",
			common.HexToAddress("0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD"): "Uniswap Universal Router",
			common.HexToAddress("0xDef1C0ded9bec7F1a1670819833240f027b25EfF"): "0x Exchange Proxy",
		},
	},
	56: {
		ID: 56, Name: "bsc", NativeSymbol: "BNB", DexSlug: "bsc",
		ExplorerAPI: "https://api.bscscan.com/api",
		routers: map[common.Address]string{
			common.HexToAddress("0x10ED43C718714eb63d5aA57B78B54704E256024E"): "PancakeSwap V2 Router",
			common.HexToAddress("0x13f4EA83D0bd40E75C8222255bc855a974568Dd4"): "PancakeSwap Smart Router",
			common.HexToAddress("0xDef1C0ded9bec7F1a1670819833240f027b25EfF"): "0x Exchange Proxy",
		},
	},
	137: {
		ID: 137, Name: "polygon", NativeSymbol: "POL", DexSlug: "polygon",
		ExplorerAPI: "https://api.polygonscan.com/api",
		routers: map[common.Address]string{
			common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564"): "Uniswap V3 SwapRouter",
			common.HexToAddress("0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45"): "Uniswap SwapRouter02",
			common.HexToAddress("0xa5E0829CaCEd8fFDD4De3c43696c57F7D7A678ff"): "QuickSwap Router",
		},
	},
	42161: {
		ID: 42161, Name: "arbitrum", NativeSymbol: "ETH", DexSlug: "arbitrum",
		ExplorerAPI: "https://api.arbiscan.io/api",
		routers: map[common.Address]string{
			common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564"): "Uniswap V3 SwapRouter",
			common.HexToAddress("0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45"): "Uniswap SwapRouter02",
		},
	},
	10: {
		ID: 10, Name: "optimism", NativeSymbol: "ETH", DexSlug: "optimism",
		ExplorerAPI: "https://api-optimistic.etherscan.io/api",
		routers: map[common.Address]string{
			common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564"): "Uniswap V3 SwapRouter",
			common.HexToAddress("0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45"): "Uniswap SwapRouter02",
		},
	},
	8453: {
		ID: 8453, Name: "base", NativeSymbol: "ETH", DexSlug: "base",
		ExplorerAPI: "https://api.basescan.org/api",
		routers: map[common.Address]string{
			common.HexToAddress("0x2626664c2603336E57B271c5C0b26F421741e481"): "Uniswap SwapRouter02",
		},
	},
}

// Lookup returns the table entry for id.
func Lookup(id int64) (Chain, bool) {
	c, ok := registry[id]
	return c, ok
}

// IDs lists every chain with a static table entry, ascending.
func IDs() []int64 {
	ids := make([]int64, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ByName resolves a chain by its lower-case name.
func ByName(name string) (Chain, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, c := range registry {
		if c.Name == name {
			return c, true
		}
	}
	return Chain{}, false
}

// Spenders is the approval whitelist for one chain, optionally extended
// from configuration.
type Spenders struct {
	known map[common.Address]string
}

// NewSpenders builds the whitelist for chainID plus any extra entries
// (address → label). Unknown chains still get the universal contracts.
func NewSpenders(chainID int64, extra map[string]string) Spenders {
	known := make(map[common.Address]string, len(universal)+len(extra)+8)
	for a, n := range universal {
		known[a] = n
	}
	if c, ok := registry[chainID]; ok {
		for a, n := range c.routers {
			known[a] = n
		}
	}
	for a, n := range extra {
		if common.IsHexAddress(a) {
			known[common.HexToAddress(a)] = n
		}
	}
	return Spenders{known: known}
}

// Known returns the label of a whitelisted spender.
func (s Spenders) Known(addr common.Address) (string, bool) {
	n, ok := s.known[addr]
	return n, ok
}
