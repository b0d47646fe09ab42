// Package evm implements providers.ChainDataProvider for any EVM chain. One
// adapter type serves every chain; per-chain differences come from the
// chains table and configuration.
package evm

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/ZanzyTHEbar/chain-sentinel/internal/bytecode"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/chains"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/providers"
)

// EthClient is the subset of ethclient.Client the adapter uses.
type EthClient interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

// HoneypotChecker simulates buys and sells of a token.
type HoneypotChecker interface {
	Check(ctx context.Context, chainID int64, token string) (providers.HoneypotInfo, error)
}

var (
	ownerSelector = common.FromHex("0x8da5cb5b")
	deadAddress   = common.HexToAddress("0x000000000000000000000000000000000000dEaD")
)

// Adapter answers contract questions for one chain.
type Adapter struct {
	chain    chains.Chain
	eth      EthClient
	explorer *Explorer
	honeypot HoneypotChecker
	now      func() time.Time
}

// NewAdapter wires an adapter. explorer and honeypot may be nil.
func NewAdapter(chain chains.Chain, eth EthClient, explorer *Explorer, honeypot HoneypotChecker) *Adapter {
	return &Adapter{chain: chain, eth: eth, explorer: explorer, honeypot: honeypot, now: time.Now}
}

// Dial connects to rpcURL and builds an adapter.
func Dial(ctx context.Context, chain chains.Chain, rpcURL string, explorer *Explorer, honeypot HoneypotChecker) (*Adapter, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s rpc: %w", chain.Name, err)
	}
	return NewAdapter(chain, client, explorer, honeypot), nil
}

// Chain returns the chain this adapter serves.
func (a *Adapter) Chain() chains.Chain { return a.chain }

// Close releases the RPC connection.
func (a *Adapter) Close() { a.eth.Close() }

// IsContract reports whether address has deployed code.
func (a *Adapter) IsContract(ctx context.Context, address string) (bool, error) {
	if !common.IsHexAddress(address) {
		return false, fmt.Errorf("invalid address %q", address)
	}
	code, err := a.eth.CodeAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return false, fmt.Errorf("%s: code at %s: %w", a.chain.Name, address, err)
	}
	return len(code) > 0, nil
}

// ContractInfo combines bytecode markers, the owner() slot, and explorer
// verification data.
func (a *Adapter) ContractInfo(ctx context.Context, address string) (providers.ContractInfo, error) {
	if !common.IsHexAddress(address) {
		return providers.ContractInfo{}, fmt.Errorf("invalid address %q", address)
	}
	addr := common.HexToAddress(address)
	info := providers.ContractInfo{Address: addr.Hex()}

	code, err := a.eth.CodeAt(ctx, addr, nil)
	if err != nil {
		return providers.ContractInfo{}, fmt.Errorf("%s: code at %s: %w", a.chain.Name, address, err)
	}
	features := bytecode.Scan(code)
	if !features.HasCode {
		return info, nil
	}

	info.Exists = true
	info.CodeHash = features.CodeHash
	info.HasMint = features.HasMint
	info.HasProxy = features.HasProxy
	info.HasPause = features.HasPause
	info.HasBlacklist = features.HasBlacklist
	info.IsToken = features.IsToken()
	info.TokenType = string(features.TokenType)
	info.OwnershipRenounced = a.ownershipRenounced(ctx, addr)

	if a.explorer == nil {
		info.VerificationUnknown = true
		return info, nil
	}

	src, err := a.explorer.Source(ctx, addr.Hex())
	if err != nil {
		return providers.ContractInfo{}, err
	}
	info.Verified = src.Verified
	info.ContractName = src.ContractName
	info.HasProxy = info.HasProxy || src.IsProxy

	created, err := a.explorer.CreatedAt(ctx, addr.Hex())
	switch {
	case err == nil:
		info.CreatedAt = &created
	case isNotFound(err):
	default:
		// age is optional; a failed lookup leaves it unknown
		slog.Debug("Contract creation lookup failed", "chain", a.chain.Name, "address", addr.Hex(), "error", err)
	}

	return info, nil
}

// ownershipRenounced calls owner(). Any failure leaves the answer unknown.
func (a *Adapter) ownershipRenounced(ctx context.Context, addr common.Address) *bool {
	out, err := a.eth.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: ownerSelector}, nil)
	if err != nil || len(out) != 32 {
		return nil
	}
	owner := common.BytesToAddress(out[12:])
	renounced := owner == (common.Address{}) || owner == deadAddress
	return &renounced
}

// HoneypotInfo delegates to the configured simulator. Without one it reports
// ErrNotFound so the analyzer degrades to "no data".
func (a *Adapter) HoneypotInfo(ctx context.Context, address string) (providers.HoneypotInfo, error) {
	if a.honeypot == nil {
		return providers.HoneypotInfo{}, providers.ErrNotFound
	}
	return a.honeypot.Check(ctx, a.chain.ID, address)
}
