// Package providers defines the external data capabilities analyzers depend
// on. Concrete clients live in the sub-packages.
package providers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrNotFound means the provider has no record for the subject. Analyzers
// treat it as "no data", not as a failure.
var ErrNotFound = errors.New("not found")

// ContractInfo is what the chain adapter knows about a deployed address.
type ContractInfo struct {
	Address      string     `json:"address"`
	Exists       bool       `json:"exists"`
	Verified     bool       `json:"verified"`
	ContractName string     `json:"contract_name,omitempty"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	CodeHash     string     `json:"code_hash,omitempty"`
	HasMint      bool       `json:"has_mint"`
	HasProxy     bool       `json:"has_proxy"`
	HasPause     bool       `json:"has_pause"`
	HasBlacklist bool       `json:"has_blacklist"`
	IsToken      bool       `json:"is_token"`
	TokenType    string     `json:"token_type,omitempty"`
	// OwnershipRenounced is nil when the owner could not be determined.
	OwnershipRenounced *bool `json:"ownership_renounced"`

	// VerificationUnknown is set when no explorer serves the chain.
	VerificationUnknown bool `json:"verification_unknown,omitempty"`
}

// AgeDays returns the contract age, or nil when the creation time is unknown.
func (c ContractInfo) AgeDays(now time.Time) *float64 {
	if c.CreatedAt == nil {
		return nil
	}
	d := now.Sub(*c.CreatedAt).Hours() / 24
	if d < 0 {
		d = 0
	}
	return &d
}

// HoneypotInfo is the result of a buy/sell simulation. Taxes are percentages.
type HoneypotInfo struct {
	Simulated  bool     `json:"simulated"`
	IsHoneypot bool     `json:"is_honeypot"`
	Reason     string   `json:"reason,omitempty"`
	CannotSell bool     `json:"cannot_sell"`
	BuyTax     *float64 `json:"buy_tax,omitempty"`
	SellTax    *float64 `json:"sell_tax,omitempty"`
}

// MarketData describes the deepest trading pair of a token.
type MarketData struct {
	PairAddress        string     `json:"pair_address"`
	DEX                string     `json:"dex"`
	LiquidityUSD       float64    `json:"liquidity_usd"`
	Volume24h          float64    `json:"volume_24h"`
	PriceChange24h     float64    `json:"price_change_24h"`
	FDV                float64    `json:"fdv"`
	PairCreatedAt      *time.Time `json:"pair_created_at,omitempty"`
	WashTradeSuspected bool       `json:"wash_trade_suspected"`
}

// PairAgeHours returns the pair age, or nil when unknown.
func (m MarketData) PairAgeHours(now time.Time) *float64 {
	if m.PairCreatedAt == nil {
		return nil
	}
	h := now.Sub(*m.PairCreatedAt).Hours()
	if h < 0 {
		h = 0
	}
	return &h
}

// Reputation is a wallet's standing with the reputation service.
type Reputation struct {
	Address   string   `json:"address"`
	Score     float64  `json:"score"`
	Tier      string   `json:"tier,omitempty"`
	Low       bool     `json:"low"`
	Severe    bool     `json:"severe"`
	ScamFlags []string `json:"scam_flags,omitempty"`
}

// SimulationRequest describes a transaction to dry-run.
type SimulationRequest struct {
	ChainID int64  `json:"chain_id"`
	From    string `json:"from"`
	To      string `json:"to"`
	Value   string `json:"value,omitempty"`
	Data    string `json:"data,omitempty"`
}

// SimulationResult summarises a dry-run.
type SimulationResult struct {
	Success      bool          `json:"success"`
	RevertReason string        `json:"revert_reason,omitempty"`
	Warnings     []string      `json:"warnings,omitempty"`
	AssetChanges []AssetChange `json:"asset_changes,omitempty"`
}

// AssetChange is one balance movement predicted by a simulation.
type AssetChange struct {
	Asset     string `json:"asset"`
	Direction string `json:"direction"`
	Amount    string `json:"amount"`
}

// ChainDataProvider answers contract-level questions for one chain.
type ChainDataProvider interface {
	ContractInfo(ctx context.Context, address string) (ContractInfo, error)
	HoneypotInfo(ctx context.Context, address string) (HoneypotInfo, error)
	IsContract(ctx context.Context, address string) (bool, error)
}

// ChainRouter resolves the provider for a chain. ok=false is the explicit
// "provider absent" signal for unsupported chains.
type ChainRouter interface {
	ForChain(chainID int64) (ChainDataProvider, bool)
}

// MarketDataProvider returns DEX data; ErrNotFound when the token has no pairs.
type MarketDataProvider interface {
	MarketData(ctx context.Context, chainID int64, token string) (MarketData, error)
}

// ReputationProvider returns wallet reputation; ErrNotFound when unknown.
type ReputationProvider interface {
	WalletReputation(ctx context.Context, chainID int64, address string) (Reputation, error)
}

// Simulator dry-runs transactions. It is optional everywhere it is used.
type Simulator interface {
	Simulate(ctx context.Context, req SimulationRequest) (SimulationResult, error)
}

// ScamDatabase matches addresses and code hashes against known scams.
type ScamDatabase interface {
	Lookup(ctx context.Context, chainID int64, address, codeHash string) ([]string, error)
}

// Router is a ChainRouter backed by a static map.
type Router struct {
	mu        sync.RWMutex
	providers map[int64]ChainDataProvider
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{providers: make(map[int64]ChainDataProvider)}
}

// Register binds p to chainID.
func (r *Router) Register(chainID int64, p ChainDataProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[chainID] = p
}

// ForChain implements ChainRouter.
func (r *Router) ForChain(chainID int64) (ChainDataProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[chainID]
	return p, ok
}

// StaticScamDB is an in-memory ScamDatabase loaded from configuration.
type StaticScamDB struct {
	addresses  map[string]string
	codeHashes map[string]string
}

// NewStaticScamDB builds the database from label maps keyed by address and
// by code hash. Keys are compared case-insensitively.
func NewStaticScamDB(addresses, codeHashes map[string]string) *StaticScamDB {
	db := &StaticScamDB{
		addresses:  make(map[string]string, len(addresses)),
		codeHashes: make(map[string]string, len(codeHashes)),
	}
	for k, v := range addresses {
		db.addresses[strings.ToLower(k)] = v
	}
	for k, v := range codeHashes {
		db.codeHashes[strings.ToLower(k)] = v
	}
	return db
}

// Lookup implements ScamDatabase.
func (db *StaticScamDB) Lookup(_ context.Context, _ int64, address, codeHash string) ([]string, error) {
	var matches []string
	if label, ok := db.addresses[strings.ToLower(address)]; ok {
		matches = append(matches, label)
	}
	if codeHash != "" {
		if label, ok := db.codeHashes[strings.ToLower(codeHash)]; ok {
			matches = append(matches, label)
		}
	}
	return matches, nil
}
