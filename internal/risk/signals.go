package risk

import (
	"fmt"
	"math"
	"strings"
)

// SignalsKey is the AnalyzerResult.Data key under which the four canonical
// analyzers publish their typed signals.
const SignalsKey = "signals"

// Canonical category names and their legacy weights.
const (
	CategoryStructural = "structural"
	CategoryMarket     = "market"
	CategoryBehavioral = "behavioral"
	CategoryHoneypot   = "honeypot"
)

var canonicalWeights = map[string]float64{
	CategoryStructural: 0.40,
	CategoryMarket:     0.25,
	CategoryBehavioral: 0.20,
	CategoryHoneypot:   0.15,
}

var canonicalOrder = []string{CategoryStructural, CategoryMarket, CategoryBehavioral, CategoryHoneypot}

// CanonicalWeight returns the legacy weight of a canonical category (0 if unknown).
func CanonicalWeight(category string) float64 { return canonicalWeights[category] }

// Signals is the normalised record every scoring path reduces to.
type Signals struct {
	Structural StructuralSignals `json:"structural"`
	Market     MarketSignals     `json:"market"`
	Behavioral BehavioralSignals `json:"behavioral"`
	Honeypot   HoneypotSignals   `json:"honeypot"`
}

// StructuralSignals describe the contract itself.
type StructuralSignals struct {
	Present            bool     `json:"-"`
	Verified           bool     `json:"verified"`
	AgeDays            *float64 `json:"age_days"`
	HasMint            bool     `json:"has_mint"`
	HasProxy           bool     `json:"has_proxy"`
	HasPause           bool     `json:"has_pause"`
	HasBlacklist       bool     `json:"has_blacklist"`
	ScamMatches        []string `json:"scam_matches"`
	OwnershipRenounced Tristate `json:"ownership_renounced"`

	// VerificationUnknown suppresses the unverified penalty.
	VerificationUnknown bool `json:"verification_unknown,omitempty"`
}

// MarketSignals describe the most liquid trading pair.
type MarketSignals struct {
	Present            bool     `json:"-"`
	LiquidityUSD       float64  `json:"liquidity_usd"`
	Volume24h          float64  `json:"volume_24h"`
	PriceChange24h     float64  `json:"price_change_24h"`
	FDV                float64  `json:"fdv"`
	PairAgeHours       *float64 `json:"pair_age_hours"`
	WashTradeSuspected bool     `json:"wash_trading"`
}

// BehavioralSignals describe the reputation of the acting wallet.
type BehavioralSignals struct {
	Present          bool     `json:"-"`
	ReputationScore  *float64 `json:"reputation_score"`
	LowReputation    bool     `json:"low_reputation"`
	SevereReputation bool     `json:"severe_reputation"`
	ScamFlags        []string `json:"scam_flags"`
}

// HoneypotSignals describe a buy/sell simulation. Taxes are percentages.
type HoneypotSignals struct {
	Present          bool     `json:"-"`
	IsHoneypot       bool     `json:"is_honeypot"`
	Reason           string   `json:"reason,omitempty"`
	SimulationFailed bool     `json:"simulation_failed"`
	CannotSell       bool     `json:"cannot_sell"`
	BuyTax           *float64 `json:"buy_tax"`
	SellTax          *float64 `json:"sell_tax"`
}

const (
	freshContractDays     = 7
	lowLiquidityUSD       = 10_000
	freshPairHours        = 24
	extremePriceChangePct = 200
	washLiquidityCeiling  = 50_000
	washVolumeMultiple    = 10
	highFDV               = 1_000_000
	negligibleVolumeUSD   = 1_000
)

// RugPattern is the mint + upgradeable + active-owner combination.
func (s StructuralSignals) RugPattern() bool {
	return s.Present && s.HasMint && s.HasProxy && s.OwnershipRenounced == False
}

// WashTrading reports a provider flag or volume far out of line with liquidity.
func (m MarketSignals) WashTrading() bool {
	if !m.Present {
		return false
	}
	return m.WashTradeSuspected ||
		(m.LiquidityUSD < washLiquidityCeiling && m.Volume24h > washVolumeMultiple*m.LiquidityUSD)
}

// FreshPair reports a pair younger than 24 hours. Unknown age is not fresh.
func (m MarketSignals) FreshPair() bool {
	return m.Present && m.PairAgeHours != nil && *m.PairAgeHours < freshPairHours
}

// Confirmed reports a proven honeypot: flagged outright or unsellable.
func (h HoneypotSignals) Confirmed() bool {
	return h.Present && (h.IsHoneypot || h.CannotSell)
}

// ScoreStructural scores contract-level signals.
func ScoreStructural(s StructuralSignals) (float64, []string) {
	if !s.Present {
		return 0, nil
	}
	var score float64
	var flags []string
	add := func(pts float64, flag string) {
		score += pts
		flags = append(flags, flag)
	}

	if !s.Verified && !s.VerificationUnknown {
		add(25, "Contract source not verified")
	}
	if s.AgeDays != nil && *s.AgeDays < freshContractDays {
		add(20, fmt.Sprintf("Contract deployed %.0f days ago", math.Floor(*s.AgeDays)))
	}
	if s.HasMint {
		add(15, "Owner can mint new tokens")
	}
	if s.HasProxy {
		add(15, "Upgradeable proxy contract")
	}
	if s.HasPause {
		add(10, "Owner can pause transfers")
	}
	if s.HasBlacklist {
		add(10, "Contract can blacklist addresses")
	}
	if len(s.ScamMatches) > 0 {
		add(30, "Matches known scam: "+strings.Join(s.ScamMatches, ", "))
	}
	if s.OwnershipRenounced == False {
		add(5, "Ownership not renounced")
	}
	return clampScore(score), flags
}

// ScoreMarket scores liquidity and trading-pattern signals.
func ScoreMarket(m MarketSignals) (float64, []string) {
	if !m.Present {
		return 0, nil
	}
	var score float64
	var flags []string
	add := func(pts float64, flag string) {
		score += pts
		flags = append(flags, flag)
	}

	if m.LiquidityUSD < lowLiquidityUSD {
		add(30, fmt.Sprintf("Low liquidity ($%.0f)", m.LiquidityUSD))
	}
	if m.FreshPair() {
		add(25, "Trading pair created less than 24h ago")
	}
	if math.Abs(m.PriceChange24h) > extremePriceChangePct {
		add(20, fmt.Sprintf("Extreme price movement (%.0f%% in 24h)", m.PriceChange24h))
	}
	if m.WashTrading() {
		add(25, "Possible wash trading")
	}
	if m.FDV > highFDV && m.Volume24h < negligibleVolumeUSD {
		add(20, "High FDV with negligible volume")
	}
	return clampScore(score), flags
}

// ScoreBehavioral scores wallet reputation.
func ScoreBehavioral(b BehavioralSignals) (float64, []string) {
	if !b.Present {
		return 0, nil
	}
	var score float64
	var flags []string

	switch {
	case b.SevereReputation:
		score += 50
		flags = append(flags, "Severe reputation risk")
	case b.LowReputation:
		score += 30
		flags = append(flags, "Low wallet reputation")
	}
	if len(b.ScamFlags) > 0 {
		score += 40
		flags = append(flags, "Reputation flags: "+strings.Join(b.ScamFlags, ", "))
	}
	return clampScore(score), flags
}

// ScoreHoneypot scores buy/sell simulation results.
func ScoreHoneypot(h HoneypotSignals) (float64, []string) {
	if !h.Present {
		return 0, nil
	}
	var score float64
	var flags []string
	add := func(pts float64, flag string) {
		score += pts
		flags = append(flags, flag)
	}

	if h.IsHoneypot {
		msg := "Honeypot detected"
		if h.Reason != "" {
			msg += ": " + h.Reason
		}
		add(80, msg)
	} else if h.SimulationFailed {
		add(40, "Honeypot simulation failed or inconclusive")
	}
	if h.CannotSell {
		add(60, "Token cannot be sold")
	}
	if h.SellTax != nil {
		switch {
		case *h.SellTax > 50:
			add(40, fmt.Sprintf("Extreme sell tax (%.0f%%)", *h.SellTax))
		case *h.SellTax > 20:
			add(20, fmt.Sprintf("High sell tax (%.0f%%)", *h.SellTax))
		}
	}
	if h.BuyTax != nil && *h.BuyTax > 20 {
		add(10, fmt.Sprintf("High buy tax (%.0f%%)", *h.BuyTax))
	}
	return clampScore(score), flags
}

func clampScore(v float64) float64 {
	return math.Min(math.Max(v, 0), 100)
}
