package risk

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/ZanzyTHEbar/chain-sentinel/internal/calibration"
)

// EscalationPolicy holds the override constants applied after weighted blending.
type EscalationPolicy struct {
	RugFloor              float64 `yaml:"rug_floor" json:"rug_floor"`
	HoneypotFloor         float64 `yaml:"honeypot_floor" json:"honeypot_floor"`
	SevereFreshBoost      float64 `yaml:"severe_fresh_boost" json:"severe_fresh_boost"`
	RenouncedRelief       float64 `yaml:"renounced_relief" json:"renounced_relief"`
	RenouncedLiquidityUSD float64 `yaml:"renounced_liquidity_usd" json:"renounced_liquidity_usd"`
}

// DefaultEscalationPolicy returns the stock escalation constants.
func DefaultEscalationPolicy() EscalationPolicy {
	return EscalationPolicy{
		RugFloor:              85,
		HoneypotFloor:         80,
		SevereFreshBoost:      15,
		RenouncedRelief:       20,
		RenouncedLiquidityUSD: 100_000,
	}
}

// confidence group weights; they sum to 100
const (
	confidenceContract   = 30
	confidenceHoneypot   = 25
	confidenceMarket     = 25
	confidenceBehavioral = 20
)

// Engine blends analyzer output into a RiskOutput. It holds only immutable
// configuration and is safe for concurrent use.
type Engine struct {
	cal calibration.Config
	esc EscalationPolicy
}

// Option configures an Engine.
type Option func(*Engine)

// WithEscalation overrides the escalation constants.
func WithEscalation(p EscalationPolicy) Option {
	return func(e *Engine) { e.esc = p }
}

// NewEngine snapshots cal so later changes by the caller are not observed.
func NewEngine(cal calibration.Config, opts ...Option) *Engine {
	e := &Engine{cal: cal.Clone(), esc: DefaultEscalationPolicy()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Calibration returns a copy of the engine's calibration snapshot.
func (e *Engine) Calibration() calibration.Config { return e.cal.Clone() }

type weightedScore struct {
	name   string
	score  float64
	weight float64
}

// ComputeFromResults scores a registry run. Category scores are the analyzers'
// own scores; the composite uses each result's (normalised) weight. Failed
// results count as zero and contribute no flags or signals.
func (e *Engine) ComputeFromResults(results []AnalyzerResult) RiskOutput {
	var sig Signals
	var flags []string
	cats := make([]weightedScore, 0, len(results))

	for _, r := range results {
		score := r.Score
		if r.Failed() {
			score = 0
		}
		cats = append(cats, weightedScore{name: r.Name, score: clampScore(score), weight: r.Weight})
		if r.Failed() {
			continue
		}
		flags = append(flags, r.Flags...)

		switch s := r.Data[SignalsKey].(type) {
		case StructuralSignals:
			sig.Structural = s
		case MarketSignals:
			sig.Market = s
		case BehavioralSignals:
			sig.Behavioral = s
		case HoneypotSignals:
			sig.Honeypot = s
		}
	}

	return e.score(sig, cats, flags)
}

// ComputeFromSignals scores a normalised record with the canonical category
// weights (0.40 structural, 0.25 market, 0.20 behavioral, 0.15 honeypot).
func (e *Engine) ComputeFromSignals(sig Signals) RiskOutput {
	var flags []string
	cats := make([]weightedScore, 0, len(canonicalOrder))

	for _, name := range canonicalOrder {
		var score float64
		var f []string
		switch name {
		case CategoryStructural:
			score, f = ScoreStructural(sig.Structural)
		case CategoryMarket:
			score, f = ScoreMarket(sig.Market)
		case CategoryBehavioral:
			score, f = ScoreBehavioral(sig.Behavioral)
		case CategoryHoneypot:
			score, f = ScoreHoneypot(sig.Honeypot)
		}
		cats = append(cats, weightedScore{name: name, score: score, weight: canonicalWeights[name]})
		flags = append(flags, f...)
	}

	return e.score(sig, cats, flags)
}

// ComputeComposite is the raw-dictionary entry point kept for callers that
// hold provider payloads directly. A nil map means the category has no data.
func (e *Engine) ComputeComposite(structural, honeypot, market, behavioral map[string]any) (RiskOutput, error) {
	sig, err := SignalsFromRaw(structural, honeypot, market, behavioral)
	if err != nil {
		return RiskOutput{}, err
	}
	return e.ComputeFromSignals(sig), nil
}

// SignalsFromRaw decodes provider-shaped dictionaries into Signals using the
// JSON field names of the signal structs.
func SignalsFromRaw(structural, honeypot, market, behavioral map[string]any) (Signals, error) {
	var sig Signals
	if structural != nil {
		if err := decodeRaw(structural, &sig.Structural); err != nil {
			return Signals{}, fmt.Errorf("structural: %w", err)
		}
		sig.Structural.Present = true
	}
	if honeypot != nil {
		if err := decodeRaw(honeypot, &sig.Honeypot); err != nil {
			return Signals{}, fmt.Errorf("honeypot: %w", err)
		}
		sig.Honeypot.Present = true
	}
	if market != nil {
		if err := decodeRaw(market, &sig.Market); err != nil {
			return Signals{}, fmt.Errorf("market: %w", err)
		}
		sig.Market.Present = true
	}
	if behavioral != nil {
		if err := decodeRaw(behavioral, &sig.Behavioral); err != nil {
			return Signals{}, fmt.Errorf("behavioral: %w", err)
		}
		sig.Behavioral.Present = true
	}
	return sig, nil
}

func decodeRaw(m map[string]any, dst any) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

// score is the single canonical scoring routine both entry points share.
func (e *Engine) score(sig Signals, cats []weightedScore, flags []string) RiskOutput {
	weights := e.effectiveWeights(cats)

	categoryScores := make(map[string]float64, len(cats))
	var composite float64
	for i, c := range cats {
		categoryScores[c.name] = round1(c.score)
		composite += c.score * weights[i]
	}

	var escalation []string
	floor := 0.0
	if sig.Structural.RugPattern() {
		floor = math.Max(floor, e.esc.RugFloor)
		escalation = append(escalation, "Rug-pull pattern: mintable upgradeable contract with active owner")
	}
	if sig.Honeypot.Confirmed() {
		floor = math.Max(floor, e.esc.HoneypotFloor)
	}
	composite = math.Max(composite, floor)

	if sig.Behavioral.Present && sig.Behavioral.SevereReputation && sig.Market.FreshPair() {
		composite = math.Min(composite+e.esc.SevereFreshBoost, 100)
		escalation = append(escalation, "Severe reputation on a pair younger than 24h")
	}
	if sig.Structural.Present && sig.Structural.OwnershipRenounced == True &&
		sig.Market.Present && sig.Market.LiquidityUSD > e.esc.RenouncedLiquidityUSD {
		// relief never undercuts an active floor
		composite = math.Max(math.Max(composite-e.esc.RenouncedRelief, floor), 0)
	}

	probability := round1(clampScore(composite))

	return RiskOutput{
		Probability:    probability,
		RiskLevel:      e.Level(probability),
		Archetype:      e.archetype(sig, probability),
		CriticalFlags:  dedupe(append(escalation, flags...)),
		Confidence:     e.confidence(sig),
		CategoryScores: categoryScores,
	}
}

// effectiveWeights applies calibration overrides by name and renormalises to
// sum 1 when the total is non-zero.
func (e *Engine) effectiveWeights(cats []weightedScore) []float64 {
	weights := make([]float64, len(cats))
	var total float64
	for i, c := range cats {
		w := c.weight
		if o, ok := e.cal.WeightOverrides[c.name]; ok {
			w = o
		}
		weights[i] = w
		total += w
	}
	if total > 0 && math.Abs(total-1) > 1e-9 {
		for i := range weights {
			weights[i] /= total
		}
	}
	return weights
}

// Level maps a probability onto the calibrated thresholds.
func (e *Engine) Level(probability float64) RiskLevel {
	switch {
	case probability >= e.cal.HighThreshold:
		return RiskHigh
	case probability >= e.cal.MediumThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

func (e *Engine) archetype(sig Signals, probability float64) Archetype {
	switch {
	case sig.Honeypot.Confirmed():
		return ArchetypeHoneypot
	case sig.Market.WashTrading():
		return ArchetypeWashTraded
	case sig.Structural.RugPattern():
		return ArchetypeRugPull
	case probability >= e.cal.HighThreshold:
		return ArchetypeHighRiskContract
	default:
		return ArchetypeLegitimate
	}
}

// confidence measures data completeness. With no evidence at all it stays 0
// regardless of any calibration boost.
func (e *Engine) confidence(sig Signals) float64 {
	var c float64
	if sig.Structural.Present {
		c += confidenceContract
	}
	if sig.Honeypot.Present {
		c += confidenceHoneypot
	}
	if sig.Market.Present && (sig.Market.LiquidityUSD > 0 || sig.Market.PairAgeHours != nil) {
		c += confidenceMarket
	}
	if sig.Behavioral.Present && sig.Behavioral.ReputationScore != nil {
		c += confidenceBehavioral
	}
	if c == 0 {
		return 0
	}
	return math.Min(math.Round(c+e.cal.ConfidenceBoost), 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func dedupe(flags []string) []string {
	out := make([]string, 0, len(flags))
	seen := make(map[string]struct{}, len(flags))
	for _, f := range flags {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
