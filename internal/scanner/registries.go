package scanner

import (
	"github.com/ZanzyTHEbar/chain-sentinel/internal/analyzers"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/providers"
)

// Deps are the providers the default analyzer sets draw on. Market,
// Reputation and Simulator may be nil; the analyzers degrade to "no data".
type Deps struct {
	Chains        providers.ChainRouter
	ScamDB        providers.ScamDatabase
	Market        providers.MarketDataProvider
	Reputation    providers.ReputationProvider
	Simulator     providers.Simulator
	ExtraSpenders map[int64]map[string]string
}

// DefaultRegistries builds one registry per scan type:
//
//	token:       structural, market, behavioral, honeypot
//	transaction: structural, intent
//	signature:   signature
//
// Registries normalise weights per run, so each set keeps its relative
// default weights. Transaction and signature scans screen the counterparty,
// so the signer's own reputation is left out; weighting it in would dilute
// a drain signature to a LOW verdict.
func DefaultRegistries(d Deps, opts ...analyzers.RegistryOption) map[ScanType]*analyzers.Registry {
	token := analyzers.NewRegistry(opts...).MustRegister(
		analyzers.NewStructural(analyzers.DefaultStructuralWeight, d.Chains, d.ScamDB),
		analyzers.NewMarket(analyzers.DefaultMarketWeight, d.Market),
		analyzers.NewBehavioral(analyzers.DefaultBehavioralWeight, d.Reputation),
		analyzers.NewHoneypot(analyzers.DefaultHoneypotWeight, d.Chains),
	)

	tx := analyzers.NewRegistry(opts...).MustRegister(
		analyzers.NewStructural(analyzers.DefaultStructuralWeight, d.Chains, d.ScamDB),
		analyzers.NewIntent(analyzers.DefaultIntentWeight, d.Chains, d.ExtraSpenders, d.Simulator),
	)

	sig := analyzers.NewRegistry(opts...).MustRegister(
		analyzers.NewSignature(analyzers.DefaultSignatureWeight, d.ExtraSpenders),
	)

	return map[ScanType]*analyzers.Registry{
		ScanToken:       token,
		ScanTransaction: tx,
		ScanSignature:   sig,
	}
}

// WithRegistries installs every registry in m.
func WithRegistries(m map[ScanType]*analyzers.Registry) Option {
	return func(s *Service) {
		for t, r := range m {
			s.registries[t] = r
		}
	}
}
