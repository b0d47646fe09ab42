// Package scanner turns API requests into verdicts: it builds the analysis
// context, runs the registry for the scan type, scores, applies policy, and
// records the outcome.
package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ZanzyTHEbar/chain-sentinel/internal/analyzers"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/audit"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/cache"
	apperrors "github.com/ZanzyTHEbar/chain-sentinel/internal/errors"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/monitoring"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/policy"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/risk"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/types"
)

// ScanType selects the analyzer set.
type ScanType string

const (
	ScanToken       ScanType = "token"
	ScanTransaction ScanType = "transaction"
	ScanSignature   ScanType = "signature"
)

// Decision is what a wallet should do with the verdict.
type Decision string

const (
	Allow Decision = "ALLOW"
	Warn  Decision = "WARN"
	Block Decision = "BLOCK"
)

// Classify maps a verdict to a decision. A strict-policy override always blocks.
func Classify(out risk.RiskOutput) Decision {
	if out.PolicyOverride == policy.BlockRecommended {
		return Block
	}
	switch out.RiskLevel {
	case risk.RiskHigh:
		return Block
	case risk.RiskMedium:
		return Warn
	}
	return Allow
}

// Verdict is the service's answer for one scan.
type Verdict struct {
	ScanID   string   `json:"scan_id"`
	ScanType ScanType `json:"scan_type"`
	ChainID  int64    `json:"chain_id"`
	Target   string   `json:"target"`
	Decision Decision `json:"decision"`
	risk.RiskOutput
	Analyzers  []risk.AnalyzerResult `json:"analyzers"`
	Cached     bool                  `json:"cached"`
	DurationMS int64                 `json:"duration_ms"`
}

// Metrics is the subset of monitoring.Metrics the service reports to.
type Metrics interface {
	ObserveScan(scanType, level, decision string, d time.Duration)
	IncrementPolicyOverride(mode string)
}

// Service runs scans. It is safe for concurrent use.
type Service struct {
	registries map[ScanType]*analyzers.Registry
	engine     atomic.Pointer[risk.Engine]
	policy     *policy.Engine
	cache      *cache.Cache[Verdict]
	audit      audit.Recorder
	metrics    Metrics
	logger     *monitoring.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithRegistry installs the analyzer set for a scan type.
func WithRegistry(t ScanType, r *analyzers.Registry) Option {
	return func(s *Service) { s.registries[t] = r }
}

// WithCache caches token verdicts.
func WithCache(c *cache.Cache[Verdict]) Option {
	return func(s *Service) { s.cache = c }
}

// WithAudit records every verdict.
func WithAudit(r audit.Recorder) Option {
	return func(s *Service) { s.audit = r }
}

// WithMetrics reports scans and overrides.
func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger replaces the default logger.
func WithLogger(l *monitoring.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a service.
func New(engine *risk.Engine, pol *policy.Engine, opts ...Option) *Service {
	s := &Service{
		registries: make(map[ScanType]*analyzers.Registry),
		policy:     pol,
		audit:      audit.Nop,
		logger:     monitoring.NewLogger(),
	}
	s.engine.Store(engine)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetEngine swaps the scoring engine, e.g. after recalibration. Cached
// verdicts are dropped because their levels may no longer hold.
func (s *Service) SetEngine(e *risk.Engine) {
	s.engine.Store(e)
	if s.cache != nil {
		s.cache.Clear()
	}
}

// Engine returns the active scoring engine.
func (s *Service) Engine() *risk.Engine { return s.engine.Load() }

// PolicyMode returns the configured degraded-source policy.
func (s *Service) PolicyMode() policy.Mode { return s.policy.Mode() }

// ScanToken scores a token contract. Results are cached per chain and address.
func (s *Service) ScanToken(ctx context.Context, req types.TokenScanRequest) (Verdict, error) {
	if !common.IsHexAddress(req.Address) {
		return Verdict{}, apperrors.NewValidationError("address must be a 20-byte hex address", "address")
	}
	actx := risk.NewAnalysisContext(req.Address, req.ChainID, "", nil)

	key := cache.Key(string(ScanToken), actx.ChainID, actx.Target)
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			v.RiskOutput = v.RiskOutput.Clone()
			v.Analyzers = append([]risk.AnalyzerResult(nil), v.Analyzers...)
			v.Cached = true
			v.DurationMS = 0
			s.logger.WithContext(ctx).ScanLogger(string(ScanToken), actx.Target, actx.ChainID, v.Probability,
				string(v.RiskLevel), string(v.Decision), 0, true)
			return v, nil
		}
	}

	v, err := s.run(ctx, ScanToken, actx)
	if err != nil {
		return Verdict{}, err
	}
	// degraded verdicts are not cached so a recovered provider is retried
	if s.cache != nil && !v.HasFailures {
		s.cache.Set(key, v)
	}
	return v, nil
}

// ScanTransaction scores an outgoing transaction before it is signed.
func (s *Service) ScanTransaction(ctx context.Context, req types.TransactionScanRequest) (Verdict, error) {
	if !common.IsHexAddress(req.To) {
		return Verdict{}, apperrors.NewValidationError("to must be a 20-byte hex address", "to")
	}
	if req.From != "" && !common.IsHexAddress(req.From) {
		return Verdict{}, apperrors.NewValidationError("from must be a 20-byte hex address", "from")
	}

	extra := map[string]any{}
	if req.Data != "" {
		extra[analyzers.ExtraData] = req.Data
	}
	if req.Value != "" {
		extra[analyzers.ExtraValue] = req.Value
	}
	if req.FunctionName != "" {
		extra[analyzers.ExtraFunctionName] = req.FunctionName
	}

	actx := risk.NewAnalysisContext(req.To, req.ChainID, req.From, extra)
	return s.run(ctx, ScanTransaction, actx)
}

// ScanSignature scores an EIP-712 payload. The verifying contract is the
// target when present, otherwise the signer.
func (s *Service) ScanSignature(ctx context.Context, req types.SignatureScanRequest) (Verdict, error) {
	if len(req.TypedData) == 0 {
		return Verdict{}, apperrors.NewValidationError("typed_data is required", "typed_data")
	}
	if req.From != "" && !common.IsHexAddress(req.From) {
		return Verdict{}, apperrors.NewValidationError("from must be a 20-byte hex address", "from")
	}

	target := verifyingContract(req.TypedData)
	if target == "" {
		target = req.From
	}

	extra := map[string]any{analyzers.ExtraTypedData: req.TypedData}
	if req.SignMethod != "" {
		extra[analyzers.ExtraSignMethod] = req.SignMethod
	}
	actx := risk.NewAnalysisContext(target, req.ChainID, req.From, extra)
	return s.run(ctx, ScanSignature, actx)
}

func (s *Service) run(ctx context.Context, scanType ScanType, actx risk.AnalysisContext) (Verdict, error) {
	reg, ok := s.registries[scanType]
	if !ok {
		return Verdict{}, apperrors.NewConfigurationError("no analyzers configured for "+string(scanType)+" scans", nil)
	}

	start := time.Now()
	results, err := reg.Run(ctx, actx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return Verdict{}, apperrors.NewTimeoutError("scan did not finish in time", err)
		}
		return Verdict{}, apperrors.NewInternalError("scan failed", err)
	}

	out := s.engine.Load().ComputeFromResults(results)
	out = s.policy.Apply(results, out)
	decision := Classify(out)
	elapsed := time.Since(start)

	if out.HasFailures {
		s.logger.PolicyLogger(out.PolicyMode, out.PolicyOverride, out.FailedAnalyzers)
	}
	if s.metrics != nil {
		s.metrics.ObserveScan(string(scanType), string(out.RiskLevel), string(decision), elapsed)
		if out.PolicyOverride != "" {
			s.metrics.IncrementPolicyOverride(out.PolicyMode)
		}
	}
	s.logger.WithContext(ctx).ScanLogger(string(scanType), actx.Target, actx.ChainID, out.Probability,
		string(out.RiskLevel), string(decision), elapsed, false)

	entry := audit.NewEntry(string(scanType), actx, out, string(decision))
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Logger.Warn("Audit record failed", "scan_id", entry.ID, "error", err)
	}

	return Verdict{
		ScanID:     entry.ID,
		ScanType:   scanType,
		ChainID:    actx.ChainID,
		Target:     actx.Target,
		Decision:   decision,
		RiskOutput: out,
		Analyzers:  results,
		DurationMS: elapsed.Milliseconds(),
	}, nil
}

func verifyingContract(raw json.RawMessage) string {
	var envelope struct {
		Domain struct {
			VerifyingContract string `json:"verifyingContract"`
		} `json:"domain"`
	}
	// a JSON string holding the payload is also accepted by the analyzer
	var inner string
	if json.Unmarshal(raw, &inner) == nil {
		raw = json.RawMessage(inner)
	}
	if json.Unmarshal(raw, &envelope) != nil {
		return ""
	}
	vc := strings.TrimSpace(envelope.Domain.VerifyingContract)
	if !common.IsHexAddress(vc) {
		return ""
	}
	return vc
}
