package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/chain-sentinel/internal/analyzers"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/audit"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/cache"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/calibration"
	apperrors "github.com/ZanzyTHEbar/chain-sentinel/internal/errors"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/policy"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/risk"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/types"
)

const tokenAddr = "0xdAC17F958D2ee523a2206206994597C13D831ec7"

type stubAnalyzer struct {
	name   string
	weight float64
	score  float64
	err    error
	calls  atomic.Int32
	seen   chan risk.AnalysisContext
}

func (s *stubAnalyzer) Name() string    { return s.name }
func (s *stubAnalyzer) Weight() float64 { return s.weight }

func (s *stubAnalyzer) Analyze(_ context.Context, actx risk.AnalysisContext) (risk.AnalyzerResult, error) {
	s.calls.Add(1)
	if s.seen != nil {
		s.seen <- actx
	}
	if s.err != nil {
		return risk.AnalyzerResult{}, s.err
	}
	return risk.AnalyzerResult{Name: s.name, Weight: s.weight, Score: s.score}, nil
}

type recordedMetrics struct {
	mu        sync.Mutex
	scans     []string
	overrides []string
}

func (m *recordedMetrics) ObserveScan(scanType, level, decision string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans = append(m.scans, scanType+"/"+level+"/"+decision)
}

func (m *recordedMetrics) IncrementPolicyOverride(mode string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides = append(m.overrides, mode)
}

func newService(t *testing.T, mode policy.Mode, as map[ScanType][]analyzers.Analyzer, opts ...Option) *Service {
	t.Helper()
	for st, list := range as {
		opts = append(opts, WithRegistry(st, analyzers.NewRegistry().MustRegister(list...)))
	}
	return New(risk.NewEngine(calibration.DefaultConfig()), policy.NewEngine(mode), opts...)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		out  risk.RiskOutput
		want Decision
	}{
		{"low", risk.RiskOutput{RiskLevel: risk.RiskLow}, Allow},
		{"medium", risk.RiskOutput{RiskLevel: risk.RiskMedium}, Warn},
		{"high", risk.RiskOutput{RiskLevel: risk.RiskHigh}, Block},
		{"override", risk.RiskOutput{RiskLevel: risk.RiskLow, PolicyOverride: policy.BlockRecommended}, Block},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.out))
		})
	}
}

func TestScanTokenCachesCleanVerdicts(t *testing.T) {
	a := &stubAnalyzer{name: risk.CategoryStructural, weight: 1, score: 10}
	c := cache.NewCache[Verdict](time.Minute)
	defer c.Close()

	svc := newService(t, policy.Balanced, map[ScanType][]analyzers.Analyzer{ScanToken: {a}}, WithCache(c))

	first, err := svc.ScanToken(context.Background(), types.TokenScanRequest{Address: tokenAddr})
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, int64(risk.DefaultChainID), first.ChainID)
	assert.NotEmpty(t, first.ScanID)

	second, err := svc.ScanToken(context.Background(), types.TokenScanRequest{Address: tokenAddr})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.ScanID, second.ScanID)
	assert.Equal(t, first.Probability, second.Probability)
	assert.Equal(t, int32(1), a.calls.Load())

	// mutating a hit must not leak into the cache
	second.CriticalFlags = append(second.CriticalFlags, "tampered")
	third, err := svc.ScanToken(context.Background(), types.TokenScanRequest{Address: tokenAddr})
	require.NoError(t, err)
	assert.NotContains(t, third.CriticalFlags, "tampered")
}

func TestScanTokenDoesNotCacheDegradedVerdicts(t *testing.T) {
	ok := &stubAnalyzer{name: risk.CategoryStructural, weight: 0.5, score: 10}
	bad := &stubAnalyzer{name: risk.CategoryMarket, weight: 0.5, err: errors.New("dex down")}
	c := cache.NewCache[Verdict](time.Minute)
	defer c.Close()

	svc := newService(t, policy.Balanced, map[ScanType][]analyzers.Analyzer{ScanToken: {ok, bad}}, WithCache(c))

	for i := 0; i < 2; i++ {
		v, err := svc.ScanToken(context.Background(), types.TokenScanRequest{Address: tokenAddr})
		require.NoError(t, err)
		assert.False(t, v.Cached)
		assert.True(t, v.HasFailures)
		assert.Equal(t, []string{risk.CategoryMarket}, v.FailedAnalyzers)
	}
	assert.Equal(t, int32(2), ok.calls.Load())
	assert.Zero(t, c.Size())
}

func TestSetEngineClearsCache(t *testing.T) {
	a := &stubAnalyzer{name: risk.CategoryStructural, weight: 1, score: 10}
	c := cache.NewCache[Verdict](time.Minute)
	defer c.Close()

	svc := newService(t, policy.Balanced, map[ScanType][]analyzers.Analyzer{ScanToken: {a}}, WithCache(c))
	_, err := svc.ScanToken(context.Background(), types.TokenScanRequest{Address: tokenAddr})
	require.NoError(t, err)
	require.Equal(t, 1, c.Size())

	next := risk.NewEngine(calibration.Config{HighThreshold: 50, MediumThreshold: 5})
	svc.SetEngine(next)
	assert.Same(t, next, svc.Engine())
	assert.Zero(t, c.Size())
}

func TestStrictPolicyBlocksOnFailure(t *testing.T) {
	bad := &stubAnalyzer{name: analyzers.NameIntent, weight: 1, err: errors.New("rpc down")}
	m := &recordedMetrics{}

	svc := newService(t, policy.Strict, map[ScanType][]analyzers.Analyzer{ScanTransaction: {bad}}, WithMetrics(m))
	v, err := svc.ScanTransaction(context.Background(), types.TransactionScanRequest{To: tokenAddr, Data: "0x"})
	require.NoError(t, err)

	assert.Equal(t, Block, v.Decision)
	assert.Equal(t, policy.BlockRecommended, v.PolicyOverride)
	assert.GreaterOrEqual(t, v.Probability, 80.0)
	assert.Equal(t, []string{"STRICT"}, m.overrides)
	require.Len(t, m.scans, 1)
	assert.Equal(t, "transaction/HIGH/BLOCK", m.scans[0])
}

func TestScanRecordsAudit(t *testing.T) {
	var (
		mu      sync.Mutex
		entries []audit.Entry
	)
	rec := audit.RecorderFunc(func(_ context.Context, e audit.Entry) error {
		mu.Lock()
		defer mu.Unlock()
		entries = append(entries, e)
		return nil
	})

	a := &stubAnalyzer{name: risk.CategoryStructural, weight: 1, score: 10}
	svc := newService(t, policy.Balanced, map[ScanType][]analyzers.Analyzer{ScanToken: {a}}, WithAudit(rec))

	v, err := svc.ScanToken(context.Background(), types.TokenScanRequest{ChainID: 56, Address: tokenAddr})
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.Equal(t, v.ScanID, entries[0].ID)
	assert.Equal(t, "token", entries[0].ScanType)
	assert.Equal(t, int64(56), entries[0].ChainID)
	assert.Equal(t, string(v.Decision), entries[0].Decision)
}

func TestAuditFailureDoesNotFailScan(t *testing.T) {
	rec := audit.RecorderFunc(func(context.Context, audit.Entry) error { return errors.New("disk full") })
	a := &stubAnalyzer{name: risk.CategoryStructural, weight: 1, score: 10}
	svc := newService(t, policy.Balanced, map[ScanType][]analyzers.Analyzer{ScanToken: {a}}, WithAudit(rec))

	_, err := svc.ScanToken(context.Background(), types.TokenScanRequest{Address: tokenAddr})
	assert.NoError(t, err)
}

func TestScanSignatureTarget(t *testing.T) {
	const signer = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	const verifying = "0x000000000022D473030F116dDEE9F6B43aC78BA3"

	tests := []struct {
		name      string
		typedData string
		want      string
	}{
		{"verifying contract", `{"domain":{"verifyingContract":"` + verifying + `"}}`, verifying},
		{"string encoded", `"{\"domain\":{\"verifyingContract\":\"` + verifying + `\"}}"`, verifying},
		{"no domain contract", `{"domain":{"name":"x"}}`, signer},
		{"bad verifying contract", `{"domain":{"verifyingContract":"nope"}}`, signer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &stubAnalyzer{name: analyzers.NameSignature, weight: 1, seen: make(chan risk.AnalysisContext, 1)}
			svc := newService(t, policy.Balanced, map[ScanType][]analyzers.Analyzer{ScanSignature: {a}})

			v, err := svc.ScanSignature(context.Background(), types.SignatureScanRequest{
				From:       signer,
				TypedData:  json.RawMessage(tt.typedData),
				SignMethod: "eth_signTypedData_v4",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Target)

			actx := <-a.seen
			assert.Equal(t, signer, actx.From)
			assert.Equal(t, "eth_signTypedData_v4", actx.Extra[analyzers.ExtraSignMethod])
		})
	}
}

func TestScanTransactionPassesCallData(t *testing.T) {
	a := &stubAnalyzer{name: analyzers.NameIntent, weight: 1, seen: make(chan risk.AnalysisContext, 1)}
	svc := newService(t, policy.Balanced, map[ScanType][]analyzers.Analyzer{ScanTransaction: {a}})

	_, err := svc.ScanTransaction(context.Background(), types.TransactionScanRequest{
		ChainID:      137,
		To:           tokenAddr,
		Data:         "0x095ea7b3",
		Value:        "0x0",
		FunctionName: "claimReward()",
	})
	require.NoError(t, err)

	actx := <-a.seen
	assert.Equal(t, int64(137), actx.ChainID)
	assert.Equal(t, "0x095ea7b3", actx.Extra[analyzers.ExtraData])
	assert.Equal(t, "0x0", actx.Extra[analyzers.ExtraValue])
	assert.Equal(t, "claimReward()", actx.Extra[analyzers.ExtraFunctionName])
}

func TestValidation(t *testing.T) {
	svc := newService(t, policy.Balanced, nil)
	ctx := context.Background()

	cases := map[string]error{}
	_, cases["token"] = svc.ScanToken(ctx, types.TokenScanRequest{Address: "0x123"})
	_, cases["tx to"] = svc.ScanTransaction(ctx, types.TransactionScanRequest{To: "nope"})
	_, cases["tx from"] = svc.ScanTransaction(ctx, types.TransactionScanRequest{To: tokenAddr, From: "nope"})
	_, cases["sig empty"] = svc.ScanSignature(ctx, types.SignatureScanRequest{})
	_, cases["sig from"] = svc.ScanSignature(ctx, types.SignatureScanRequest{TypedData: json.RawMessage(`{}`), From: "x"})

	for name, err := range cases {
		t.Run(name, func(t *testing.T) {
			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
		})
	}
}

func TestMissingRegistry(t *testing.T) {
	svc := newService(t, policy.Balanced, nil)
	_, err := svc.ScanToken(context.Background(), types.TokenScanRequest{Address: tokenAddr})

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusInternalServerError, appErr.HTTPStatus)
}

func TestCancelledScan(t *testing.T) {
	a := &stubAnalyzer{name: risk.CategoryStructural, weight: 1, score: 10}
	svc := newService(t, policy.Balanced, map[ScanType][]analyzers.Analyzer{ScanToken: {a}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.ScanToken(ctx, types.TokenScanRequest{Address: tokenAddr})

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusGatewayTimeout, appErr.HTTPStatus)
}

func TestDefaultRegistries(t *testing.T) {
	regs := DefaultRegistries(Deps{})

	assert.ElementsMatch(t,
		[]string{analyzers.NameStructural, analyzers.NameMarket, analyzers.NameBehavioral, analyzers.NameHoneypot},
		regs[ScanToken].Names())
	assert.ElementsMatch(t,
		[]string{analyzers.NameStructural, analyzers.NameIntent},
		regs[ScanTransaction].Names())
	assert.ElementsMatch(t,
		[]string{analyzers.NameSignature},
		regs[ScanSignature].Names())

	svc := New(risk.NewEngine(calibration.DefaultConfig()), policy.NewEngine(policy.Balanced), WithRegistries(regs))
	assert.Equal(t, policy.Balanced, svc.PolicyMode())
}

func TestZeroConsiderationListingIsNotDiluted(t *testing.T) {
	const offerer = "0x4444444444444444444444444444444444444444"
	order := `{
		"types": {"EIP712Domain": [
			{"name": "name", "type": "string"},
			{"name": "chainId", "type": "uint256"},
			{"name": "verifyingContract", "type": "address"}
		]},
		"primaryType": "OrderComponents",
		"domain": {"name": "Seaport", "chainId": 1, "verifyingContract": "0x00000000000000ADc04C56Bf30aC9d3c0aAF14dC"},
		"message": {
			"offerer": "` + offerer + `",
			"offer": [{"itemType": 2, "token": "` + tokenAddr + `", "identifierOrCriteria": "42", "startAmount": "1", "endAmount": "1"}],
			"consideration": [{"itemType": 0, "token": "0x0000000000000000000000000000000000000000", "identifierOrCriteria": "0",
				"startAmount": "0", "endAmount": "0", "recipient": "` + offerer + `"}]
		}
	}`

	svc := New(risk.NewEngine(calibration.DefaultConfig()), policy.NewEngine(policy.Balanced),
		WithRegistries(DefaultRegistries(Deps{})))

	v, err := svc.ScanSignature(context.Background(), types.SignatureScanRequest{
		ChainID:   1,
		From:      offerer,
		TypedData: json.RawMessage(order),
	})
	require.NoError(t, err)

	require.Len(t, v.Analyzers, 1)
	assert.Equal(t, 50.0, v.Analyzers[0].Score)
	assert.Equal(t, 50.0, v.Probability)
	assert.Equal(t, risk.RiskMedium, v.RiskLevel)
	assert.Equal(t, Warn, v.Decision)
	assert.Contains(t, v.CriticalFlags, "NFT listing for zero consideration")
}
