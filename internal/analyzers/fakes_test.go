package analyzers

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ZanzyTHEbar/chain-sentinel/internal/providers"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/risk"
)

const (
	tokenAddr    = "0x1111111111111111111111111111111111111111"
	walletAddr   = "0x2222222222222222222222222222222222222222"
	unknownAddr  = "0x3333333333333333333333333333333333333333"
	uniV2Router  = "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"
	uniUniversal = "0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD"
)

var errProvider = errors.New("provider down")

type fakeChain struct {
	info      providers.ContractInfo
	infoErr   error
	honeypot  providers.HoneypotInfo
	hpErr     error
	contracts map[string]bool
	codeErr   error
}

func (f *fakeChain) ContractInfo(context.Context, string) (providers.ContractInfo, error) {
	return f.info, f.infoErr
}

func (f *fakeChain) HoneypotInfo(context.Context, string) (providers.HoneypotInfo, error) {
	return f.honeypot, f.hpErr
}

func (f *fakeChain) IsContract(_ context.Context, address string) (bool, error) {
	if f.codeErr != nil {
		return false, f.codeErr
	}
	return f.contracts[strings.ToLower(address)], nil
}

func routerWith(p providers.ChainDataProvider) *providers.Router {
	r := providers.NewRouter()
	r.Register(1, p)
	return r
}

type fakeMarket struct {
	data providers.MarketData
	err  error
}

func (f fakeMarket) MarketData(context.Context, int64, string) (providers.MarketData, error) {
	return f.data, f.err
}

type fakeReputation struct {
	rep     providers.Reputation
	err     error
	queried string
}

func (f *fakeReputation) WalletReputation(_ context.Context, _ int64, address string) (providers.Reputation, error) {
	f.queried = address
	return f.rep, f.err
}

type fakeSimulator struct {
	result providers.SimulationResult
	err    error
}

func (f fakeSimulator) Simulate(context.Context, providers.SimulationRequest) (providers.SimulationResult, error) {
	return f.result, f.err
}

// stub is a configurable analyzer for registry tests.
type stub struct {
	base
	score  float64
	flags  []string
	data   map[string]any
	err    error
	panics bool
	block  bool
	delay  time.Duration
	calls  atomic.Int32
}

func newStub(name string, weight, score float64) *stub {
	return &stub{base: newBase(name, weight), score: score}
}

func (s *stub) Analyze(ctx context.Context, _ risk.AnalysisContext) (risk.AnalyzerResult, error) {
	s.calls.Add(1)
	if s.panics {
		panic("boom")
	}
	if s.block {
		<-ctx.Done()
		return risk.AnalyzerResult{}, ctx.Err()
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return risk.AnalyzerResult{}, s.err
	}
	return risk.AnalyzerResult{Name: s.name, Weight: s.weight, Score: s.score, Flags: s.flags, Data: s.data}, nil
}

func fixedNow() time.Time { return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC) }

func ptr[T any](v T) *T { return &v }
