package analyzers

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ZanzyTHEbar/chain-sentinel/internal/chains"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/providers"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/risk"
)

// Extra keys read by the transaction-scoped analyzers.
const (
	ExtraData         = "data"
	ExtraValue        = "value"
	ExtraFunctionName = "function_name"
)

// Transaction types reported in Data["tx_type"].
const (
	TxNativeTransfer = "native_transfer"
	TxContractCall   = "contract_call"
)

const intentABIJSON = `[
	{"type":"function","name":"approve","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}]},
	{"type":"function","name":"increaseAllowance","inputs":[{"name":"spender","type":"address"},{"name":"addedValue","type":"uint256"}]},
	{"type":"function","name":"setApprovalForAll","inputs":[{"name":"operator","type":"address"},{"name":"approved","type":"bool"}]},
	{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}]},
	{"type":"function","name":"transferFrom","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}]},
	{"type":"function","name":"safeTransferFrom","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}]},
	{"type":"function","name":"safeTransferFrom","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"},{"name":"data","type":"bytes"}]},
	{"type":"function","name":"permit","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"},{"name":"value","type":"uint256"},{"name":"deadline","type":"uint256"},{"name":"v","type":"uint8"},{"name":"r","type":"bytes32"},{"name":"s","type":"bytes32"}]},
	{"type":"function","name":"deposit","inputs":[]},
	{"type":"function","name":"withdraw","inputs":[{"name":"amount","type":"uint256"}]},
	{"type":"function","name":"multicall","inputs":[{"name":"data","type":"bytes[]"}]},
	{"type":"function","name":"swapExactTokensForTokens","inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}]},
	{"type":"function","name":"swapExactETHForTokens","inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}]},
	{"type":"function","name":"execute","inputs":[{"name":"commands","type":"bytes"},{"name":"inputs","type":"bytes[]"},{"name":"deadline","type":"uint256"}]}
]`

var intentABI = mustABI(intentABIJSON)

func mustABI(def string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return a
}

// functions that move or authorise movement of the caller's assets
var dangerousMethods = map[string]bool{
	"approve":           true,
	"increaseAllowance": true,
	"setApprovalForAll": true,
	"transferFrom":      true,
	"permit":            true,
}

// words drainer front-ends use to dress up approvals
var benignHints = []string{
	"claim", "airdrop", "mint", "free", "reward", "bonus", "gift",
	"register", "verify", "connect", "sync", "collect", "redeem", "enable",
}

// Intent decodes transaction calldata and scores what it would authorise.
type Intent struct {
	base
	chains    providers.ChainRouter
	extra     map[int64]map[string]string
	simulator providers.Simulator
	logger    *slog.Logger
}

// NewIntent creates the analyzer. extraSpenders extends the per-chain
// approval whitelist (chain → address → label). simulator may be nil.
func NewIntent(weight float64, chains providers.ChainRouter, extraSpenders map[int64]map[string]string, simulator providers.Simulator) *Intent {
	return &Intent{
		base:      newBase(NameIntent, weight),
		chains:    chains,
		extra:     extraSpenders,
		simulator: simulator,
		logger:    slog.Default(),
	}
}

func (in *Intent) Analyze(ctx context.Context, actx risk.AnalysisContext) (risk.AnalyzerResult, error) {
	res := in.result()
	res.Data["to"] = actx.Target

	value, _ := toBigInt(actx.Extra[ExtraValue])
	if value == nil {
		value = new(big.Int)
	}

	rawData, hasData := actx.Extra[ExtraData]
	if s, ok := rawData.(string); ok && (strings.TrimSpace(s) == "" || strings.TrimSpace(s) == "0x") {
		hasData = false
	}
	if !hasData || rawData == nil {
		res.Data["tx_type"] = TxNativeTransfer
		res.Data["value"] = value.String()
		return res, nil
	}

	data, err := decodeCalldata(rawData)
	if err != nil || len(data) < 4 {
		return in.malformed(res, "calldata shorter than a selector or not hex"), nil
	}
	res.Data["tx_type"] = TxContractCall
	res.Data["selector"] = hexutil.Encode(data[:4])

	var p points
	method, err := intentABI.MethodById(data[:4])
	if err != nil {
		in.scoreUnknownSelector(ctx, actx, hexutil.Encode(data[:4]), &p)
	} else {
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			return in.malformed(res, err.Error()), nil
		}
		res.Data["method"] = method.RawName
		in.scoreCall(ctx, actx, method.RawName, args, value, &p, res.Data)
	}

	in.simulate(ctx, actx, rawData, value, &p, res.Data)

	res.Score = p.clamped()
	res.Flags = append(res.Flags, p.flags...)
	return res, nil
}

func (in *Intent) scoreCall(ctx context.Context, actx risk.AnalysisContext, name string, args []any, value *big.Int, p *points, data map[string]any) {
	if claimed, ok := actx.ExtraString(ExtraFunctionName); ok && dangerousMethods[name] {
		if hint := normalizeFunctionName(claimed); hint != "" && hint != strings.ToLower(name) && soundsBenign(hint) {
			p.add(40, "Disguised call: %q actually executes %s", claimed, name)
			data["claimed_function"] = claimed
		}
	}

	var (
		spender    common.Address
		unlimited  bool
		isApproval bool
	)
	switch name {
	case "approve", "increaseAllowance":
		spender, _ = args[0].(common.Address)
		amount, _ := args[1].(*big.Int)
		unlimited = isUnlimited(amount, 256)
		isApproval = amount != nil && amount.Sign() > 0
		if amount != nil {
			data["amount"] = amount.String()
		}
	case "setApprovalForAll":
		spender, _ = args[0].(common.Address)
		approved, _ := args[1].(bool)
		unlimited = approved
		isApproval = approved
	case "permit":
		spender, _ = args[1].(common.Address)
		amount, _ := args[2].(*big.Int)
		unlimited = isUnlimited(amount, 256)
		isApproval = true
	}
	if !isApproval {
		return
	}

	data["spender"] = spender.Hex()
	data["unlimited"] = unlimited

	if value.Sign() > 0 {
		p.add(30, "Native value attached to approval")
	}

	label, known := chains.NewSpenders(actx.ChainID, in.extra[actx.ChainID]).Known(spender)
	if unlimited {
		if known {
			p.add(5, "Unlimited approval to known router (%s)", label)
		} else {
			p.add(35, "Unlimited approval to non-whitelisted contract")
		}
	}
	if known {
		data["spender_label"] = label
		return
	}

	prov, ok := in.chains.ForChain(actx.ChainID)
	if !ok {
		return
	}
	isContract, err := prov.IsContract(ctx, spender.Hex())
	if err != nil {
		in.logger.Debug("Spender code lookup failed", "spender", spender.Hex(), "chain_id", actx.ChainID, "error", err)
		return
	}
	if !isContract {
		p.add(35, "Approval to externally owned account %s", spender.Hex())
	}
}

func (in *Intent) scoreUnknownSelector(ctx context.Context, actx risk.AnalysisContext, selector string, p *points) {
	prov, ok := in.chains.ForChain(actx.ChainID)
	if !ok {
		return
	}
	info, err := prov.ContractInfo(ctx, actx.Target)
	if err != nil {
		in.logger.Debug("Target lookup failed", "target", actx.Target, "chain_id", actx.ChainID, "error", err)
		return
	}
	if info.Exists && info.IsToken && !info.Verified && !info.VerificationUnknown {
		p.add(20, "Unrecognized function %s on unverified token", selector)
	}
}

// simulate is informational: it annotates but never scores.
func (in *Intent) simulate(ctx context.Context, actx risk.AnalysisContext, rawData any, value *big.Int, p *points, data map[string]any) {
	if in.simulator == nil || actx.From == "" {
		return
	}
	calldata, _ := rawData.(string)
	sim, err := in.simulator.Simulate(ctx, providers.SimulationRequest{
		ChainID: actx.ChainID,
		From:    actx.From,
		To:      actx.Target,
		Value:   value.String(),
		Data:    calldata,
	})
	if err != nil {
		data["simulation_error"] = err.Error()
		return
	}
	data["simulation"] = sim
	if !sim.Success {
		if sim.RevertReason != "" {
			p.add(0, "Simulation reverted: %s", sim.RevertReason)
		} else {
			p.add(0, "Simulation reverted")
		}
	}
	for _, w := range sim.Warnings {
		p.add(0, "Simulation: %s", w)
	}
}

func (in *Intent) malformed(res risk.AnalyzerResult, reason string) risk.AnalyzerResult {
	res.Score = malformedInputScore
	res.Flags = append(res.Flags, "Calldata could not be decoded")
	res.Data["tx_type"] = TxContractCall
	res.Data["parse_error"] = reason
	return res
}

// normalizeFunctionName turns "claimAirdrop(uint256)" into "claimairdrop".
func normalizeFunctionName(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '('); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(s)
}

func soundsBenign(name string) bool {
	for _, hint := range benignHints {
		if strings.Contains(name, hint) {
			return true
		}
	}
	return false
}
