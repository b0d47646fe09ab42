package analyzers

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/ZanzyTHEbar/chain-sentinel/internal/chains"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/risk"
)

// Extra keys read by the signature analyzer.
const (
	ExtraTypedData  = "typed_data"
	ExtraSignMethod = "sign_method"
)

// EIP-712 primary types the analyzer understands.
const (
	TypePermit          = "Permit"
	TypePermitSingle    = "PermitSingle"
	TypePermitBatch     = "PermitBatch"
	TypeOrderComponents = "OrderComponents"
)

// 0.001 native in wei
const lowValueConsideration = 1_000_000_000_000_000

// Seaport item types 2-5 are ERC721/ERC1155 and their criteria variants.
var nftItemTypes = map[int64]bool{2: true, 3: true, 4: true, 5: true}

// Signature scores EIP-712 typed data a wallet is asked to sign.
type Signature struct {
	base
	extra map[int64]map[string]string
	now   func() time.Time
}

// NewSignature creates the analyzer. extraSpenders extends the per-chain
// spender whitelist.
func NewSignature(weight float64, extraSpenders map[int64]map[string]string) *Signature {
	return &Signature{base: newBase(NameSignature, weight), extra: extraSpenders, now: time.Now}
}

func (s *Signature) Analyze(_ context.Context, actx risk.AnalysisContext) (risk.AnalyzerResult, error) {
	res := s.result()
	method, _ := actx.ExtraString(ExtraSignMethod)
	if method != "" {
		res.Data["sign_method"] = method
	}

	raw, ok := actx.Extra[ExtraTypedData]
	if !ok || raw == nil {
		return res, nil
	}
	if str, isStr := raw.(string); isStr && strings.TrimSpace(str) == "" {
		return res, nil
	}

	td, err := parseTypedData(raw)
	if err != nil {
		res.Score = malformedInputScore
		res.Flags = append(res.Flags, "Typed data could not be parsed")
		res.Data["parse_error"] = err.Error()
		return res, nil
	}

	chainID := actx.ChainID
	if td.Domain.ChainId != nil {
		if id := (*big.Int)(td.Domain.ChainId); id.IsInt64() && id.Int64() > 0 {
			chainID = id.Int64()
		}
	}
	res.Data["primary_type"] = td.PrimaryType
	res.Data["chain_id"] = chainID
	if td.Domain.VerifyingContract != "" {
		res.Data["verifying_contract"] = td.Domain.VerifyingContract
	}

	spenders := chains.NewSpenders(chainID, s.extra[chainID])
	msg := map[string]any(td.Message)
	now := s.now().Unix()

	var p points
	switch td.PrimaryType {
	case TypePermit:
		s.scorePermit(msg, spenders, now, &p, res.Data)
	case TypePermitSingle:
		s.scorePermitSingle(msg, spenders, now, &p, res.Data)
	case TypePermitBatch:
		s.scorePermitBatch(msg, spenders, now, &p, res.Data)
	case TypeOrderComponents:
		s.scoreOrder(msg, &p, res.Data)
	}

	res.Score = p.clamped()
	res.Flags = append(res.Flags, p.flags...)
	return res, nil
}

// EIP-2612 permit.
func (s *Signature) scorePermit(msg map[string]any, spenders chains.Spenders, now int64, p *points, data map[string]any) {
	if value, ok := toBigInt(msg["value"]); ok && isUnlimited(value, 256) {
		p.add(30, "Unlimited token permit")
	}

	if spender, ok := parseAddress(msg["spender"]); !ok {
		p.add(15, "Permit does not name a valid spender")
	} else {
		data["spender"] = spender.Hex()
		if !s.known(spenders, spender, data) {
			p.add(25, "Permit grants allowance to unknown spender %s", spender.Hex())
		}
	}

	if deadline, ok := toBigInt(msg["deadline"]); ok && farFuture(deadline, now) {
		p.add(10, "Permit deadline more than a year away")
	}
}

// Permit2 single-token allowance.
func (s *Signature) scorePermitSingle(msg map[string]any, spenders chains.Spenders, now int64, p *points, data map[string]any) {
	details, _ := asMap(msg["details"])
	if amount, ok := toBigInt(details["amount"]); ok && isUnlimited(amount, 160) {
		p.add(25, "Unlimited Permit2 allowance")
	}

	spender, ok := parseAddress(msg["spender"])
	if ok {
		data["spender"] = spender.Hex()
	}
	if !ok || !s.known(spenders, spender, data) {
		p.add(20, "Permit2 allowance to unknown spender")
	}

	if exp, ok := toBigInt(details["expiration"]); ok && farFuture(exp, now) {
		p.add(10, "Permit2 allowance expires more than a year from now")
	}
}

// Permit2 batch allowance.
func (s *Signature) scorePermitBatch(msg map[string]any, spenders chains.Spenders, now int64, p *points, data map[string]any) {
	entries := asSlice(msg["details"])
	data["tokens"] = len(entries)

	farExpiry := false
	for _, e := range entries {
		d, ok := asMap(e)
		if !ok {
			continue
		}
		if amount, ok := toBigInt(d["amount"]); ok && isUnlimited(amount, 160) {
			token, _ := d["token"].(string)
			p.add(15, "Unlimited Permit2 allowance for token %s", token)
		}
		if exp, ok := toBigInt(d["expiration"]); ok && farFuture(exp, now) {
			farExpiry = true
		}
	}

	spender, ok := parseAddress(msg["spender"])
	if ok {
		data["spender"] = spender.Hex()
	}
	if !ok || !s.known(spenders, spender, data) {
		p.add(25, "Permit2 batch allowance to unknown spender")
	}
	if farExpiry {
		p.add(10, "Permit2 allowance expires more than a year from now")
	}
}

// Seaport listing. Only consideration paid back to the offerer counts.
func (s *Signature) scoreOrder(msg map[string]any, p *points, data map[string]any) {
	nftOffered := false
	for _, item := range asSlice(msg["offer"]) {
		m, ok := asMap(item)
		if !ok {
			continue
		}
		if t, ok := toBigInt(m["itemType"]); ok && t.IsInt64() && nftItemTypes[t.Int64()] {
			nftOffered = true
			break
		}
	}
	if !nftOffered {
		return
	}

	offerer, _ := msg["offerer"].(string)
	total := new(big.Int)
	for _, item := range asSlice(msg["consideration"]) {
		m, ok := asMap(item)
		if !ok {
			continue
		}
		// native and ERC20 payments only
		if t, ok := toBigInt(m["itemType"]); !ok || t.Cmp(big.NewInt(1)) > 0 {
			continue
		}
		if recipient, _ := m["recipient"].(string); offerer != "" && !strings.EqualFold(recipient, offerer) {
			continue
		}
		if amount, ok := toBigInt(m["startAmount"]); ok {
			total.Add(total, amount)
		}
	}
	data["consideration_wei"] = total.String()

	switch {
	case total.Sign() == 0:
		p.add(50, "NFT listing for zero consideration")
	case total.Cmp(big.NewInt(lowValueConsideration)) < 0:
		p.add(30, "NFT listing far below market value")
	}
}

func (s *Signature) known(spenders chains.Spenders, addr common.Address, data map[string]any) bool {
	label, ok := spenders.Known(addr)
	if ok {
		data["spender_label"] = label
	}
	return ok
}

func parseTypedData(raw any) (apitypes.TypedData, error) {
	var payload []byte
	switch v := raw.(type) {
	case apitypes.TypedData:
		return v, nil
	case string:
		payload = []byte(v)
	case []byte:
		payload = v
	case json.RawMessage:
		payload = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return apitypes.TypedData{}, err
		}
		payload = b
	}

	var td apitypes.TypedData
	if err := json.Unmarshal(payload, &td); err != nil {
		return apitypes.TypedData{}, err
	}
	if td.PrimaryType == "" {
		return apitypes.TypedData{}, fmt.Errorf("typed data has no primaryType")
	}
	return td, nil
}
