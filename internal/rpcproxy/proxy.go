// Package rpcproxy is a JSON-RPC endpoint wallets can point at instead of
// their node. Sends and typed-data signing requests are scanned first;
// everything else passes through to the chain's upstream RPC.
package rpcproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gin-gonic/gin"

	apperrors "github.com/ZanzyTHEbar/chain-sentinel/internal/errors"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/policy"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/scanner"
	apitypes "github.com/ZanzyTHEbar/chain-sentinel/internal/types"
)

// Intercepted methods.
const (
	MethodSendTransaction    = "eth_sendTransaction"
	MethodSendRawTransaction = "eth_sendRawTransaction"
	MethodSignTypedDataV4    = "eth_signTypedData_v4"
)

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
	CodeBlocked        = -32000
)

// Scanner is the part of scanner.Service the proxy needs.
type Scanner interface {
	ScanTransaction(ctx context.Context, req apitypes.TransactionScanRequest) (scanner.Verdict, error)
	ScanSignature(ctx context.Context, req apitypes.SignatureScanRequest) (scanner.Verdict, error)
	PolicyMode() policy.Mode
}

// Forwarder sends a raw request body upstream. resilience.Client satisfies it.
type Forwarder interface {
	Do(ctx context.Context, method, url string, headers map[string]string, body []byte) ([]byte, error)
}

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// BlockedData is attached to CodeBlocked errors.
type BlockedData struct {
	ScanID         string   `json:"scan_id"`
	Decision       string   `json:"decision"`
	RiskLevel      string   `json:"risk_level"`
	Probability    float64  `json:"probability"`
	CriticalFlags  []string `json:"critical_flags"`
	PolicyOverride string   `json:"policy_override,omitempty"`
}

// Proxy scans and forwards JSON-RPC requests.
type Proxy struct {
	scanner      Scanner
	forwarder    Forwarder
	upstreams    map[int64]string
	defaultChain int64
	logger       *slog.Logger
}

// New creates a proxy. upstreams maps chain IDs to RPC URLs; a request
// without ?chain_id= uses defaultChain.
func New(s Scanner, f Forwarder, upstreams map[int64]string, defaultChain int64, logger *slog.Logger) *Proxy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Proxy{
		scanner:      s,
		forwarder:    f,
		upstreams:    upstreams,
		defaultChain: defaultChain,
		logger:       logger,
	}
}

// Handle serves POST /rpc. Batches are processed element by element; a
// batch containing any scanned request is never forwarded as a whole.
func (p *Proxy) Handle(c *gin.Context) {
	chainID := p.defaultChain
	if raw := c.Query("chain_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.Error(apperrors.NewValidationError("chain_id must be an integer", raw))
			c.Abort()
			return
		}
		chainID = id
	}
	upstream, ok := p.upstreams[chainID]
	if !ok {
		c.Error(apperrors.NewUnsupportedChainError(chainID))
		c.Abort()
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusOK, errorResponse(nil, CodeParseError, "could not read request body", nil))
		return
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []Request
		if err := json.Unmarshal(trimmed, &batch); err != nil || len(batch) == 0 {
			c.JSON(http.StatusOK, errorResponse(nil, CodeParseError, "invalid batch", nil))
			return
		}
		out := make([]json.RawMessage, 0, len(batch))
		for _, req := range batch {
			out = append(out, p.serve(c.Request.Context(), chainID, upstream, req))
		}
		c.JSON(http.StatusOK, out)
		return
	}

	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		c.JSON(http.StatusOK, errorResponse(nil, CodeParseError, "invalid JSON", nil))
		return
	}
	c.Data(http.StatusOK, "application/json", p.serve(c.Request.Context(), chainID, upstream, req))
}

func (p *Proxy) serve(ctx context.Context, chainID int64, upstream string, req Request) json.RawMessage {
	if req.Method == "" {
		return mustMarshal(errorResponse(req.ID, CodeInvalidRequest, "method is required", nil))
	}

	var (
		verdict scanner.Verdict
		scanned bool
		err     error
	)
	switch req.Method {
	case MethodSendTransaction:
		verdict, scanned, err = p.scanSend(ctx, chainID, req.Params)
	case MethodSendRawTransaction:
		verdict, scanned, err = p.scanRaw(ctx, chainID, req.Params)
	case MethodSignTypedDataV4:
		verdict, scanned, err = p.scanTypedData(ctx, chainID, req.Params)
	}

	if err != nil {
		var pe *paramsError
		if errors.As(err, &pe) {
			return mustMarshal(errorResponse(req.ID, CodeInvalidParams, pe.Error(), nil))
		}
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.HTTPStatus == http.StatusBadRequest {
			return mustMarshal(errorResponse(req.ID, CodeInvalidParams, appErr.Error(), nil))
		}
		// a firewall that cannot scan only lets traffic through when the
		// policy tolerates missing sources
		if p.scanner.PolicyMode() == policy.Strict {
			p.logger.Warn("Scan failed, rejecting", "method", req.Method, "chain_id", chainID, "error", err)
			return mustMarshal(errorResponse(req.ID, CodeBlocked, "scan unavailable (strict policy)", nil))
		}
		p.logger.Warn("Scan failed, forwarding", "method", req.Method, "chain_id", chainID, "error", err)
	}

	if scanned && verdict.Decision == scanner.Block {
		p.logger.Info("Blocked RPC request",
			"method", req.Method,
			"chain_id", chainID,
			"target", verdict.Target,
			"scan_id", verdict.ScanID,
			"probability", verdict.Probability,
		)
		return mustMarshal(errorResponse(req.ID, CodeBlocked, "request blocked by chain-sentinel: "+blockReason(verdict), BlockedData{
			ScanID:         verdict.ScanID,
			Decision:       string(verdict.Decision),
			RiskLevel:      string(verdict.RiskLevel),
			Probability:    verdict.Probability,
			CriticalFlags:  verdict.CriticalFlags,
			PolicyOverride: verdict.PolicyOverride,
		}))
	}

	return p.forward(ctx, upstream, req)
}

func (p *Proxy) forward(ctx context.Context, upstream string, req Request) json.RawMessage {
	if req.JSONRPC == "" {
		req.JSONRPC = "2.0"
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return mustMarshal(errorResponse(req.ID, CodeInternal, "encode request", nil))
	}
	body, err := p.forwarder.Do(ctx, http.MethodPost, upstream, map[string]string{"Content-Type": "application/json"}, payload)
	if err != nil {
		p.logger.Warn("Upstream RPC failed", "method", req.Method, "error", err)
		return mustMarshal(errorResponse(req.ID, CodeInternal, "upstream unavailable", nil))
	}
	if !json.Valid(body) {
		return mustMarshal(errorResponse(req.ID, CodeInternal, "upstream returned invalid JSON", nil))
	}
	return body
}

type paramsError struct{ msg string }

func (e *paramsError) Error() string { return e.msg }

func badParams(format string, args ...any) error {
	return &paramsError{msg: fmt.Sprintf(format, args...)}
}

type callObject struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value"`
	Data  string `json:"data"`
	Input string `json:"input"`
}

func (p *Proxy) scanSend(ctx context.Context, chainID int64, params json.RawMessage) (scanner.Verdict, bool, error) {
	var args []callObject
	if err := json.Unmarshal(params, &args); err != nil || len(args) == 0 {
		return scanner.Verdict{}, false, badParams("expected [transaction]")
	}
	tx := args[0]
	// contract creation has no target to score
	if tx.To == "" {
		return scanner.Verdict{}, false, nil
	}
	data := tx.Data
	if data == "" {
		data = tx.Input
	}
	v, err := p.scanner.ScanTransaction(ctx, apitypes.TransactionScanRequest{
		ChainID: chainID,
		From:    tx.From,
		To:      tx.To,
		Value:   tx.Value,
		Data:    data,
	})
	return v, err == nil, err
}

func (p *Proxy) scanRaw(ctx context.Context, chainID int64, params json.RawMessage) (scanner.Verdict, bool, error) {
	var args []string
	if err := json.Unmarshal(params, &args); err != nil || len(args) == 0 {
		return scanner.Verdict{}, false, badParams("expected [raw transaction]")
	}
	raw, err := hexutil.Decode(args[0])
	if err != nil {
		return scanner.Verdict{}, false, badParams("raw transaction is not hex: %v", err)
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return scanner.Verdict{}, false, badParams("decode raw transaction: %v", err)
	}
	// pre-EIP-155 transactions carry no chain ID and take the routed one
	if id := tx.ChainId(); id != nil && id.Sign() > 0 && (!id.IsInt64() || id.Int64() != chainID) {
		return scanner.Verdict{}, false, badParams("transaction chain id %s does not match chain %d", id, chainID)
	}
	if tx.To() == nil {
		return scanner.Verdict{}, false, nil
	}

	var from string
	if sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(chainID)), tx); err == nil {
		from = sender.Hex()
	}

	v, err := p.scanner.ScanTransaction(ctx, apitypes.TransactionScanRequest{
		ChainID: chainID,
		From:    from,
		To:      tx.To().Hex(),
		Value:   tx.Value().String(),
		Data:    hexutil.Encode(tx.Data()),
	})
	return v, err == nil, err
}

func (p *Proxy) scanTypedData(ctx context.Context, chainID int64, params json.RawMessage) (scanner.Verdict, bool, error) {
	var args []json.RawMessage
	if err := json.Unmarshal(params, &args); err != nil || len(args) < 2 {
		return scanner.Verdict{}, false, badParams("expected [address, typedData]")
	}
	var from string
	if err := json.Unmarshal(args[0], &from); err != nil {
		return scanner.Verdict{}, false, badParams("signer must be an address string")
	}
	v, err := p.scanner.ScanSignature(ctx, apitypes.SignatureScanRequest{
		ChainID:    chainID,
		From:       from,
		TypedData:  args[1],
		SignMethod: MethodSignTypedDataV4,
	})
	return v, err == nil, err
}

func blockReason(v scanner.Verdict) string {
	if len(v.CriticalFlags) > 0 {
		return v.CriticalFlags[0]
	}
	return strings.ToLower(string(v.RiskLevel)) + " risk"
}

func errorResponse(id json.RawMessage, code int, msg string, data any) Response {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: msg, Data: data}}
}

func mustMarshal(r Response) json.RawMessage {
	b, err := json.Marshal(r)
	if err != nil {
		return json.RawMessage(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"internal error"}}`)
	}
	return b
}
