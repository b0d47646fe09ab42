package evm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/chain-sentinel/internal/providers"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/resilience"
)

// Explorer is an Etherscan-compatible API client.
type Explorer struct {
	client  *resilience.Client
	baseURL string
	apiKey  string
	chainID int64
}

// NewExplorer creates an explorer client for one chain.
func NewExplorer(client *resilience.Client, baseURL, apiKey string, chainID int64) *Explorer {
	return &Explorer{client: client, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, chainID: chainID}
}

type explorerEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type sourceCodeEntry struct {
	SourceCode     string `json:"SourceCode"`
	ContractName   string `json:"ContractName"`
	Proxy          string `json:"Proxy"`
	Implementation string `json:"Implementation"`
}

type creationEntry struct {
	ContractCreator string `json:"contractCreator"`
	TxHash          string `json:"txHash"`
	Timestamp       string `json:"timestamp"`
}

// SourceInfo is the verification state of a contract.
type SourceInfo struct {
	Verified     bool
	ContractName string
	IsProxy      bool
}

// Source reports whether the contract's source is verified.
func (e *Explorer) Source(ctx context.Context, address string) (SourceInfo, error) {
	var entries []sourceCodeEntry
	if err := e.call(ctx, "contract", "getsourcecode", url.Values{"address": {address}}, &entries); err != nil {
		return SourceInfo{}, err
	}
	if len(entries) == 0 {
		return SourceInfo{}, nil
	}
	src := entries[0]
	return SourceInfo{
		Verified:     strings.TrimSpace(src.SourceCode) != "",
		ContractName: src.ContractName,
		IsProxy:      src.Proxy == "1",
	}, nil
}

// CreatedAt returns the deployment time. ErrNotFound when the explorer does
// not know it.
func (e *Explorer) CreatedAt(ctx context.Context, address string) (time.Time, error) {
	var entries []creationEntry
	if err := e.call(ctx, "contract", "getcontractcreation", url.Values{"contractaddresses": {address}}, &entries); err != nil {
		return time.Time{}, err
	}
	if len(entries) == 0 || entries[0].Timestamp == "" {
		return time.Time{}, providers.ErrNotFound
	}
	sec, err := strconv.ParseInt(entries[0].Timestamp, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("explorer: bad creation timestamp %q: %w", entries[0].Timestamp, err)
	}
	return time.Unix(sec, 0).UTC(), nil
}

func (e *Explorer) call(ctx context.Context, module, action string, params url.Values, out any) error {
	params.Set("module", module)
	params.Set("action", action)
	params.Set("chainid", strconv.FormatInt(e.chainID, 10))
	if e.apiKey != "" {
		params.Set("apikey", e.apiKey)
	}

	var env explorerEnvelope
	if err := e.client.GetJSON(ctx, e.baseURL+"?"+params.Encode(), nil, &env); err != nil {
		return err
	}

	if env.Status != "1" {
		// "No data found" style answers are not failures
		if strings.Contains(strings.ToLower(env.Message), "no data") {
			return nil
		}
		var msg string
		_ = json.Unmarshal(env.Result, &msg)
		return fmt.Errorf("explorer %s/%s: %s %s", module, action, env.Message, msg)
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("explorer %s/%s: decode result: %w", module, action, err)
	}
	return nil
}

// isNotFound reports provider "no record" answers.
func isNotFound(err error) bool {
	return errors.Is(err, providers.ErrNotFound)
}
