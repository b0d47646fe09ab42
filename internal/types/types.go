// Package types holds the request bodies shared by the HTTP API and the
// JSON-RPC proxy.
package types

import "encoding/json"

// TokenScanRequest asks for a risk verdict on a token contract.
type TokenScanRequest struct {
	ChainID int64  `json:"chain_id" example:"1"`
	Address string `json:"address" binding:"required" example:"0xdAC17F958D2ee523a2206206994597C13D831ec7"`
}

// TransactionScanRequest describes an unsigned transaction about to be sent.
type TransactionScanRequest struct {
	ChainID int64  `json:"chain_id" example:"1"`
	From    string `json:"from" example:"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"`
	To      string `json:"to" binding:"required" example:"0xdAC17F958D2ee523a2206206994597C13D831ec7"`
	// Value is wei as a decimal or 0x-hex string.
	Value string `json:"value,omitempty" example:"0"`
	Data  string `json:"data,omitempty" example:"0x095ea7b3"`
	// FunctionName is what the dApp claims the call does.
	FunctionName string `json:"function_name,omitempty" example:"claimReward()"`
}

// SignatureScanRequest carries an EIP-712 payload a wallet was asked to sign.
type SignatureScanRequest struct {
	ChainID    int64           `json:"chain_id" example:"1"`
	From       string          `json:"from"`
	TypedData  json.RawMessage `json:"typed_data" binding:"required" swaggertype:"object"`
	SignMethod string          `json:"sign_method,omitempty" example:"eth_signTypedData_v4"`
}

// OutcomeRequest labels a previously scanned target.
type OutcomeRequest struct {
	ChainID int64  `json:"chain_id" example:"1"`
	Target  string `json:"target" binding:"required"`
	Label   string `json:"label" binding:"required,oneof=safe scam" example:"scam"`
	Source  string `json:"source,omitempty" example:"incident-report"`
}
