// Package bytecode extracts coarse capability markers from deployed EVM code
// without executing it.
package bytecode

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	opPUSH1        = 0x60
	opPUSH4        = 0x63
	opPUSH32       = 0x7f
	opDELEGATECALL = 0xf4
	opSELFDESTRUCT = 0xff
)

type selector [4]byte

var (
	selMint          = selector{0x40, 0xc1, 0x0f, 0x19} // mint(address,uint256)
	selBlacklist     = selector{0x1d, 0x3b, 0x9e, 0xdf}
	selIsBlacklisted = selector{0xfe, 0x57, 0x5a, 0x87}
	selUpgradeTo     = selector{0x36, 0x59, 0xcf, 0xe6}
	selUpgradeToCall = selector{0x4f, 0x1e, 0xf2, 0x86}
	selPause         = selector{0x84, 0x56, 0xcb, 0x59}
	selUnpause       = selector{0x3f, 0x4b, 0xa8, 0x3a}
	selOwner         = selector{0x8d, 0xa5, 0xcb, 0x5b}
	selTransferOwner = selector{0xf2, 0xfd, 0xe3, 0x8b}
	selRenounce      = selector{0x71, 0x50, 0x18, 0xa6}
	selTransfer      = selector{0xa9, 0x05, 0x9c, 0xbb}
	selBalanceOf     = selector{0x70, 0xa0, 0x82, 0x31}
	selApprove       = selector{0x09, 0x5e, 0xa7, 0xb3}
	ifaceERC721      = selector{0x80, 0xac, 0x58, 0xcd}
	ifaceERC1155     = selector{0xd9, 0xb6, 0x7a, 0x26}

	// EIP-1967 implementation and admin slots
	slotImplementation = common.HexToHash("0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc")
	slotAdmin          = common.HexToHash("0xb53127684a568b3173ae13b9f8a6016e243e63b6e8ee1178d6a717850b5d6103")

	// EIP-1167 minimal proxy runtime prefix
	minimalProxyPrefix = []byte{0x36, 0x3d, 0x3d, 0x37, 0x3d, 0x3d, 0x3d, 0x36, 0x3d, 0x73}
)

// TokenType classifies the token standard a contract appears to implement.
type TokenType string

const (
	TokenNone    TokenType = ""
	TokenERC20   TokenType = "ERC20"
	TokenERC721  TokenType = "ERC721"
	TokenERC1155 TokenType = "ERC1155"
)

// Features are the markers found in a contract's runtime code.
type Features struct {
	HasCode         bool      `json:"has_code"`
	CodeHash        string    `json:"code_hash,omitempty"`
	HasMint         bool      `json:"has_mint"`
	HasProxy        bool      `json:"has_proxy"`
	HasPause        bool      `json:"has_pause"`
	HasBlacklist    bool      `json:"has_blacklist"`
	HasOwner        bool      `json:"has_owner"`
	CanRenounce     bool      `json:"can_renounce"`
	HasSelfDestruct bool      `json:"has_selfdestruct"`
	TokenType       TokenType `json:"token_type,omitempty"`
}

// IsToken reports whether any token standard was detected.
func (f Features) IsToken() bool { return f.TokenType != TokenNone }

// Scan walks code opcode by opcode, skipping PUSH immediates so that data
// bytes are never mistaken for instructions.
func Scan(code []byte) Features {
	f := Features{HasCode: len(code) > 0}
	if !f.HasCode {
		return f
	}
	f.CodeHash = crypto.Keccak256Hash(code).Hex()

	selectors := make(map[selector]struct{})
	hasDelegateCall := false
	hasProxySlot := false

	for pc := 0; pc < len(code); pc++ {
		op := code[pc]
		switch {
		case op >= opPUSH1 && op <= opPUSH32:
			n := int(op-opPUSH1) + 1
			end := pc + 1 + n
			if end > len(code) {
				end = len(code)
			}
			data := code[pc+1 : end]
			if op == opPUSH4 && len(data) == 4 {
				selectors[selector(data)] = struct{}{}
			}
			if op == opPUSH32 && len(data) == 32 {
				h := common.BytesToHash(data)
				if h == slotImplementation || h == slotAdmin {
					hasProxySlot = true
				}
			}
			pc = end - 1
		case op == opDELEGATECALL:
			hasDelegateCall = true
		case op == opSELFDESTRUCT:
			f.HasSelfDestruct = true
		}
	}

	has := func(s selector) bool {
		_, ok := selectors[s]
		return ok
	}

	f.HasMint = has(selMint)
	f.HasBlacklist = has(selBlacklist) || has(selIsBlacklisted)
	f.HasPause = has(selPause) || has(selUnpause)
	f.HasOwner = has(selOwner) || has(selTransferOwner)
	f.CanRenounce = has(selRenounce)
	f.HasProxy = hasProxySlot ||
		has(selUpgradeTo) || has(selUpgradeToCall) ||
		bytes.HasPrefix(code, minimalProxyPrefix) ||
		(hasDelegateCall && len(code) < 200)

	switch {
	case has(ifaceERC1155):
		f.TokenType = TokenERC1155
	case has(ifaceERC721):
		f.TokenType = TokenERC721
	case has(selTransfer) && has(selBalanceOf), has(selApprove) && has(selBalanceOf):
		f.TokenType = TokenERC20
	}
	return f
}
