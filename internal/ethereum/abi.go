package ethereum

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Minimal ABIs for the contracts the tools encode against, only the methods we call.

var (
	erc20ABI      = mustParseABI(erc20JSON)
	wethABI       = mustParseABI(wethJSON)
	settlementABI = mustParseABI(settlementJSON)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("parse builtin ABI: " + err.Error())
	}
	return parsed
}

const erc20JSON = `[
	{
		"name": "decimals",
		"type": "function",
		"stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "uint8"}]
	},
	{
		"name": "balanceOf",
		"type": "function",
		"stateMutability": "view",
		"inputs": [{"name": "account", "type": "address"}],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"name": "allowance",
		"type": "function",
		"stateMutability": "view",
		"inputs": [
			{"name": "owner",   "type": "address"},
			{"name": "spender", "type": "address"}
		],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"name": "approve",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "spender", "type": "address"},
			{"name": "amount",  "type": "uint256"}
		],
		"outputs": [{"name": "", "type": "bool"}]
	},
	{
		"name": "transfer",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "to",     "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"outputs": [{"name": "", "type": "bool"}]
	}
]`

const wethJSON = `[
	{
		"name": "deposit",
		"type": "function",
		"stateMutability": "payable",
		"inputs": [],
		"outputs": []
	},
	{
		"name": "withdraw",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [{"name": "wad", "type": "uint256"}],
		"outputs": []
	}
]`

const settlementJSON = `[
	{
		"name": "setPreSignature",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "orderUid", "type": "bytes"},
			{"name": "signed",   "type": "bool"}
		],
		"outputs": []
	}
]`
