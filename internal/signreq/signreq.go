// Package signreq wraps meta transactions into the request shape a wallet
// signs. The signer itself is chosen by the wallet, so "from" is always the
// zero address here.
package signreq

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kjannette/evm-agent/internal/ethereum"
)

type Method string

const (
	SendTransaction Method = "eth_sendTransaction"
	Sign            Method = "eth_sign"
	PersonalSign    Method = "personal_sign"
	SignTypedData   Method = "eth_signTypedData"
	SignTypedDataV4 Method = "eth_signTypedData_v4"
)

// Methods lists every supported method in the order the plugin manifest advertises them.
var Methods = []Method{Sign, PersonalSign, SendTransaction, SignTypedData, SignTypedDataV4}

func (m Method) Valid() bool {
	for _, known := range Methods {
		if m == known {
			return true
		}
	}
	return false
}

// TxParams is one transaction inside an eth_sendTransaction request. All
// fields are 0x-prefixed hex; To is checksummed.
type TxParams struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value"`
	Data  string `json:"data"`
}

// SignRequest is what the wallet receives. Params holds []TxParams for
// eth_sendTransaction and []string for every other method.
type SignRequest struct {
	Method  Method `json:"method"`
	ChainID int64  `json:"chainId"`
	Params  any    `json:"params"`
}

// Transactions returns the transaction params, or nil for message requests.
func (r SignRequest) Transactions() []TxParams {
	txs, _ := r.Params.([]TxParams)
	return txs
}

// UnmarshalJSON restores Params to its concrete type based on Method.
func (r *SignRequest) UnmarshalJSON(b []byte) error {
	var raw struct {
		Method  Method          `json:"method"`
		ChainID int64           `json:"chainId"`
		Params  json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	r.Method, r.ChainID = raw.Method, raw.ChainID
	if raw.Method == SendTransaction {
		var txs []TxParams
		if err := json.Unmarshal(raw.Params, &txs); err != nil {
			return fmt.Errorf("decode transaction params: %w", err)
		}
		r.Params = txs
		return nil
	}
	var msgs []string
	if err := json.Unmarshal(raw.Params, &msgs); err != nil {
		return fmt.Errorf("decode %s params: %w", raw.Method, err)
	}
	msg, err := forMessage(raw.Method, raw.ChainID, msgs)
	if err != nil {
		return err
	}
	*r = msg
	return nil
}

// ForTransactions bundles txs, in order, into one eth_sendTransaction request.
func ForTransactions(chainID int64, txs []ethereum.MetaTransaction) SignRequest {
	params := make([]TxParams, len(txs))
	for i, tx := range txs {
		params[i] = TxParams{
			From:  common.Address{}.Hex(),
			To:    tx.To.Hex(),
			Value: tx.ValueHex(),
			Data:  tx.DataHex(),
		}
	}
	return SignRequest{Method: SendTransaction, ChainID: chainID, Params: params}
}

// forMessage builds a signing request for the non-transaction methods.
func forMessage(method Method, chainID int64, params []string) (SignRequest, error) {
	if !method.Valid() {
		return SignRequest{}, fmt.Errorf("unknown signing method %q", method)
	}
	if method == SendTransaction {
		return SignRequest{}, fmt.Errorf("%s requests carry transaction params", method)
	}
	out := make([]string, len(params))
	copy(out, params)
	return SignRequest{Method: method, ChainID: chainID, Params: out}, nil
}
