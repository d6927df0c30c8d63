package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// ErrNoContractCode is returned when an eth_call comes back empty, which is
// what nodes answer for addresses without deployed code.
var ErrNoContractCode = errors.New("no contract code at address")

// ContractCaller is the read-only slice of ethclient.Client the tools need.
type ContractCaller interface {
	CallContract(ctx context.Context, msg geth.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Reader performs read-only contract calls against a single chain.
type Reader struct {
	caller ContractCaller
}

func NewReader(caller ContractCaller) *Reader {
	return &Reader{caller: caller}
}

// CallContract performs an eth_call at the latest block and returns the raw result.
func (r *Reader) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := r.caller.CallContract(ctx, geth.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("call %s: %w", to.Hex(), ErrNoContractCode)
	}
	return out, nil
}

func (r *Reader) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	data, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, err
	}
	out, err := r.CallContract(ctx, token, data)
	if err != nil {
		return 0, fmt.Errorf("decimals call: %w", err)
	}
	vals, err := erc20ABI.Unpack("decimals", out)
	if err != nil {
		return 0, fmt.Errorf("decode decimals: %w", err)
	}
	dec, ok := vals[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decode decimals: unexpected type %T", vals[0])
	}
	return dec, nil
}

func (r *Reader) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	out, err := r.CallContract(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("allowance call: %w", err)
	}
	return unpackUint256("allowance", out)
}

func unpackUint256(method string, out []byte) (*big.Int, error) {
	vals, err := erc20ABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", method, err)
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("decode %s: unexpected type %T", method, vals[0])
	}
	return v, nil
}
