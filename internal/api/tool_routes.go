package api

import (
	"fmt"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/kjannette/evm-agent/internal/ethereum"
	"github.com/kjannette/evm-agent/internal/network"
	"github.com/kjannette/evm-agent/internal/signreq"
	"github.com/kjannette/evm-agent/internal/validate"
)

// GET /api/tools/contract?chainId&address
func (s *Server) handleContract(w http.ResponseWriter, r *http.Request) {
	var (
		chainID int64
		address common.Address
	)
	schema := validate.Schema{
		validate.Int("chainId", &chainID),
		validate.Address("address", &address),
	}
	if err := schema.Validate(validate.Query(r.URL.Query())); err != nil {
		s.fail(w, r, "contract", err)
		return
	}

	info, err := s.deps.Chains.Resolve(chainID)
	if err != nil {
		s.fail(w, r, "contract", err)
		return
	}
	abiJSON, err := s.deps.Explorer.ContractABI(r.Context(), info, address)
	if err != nil {
		s.fail(w, r, "contract", err)
		return
	}
	writeJSON(w, http.StatusOK, abiJSON)
}

// GET /api/tools/encode?functionName&abiFragment&callParams
func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	var functionName, fragment, callParams string
	schema := validate.Schema{
		validate.String("functionName", &functionName),
		validate.String("abiFragment", &fragment),
		validate.Optional("callParams", &callParams, validate.ParseString),
	}
	if err := schema.Validate(validate.Query(r.URL.Query())); err != nil {
		s.fail(w, r, "encode", err)
		return
	}

	data, err := ethereum.EncodeCall(functionName, fragment, ethereum.SplitCallParams(callParams))
	if err != nil {
		s.fail(w, r, "encode", err)
		return
	}
	writeJSON(w, http.StatusOK, hexutil.Encode(data))
}

// wethInput is shared by wrap and unwrap: a positive amount in ether units.
func (s *Server) wethInput(r *http.Request) (network.Info, *big.Int, error) {
	var (
		chainID int64
		amount  float64
	)
	schema := validate.Schema{
		validate.PositiveFloat("amount", &amount),
		validate.Int("chainId", &chainID),
	}
	if err := schema.Validate(validate.Query(r.URL.Query())); err != nil {
		return network.Info{}, nil, err
	}

	info, err := s.deps.Chains.Resolve(chainID)
	if err != nil {
		return network.Info{}, nil, err
	}
	if info.WrappedNative == (common.Address{}) {
		return network.Info{}, nil, fmt.Errorf("Couldn't find wrapped address for Network %s (chainId=%d)", info.Name, chainID)
	}
	wei, err := ethereum.FloatToUnits(amount, 18)
	if err != nil {
		return network.Info{}, nil, err
	}
	return info, wei, nil
}

// GET /api/tools/weth/wrap?amount&chainId
func (s *Server) handleWrap(w http.ResponseWriter, r *http.Request) {
	info, wei, err := s.wethInput(r)
	if err != nil {
		s.fail(w, r, "weth_wrap", err)
		return
	}
	tx := ethereum.WrapDeposit(info.WrappedNative, wei)
	writeJSON(w, http.StatusOK, signreq.ForTransactions(info.ChainID, []ethereum.MetaTransaction{tx}))
}

// GET /api/tools/weth/unwrap?amount&chainId
func (s *Server) handleUnwrap(w http.ResponseWriter, r *http.Request) {
	info, wei, err := s.wethInput(r)
	if err != nil {
		s.fail(w, r, "weth_unwrap", err)
		return
	}
	tx, err := ethereum.UnwrapWithdraw(info.WrappedNative, wei)
	if err != nil {
		s.fail(w, r, "weth_unwrap", err)
		return
	}
	writeJSON(w, http.StatusOK, signreq.ForTransactions(info.ChainID, []ethereum.MetaTransaction{tx}))
}

// GET /api/tools/erc20?chainId&amount&token&recipient
//
// amount is in token units and scaled by the token's on-chain decimals.
func (s *Server) handleERC20(w http.ResponseWriter, r *http.Request) {
	var (
		chainID   int64
		amount    float64
		token     common.Address
		recipient common.Address
	)
	schema := validate.Schema{
		validate.Int("chainId", &chainID),
		validate.PositiveFloat("amount", &amount),
		validate.Address("token", &token),
		validate.Address("recipient", &recipient),
	}
	if err := schema.Validate(validate.Query(r.URL.Query())); err != nil {
		s.fail(w, r, "erc20", err)
		return
	}

	reader, err := s.deps.Chains.Reader(r.Context(), chainID)
	if err != nil {
		s.fail(w, r, "erc20", err)
		return
	}
	decimals, err := reader.Decimals(r.Context(), token)
	if err != nil {
		s.fail(w, r, "erc20", fmt.Errorf("read decimals of %s: %w", token.Hex(), err))
		return
	}
	units, err := ethereum.FloatToUnits(amount, int(decimals))
	if err != nil {
		s.fail(w, r, "erc20", err)
		return
	}
	tx, err := ethereum.ERC20Transfer(token, recipient, units)
	if err != nil {
		s.fail(w, r, "erc20", err)
		return
	}
	writeJSON(w, http.StatusOK, signreq.ForTransactions(chainID, []ethereum.MetaTransaction{tx}))
}
