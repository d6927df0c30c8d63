package ethereum

import (
	"context"
	"errors"
	"math/big"
	"testing"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCaller answers eth_call by contract address.
type stubCaller struct {
	results map[common.Address][]byte
	err     error
	calls   []geth.CallMsg
}

func (s *stubCaller) CallContract(_ context.Context, msg geth.CallMsg, _ *big.Int) ([]byte, error) {
	s.calls = append(s.calls, msg)
	if s.err != nil {
		return nil, s.err
	}
	return s.results[*msg.To], nil
}

func TestReader_Decimals(t *testing.T) {
	token := common.HexToAddress("0xb4f1737af37711e9a5890d9510c9bb60e170cb0d")
	caller := &stubCaller{results: map[common.Address][]byte{
		token: hexutil.MustDecode("0x" + word("12")),
	}}

	dec, err := NewReader(caller).Decimals(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, uint8(18), dec)
	require.Len(t, caller.calls, 1)
	assert.Equal(t, "0x313ce567", hexutil.Encode(caller.calls[0].Data))
}

func TestReader_Allowance(t *testing.T) {
	token := common.HexToAddress("0xb4f1737af37711e9a5890d9510c9bb60e170cb0d")
	caller := &stubCaller{results: map[common.Address][]byte{
		token: hexutil.MustDecode("0x" + word("64")),
	}}

	got, err := NewReader(caller).Allowance(context.Background(), token,
		common.HexToAddress("0x7fa8e8264985C7525Fc50F98aC1A9b3765405489"), vaultRelayer)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Int64())
	assert.Equal(t, "0xdd62ed3e", hexutil.Encode(caller.calls[0].Data[:4]))
}

func TestReader_NonContractFails(t *testing.T) {
	caller := &stubCaller{results: map[common.Address][]byte{}}

	_, err := NewReader(caller).Allowance(context.Background(), common.Address{},
		common.HexToAddress("0x7fa8e8264985C7525Fc50F98aC1A9b3765405489"), vaultRelayer)
	require.ErrorIs(t, err, ErrNoContractCode)

	_, err = NewReader(caller).Decimals(context.Background(), common.Address{})
	require.ErrorIs(t, err, ErrNoContractCode)
}

func TestReader_RPCError(t *testing.T) {
	rpcErr := errors.New("connection refused")
	caller := &stubCaller{err: rpcErr}

	_, err := NewReader(caller).Allowance(context.Background(), common.Address{1}, common.Address{2}, vaultRelayer)
	require.ErrorIs(t, err, rpcErr)
}
