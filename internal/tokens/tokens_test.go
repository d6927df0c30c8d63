package tokens

import (
	"context"
	"errors"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/evm-agent/internal/ethereum"
)

const sampleCSV = `blockchain,address,symbol,decimals
sepolia,0xb4f1737af37711e9a5890d9510c9bb60e170cb0d,DAI,18
sepolia,0x0625afb445c3b6b7b929342a04a22599fd5dbb59,COW,18
ethereum,0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48,USDC,6
ethereum,0x0000000000000000000000000000000000000bad,USDC,9
solana,0x0000000000000000000000000000000000000001,SOL,9
gnosis,0xddafbb505ad214d7b80b1f830fccc89b60fb7a83,usdc,6
`

var sepoliaDAI = common.HexToAddress("0xb4f1737af37711e9a5890d9510c9bb60e170cb0d")

type decimalsCaller struct {
	decimals uint8
}

func (c decimalsCaller) CallContract(context.Context, geth.CallMsg, *big.Int) ([]byte, error) {
	return common.LeftPadBytes([]byte{c.decimals}, 32), nil
}

type staticReaders struct {
	reader *ethereum.Reader
	err    error
}

func (s staticReaders) Reader(context.Context, int64) (*ethereum.Reader, error) {
	return s.reader, s.err
}

func TestParse(t *testing.T) {
	table, err := Parse(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	dai, ok := table.Lookup(11155111, "dai")
	require.True(t, ok)
	assert.Equal(t, sepoliaDAI, dai.Address)
	assert.Equal(t, 18, dai.Decimals)

	usdc, ok := table.Lookup(1, "USDC")
	require.True(t, ok)
	assert.Equal(t, 6, usdc.Decimals, "first row for a symbol wins")

	_, ok = table.Lookup(100, "USDC")
	assert.True(t, ok)

	assert.Len(t, table, 3, "unknown blockchains are skipped")
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"missing column": "blockchain,address,symbol\nsepolia,0x0000000000000000000000000000000000000001,X\n",
		"bad address":    "blockchain,address,symbol,decimals\nsepolia,0x12,X,18\n",
		"bad decimals":   "blockchain,address,symbol,decimals\nsepolia,0x0000000000000000000000000000000000000001,X,eighteen\n",
		"empty":          "",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}

func TestLookup_Symbol(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokenlist.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))

	reg := NewRegistry(path, staticReaders{err: errors.New("rpc should not be used")})
	info, err := reg.Lookup(context.Background(), 11155111, "COW")
	require.NoError(t, err)
	assert.Equal(t, "0x0625aFB445C3B6B7B929342a04A22599fd5dBB59", info.Address.Hex())

	_, err = reg.Lookup(context.Background(), 11155111, "PEPE")
	require.ErrorIs(t, err, ErrUnknownToken)
}

func TestLookup_AddressUsesOnChainDecimals(t *testing.T) {
	reg := NewRegistryFrom(func() (io.ReadCloser, error) {
		t.Fatal("token list must not be read for address lookups")
		return nil, nil
	}, staticReaders{reader: ethereum.NewReader(decimalsCaller{decimals: 6})})

	info, err := reg.Lookup(context.Background(), 1, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	require.NoError(t, err)
	assert.Equal(t, 6, info.Decimals)
	assert.Equal(t, common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"), info.Address)
}

func TestTable_LoadsOnce(t *testing.T) {
	var opens atomic.Int32
	reg := NewRegistryFrom(func() (io.ReadCloser, error) {
		opens.Add(1)
		return io.NopCloser(strings.NewReader(sampleCSV)), nil
	}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Lookup(context.Background(), 11155111, "DAI")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), opens.Load())
}

func TestTable_LoadErrorSticks(t *testing.T) {
	reg := NewRegistry(filepath.Join(t.TempDir(), "missing.csv"), nil)

	_, err := reg.Lookup(context.Background(), 1, "USDC")
	require.Error(t, err)
	_, err2 := reg.Table()
	assert.Equal(t, err, err2)
}

func TestReplace_ClearsLoadError(t *testing.T) {
	reg := NewRegistry(filepath.Join(t.TempDir(), "missing.csv"), nil)
	_, err := reg.Table()
	require.Error(t, err)

	table, err := Parse(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	reg.Replace(table)

	info, err := reg.Lookup(context.Background(), 11155111, "dai")
	require.NoError(t, err)
	assert.Equal(t, sepoliaDAI, info.Address)
}

func TestReplace_BeforeFirstLoad(t *testing.T) {
	var opens atomic.Int32
	reg := NewRegistryFrom(func() (io.ReadCloser, error) {
		opens.Add(1)
		return nil, errors.New("should not be opened")
	}, nil)

	reg.Replace(Table{1: {"USDC": {Decimals: 6}}})
	_, err := reg.Lookup(context.Background(), 1, "USDC")
	require.NoError(t, err)
	assert.Zero(t, opens.Load())
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "tokens.csv")
	require.NoError(t, WriteFile(path, []byte(sampleCSV)))
	require.NoError(t, WriteFile(path, []byte("blockchain,address,symbol,decimals\n")))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "blockchain,address,symbol,decimals\n", string(got))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}
