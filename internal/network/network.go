// Package network maps chain ids to the per-chain endpoints and contract
// addresses the tools depend on.
package network

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/kjannette/evm-agent/internal/ethereum"
	"github.com/kjannette/evm-agent/internal/logging"
)

// Info describes one supported chain. OrderBookAPI is empty where the CoW
// order book is not deployed.
type Info struct {
	ChainID       int64
	Name          string
	WrappedNative common.Address
	RPCURL        string
	ExplorerAPI   string
	ExplorerKey   string
	OrderBookAPI  string
	// OrderExplorer is the order page prefix, e.g. https://explorer.cow.fi/sepolia.
	OrderExplorer string
}

func (i Info) SupportsOrderBook() bool { return i.OrderBookAPI != "" }

type NotSupportedError struct {
	ChainID int64
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("Network with chainId %d is not supported", e.ChainID)
}

const cowExplorer = "https://explorer.cow.fi"

var builtin = []Info{
	{
		ChainID:       1,
		Name:          "Ethereum",
		WrappedNative: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		RPCURL:        "https://eth.llamarpc.com",
		ExplorerAPI:   "https://api.etherscan.io/api",
		OrderBookAPI:  "https://api.cow.fi/mainnet",
		OrderExplorer: cowExplorer,
	},
	{
		ChainID:       10,
		Name:          "OP Mainnet",
		WrappedNative: common.HexToAddress("0x4200000000000000000000000000000000000006"),
		RPCURL:        "https://mainnet.optimism.io",
		ExplorerAPI:   "https://api-optimistic.etherscan.io/api",
	},
	{
		ChainID:       56,
		Name:          "BNB Smart Chain",
		WrappedNative: common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"),
		RPCURL:        "https://bsc-dataseed.binance.org",
		ExplorerAPI:   "https://api.bscscan.com/api",
	},
	{
		ChainID:       100,
		Name:          "Gnosis",
		WrappedNative: common.HexToAddress("0xe91D153E0b41518A2Ce8Dd3D7944Fa863463a97d"),
		RPCURL:        "https://rpc.gnosischain.com",
		ExplorerAPI:   "https://api.gnosisscan.io/api",
		OrderBookAPI:  "https://api.cow.fi/xdai",
		OrderExplorer: cowExplorer + "/gc",
	},
	{
		ChainID:       137,
		Name:          "Polygon",
		WrappedNative: common.HexToAddress("0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270"),
		RPCURL:        "https://polygon-rpc.com",
		ExplorerAPI:   "https://api.polygonscan.com/api",
	},
	{
		ChainID:       8453,
		Name:          "Base",
		WrappedNative: common.HexToAddress("0x4200000000000000000000000000000000000006"),
		RPCURL:        "https://mainnet.base.org",
		ExplorerAPI:   "https://api.basescan.org/api",
		OrderBookAPI:  "https://api.cow.fi/base",
		OrderExplorer: cowExplorer + "/base",
	},
	{
		ChainID:       42161,
		Name:          "Arbitrum One",
		WrappedNative: common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"),
		RPCURL:        "https://arb1.arbitrum.io/rpc",
		ExplorerAPI:   "https://api.arbiscan.io/api",
		OrderBookAPI:  "https://api.cow.fi/arbitrum_one",
		OrderExplorer: cowExplorer + "/arb1",
	},
	{
		ChainID:       43114,
		Name:          "Avalanche",
		WrappedNative: common.HexToAddress("0xB31f66AA3C1e785363F0875A1B74E27b85FD66c7"),
		RPCURL:        "https://api.avax.network/ext/bc/C/rpc",
		ExplorerAPI:   "https://api.snowtrace.io/api",
	},
	{
		ChainID:       11155111,
		Name:          "Sepolia",
		WrappedNative: common.HexToAddress("0xfFf9976782d46CC05630D1f6eBAb18b2324d6B14"),
		RPCURL:        "https://rpc.sepolia.org",
		ExplorerAPI:   "https://api-sepolia.etherscan.io/api",
		OrderBookAPI:  "https://api.cow.fi/sepolia",
		OrderExplorer: cowExplorer + "/sepolia",
	},
}

// Dialer opens an eth_call backend for an RPC URL.
type Dialer func(ctx context.Context, rpcURL string) (ethereum.ContractCaller, error)

func dialEthclient(ctx context.Context, rpcURL string) (ethereum.ContractCaller, error) {
	return ethclient.DialContext(ctx, rpcURL)
}

type Options struct {
	// RPCOverrides replaces the default RPC URL per chain id.
	RPCOverrides map[int64]string
	// ScanKeys holds block-explorer API keys per chain id.
	ScanKeys map[int64]string
	// Dialer defaults to ethclient.DialContext.
	Dialer Dialer
}

// Registry resolves chain ids and hands out one RPC reader per chain.
type Registry struct {
	chains map[int64]Info
	dial   Dialer

	mu      sync.Mutex
	readers map[int64]*ethereum.Reader
}

func NewRegistry(opts Options) *Registry {
	return NewRegistryWith(builtin, opts)
}

// NewRegistryWith builds a registry over a custom chain table.
func NewRegistryWith(table []Info, opts Options) *Registry {
	r := &Registry{
		chains:  make(map[int64]Info, len(table)),
		dial:    opts.Dialer,
		readers: make(map[int64]*ethereum.Reader),
	}
	if r.dial == nil {
		r.dial = dialEthclient
	}
	for _, info := range table {
		if url, ok := opts.RPCOverrides[info.ChainID]; ok && url != "" {
			info.RPCURL = url
		}
		info.ExplorerKey = opts.ScanKeys[info.ChainID]
		r.chains[info.ChainID] = info
	}
	return r
}

func (r *Registry) Resolve(chainID int64) (Info, error) {
	info, ok := r.chains[chainID]
	if !ok {
		return Info{}, &NotSupportedError{ChainID: chainID}
	}
	return info, nil
}

// ChainIDs returns every supported chain id in ascending order.
func (r *Registry) ChainIDs() []int64 {
	ids := make([]int64, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Reader returns the cached contract reader for chainID, dialing on first use.
func (r *Registry) Reader(ctx context.Context, chainID int64) (*ethereum.Reader, error) {
	info, err := r.Resolve(chainID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rd, ok := r.readers[chainID]; ok {
		return rd, nil
	}
	caller, err := r.dial(ctx, info.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s rpc: %w", info.Name, err)
	}
	rd := ethereum.NewReader(caller)
	r.readers[chainID] = rd

	logger := logging.Component("network")
	logger.Debug().Int64("chainId", chainID).Str("network", info.Name).Msg("rpc client ready")
	return rd, nil
}
