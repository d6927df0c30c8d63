// Package tokens resolves swap token arguments that may be either an address
// or a ticker symbol.
//
// Symbols come from a CSV export of Dune query 4055949 with the columns
// blockchain,address,symbol,decimals. The file is read once, on first symbol
// lookup, and shared read-only afterwards until a sync replaces it.
package tokens

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kjannette/evm-agent/internal/ethereum"
	"github.com/kjannette/evm-agent/internal/logging"
)

// DuneNetworks maps the Dune "blockchain" column to chain ids. Rows for other
// blockchains are skipped.
var DuneNetworks = map[string]int64{
	"ethereum": 1,
	"gnosis":   100,
	"arbitrum": 42161,
	"base":     8453,
	"sepolia":  11155111,
}

var ErrUnknownToken = errors.New("unknown token")

type Info struct {
	Address  common.Address `json:"address"`
	Decimals int            `json:"decimals"`
}

// Table is chain id -> upper-cased symbol -> token.
type Table map[int64]map[string]Info

func (t Table) Lookup(chainID int64, symbol string) (Info, bool) {
	info, ok := t[chainID][strings.ToUpper(symbol)]
	return info, ok
}

// Parse reads the token CSV. The header row is required; column order is free.
// When a symbol repeats on a chain the first row wins.
func Parse(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read token csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, want := range []string{"blockchain", "address", "symbol", "decimals"} {
		if _, ok := col[want]; !ok {
			return nil, fmt.Errorf("token csv missing column %q", want)
		}
	}

	table := make(Table)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read token csv: %w", err)
		}

		chainID, ok := DuneNetworks[rec[col["blockchain"]]]
		if !ok {
			continue
		}
		addr := rec[col["address"]]
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("token csv line %d: invalid address %q", line, addr)
		}
		dec, err := strconv.Atoi(rec[col["decimals"]])
		if err != nil {
			return nil, fmt.Errorf("token csv line %d: invalid decimals %q", line, rec[col["decimals"]])
		}
		symbol := strings.ToUpper(strings.TrimSpace(rec[col["symbol"]]))
		if symbol == "" {
			continue
		}

		if table[chainID] == nil {
			table[chainID] = make(map[string]Info)
		}
		if _, dup := table[chainID][symbol]; !dup {
			table[chainID][symbol] = Info{Address: common.HexToAddress(addr), Decimals: dec}
		}
	}
	return table, nil
}

// ReaderSource hands out an on-chain reader per chain.
type ReaderSource interface {
	Reader(ctx context.Context, chainID int64) (*ethereum.Reader, error)
}

// Registry answers symbol-or-address lookups. The symbol table is loaded
// lazily exactly once; a load failure is remembered and returned to every
// later symbol lookup until Replace installs a good table.
type Registry struct {
	open    func() (io.ReadCloser, error)
	readers ReaderSource

	once    sync.Once
	mu      sync.RWMutex
	table   Table
	loadErr error
}

// NewRegistry loads symbols from the CSV file at path.
func NewRegistry(path string, readers ReaderSource) *Registry {
	return NewRegistryFrom(func() (io.ReadCloser, error) { return os.Open(path) }, readers)
}

func NewRegistryFrom(open func() (io.ReadCloser, error), readers ReaderSource) *Registry {
	return &Registry{open: open, readers: readers}
}

func (r *Registry) load() {
	logger := logging.Component("tokens")
	f, err := r.open()
	if err != nil {
		r.mu.Lock()
		r.loadErr = fmt.Errorf("open token list: %w", err)
		r.mu.Unlock()
		logger.Error().Err(err).Msg("token list unavailable")
		return
	}
	defer f.Close()

	table, err := Parse(f)
	r.mu.Lock()
	r.table, r.loadErr = table, err
	r.mu.Unlock()
	if err != nil {
		logger.Error().Err(err).Msg("token list unreadable")
		return
	}
	for chainID, syms := range table {
		logger.Info().Int64("chainId", chainID).Int("symbols", len(syms)).Msg("token list loaded")
	}
}

// Table returns the symbol table, loading it on first use.
func (r *Registry) Table() (Table, error) {
	r.once.Do(r.load)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table, r.loadErr
}

// Replace swaps in a freshly synced table. A pending first load is skipped.
func (r *Registry) Replace(table Table) {
	r.once.Do(func() {})
	r.mu.Lock()
	r.table, r.loadErr = table, nil
	r.mu.Unlock()
}

// WriteFile replaces path with data through a temp file and rename, so
// readers never see a partial list.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tokens-*.csv")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// Lookup resolves symbolOrAddress on chainID. Addresses are taken as given and
// their decimals read on chain; anything else is treated as a symbol.
func (r *Registry) Lookup(ctx context.Context, chainID int64, symbolOrAddress string) (Info, error) {
	if strings.HasPrefix(symbolOrAddress, "0x") && common.IsHexAddress(symbolOrAddress) {
		addr := common.HexToAddress(symbolOrAddress)
		rd, err := r.readers.Reader(ctx, chainID)
		if err != nil {
			return Info{}, err
		}
		dec, err := rd.Decimals(ctx, addr)
		if err != nil {
			return Info{}, fmt.Errorf("fetch token decimals: %w", err)
		}
		return Info{Address: addr, Decimals: int(dec)}, nil
	}

	table, err := r.Table()
	if err != nil {
		return Info{}, err
	}
	info, ok := table.Lookup(chainID, symbolOrAddress)
	if !ok {
		return Info{}, fmt.Errorf("%w: %s on chainId %d", ErrUnknownToken, symbolOrAddress, chainID)
	}
	return info, nil
}
