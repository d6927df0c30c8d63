package external_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/evm-agent/internal/external"
	"github.com/kjannette/evm-agent/internal/metrics"
	"github.com/kjannette/evm-agent/internal/network"
	"github.com/kjannette/evm-agent/internal/tokens"
)

func init() {
	_ = godotenv.Load("../../.env")
}

const decimalsABI = `[{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"}]`

var wethMainnet = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

func explorerStub(t *testing.T, hits *atomic.Int32, reply func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, network.Info) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		reply(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, network.Info{ChainID: 1, Name: "Ethereum", ExplorerAPI: srv.URL + "/api", ExplorerKey: "k3y"}
}

func TestExplorerContractABI(t *testing.T) {
	var hits atomic.Int32
	_, info := explorerStub(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/api", r.URL.Path)
		assert.Equal(t, "contract", q.Get("module"))
		assert.Equal(t, "getabi", q.Get("action"))
		assert.Equal(t, wethMainnet.Hex(), q.Get("address"))
		assert.Equal(t, "k3y", q.Get("apikey"))
		json.NewEncoder(w).Encode(map[string]string{"status": "1", "message": "OK", "result": decimalsABI})
	})

	m := metrics.New()
	client := external.NewExplorerClient(external.ExplorerOptions{Metrics: m})

	got, err := client.ContractABI(context.Background(), info, wethMainnet)
	require.NoError(t, err)
	assert.JSONEq(t, decimalsABI, string(got))

	// second lookup is served from cache
	_, err = client.ContractABI(context.Background(), info, wethMainnet)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestExplorerRejection(t *testing.T) {
	var hits atomic.Int32
	_, info := explorerStub(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"status": "0", "message": "NOTOK", "result": "Contract source code not verified",
		})
	})

	client := external.NewExplorerClient(external.ExplorerOptions{})
	_, err := client.ContractABI(context.Background(), info, common.Address{1})
	require.Error(t, err)

	var xerr *external.ExplorerError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, "Contract source code not verified", xerr.Result)
	assert.Equal(t, "explorer: NOTOK: Contract source code not verified", err.Error())

	// failures are not cached
	_, _ = client.ContractABI(context.Background(), info, common.Address{1})
	assert.Equal(t, int32(2), hits.Load())
}

func TestExplorerMalformedABI(t *testing.T) {
	var hits atomic.Int32
	_, info := explorerStub(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "1", "message": "OK", "result": "not json"})
	})

	_, err := external.NewExplorerClient(external.ExplorerOptions{}).ContractABI(context.Background(), info, common.Address{2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed ABI")
}

func TestExplorerRetriesWhenConfigured(t *testing.T) {
	var hits atomic.Int32
	_, info := explorerStub(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		if hits.Load() == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "1", "message": "OK", "result": decimalsABI})
	})

	client := external.NewExplorerClient(external.ExplorerOptions{RetryAttempts: 2})
	_, err := client.ContractABI(context.Background(), info, wethMainnet)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestABIURL_NoExplorer(t *testing.T) {
	_, err := external.ABIURL(network.Info{ChainID: 5}, common.Address{})
	require.ErrorIs(t, err, external.ErrNoExplorer)
}

func duneStub(t *testing.T, states []string) *httptest.Server {
	t.Helper()
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /query/4055949/execute", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "dune-key", r.Header.Get("X-Dune-API-Key"))
		w.Write([]byte(`{"execution_id":"01HEXEC","state":"QUERY_STATE_PENDING"}`))
	})
	mux.HandleFunc("GET /execution/01HEXEC/status", func(w http.ResponseWriter, r *http.Request) {
		i := int(polls.Add(1)) - 1
		if i >= len(states) {
			i = len(states) - 1
		}
		json.NewEncoder(w).Encode(map[string]any{"state": states[i]})
	})
	mux.HandleFunc("GET /execution/01HEXEC/results/csv", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("blockchain,address,symbol,decimals\nsepolia,0xb4f1737af37711e9a5890d9510c9bb60e170cb0d,DAI,18\n"))
	})
	mux.HandleFunc("GET /query/4055949/results/csv", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("blockchain,address,symbol,decimals\nethereum,0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48,USDC,6\n"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDuneTokenListRefresh(t *testing.T) {
	srv := duneStub(t, []string{"QUERY_STATE_EXECUTING", "QUERY_STATE_COMPLETED"})
	client := external.NewDuneClient("dune-key", external.DuneOptions{BaseURL: srv.URL, PollInterval: time.Millisecond})

	body, err := client.TokenListCSV(context.Background(), external.TokenListQueryID, true)
	require.NoError(t, err)

	table, err := tokens.Parse(strings.NewReader(string(body)))
	require.NoError(t, err)
	_, ok := table.Lookup(11155111, "DAI")
	assert.True(t, ok)
}

func TestDuneTokenListLatest(t *testing.T) {
	srv := duneStub(t, nil)
	client := external.NewDuneClient("dune-key", external.DuneOptions{BaseURL: srv.URL})

	body, err := client.TokenListCSV(context.Background(), external.TokenListQueryID, false)
	require.NoError(t, err)
	assert.Contains(t, string(body), "USDC")
}

func TestDuneExecutionFailed(t *testing.T) {
	srv := duneStub(t, []string{"QUERY_STATE_FAILED"})
	client := external.NewDuneClient("dune-key", external.DuneOptions{BaseURL: srv.URL, PollInterval: time.Millisecond})

	_, err := client.TokenListCSV(context.Background(), external.TokenListQueryID, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUERY_STATE_FAILED")
}

func TestDuneExecutionTimesOut(t *testing.T) {
	srv := duneStub(t, []string{"QUERY_STATE_EXECUTING"})
	client := external.NewDuneClient("dune-key", external.DuneOptions{
		BaseURL: srv.URL, PollInterval: time.Millisecond, MaxPolls: 3,
	})

	_, err := client.TokenListCSV(context.Background(), external.TokenListQueryID, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestDuneRequiresKey(t *testing.T) {
	_, err := external.NewDuneClient("", external.DuneOptions{}).LatestResultsCSV(context.Background(), 1)
	require.Error(t, err)
}

func TestDuneLiveTokenList(t *testing.T) {
	apiKey := os.Getenv("DUNE_API_KEY")
	if apiKey == "" {
		t.Skip("DUNE_API_KEY not set, skipping")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	body, err := external.NewDuneClient(apiKey, external.DuneOptions{}).
		TokenListCSV(ctx, external.TokenListQueryID, false)
	require.NoError(t, err)

	table, err := tokens.Parse(strings.NewReader(string(body)))
	require.NoError(t, err)
	assert.NotEmpty(t, table[1], "mainnet tokens expected")
	t.Logf("token list: %d chains", len(table))
}
