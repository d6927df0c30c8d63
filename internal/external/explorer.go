package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	cache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/kjannette/evm-agent/internal/httputil"
	"github.com/kjannette/evm-agent/internal/logging"
	"github.com/kjannette/evm-agent/internal/metrics"
	"github.com/kjannette/evm-agent/internal/network"
)

// ExplorerError is a non-success answer from an Etherscan-style API, e.g.
// "Contract source code not verified".
type ExplorerError struct {
	Message string
	Result  string
}

func (e *ExplorerError) Error() string {
	if e.Result != "" && e.Result != e.Message {
		return fmt.Sprintf("explorer: %s: %s", e.Message, e.Result)
	}
	return "explorer: " + e.Message
}

var ErrNoExplorer = errors.New("no block explorer API for network")

// ExplorerClient fetches verified contract ABIs. Verified ABIs never change,
// so successful answers are cached per chain and address.
type ExplorerClient struct {
	httpClient *http.Client
	retry      httputil.RetryConfig
	cache      *cache.Cache
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

type ExplorerOptions struct {
	RetryAttempts int
	CacheTTL      time.Duration
	Metrics       *metrics.Metrics
}

func NewExplorerClient(opts ExplorerOptions) *ExplorerClient {
	retry := httputil.NoRetry
	if opts.RetryAttempts > 1 {
		retry = httputil.IdempotentRetry
		retry.MaxAttempts = opts.RetryAttempts
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 60 * time.Minute
	}
	return &ExplorerClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		retry:      retry,
		cache:      cache.New(ttl, 2*ttl),
		metrics:    opts.Metrics,
		logger:     logging.Component("explorer"),
	}
}

// ABIURL builds the getabi request for address on the given network.
func ABIURL(info network.Info, address common.Address) (string, error) {
	if info.ExplorerAPI == "" {
		return "", fmt.Errorf("%w: chainId %d", ErrNoExplorer, info.ChainID)
	}
	q := url.Values{}
	q.Set("module", "contract")
	q.Set("action", "getabi")
	q.Set("address", address.Hex())
	q.Set("apikey", info.ExplorerKey)
	return info.ExplorerAPI + "?" + q.Encode(), nil
}

// ContractABI returns the verified ABI JSON array for address.
func (c *ExplorerClient) ContractABI(ctx context.Context, info network.Info, address common.Address) (json.RawMessage, error) {
	key := strconv.FormatInt(info.ChainID, 10) + ":" + strings.ToLower(address.Hex())
	if cached, ok := c.cache.Get(key); ok {
		c.metrics.RecordABILookup(true)
		return cached.(json.RawMessage), nil
	}
	c.metrics.RecordABILookup(false)

	endpoint, err := ABIURL(info, address)
	if err != nil {
		return nil, err
	}

	resp, err := httputil.Do(ctx, c.httpClient, c.retry, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("explorer request: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Result  string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode explorer response (HTTP %d): %w", resp.StatusCode, err)
	}
	if body.Status != "1" {
		c.logger.Warn().
			Int64("chainId", info.ChainID).
			Str("address", address.Hex()).
			Str("message", body.Message).
			Str("result", body.Result).
			Msg("abi fetch rejected")
		return nil, &ExplorerError{Message: body.Message, Result: body.Result}
	}

	if _, err := abi.JSON(strings.NewReader(body.Result)); err != nil {
		return nil, fmt.Errorf("explorer returned malformed ABI: %w", err)
	}
	raw := json.RawMessage(body.Result)
	c.cache.SetDefault(key, raw)
	return raw, nil
}
