package cowswap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"github.com/kjannette/evm-agent/internal/httputil"
	"github.com/kjannette/evm-agent/internal/network"
)

// ProtocolError is a structured rejection from the order book, e.g.
// {"errorType":"NonZeroFee","description":"Fee must be zero"}.
type ProtocolError struct {
	StatusCode  int
	ErrorType   string `json:"errorType"`
	Description string `json:"description"`
}

func (e *ProtocolError) Error() string {
	return e.ErrorType + ": " + e.Description
}

// OrderBook is the subset of the CoW order-book API the swap flow uses.
type OrderBook interface {
	Quote(ctx context.Context, req QuoteRequest) (QuoteResponse, error)
	SendOrder(ctx context.Context, order Order) (string, error)
	UploadAppData(ctx context.Context, hash common.Hash, fullAppData string) error
	OrderLink(uid string) string
}

// OrderBookClient talks to one chain's order-book API. Requests are never
// retried: a repeated order post would create a second order.
type OrderBookClient struct {
	baseURL     string
	explorerURL string
	httpClient  *http.Client
	retry       httputil.RetryConfig
}

func NewOrderBookClient(baseURL, explorerURL string, limiter *rate.Limiter) *OrderBookClient {
	retry := httputil.NoRetry
	retry.Limiter = limiter
	return &OrderBookClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		explorerURL: strings.TrimRight(explorerURL, "/"),
		httpClient:  &http.Client{Timeout: 20 * time.Second},
		retry:       retry,
	}
}

func (c *OrderBookClient) Quote(ctx context.Context, req QuoteRequest) (QuoteResponse, error) {
	var out QuoteResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/quote", req, &out); err != nil {
		return QuoteResponse{}, fmt.Errorf("quote: %w", err)
	}
	return out, nil
}

// SendOrder posts order and returns its uid.
func (c *OrderBookClient) SendOrder(ctx context.Context, order Order) (string, error) {
	var uid string
	if err := c.do(ctx, http.MethodPost, "/api/v1/orders", order, &uid); err != nil {
		return "", fmt.Errorf("send order: %w", err)
	}
	return uid, nil
}

// UploadAppData registers the full app-data document under its keccak256 hash.
func (c *OrderBookClient) UploadAppData(ctx context.Context, hash common.Hash, fullAppData string) error {
	body := map[string]string{"fullAppData": fullAppData}
	if err := c.do(ctx, http.MethodPut, "/api/v1/app_data/"+hash.Hex(), body, nil); err != nil {
		return fmt.Errorf("upload app data: %w", err)
	}
	return nil
}

func (c *OrderBookClient) OrderLink(uid string) string {
	return c.explorerURL + "/orders/" + uid
}

func (c *OrderBookClient) do(ctx context.Context, method, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	resp, err := httputil.Do(ctx, c.httpClient, c.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		perr := &ProtocolError{StatusCode: resp.StatusCode}
		if json.Unmarshal(raw, perr) == nil && perr.ErrorType != "" {
			return perr
		}
		return fmt.Errorf("order book HTTP %d: %s", resp.StatusCode, truncate(string(raw), 256))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Books hands out one order-book client per chain, all sharing a limiter.
type Books struct {
	networks *network.Registry
	limiter  *rate.Limiter

	mu      sync.Mutex
	clients map[int64]*OrderBookClient
}

// NewBooks limits outbound order-book calls to rps per second across all
// chains. rps <= 0 disables limiting.
func NewBooks(networks *network.Registry, rps float64) *Books {
	var lim *rate.Limiter
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &Books{networks: networks, limiter: lim, clients: make(map[int64]*OrderBookClient)}
}

// Book returns the client for chainID, or *network.NotSupportedError when the
// chain is unknown or has no order book.
func (b *Books) Book(chainID int64) (OrderBook, error) {
	info, err := b.networks.Resolve(chainID)
	if err != nil {
		return nil, err
	}
	if !info.SupportsOrderBook() {
		return nil, &network.NotSupportedError{ChainID: chainID}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.clients[chainID]
	if !ok {
		c = NewOrderBookClient(info.OrderBookAPI, info.OrderExplorer, b.limiter)
		b.clients[chainID] = c
	}
	return c, nil
}
