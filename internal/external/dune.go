package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/kjannette/evm-agent/internal/httputil"
	"github.com/kjannette/evm-agent/internal/logging"
)

// TokenListQueryID is the Dune query exporting ERC-20 metadata as
// blockchain,address,symbol,decimals.
const TokenListQueryID = 4055949

// DuneClient pulls saved-query results from the Dune API as CSV.
type DuneClient struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	retry        httputil.RetryConfig
	pollInterval time.Duration
	maxPolls     int
	logger       zerolog.Logger
}

type DuneOptions struct {
	// BaseURL defaults to https://api.dune.com/api/v1.
	BaseURL      string
	PollInterval time.Duration
	MaxPolls     int
}

func NewDuneClient(apiKey string, opts DuneOptions) *DuneClient {
	base := opts.BaseURL
	if base == "" {
		base = "https://api.dune.com/api/v1"
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}
	maxPolls := opts.MaxPolls
	if maxPolls <= 0 {
		maxPolls = 60
	}

	return &DuneClient{
		apiKey:       apiKey,
		baseURL:      base,
		httpClient:   &http.Client{Timeout: 90 * time.Second},
		pollInterval: poll,
		maxPolls:     maxPolls,
		logger:       logging.Component("dune"),
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   3 * time.Second,
			MaxDelay:    15 * time.Second,
		},
	}
}

// TokenListCSV returns the query's CSV. With refresh set the query is executed
// first and the fresh execution's results are returned; otherwise the latest
// stored results are used.
func (d *DuneClient) TokenListCSV(ctx context.Context, queryID int, refresh bool) ([]byte, error) {
	if !refresh {
		return d.LatestResultsCSV(ctx, queryID)
	}
	execID, err := d.ExecuteQuery(ctx, queryID)
	if err != nil {
		return nil, err
	}
	if err := d.WaitForExecution(ctx, execID); err != nil {
		return nil, err
	}
	return d.ExecutionResultsCSV(ctx, execID)
}

func (d *DuneClient) LatestResultsCSV(ctx context.Context, queryID int) ([]byte, error) {
	return d.getCSV(ctx, fmt.Sprintf("%s/query/%d/results/csv", d.baseURL, queryID))
}

func (d *DuneClient) ExecutionResultsCSV(ctx context.Context, executionID string) ([]byte, error) {
	return d.getCSV(ctx, fmt.Sprintf("%s/execution/%s/results/csv", d.baseURL, executionID))
}

// ExecuteQuery starts a run of a saved query and returns its execution id.
func (d *DuneClient) ExecuteQuery(ctx context.Context, queryID int) (string, error) {
	if d.apiKey == "" {
		return "", fmt.Errorf("dune API key not configured")
	}

	resp, err := httputil.Do(ctx, d.httpClient, d.retry, func() (*http.Request, error) {
		return d.newRequest(ctx, http.MethodPost, fmt.Sprintf("%s/query/%d/execute", d.baseURL, queryID))
	})
	if err != nil {
		return "", fmt.Errorf("submit query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("dune query execution failed: status %d", resp.StatusCode)
	}

	var execResult struct {
		ExecutionID string `json:"execution_id"`
		State       string `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&execResult); err != nil {
		return "", fmt.Errorf("decode execution response: %w", err)
	}
	if execResult.ExecutionID == "" {
		return "", fmt.Errorf("dune did not return an execution ID")
	}

	d.logger.Info().Int("queryId", queryID).Str("executionId", execResult.ExecutionID).Msg("query submitted")
	return execResult.ExecutionID, nil
}

// WaitForExecution polls the execution state until it settles or maxPolls is
// reached. Transient status-check failures are skipped.
func (d *DuneClient) WaitForExecution(ctx context.Context, executionID string) error {
	for attempt := range d.maxPolls {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.pollInterval):
		}

		statusReq, err := d.newRequest(ctx, http.MethodGet, fmt.Sprintf("%s/execution/%s/status", d.baseURL, executionID))
		if err != nil {
			return err
		}
		statusResp, err := d.httpClient.Do(statusReq)
		if err != nil {
			d.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("status check failed")
			continue
		}

		var statusData struct {
			State string `json:"state"`
			Error any    `json:"error"`
		}
		decodeErr := json.NewDecoder(statusResp.Body).Decode(&statusData)
		statusResp.Body.Close()
		if decodeErr != nil {
			d.logger.Warn().Err(decodeErr).Int("attempt", attempt+1).Msg("status decode failed")
			continue
		}

		switch statusData.State {
		case "QUERY_STATE_COMPLETED":
			return nil
		case "QUERY_STATE_FAILED", "QUERY_STATE_CANCELLED", "QUERY_STATE_EXPIRED":
			msg := "unknown error"
			if statusData.Error != nil {
				msg = fmt.Sprint(statusData.Error)
			}
			return fmt.Errorf("dune query %s: %s", statusData.State, msg)
		default:
			d.logger.Debug().Str("state", statusData.State).Msg("waiting for query")
		}
	}

	return fmt.Errorf("dune query timed out after %s", time.Duration(d.maxPolls)*d.pollInterval)
}

func (d *DuneClient) getCSV(ctx context.Context, endpoint string) ([]byte, error) {
	if d.apiKey == "" {
		return nil, fmt.Errorf("dune API key not configured")
	}

	resp, err := httputil.Do(ctx, d.httpClient, d.retry, func() (*http.Request, error) {
		return d.newRequest(ctx, http.MethodGet, endpoint)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch results: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("failed to fetch dune results: status %d: %s", resp.StatusCode, msg)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	if len(body) == 0 {
		return nil, errors.New("dune returned an empty result set")
	}
	return body, nil
}

func (d *DuneClient) newRequest(ctx context.Context, method, endpoint string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Dune-API-Key", d.apiKey)
	return req, nil
}
