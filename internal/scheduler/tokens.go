// Package scheduler runs the periodic token-list sync.
package scheduler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kjannette/evm-agent/internal/logging"
	"github.com/kjannette/evm-agent/internal/tokens"
)

var errEmptyList = errors.New("token list has no symbols for supported chains")

// TokenSource fetches the token CSV; *external.DuneClient implements it.
type TokenSource interface {
	TokenListCSV(ctx context.Context, queryID int, refresh bool) ([]byte, error)
}

// TableSink receives each good table; *tokens.Registry implements it. A nil
// sink only rewrites Path.
type TableSink interface {
	Replace(table tokens.Table)
}

type TokenSyncConfig struct {
	Interval time.Duration // e.g. 24*time.Hour
	QueryID  int
	// Refresh executes the query before each download.
	Refresh bool
	// Path is rewritten after every good sync; empty keeps the list in memory only.
	Path    string
	Timeout time.Duration
	OnSync  func(symbols int)
}

type TokenSync struct {
	source TokenSource
	sink   TableSink
	cfg    TokenSyncConfig
	logger zerolog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

func NewTokenSync(source TokenSource, sink TableSink, cfg TokenSyncConfig) *TokenSync {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &TokenSync{
		source: source,
		sink:   sink,
		cfg:    cfg,
		logger: logging.Component("token-sync"),
	}
}

// Start syncs once in the background and then every Interval until Stop.
func (s *TokenSync) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn().Msg("already running")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stop := s.stopCh
	s.mu.Unlock()

	go func() {
		s.syncWithTimeout("initial")

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.syncWithTimeout("scheduled")
			}
		}
	}()

	s.logger.Info().Dur("interval", s.cfg.Interval).Int("queryId", s.cfg.QueryID).Msg("started")
}

func (s *TokenSync) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.stopCh)
	s.running = false
	s.logger.Info().Msg("stopped")
}

func (s *TokenSync) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SyncNow runs a sync outside the schedule. cmd/tokensync uses it for one-off
// refreshes.
func (s *TokenSync) SyncNow(ctx context.Context) error {
	return s.sync(ctx)
}

func (s *TokenSync) syncWithTimeout(trigger string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()
	if err := s.sync(ctx); err != nil {
		s.logger.Error().Err(err).Str("trigger", trigger).Msg("token sync failed, keeping current list")
	}
}

func (s *TokenSync) sync(ctx context.Context) error {
	data, err := s.source.TokenListCSV(ctx, s.cfg.QueryID, s.cfg.Refresh)
	if err != nil {
		return fmt.Errorf("fetch token list: %w", err)
	}
	table, err := tokens.Parse(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parse token list: %w", err)
	}

	symbols := 0
	for _, syms := range table {
		symbols += len(syms)
	}
	// an empty export would wipe every symbol
	if symbols == 0 {
		return errEmptyList
	}

	if s.cfg.Path != "" {
		if err := tokens.WriteFile(s.cfg.Path, data); err != nil {
			return err
		}
	}
	if s.sink != nil {
		s.sink.Replace(table)
	}

	s.logger.Info().Int("chains", len(table)).Int("symbols", symbols).Msg("token list synced")
	if s.cfg.OnSync != nil {
		s.cfg.OnSync(symbols)
	}
	return nil
}
