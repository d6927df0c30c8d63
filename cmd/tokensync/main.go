// Command tokensync refreshes the token symbol list from Dune.
//
// It runs one token sync outside the server schedule: the saved query's CSV
// must parse as a non-empty token table before TOKEN_LIST_PATH is replaced,
// and the replacement is atomic so a running server never reads a
// half-written file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kjannette/evm-agent/internal/config"
	"github.com/kjannette/evm-agent/internal/external"
	"github.com/kjannette/evm-agent/internal/logging"
	"github.com/kjannette/evm-agent/internal/scheduler"
)

func main() {
	refresh := flag.Bool("refresh", false, "execute the query before downloading instead of using the latest stored results")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall deadline")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	logging.Init(cfg.LogLevel, cfg.LogPretty)

	if cfg.DuneAPIKey == "" {
		fmt.Fprintln(os.Stderr, "DUNE_API_KEY is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	log.Info().Int("queryId", cfg.DuneTokenQueryID).Bool("refresh", *refresh).Msg("fetching token list")

	sync := scheduler.NewTokenSync(external.NewDuneClient(cfg.DuneAPIKey, external.DuneOptions{}), nil, scheduler.TokenSyncConfig{
		QueryID: cfg.DuneTokenQueryID,
		Refresh: *refresh,
		Path:    cfg.TokenListPath,
		Timeout: *timeout,
		OnSync: func(symbols int) {
			log.Info().Str("path", cfg.TokenListPath).Int("symbols", symbols).Msg("token list updated")
		},
	})
	if err := sync.SyncNow(ctx); err != nil {
		log.Error().Err(err).Msg("token sync failed")
		os.Exit(1)
	}
}
