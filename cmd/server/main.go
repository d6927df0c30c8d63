package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/kjannette/evm-agent/internal/api"
	"github.com/kjannette/evm-agent/internal/config"
	"github.com/kjannette/evm-agent/internal/cowswap"
	"github.com/kjannette/evm-agent/internal/external"
	"github.com/kjannette/evm-agent/internal/logging"
	"github.com/kjannette/evm-agent/internal/metrics"
	"github.com/kjannette/evm-agent/internal/network"
	"github.com/kjannette/evm-agent/internal/notifications"
	"github.com/kjannette/evm-agent/internal/scheduler"
	"github.com/kjannette/evm-agent/internal/tokens"
)

const banner = `
╔══════════════════════════════════════╗
║        EVM Agent Tools v0.1          ║
║                                      ║
╚══════════════════════════════════════╝
`

func main() {
	fmt.Print(banner)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	logging.Init(cfg.LogLevel, cfg.LogPretty)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg.Print()

	m := metrics.New()

	chains := network.NewRegistry(network.Options{
		RPCOverrides: cfg.RPCOverrides,
		ScanKeys:     cfg.ScanKeys,
	})
	toks := tokens.NewRegistry(cfg.TokenListPath, chains)

	explorer := external.NewExplorerClient(external.ExplorerOptions{
		RetryAttempts: cfg.ExplorerRetryAttempts,
		CacheTTL:      time.Duration(cfg.ABICacheMinutes) * time.Minute,
		Metrics:       m,
	})

	flowOpts := cowswap.FlowOptions{
		AppData: cowswap.AppData{
			AppCode:  cfg.CowAppCode,
			Referrer: common.HexToAddress(cfg.CowReferrer),
		},
		Metrics: m,
	}
	if notify := notifications.NewSender(cfg.WebhookURL, cfg.BotName); notify.Enabled() {
		flowOpts.Notifier = notify
	}
	swaps := cowswap.NewFlow(cowswap.NewBooks(chains, cfg.OrderBookRPS), chains, flowOpts)

	srv, err := api.NewServer(api.Deps{
		Chains:   chains,
		Tokens:   toks,
		Explorer: explorer,
		Swaps:    swaps,
		Metrics:  m,
	}, api.Options{
		Port:       cfg.Port,
		APIKey:     cfg.APIKey,
		CORSOrigin: cfg.CORSAllowOrigin,
		ServerURL:  cfg.ServerURL,
		AccountID:  cfg.AccountID,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "[API] Setup failed: %v\n", err)
		os.Exit(1)
	}

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load the token list up front so a broken file shows at startup rather
	// than on the first swap.
	if _, err := toks.Table(); err != nil {
		log.Warn().Err(err).Str("path", cfg.TokenListPath).Msg("token symbols unavailable; swaps need token addresses")
	}

	var tokenSync *scheduler.TokenSync
	if cfg.TokenSyncEnabled() {
		tokenSync = scheduler.NewTokenSync(external.NewDuneClient(cfg.DuneAPIKey, external.DuneOptions{}), toks, scheduler.TokenSyncConfig{
			Interval: time.Duration(cfg.TokenSyncHours) * time.Hour,
			QueryID:  cfg.DuneTokenQueryID,
			Path:     cfg.TokenListPath,
		})
		tokenSync.Start()
	} else {
		fmt.Println("[SCHEDULER] Token sync skipped - set DUNE_API_KEY and TOKEN_SYNC_HOURS to enable")
	}

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "[API] Server error: %v\n", err)
			os.Exit(1)
		}
	}()

	fmt.Println("\nAll services started successfully")

	<-ctx.Done()
	fmt.Println("\nShutting down gracefully...")

	if tokenSync != nil {
		tokenSync.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "[API] Shutdown error: %v\n", err)
	}
	fmt.Println("[API] Server closed")
	fmt.Println("Shutdown complete")
}
