package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const rpcURLPrefix = "RPC_URL_"

type Config struct {
	// Server
	Port            int
	APIKey          string
	CORSAllowOrigin string
	ServerURL       string
	LogLevel        string
	LogPretty       bool

	// Plugin manifest
	AccountID string

	// Chains
	ScanKeys     map[int64]string
	RPCOverrides map[int64]string

	// Tokens
	TokenListPath    string
	DuneAPIKey       string
	DuneTokenQueryID int
	// TokenSyncHours > 0 refreshes the list from Dune while the server runs.
	TokenSyncHours int

	// CoW order book
	CowAppCode   string
	CowReferrer  string
	OrderBookRPS float64

	// Block explorer
	ExplorerRetryAttempts int
	ABICacheMinutes       int

	// Notifications
	WebhookURL string
	BotName    string

	// problems found while reading the environment, reported by Validate
	problems []string
	warnings []string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		// Server
		Port:            envInt("PORT", 3001),
		APIKey:          envStr("API_KEY", ""),
		CORSAllowOrigin: envStr("CORS_ALLOW_ORIGIN", "*"),
		ServerURL:       envStr("SERVER_URL", "http://localhost:3001"),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		LogPretty:       envBool("LOG_PRETTY", false),

		// Tokens
		TokenListPath:    envStr("TOKEN_LIST_PATH", "data/tokens.csv"),
		DuneAPIKey:       envStr("DUNE_API_KEY", ""),
		DuneTokenQueryID: envInt("DUNE_TOKEN_QUERY_ID", 4055949),
		TokenSyncHours:   envInt("TOKEN_SYNC_HOURS", 0),

		// CoW order book
		CowAppCode:   envStr("COW_APP_CODE", ""),
		CowReferrer:  envStr("COW_REFERRER", ""),
		OrderBookRPS: envFloat("ORDERBOOK_RPS", 5),

		// Block explorer
		ExplorerRetryAttempts: envInt("EXPLORER_RETRY_ATTEMPTS", 1),
		ABICacheMinutes:       envInt("ABI_CACHE_MINUTES", 60),

		// Notifications
		WebhookURL: envStr("WEBHOOK_URL", ""),
		BotName:    envStr("BOT_NAME", "EVMAgent"),
	}

	cfg.AccountID = cfg.parseAccountID(envStr("AGENT_ACCOUNT_KEY", ""))

	keys, err := parseScanKeys(envStr("SCAN_KEYS", ""))
	if err != nil {
		cfg.problems = append(cfg.problems, err.Error())
	}
	cfg.ScanKeys = keys
	cfg.RPCOverrides = cfg.scanRPCOverrides(os.Environ())

	return cfg, nil
}

// parseAccountID reads {"accountId": "..."} from AGENT_ACCOUNT_KEY. A missing
// or unreadable key leaves the manifest without an account id.
func (c *Config) parseAccountID(raw string) string {
	if raw == "" {
		c.warnings = append(c.warnings, "AGENT_ACCOUNT_KEY not set, plugin manifest has no account id")
		return ""
	}
	var key struct {
		AccountID string `json:"accountId"`
	}
	if err := json.Unmarshal([]byte(raw), &key); err != nil || key.AccountID == "" {
		c.warnings = append(c.warnings, "AGENT_ACCOUNT_KEY is not a JSON object with accountId, plugin manifest has no account id")
		return ""
	}
	return key.AccountID
}

// parseScanKeys reads SCAN_KEYS, a JSON object of chain id to explorer key.
func parseScanKeys(raw string) (map[int64]string, error) {
	keys := make(map[int64]string)
	if raw == "" {
		return keys, nil
	}
	var byID map[string]string
	if err := json.Unmarshal([]byte(raw), &byID); err != nil {
		return keys, fmt.Errorf("SCAN_KEYS must be a JSON object of chainId to key: %w", err)
	}
	for id, key := range byID {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return keys, fmt.Errorf("SCAN_KEYS has non-numeric chain id %q", id)
		}
		keys[n] = key
	}
	return keys, nil
}

// scanRPCOverrides collects RPC_URL_<chainId>=<url> entries.
func (c *Config) scanRPCOverrides(environ []string) map[int64]string {
	out := make(map[int64]string)
	for _, kv := range environ {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, rpcURLPrefix) || val == "" {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(key, rpcURLPrefix), 10, 64)
		if err != nil {
			c.problems = append(c.problems, fmt.Sprintf("%s: chain id is not a number", key))
			continue
		}
		out[id] = val
	}
	return out
}

func (c *Config) Validate() error {
	errs := append([]string(nil), c.problems...)

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT %d is out of range", c.Port))
	}
	if c.CowReferrer != "" && !common.IsHexAddress(c.CowReferrer) {
		errs = append(errs, "COW_REFERRER must be an address")
	}
	if c.ExplorerRetryAttempts < 1 {
		errs = append(errs, "EXPLORER_RETRY_ATTEMPTS must be at least 1")
	}
	if c.ABICacheMinutes < 0 {
		errs = append(errs, "ABI_CACHE_MINUTES must not be negative")
	}
	if c.TokenSyncHours < 0 {
		errs = append(errs, "TOKEN_SYNC_HOURS must not be negative")
	}

	for _, w := range c.warnings {
		log.Warn().Str("component", "config").Msg(w)
	}
	if c.APIKey == "" {
		log.Warn().Str("component", "config").Msg("API_KEY not set, REST API has no authentication")
	}
	if c.TokenSyncHours > 0 && c.DuneAPIKey == "" {
		log.Warn().Str("component", "config").Msg("TOKEN_SYNC_HOURS set without DUNE_API_KEY, token sync disabled")
	}
	if c.CowAppCode == "" {
		log.Warn().Str("component", "config").Msg("COW_APP_CODE not set, orders carry the quote's appData")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// TokenSyncEnabled reports whether the server should keep the token list fresh.
func (c *Config) TokenSyncEnabled() bool {
	return c.TokenSyncHours > 0 && c.DuneAPIKey != ""
}

func (c *Config) Print() {
	fmt.Println("=== EVM Agent Configuration ===")
	fmt.Printf("Port: %d\n", c.Port)
	fmt.Printf("Server URL: %s\n", c.ServerURL)
	fmt.Printf("Auth: %s\n", boolLabel(c.APIKey != "", "enabled (Bearer token)", "disabled"))
	fmt.Printf("Account ID: %s\n", boolLabel(c.AccountID != "", c.AccountID, "not set"))
	fmt.Println("--------------------------------------")
	fmt.Printf("Token list: %s\n", c.TokenListPath)
	if c.TokenSyncEnabled() {
		fmt.Printf("Token sync: every %dh from Dune query %d\n", c.TokenSyncHours, c.DuneTokenQueryID)
	}
	fmt.Printf("Explorer keys: %s\n", chainList(c.ScanKeys))
	fmt.Printf("RPC overrides: %s\n", chainList(c.RPCOverrides))
	fmt.Printf("ABI cache: %d min, %d attempt(s) per lookup\n", c.ABICacheMinutes, c.ExplorerRetryAttempts)
	fmt.Println("--------------------------------------")
	fmt.Printf("CoW app code: %s\n", boolLabel(c.CowAppCode != "", c.CowAppCode, "not set"))
	if c.CowReferrer != "" {
		fmt.Printf("CoW referrer: %s...\n", truncAddr(c.CowReferrer))
	}
	fmt.Printf("Order book limit: %.1f req/s\n", c.OrderBookRPS)
	fmt.Printf("Webhook: %s\n", boolLabel(c.WebhookURL != "", "configured", "not set"))
	fmt.Println("======================================")
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "true" || v == "1" || v == "yes"
	}
	return fallback
}

func chainList(m map[int64]string) string {
	if len(m) == 0 {
		return "none"
	}
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	sort.Strings(ids)
	return strings.Join(ids, ", ")
}

func truncAddr(addr string) string {
	if len(addr) > 10 {
		return addr[:10]
	}
	return addr
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
