package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/kjannette/evm-agent/internal/cowswap"
	"github.com/kjannette/evm-agent/internal/ethereum"
	"github.com/kjannette/evm-agent/internal/logging"
	"github.com/kjannette/evm-agent/internal/metrics"
	"github.com/kjannette/evm-agent/internal/network"
)

// Chains resolves chain ids and reads contract state; *network.Registry implements it.
type Chains interface {
	Resolve(chainID int64) (network.Info, error)
	Reader(ctx context.Context, chainID int64) (*ethereum.Reader, error)
	ChainIDs() []int64
}

// ABIFetcher looks up verified contract ABIs; *external.ExplorerClient implements it.
type ABIFetcher interface {
	ContractABI(ctx context.Context, info network.Info, address common.Address) (json.RawMessage, error)
}

// Swapper runs the quote -> order -> presign flow; *cowswap.Flow implements it.
type Swapper interface {
	Run(ctx context.Context, req cowswap.ParsedQuoteRequest) (cowswap.Result, error)
}

type Deps struct {
	Chains   Chains
	Tokens   cowswap.TokenResolver
	Explorer ABIFetcher
	Swaps    Swapper
	Metrics  *metrics.Metrics
}

type Options struct {
	Port       int
	APIKey     string
	CORSOrigin string
	// ServerURL and AccountID are advertised in the plugin manifest.
	ServerURL string
	AccountID string
}

type Server struct {
	deps       Deps
	apiKey     string
	manifest   []byte
	handler    http.Handler
	httpServer *http.Server
	logger     zerolog.Logger
}

func NewServer(deps Deps, opts Options) (*Server, error) {
	manifest, err := pluginManifest(opts.ServerURL, opts.AccountID, deps.Chains.ChainIDs())
	if err != nil {
		return nil, err
	}
	s := &Server{
		deps:     deps,
		apiKey:   opts.APIKey,
		manifest: manifest,
		logger:   logging.Component("api"),
	}

	mux := http.NewServeMux()

	// Tool routes
	s.route(mux, "GET /api/tools/contract", "contract", s.handleContract)
	s.route(mux, "GET /api/tools/encode", "encode", s.handleEncode)
	s.route(mux, "GET /api/tools/weth/wrap", "weth_wrap", s.handleWrap)
	s.route(mux, "GET /api/tools/weth/unwrap", "weth_unwrap", s.handleUnwrap)
	s.route(mux, "GET /api/tools/erc20", "erc20", s.handleERC20)
	s.route(mux, "POST /api/tools/cowswap", "cowswap", s.handleCowswap)

	// Plugin manifest
	s.route(mux, "GET /api/ai-plugin", "ai_plugin", s.handlePlugin)
	s.route(mux, "GET /.well-known/ai-plugin.json", "ai_plugin", s.handlePlugin)

	// Health check and metrics (no auth required)
	s.route(mux, "GET /health", "health", s.handleHealth)
	mux.Handle("GET /metrics", deps.Metrics.Handler())

	s.handler = s.middleware(mux, opts.CORSOrigin)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      s.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	return s, nil
}

// Handler is the fully wrapped router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Bool("auth", s.apiKey != "").Msg("REST API server started")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// route registers h under pattern and records request count and latency
// under the given route label.
func (s *Server) route(mux *http.ServeMux, pattern, name string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		s.deps.Metrics.ObserveRequest(name, rec.status, time.Since(start))
	})
}

// --- middleware ---

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// isPublicPath lists the routes agents and scrapers reach without a key.
func isPublicPath(path string) bool {
	switch path {
	case "/health", "/metrics", "/api/ai-plugin", "/.well-known/ai-plugin.json":
		return true
	}
	return false
}

func corsMiddleware(next http.Handler, allowOrigin string) http.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// middleware wraps the mux. CORS sits outside auth so browser preflights,
// which never carry credentials, are answered before the key check.
func (s *Server) middleware(h http.Handler, corsOrigin string) http.Handler {
	return requestIDMiddleware(recoverMiddleware(corsMiddleware(s.authMiddleware(h), corsOrigin)))
}
