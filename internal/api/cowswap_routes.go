package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/kjannette/evm-agent/internal/cowswap"
	"github.com/kjannette/evm-agent/internal/validate"
)

const maxSwapBody = 64 << 10

var errInvalidBody = errors.New("request body must be a JSON object")

// POST /api/tools/cowswap
//
// Body: {sellToken, buyToken, chainId, sellAmountBeforeFee, from}. Tokens may
// be symbols or addresses; the amount is in sell-token units.
func (s *Server) handleCowswap(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSwapBody))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil || body == nil {
		s.failSwap(w, r, errInvalidBody)
		return
	}

	req, err := cowswap.ParseQuoteRequest(r.Context(), validate.JSONBody(body), s.deps.Tokens)
	if err != nil {
		s.failSwap(w, r, err)
		return
	}

	result, err := s.deps.Swaps.Run(r.Context(), req)
	if err != nil {
		s.failSwap(w, r, err)
		return
	}
	zerolog.Ctx(r.Context()).Info().
		Int("transactions", len(result.Transactions())).
		Str("orderUrl", result.Meta.OrderURL).
		Msg("swap sign request ready")
	writeJSON(w, http.StatusOK, result)
}
