package api

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/kjannette/evm-agent/internal/cowswap"
	"github.com/kjannette/evm-agent/internal/ethereum"
	"github.com/kjannette/evm-agent/internal/external"
	"github.com/kjannette/evm-agent/internal/network"
	"github.com/kjannette/evm-agent/internal/validate"
)

// Error classes used as the metric label for tool failures.
const (
	classValidation  = "validation"
	classNetwork     = "unsupported_network"
	classAsset       = "unsupported_asset"
	classProtocol    = "protocol"
	classInvalidCall = "invalid_call"
	classExplorer    = "explorer"
	classUpstream    = "upstream"
)

// failure is the error body of the tool routes.
type failure struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func classify(err error) string {
	var (
		verr *validate.Error
		nerr *network.NotSupportedError
		perr *cowswap.ProtocolError
		eerr *external.ExplorerError
	)
	switch {
	case errors.As(err, &verr):
		return classValidation
	case errors.As(err, &nerr):
		return classNetwork
	case errors.Is(err, cowswap.ErrUnsupportedAsset):
		return classAsset
	case errors.As(err, &perr):
		return classProtocol
	case errors.Is(err, ethereum.ErrInvalidAbiOrArgs), errors.Is(err, ethereum.ErrInvalidOrderUID),
		errors.Is(err, ethereum.ErrOddLengthOrderUID):
		return classInvalidCall
	case errors.As(err, &eerr), errors.Is(err, external.ErrNoExplorer):
		return classExplorer
	default:
		return classUpstream
	}
}

// fail reports a tool failure. Every class maps to 400; only the message
// text of the error reaches the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, route string, err error) {
	s.record(r, route, err)
	writeJSON(w, http.StatusBadRequest, failure{OK: false, Message: clientMessage(err)})
}

// failSwap is fail for the swap route, which answers {"error": message}.
// An order-book rejection reaches the client as "<errorType>: <description>"
// without the client's call-site prefix; the log line keeps the full chain.
func (s *Server) failSwap(w http.ResponseWriter, r *http.Request, err error) {
	s.record(r, "cowswap", err)
	writeError(w, http.StatusBadRequest, clientMessage(err))
}

func clientMessage(err error) string {
	var perr *cowswap.ProtocolError
	if errors.As(err, &perr) {
		return perr.Error()
	}
	return err.Error()
}

func (s *Server) record(r *http.Request, route string, err error) {
	class := classify(err)
	s.deps.Metrics.RecordToolError(route, class)

	ev := zerolog.Ctx(r.Context()).Warn()
	if class == classUpstream {
		ev = zerolog.Ctx(r.Context()).Error()
	}
	var serr *cowswap.StepError
	if errors.As(err, &serr) {
		ev = ev.Str("step", string(serr.Step))
		if serr.OrderUID != "" {
			ev = ev.Str("orderUid", serr.OrderUID)
		}
	}
	ev.Err(err).Str("route", route).Str("class", class).Msg("tool request failed")
}
