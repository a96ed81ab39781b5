package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/billbot/node/internal/gateway"
)

// handleStatus returns the gateway connection status.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.gateway.Status())
}

// handleConnect runs a connection attempt and returns once the handshake
// succeeds or fails. Dropping the request aborts the attempt.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	err := s.gateway.Connect(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, s.gateway.Status())
	case errors.Is(err, gateway.ErrAlreadyConnected):
		writeError(w, http.StatusConflict, ErrCodeConflict, "gateway connection already active")
	case errors.Is(err, gateway.ErrNoGateway):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, "gateway host is not configured")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "connection attempt aborted")
	default:
		s.logger.Warn("connect via API failed", "error", err)
		message := s.gateway.Status().LastError
		if message == "" {
			message = err.Error()
		}
		writeError(w, http.StatusBadGateway, ErrCodeGateway, message)
	}
}

// handleDisconnect closes the session or aborts a handshake in progress.
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.gateway.Disconnect(r.Context()); err != nil {
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "disconnect did not complete")
		return
	}
	writeJSON(w, http.StatusOK, s.gateway.Status())
}

// handleCapabilities lists the declared capabilities and their availability.
func (s *Server) handleCapabilities(w http.ResponseWriter, _ *http.Request) {
	if s.caps == nil {
		writeJSON(w, http.StatusOK, map[string]any{"capabilities": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"capabilities": s.caps.Descriptors()})
}
