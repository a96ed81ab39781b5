package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/billbot/node/internal/settings"
)

// handleGetSettings returns the persisted settings with secrets redacted.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	current, err := s.settings.Load(r.Context())
	if errors.Is(err, settings.ErrNotFound) {
		writeNotFound(w, "settings not initialised")
		return
	}
	if err != nil {
		s.logger.Error("loading settings", "error", err)
		writeInternalError(w, "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, current.Redacted())
}

// handleUpdateSettings applies a partial update to the user-editable
// settings. The new values take effect on the next connection attempt.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch settings.Patch
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		writeBadRequest(w, "invalid JSON: "+err.Error())
		return
	}

	current, err := s.settings.Load(r.Context())
	if errors.Is(err, settings.ErrNotFound) {
		writeNotFound(w, "settings not initialised")
		return
	}
	if err != nil {
		s.logger.Error("loading settings", "error", err)
		writeInternalError(w, "failed to load settings")
		return
	}

	current.Apply(patch)
	if err := current.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
		return
	}

	if err := s.settings.Save(r.Context(), current); err != nil {
		s.logger.Error("saving settings", "error", err)
		writeInternalError(w, "failed to save settings")
		return
	}

	s.logger.Info("settings updated",
		"gateway_host", current.GatewayHost,
		"gateway_port", current.GatewayPort,
		"token_changed", patch.GatewayToken != nil,
	)
	writeJSON(w, http.StatusOK, current.Redacted())
}
