package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"enunanota/internal/musicapi"
)

func (s *Server) handleDiagnosePlaylist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "use POST", nil)
		return
	}

	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload", nil)
		return
	}
	playlistID := strings.TrimSpace(req.PlaylistID)
	if playlistID == "" {
		writeError(w, http.StatusBadRequest, "missing playlistId", nil)
		return
	}

	report, err := s.tracks.Diagnose(r.Context(), playlistID, sessionRefreshToken(r))
	if err != nil {
		if musicapi.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "playlist not found", detailsOf(err))
			return
		}
		s.logger.Error().Err(err).Str("playlist_id", playlistID).Msg("playlist diagnosis failed")
		writeError(w, http.StatusInternalServerError, "playlist diagnosis failed", detailsOf(err))
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func detailsOf(err error) any {
	var apiErr *musicapi.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Details()
	}
	var authErr *musicapi.AuthError
	if errors.As(err, &authErr) {
		return authErr.Details()
	}
	return err.Error()
}
