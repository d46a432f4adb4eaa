package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"enunanota/internal/musicapi"
	"enunanota/internal/resolver"
)

type trackRequest struct {
	PlaylistID string `json:"playlistId"`
}

type trackResponse struct {
	Title      string `json:"title"`
	Artists    string `json:"artists"`
	PreviewURL string `json:"previewUrl"`
	ArtworkURL string `json:"artworkUrl"`
}

func (s *Server) handleGetTrack(w http.ResponseWriter, r *http.Request) {
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

	refreshToken := sessionRefreshToken(r)
	if s.requireSession && refreshToken == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{
			Error:    "no session",
			Action:   "login",
			LoginURL: loginPath,
		})
		return
	}

	track, err := s.tracks.Resolve(r.Context(), playlistID, refreshToken)
	if err != nil {
		s.writeResolveError(w, r, playlistID, err)
		return
	}

	writeJSON(w, http.StatusOK, trackResponse{
		Title:      track.Title,
		Artists:    track.DisplayArtists(),
		PreviewURL: track.PreviewURL,
		ArtworkURL: track.ArtworkURL,
	})
}

func (s *Server) writeResolveError(w http.ResponseWriter, r *http.Request, playlistID string, err error) {
	var notFound *resolver.NotFoundError
	if errors.As(err, &notFound) {
		s.logger.Warn().Str("playlist_id", playlistID).Msg("no playable track found")
		writeError(w, http.StatusNotFound, notFound.Error(), notFound.Details)
		return
	}

	var authErr *musicapi.AuthError
	if errors.As(err, &authErr) {
		s.logger.Error().Err(err).Str("playlist_id", playlistID).Msg("credential exchange failed")
		writeError(w, http.StatusInternalServerError, "credential exchange failed", authErr.Details())
		return
	}

	var apiErr *musicapi.APIError
	if errors.As(err, &apiErr) {
		s.logger.Error().Err(err).Str("playlist_id", playlistID).Msg("catalog request failed")
		writeError(w, http.StatusInternalServerError, "catalog request failed", apiErr.Details())
		return
	}

	s.logger.Error().Err(err).Str("playlist_id", playlistID).Msg("track resolution failed")
	writeError(w, http.StatusInternalServerError, err.Error(), nil)
}
