// Package httpapi wires the preview resolution service to HTTP handlers.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"enunanota/internal/musicapi"
	"enunanota/internal/resolver"
)

const (
	refreshCookie = "sp_refresh_token"
	accessCookie  = "sp_access_token"
	stateCookie   = "sp_oauth_state"

	loginPath = "/api/spotify-login"
)

// TrackService resolves a playlist identifier to a single playable
// preview track and produces playlist preview diagnostics.
type TrackService interface {
	Resolve(ctx context.Context, playlistID, refreshToken string) (*resolver.PlayableTrack, error)
	Diagnose(ctx context.Context, playlistID, refreshToken string) (*resolver.PlaylistReport, error)
}

// SessionService mints short-lived access tokens from a user refresh token.
type SessionService interface {
	RefreshUserCredential(ctx context.Context, refreshToken string) (musicapi.Credential, error)
}

// Server holds the HTTP handlers for the preview API.
type Server struct {
	tracks         TrackService
	sessions       SessionService
	oauth          *oauth2.Config
	requireSession bool
	logger         zerolog.Logger
}

// New constructs a Server. The oauth config may be nil when the
// login flow is not configured; the login endpoints then report 503.
func New(tracks TrackService, sessions SessionService, oauth *oauth2.Config, requireSession bool, logger zerolog.Logger) *Server {
	return &Server{
		tracks:         tracks,
		sessions:       sessions,
		oauth:          oauth,
		requireSession: requireSession,
		logger:         logger,
	}
}

// Routes registers all handlers on a fresh mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/get-track", s.handleGetTrack)
	mux.HandleFunc("/api/diagnose-playlist", s.handleDiagnosePlaylist)
	mux.HandleFunc(loginPath, s.handleLogin)
	mux.HandleFunc("/api/spotify-callback", s.handleCallback)
	mux.HandleFunc("/api/spotify-access-token", s.handleAccessToken)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Error    string `json:"error"`
	Details  any    `json:"details,omitempty"`
	Action   string `json:"action,omitempty"`
	LoginURL string `json:"login_url,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func writeError(w http.ResponseWriter, status int, msg string, details any) {
	writeJSON(w, status, errorResponse{Error: msg, Details: details})
}

// sessionRefreshToken extracts the user refresh token from the session
// cookie, falling back to a bearer Authorization header. Empty means
// no session.
func sessionRefreshToken(r *http.Request) string {
	if c, err := r.Cookie(refreshCookie); err == nil && c.Value != "" {
		return c.Value
	}
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
