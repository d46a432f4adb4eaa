package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const refreshCookieMaxAge = 365 * 24 * 60 * 60

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "use GET", nil)
		return
	}
	if s.oauth == nil {
		writeError(w, http.StatusServiceUnavailable, "login flow is not configured", nil)
		return
	}

	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})

	url := s.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("show_dialog", "true"))
	http.Redirect(w, r, url, http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "use GET", nil)
		return
	}
	if s.oauth == nil {
		writeError(w, http.StatusServiceUnavailable, "login flow is not configured", nil)
		return
	}

	q := r.URL.Query()
	if denied := q.Get("error"); denied != "" {
		writeError(w, http.StatusBadRequest, "authorization was denied", denied)
		return
	}
	code := q.Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing code parameter", nil)
		return
	}
	stateCk, err := r.Cookie(stateCookie)
	if err != nil || stateCk.Value == "" || stateCk.Value != q.Get("state") {
		writeError(w, http.StatusBadRequest, "invalid state parameter", nil)
		return
	}

	token, err := s.oauth.Exchange(r.Context(), code)
	if err != nil {
		s.logger.Error().Err(err).Msg("authorization code exchange failed")
		writeError(w, http.StatusInternalServerError, "code exchange failed", err.Error())
		return
	}

	// Clear the one-shot state cookie.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/", MaxAge: -1})

	if token.RefreshToken != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     refreshCookie,
			Value:    token.RefreshToken,
			Path:     "/",
			MaxAge:   refreshCookieMaxAge,
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteNoneMode,
		})
	}
	if ttl := int(time.Until(token.Expiry).Seconds()); token.AccessToken != "" && ttl > 0 {
		http.SetCookie(w, &http.Cookie{
			Name:     accessCookie,
			Value:    token.AccessToken,
			Path:     "/",
			MaxAge:   ttl,
			Secure:   true,
			SameSite: http.SameSiteNoneMode,
		})
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (s *Server) handleAccessToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "use GET", nil)
		return
	}

	refreshToken := sessionRefreshToken(r)
	if refreshToken == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{
			Error:    "no session",
			Action:   "login",
			LoginURL: loginPath,
		})
		return
	}

	cred, err := s.sessions.RefreshUserCredential(r.Context(), refreshToken)
	if err != nil {
		s.logger.Error().Err(err).Msg("access token refresh failed")
		writeError(w, http.StatusInternalServerError, "access token refresh failed", detailsOf(err))
		return
	}

	writeJSON(w, http.StatusOK, accessTokenResponse{
		AccessToken: cred.Value,
		TokenType:   "Bearer",
		ExpiresIn:   int(time.Until(cred.ExpiresAt).Seconds()),
	})
}
