package musicapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTokenURL = "https://accounts.spotify.com/api/token"

	appExchangeAttempts = 3
	appExchangeBackoff  = 300 * time.Millisecond
)

// CredentialKind distinguishes process-wide app credentials from per-session
// user credentials.
type CredentialKind string

const (
	KindApp  CredentialKind = "app"
	KindUser CredentialKind = "user"
)

// Credential is a bearer access token with its expiry. Credentials are
// replaced wholesale, never mutated.
type Credential struct {
	Value     string
	Kind      CredentialKind
	ExpiresAt time.Time
}

// Valid reports whether the credential can still be presented upstream.
func (c Credential) Valid(now time.Time) bool {
	return c.Value != "" && now.Before(c.ExpiresAt)
}

// CredentialStore holds the broker's cached app credential.
type CredentialStore interface {
	Get() (Credential, bool)
	Set(Credential)
	Invalidate()
}

// MemoryCredentialStore is the in-process default; contents are lost on
// restart.
type MemoryCredentialStore struct {
	mu   sync.RWMutex
	cred Credential
	ok   bool
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{}
}

func (s *MemoryCredentialStore) Get() (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred, s.ok
}

func (s *MemoryCredentialStore) Set(cred Credential) {
	s.mu.Lock()
	s.cred = cred
	s.ok = true
	s.mu.Unlock()
}

func (s *MemoryCredentialStore) Invalidate() {
	s.mu.Lock()
	s.cred = Credential{}
	s.ok = false
	s.mu.Unlock()
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// TokenBroker owns acquisition and refresh of access credentials. App
// credentials are cached in the configured store; user credentials are minted
// on demand and owned by the caller.
type TokenBroker struct {
	clientID     string
	clientSecret string
	tokenURL     string
	httpClient   *http.Client
	store        CredentialStore
	group        singleflight.Group
	logger       zerolog.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewTokenBroker creates a broker backed by an in-memory credential store.
func NewTokenBroker(clientID, clientSecret string, logger zerolog.Logger) *TokenBroker {
	return &TokenBroker{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     defaultTokenURL,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		store:        NewMemoryCredentialStore(),
		logger:       logger,
		now:          time.Now,
		sleep:        sleepContext,
	}
}

// AppCredential returns the cached app credential, or performs a
// client-credentials exchange. Concurrent callers observing an expired cache
// share one in-flight exchange.
func (b *TokenBroker) AppCredential(ctx context.Context) (Credential, error) {
	if cred, ok := b.store.Get(); ok && cred.Valid(b.now()) {
		return cred, nil
	}

	v, err, _ := b.group.Do("app", func() (any, error) {
		// Another caller may have refreshed while we waited on the gate.
		if cred, ok := b.store.Get(); ok && cred.Valid(b.now()) {
			return cred, nil
		}
		cred, err := b.exchangeApp(ctx)
		if err != nil {
			return Credential{}, err
		}
		b.store.Set(cred)
		return cred, nil
	})
	if err != nil {
		return Credential{}, err
	}
	return v.(Credential), nil
}

// InvalidateApp clears the cached app credential so the next call performs a
// fresh exchange.
func (b *TokenBroker) InvalidateApp() {
	b.store.Invalidate()
}

// RefreshUserCredential exchanges a refresh token for a new user access
// credential. The result is never cached here; each user session owns its own
// credential storage.
func (b *TokenBroker) RefreshUserCredential(ctx context.Context, refreshToken string) (Credential, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	cred, err := b.exchange(ctx, form, KindUser)
	if err != nil {
		return Credential{}, &AuthError{Op: "refresh token grant", Payload: payloadOf(err), Err: err}
	}
	return cred, nil
}

func (b *TokenBroker) exchangeApp(ctx context.Context) (Credential, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	var lastErr error
	for attempt := 1; attempt <= appExchangeAttempts; attempt++ {
		cred, err := b.exchange(ctx, form, KindApp)
		if err == nil {
			return cred, nil
		}
		lastErr = err
		if !retryableExchange(err) {
			break
		}
		b.logger.Warn().Err(err).Int("attempt", attempt).Msg("app token exchange failed")
		if attempt < appExchangeAttempts {
			if serr := b.sleep(ctx, time.Duration(attempt)*appExchangeBackoff); serr != nil {
				return Credential{}, serr
			}
		}
	}
	return Credential{}, &AuthError{Op: "client credentials grant", Payload: payloadOf(lastErr), Err: lastErr}
}

func (b *TokenBroker) exchange(ctx context.Context, form url.Values, kind CredentialKind) (Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Credential{}, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+basicAuth(b.clientID, b.clientSecret))

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("send token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Credential{}, fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Credential{}, &APIError{StatusCode: resp.StatusCode, Endpoint: b.tokenURL, Body: body}
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return Credential{}, fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return Credential{}, fmt.Errorf("token response missing access_token")
	}

	return Credential{
		Value:     tok.AccessToken,
		Kind:      kind,
		ExpiresAt: b.now().Add(time.Duration(tok.ExpiresIn) * time.Second),
	}, nil
}

// retryableExchange limits exchange retries to upstream 5xx responses or an
// explicit "server_error" code in the payload.
func retryableExchange(err error) bool {
	if IsServerError(err) {
		return true
	}
	var payload struct {
		Error string `json:"error"`
	}
	if body := payloadOf(err); len(body) > 0 {
		if jsonErr := json.Unmarshal(body, &payload); jsonErr == nil && payload.Error == "server_error" {
			return true
		}
	}
	return false
}

func basicAuth(id, secret string) string {
	return base64.StdEncoding.EncodeToString([]byte(id + ":" + secret))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
