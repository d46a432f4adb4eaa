package musicapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// stubCredentialSource records invalidations and hands out a new credential
// value per mint.
type stubCredentialSource struct {
	values      []string
	mints       int
	invalidated int
	credErr     error
}

func (s *stubCredentialSource) Credential(context.Context) (Credential, error) {
	if s.credErr != nil {
		return Credential{}, s.credErr
	}
	v := "token"
	if s.mints < len(s.values) {
		v = s.values[s.mints]
	}
	s.mints++
	return Credential{Value: v, Kind: KindApp, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (s *stubCredentialSource) Invalidate() {
	s.invalidated++
}

func newTestExecutor(t *testing.T) (*Executor, *[]time.Duration) {
	t.Helper()
	exec := NewExecutor(DefaultRetryPolicy(), nil, zerolog.Nop())
	delays := &[]time.Duration{}
	exec.sleep = func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return exec, delays
}

func TestGetJSONSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Errorf("unexpected Authorization header: %q", got)
		}
		_, _ = w.Write([]byte(`{"name":"ok"}`))
	}))
	defer srv.Close()

	exec, _ := newTestExecutor(t)
	var out struct {
		Name string `json:"name"`
	}
	if err := exec.GetJSON(context.Background(), &stubCredentialSource{}, srv.URL, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if out.Name != "ok" {
		t.Fatalf("unexpected payload: %#v", out)
	}
}

func TestGetJSONNoCredentialSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("expected no Authorization header, got %q", got)
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	exec, _ := newTestExecutor(t)
	if err := exec.GetJSON(context.Background(), nil, srv.URL, nil); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
}

func TestGetJSONReauthenticatesOnce(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer fresh" {
			t.Errorf("retry should carry the fresh credential, got %q", got)
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	exec, delays := newTestExecutor(t)
	creds := &stubCredentialSource{values: []string{"stale", "fresh"}}

	if err := exec.GetJSON(context.Background(), creds, srv.URL, nil); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if creds.invalidated != 1 {
		t.Fatalf("expected 1 invalidation, got %d", creds.invalidated)
	}
	if len(*delays) != 0 {
		t.Fatalf("re-auth retry must not sleep, slept %v", *delays)
	}
}

func TestGetJSONSecondAuthRejectionFails(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"status":403}}`))
	}))
	defer srv.Close()

	exec, _ := newTestExecutor(t)
	creds := &stubCredentialSource{}

	err := exec.GetJSON(context.Background(), creds, srv.URL, nil)
	if !IsAuthRejection(err) {
		t.Fatalf("expected auth rejection, got %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected exactly one re-auth retry, got %d calls", got)
	}
	if creds.invalidated != 1 {
		t.Fatalf("expected 1 invalidation, got %d", creds.invalidated)
	}
}

func TestGetJSONAuthRejectionWithoutCredentials(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	exec, _ := newTestExecutor(t)
	err := exec.GetJSON(context.Background(), nil, srv.URL, nil)
	if !IsAuthRejection(err) {
		t.Fatalf("expected auth rejection, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("no credential source means no re-auth retry, got %d calls", got)
	}
}

func TestGetJSONHonorsRetryAfter(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	exec, delays := newTestExecutor(t)
	if err := exec.GetJSON(context.Background(), &stubCredentialSource{}, srv.URL, nil); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if len(*delays) != 1 || (*delays)[0] != 2*time.Second {
		t.Fatalf("expected a single 2s delay, got %v", *delays)
	}
}

func TestGetJSONRateLimitWithoutHeaderUsesPolicyBackoff(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	exec, delays := newTestExecutor(t)
	if err := exec.GetJSON(context.Background(), &stubCredentialSource{}, srv.URL, nil); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if len(*delays) != 1 || (*delays)[0] != 500*time.Millisecond {
		t.Fatalf("expected policy rate backoff, got %v", *delays)
	}
}

func TestGetJSONServerErrorLinearBackoff(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	exec, delays := newTestExecutor(t)
	err := exec.GetJSON(context.Background(), &stubCredentialSource{}, srv.URL, nil)
	if !IsServerError(err) {
		t.Fatalf("expected server error, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	want := []time.Duration{300 * time.Millisecond, 600 * time.Millisecond}
	if len(*delays) != len(want) {
		t.Fatalf("expected %v delays, got %v", want, *delays)
	}
	for i, d := range want {
		if (*delays)[i] != d {
			t.Fatalf("expected %v delays, got %v", want, *delays)
		}
	}
}

func TestGetJSONNotFoundDoesNotRetry(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"status":404,"message":"Not found."}}`))
	}))
	defer srv.Close()

	exec, _ := newTestExecutor(t)
	err := exec.GetJSON(context.Background(), &stubCredentialSource{}, srv.URL, nil)
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("404 must not retry, got %d calls", got)
	}
}

func TestGetJSONBadRequestDoesNotRetry(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	exec, _ := newTestExecutor(t)
	err := exec.GetJSON(context.Background(), &stubCredentialSource{}, srv.URL, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 APIError, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("400 must not retry, got %d calls", got)
	}
}

func TestGetJSONCredentialErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected when minting fails")
	}))
	defer srv.Close()

	exec, _ := newTestExecutor(t)
	wantErr := errors.New("mint failed")
	err := exec.GetJSON(context.Background(), &stubCredentialSource{credErr: wantErr}, srv.URL, nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected mint error, got %v", err)
	}
}

func TestGetJSONCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	exec, _ := newTestExecutor(t)
	exec.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	err := exec.GetJSON(ctx, &stubCredentialSource{}, srv.URL, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
