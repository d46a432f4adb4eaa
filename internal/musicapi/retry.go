package musicapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const defaultRequestTimeout = 10 * time.Second

// Action tells the executor how to react to an upstream status code.
type Action int

const (
	// ActionReturn delivers the response to the caller.
	ActionReturn Action = iota
	// ActionRetryAuth invalidates the credential and retries once with a
	// fresh one, outside the attempt budget.
	ActionRetryAuth
	// ActionRetryRateLimited sleeps per Retry-After (or the policy's rate
	// backoff) and retries.
	ActionRetryRateLimited
	// ActionRetryServer sleeps per the policy's backoff and retries.
	ActionRetryServer
	// ActionFail surfaces the upstream error without retrying.
	ActionFail
)

// Classifier maps an upstream status code to an Action.
type Classifier func(status int) Action

// RetryPolicy is the declarative retry configuration consumed by the
// Executor, keeping attempt counting and backoff out of caller code.
type RetryPolicy struct {
	MaxAttempts      int
	Classify         Classifier
	Backoff          func(attempt int) time.Duration
	RateLimitBackoff func(attempt int) time.Duration
}

// DefaultRetryPolicy mirrors the upstream catalog's documented semantics:
// 401/403 re-authenticate, 429 honors Retry-After, 5xx backs off linearly,
// 404 and other 4xx fail immediately.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Classify: func(status int) Action {
			switch {
			case status >= 200 && status < 300:
				return ActionReturn
			case status == http.StatusUnauthorized || status == http.StatusForbidden:
				return ActionRetryAuth
			case status == http.StatusTooManyRequests:
				return ActionRetryRateLimited
			case status >= 500:
				return ActionRetryServer
			default:
				return ActionFail
			}
		},
		Backoff: func(attempt int) time.Duration {
			return time.Duration(attempt) * 300 * time.Millisecond
		},
		RateLimitBackoff: func(attempt int) time.Duration {
			return time.Duration(attempt) * 500 * time.Millisecond
		},
	}
}

// Executor wraps outbound catalog calls with status-driven retries. A nil
// rate limiter disables client-side pacing.
type Executor struct {
	httpClient     *http.Client
	policy         RetryPolicy
	limiter        *rate.Limiter
	logger         zerolog.Logger
	requestTimeout time.Duration

	sleep func(context.Context, time.Duration) error
}

func NewExecutor(policy RetryPolicy, limiter *rate.Limiter, logger zerolog.Logger) *Executor {
	return &Executor{
		httpClient:     &http.Client{},
		policy:         policy,
		limiter:        limiter,
		logger:         logger,
		requestTimeout: defaultRequestTimeout,
		sleep:          sleepContext,
	}
}

// GetJSON issues an authenticated GET against rawURL and decodes the 2xx body
// into result. creds may be nil for credential-free endpoints. On a 401/403
// the credential is invalidated and the call retried exactly once with a
// fresh one; that retry does not consume the attempt budget.
func (e *Executor) GetJSON(ctx context.Context, creds CredentialSource, rawURL string, result any) error {
	attempt := 0
	reauthed := false

	for {
		attempt++

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		var cred Credential
		if creds != nil {
			var err error
			cred, err = creds.Credential(ctx)
			if err != nil {
				return err
			}
		}

		status, header, body, err := e.roundTrip(ctx, rawURL, cred)
		if err != nil {
			// Transport failures and timeouts retry like server errors.
			if ctx.Err() != nil {
				return err
			}
			if attempt >= e.policy.MaxAttempts {
				return fmt.Errorf("request failed after %d attempts: %w", attempt, err)
			}
			e.logger.Warn().Err(err).Int("attempt", attempt).Str("url", rawURL).Msg("request failed, retrying")
			if serr := e.sleep(ctx, e.policy.Backoff(attempt)); serr != nil {
				return serr
			}
			continue
		}

		switch e.policy.Classify(status) {
		case ActionReturn:
			if result == nil || len(body) == 0 {
				return nil
			}
			if err := json.Unmarshal(body, result); err != nil {
				return fmt.Errorf("decode response from %s: %w", rawURL, err)
			}
			return nil

		case ActionRetryAuth:
			apiErr := &APIError{StatusCode: status, Endpoint: rawURL, Body: body}
			if creds == nil || reauthed {
				return apiErr
			}
			reauthed = true
			creds.Invalidate()
			e.logger.Info().Int("status", status).Str("url", rawURL).Msg("credential rejected, re-authenticating")
			attempt-- // re-auth does not consume the retry budget
			continue

		case ActionRetryRateLimited:
			apiErr := &APIError{StatusCode: status, Endpoint: rawURL, Body: body}
			if attempt >= e.policy.MaxAttempts {
				return apiErr
			}
			delay := retryAfter(header)
			if delay <= 0 {
				delay = e.policy.RateLimitBackoff(attempt)
			}
			e.logger.Warn().Dur("delay", delay).Str("url", rawURL).Msg("rate limited, backing off")
			if serr := e.sleep(ctx, delay); serr != nil {
				return serr
			}
			continue

		case ActionRetryServer:
			apiErr := &APIError{StatusCode: status, Endpoint: rawURL, Body: body}
			if attempt >= e.policy.MaxAttempts {
				return apiErr
			}
			if serr := e.sleep(ctx, e.policy.Backoff(attempt)); serr != nil {
				return serr
			}
			continue

		default:
			return &APIError{StatusCode: status, Endpoint: rawURL, Body: body}
		}
	}
}

func (e *Executor) roundTrip(ctx context.Context, rawURL string, cred Credential) (int, http.Header, []byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("create request: %w", err)
	}
	if cred.Value != "" {
		req.Header.Set("Authorization", "Bearer "+cred.Value)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, resp.Header, body, nil
}

func retryAfter(h http.Header) time.Duration {
	raw := h.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
