// Package resolver picks one playable preview track for a playlist or genre
// identifier, degrading through four acquisition tiers: direct playlist
// lookup, keyword search, genre recommendations, and a credential-free
// catalog.
package resolver

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"enunanota/internal/musicapi"
)

const (
	defaultBudget = 12 * time.Second

	directPageLimit     = 100
	maxDirectTracks     = 500
	searchLimit         = 50
	recommendationLimit = 50
	fallbackLimit       = 25
)

// defaultMarkets is the fixed market iteration order shared by every tier.
// The empty string means no market parameter.
var defaultMarkets = []string{"US", "AR", "ES", "MX", ""}

// Catalog is the credentialed catalog the resolver draws from.
type Catalog interface {
	PlaylistMetadata(ctx context.Context, creds musicapi.CredentialSource, playlistID string) (*musicapi.SpotifyPlaylist, error)
	PlaylistTracks(ctx context.Context, creds musicapi.CredentialSource, playlistID, market string, limit, offset int) (*musicapi.SpotifyTrackPage, error)
	SearchTracks(ctx context.Context, creds musicapi.CredentialSource, query, market string, limit int) ([]musicapi.SpotifyTrack, error)
	Recommendations(ctx context.Context, creds musicapi.CredentialSource, genres []string, market string, limit int) ([]musicapi.SpotifyTrack, error)
}

// FallbackCatalog is the credential-free last-resort catalog.
type FallbackCatalog interface {
	SearchTracks(ctx context.Context, term string, limit int) ([]musicapi.ITunesTrack, error)
}

// CredentialProvider supplies per-request credential sources. Implemented by
// musicapi.TokenBroker.
type CredentialProvider interface {
	AppSource() musicapi.CredentialSource
	UserSource(refreshToken string) musicapi.CredentialSource
}

// NotFoundError means no playable track exists in any tier. This is a
// legitimate business outcome, not a bug; Details carries the last upstream
// diagnostic for observability.
type NotFoundError struct {
	Details any
}

func (e *NotFoundError) Error() string {
	return "no playable track with a preview was found"
}

// Resolver orchestrates the tiered resolution pipeline.
type Resolver struct {
	catalog     Catalog
	fallback    FallbackCatalog
	credentials CredentialProvider
	markets     []string
	budget      time.Duration
	logger      zerolog.Logger

	pick func(n int) int
}

func New(catalog Catalog, fallback FallbackCatalog, credentials CredentialProvider, logger zerolog.Logger) *Resolver {
	return &Resolver{
		catalog:     catalog,
		fallback:    fallback,
		credentials: credentials,
		markets:     defaultMarkets,
		budget:      defaultBudget,
		logger:      logger,
		pick:        rand.Intn,
	}
}

// SetMarkets overrides the market iteration order.
func (r *Resolver) SetMarkets(markets []string) {
	if len(markets) > 0 {
		r.markets = markets
	}
}

// Resolve returns one playable track for the identifier, selected uniformly
// at random from the first tier and market yielding any playable item. An
// optional refresh token scopes catalog access to the caller's session. Every
// call performs a fresh selection; nothing is cached.
func (r *Resolver) Resolve(ctx context.Context, playlistID, refreshToken string) (*PlayableTrack, error) {
	// The pipeline can stack four tiers x several markets x retries; the
	// overall budget keeps worst-case latency bounded.
	ctx, cancel := context.WithTimeout(ctx, r.budget)
	defer cancel()

	creds := r.credentials.AppSource()
	if refreshToken != "" {
		creds = r.credentials.UserSource(refreshToken)
	}

	terms, hasTerms := TermsFor(playlistID)
	var lastDiag any

	_, err := r.catalog.PlaylistMetadata(ctx, creds, playlistID)
	switch {
	case err == nil:
		pool, derr := r.fetchDirect(ctx, creds, playlistID)
		if derr != nil {
			if budgetExceeded(ctx) {
				return nil, &NotFoundError{Details: "resolution budget exceeded"}
			}
			r.logger.Warn().Err(derr).Str("playlist", playlistID).Msg("direct fetch failed, falling back")
			lastDiag = diagnosticOf(derr)
		}
		if len(pool) > 0 {
			return r.choose(pool), nil
		}
	case musicapi.IsNotFound(err):
		if !hasTerms {
			// No approximation exists for this identifier; the 404 is final.
			return nil, &NotFoundError{Details: diagnosticOf(err)}
		}
		lastDiag = diagnosticOf(err)
	default:
		return nil, err
	}

	if budgetExceeded(ctx) {
		return nil, &NotFoundError{Details: "resolution budget exceeded"}
	}

	if pool, diag := r.searchFallback(ctx, creds, terms); len(pool) > 0 {
		return r.choose(pool), nil
	} else if diag != nil {
		lastDiag = diag
	}

	if budgetExceeded(ctx) {
		return nil, &NotFoundError{Details: "resolution budget exceeded"}
	}

	if pool, diag := r.recommendationFallback(ctx, creds, terms); len(pool) > 0 {
		return r.choose(pool), nil
	} else if diag != nil {
		lastDiag = diag
	}

	if budgetExceeded(ctx) {
		return nil, &NotFoundError{Details: "resolution budget exceeded"}
	}

	if pool, diag := r.catalogFallback(ctx, terms); len(pool) > 0 {
		return r.choose(pool), nil
	} else if diag != nil {
		lastDiag = diag
	}

	return nil, &NotFoundError{Details: lastDiag}
}

// fetchDirect pages through the playlist's tracks in the first market that
// returns any batch, then filters to playable items. An empty pool sends the
// pipeline to the search tier.
func (r *Resolver) fetchDirect(ctx context.Context, creds musicapi.CredentialSource, playlistID string) ([]PlayableTrack, error) {
	var lastErr error
	for _, market := range r.markets {
		page, err := r.catalog.PlaylistTracks(ctx, creds, playlistID, market, directPageLimit, 0)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			r.logger.Debug().Err(err).Str("market", marketLabel(market)).Msg("playlist tracks fetch failed")
			continue
		}
		if len(page.Items) == 0 {
			continue
		}

		items := page.Items
		for page.Next != nil && len(items) < maxDirectTracks {
			page, err = r.catalog.PlaylistTracks(ctx, creds, playlistID, market, directPageLimit, len(items))
			if err != nil {
				// Keep what we already have; a partial listing still
				// gives the selection something to work with.
				r.logger.Debug().Err(err).Str("market", marketLabel(market)).Msg("pagination stopped early")
				break
			}
			items = append(items, page.Items...)
		}

		return playablePlaylistItems(items), nil
	}
	return nil, lastErr
}

// searchFallback issues a keyword search per term and market; the first
// combination with any playable hit wins.
func (r *Resolver) searchFallback(ctx context.Context, creds musicapi.CredentialSource, terms TermSet) ([]PlayableTrack, any) {
	var lastDiag any
	for _, keyword := range terms.Keywords {
		for _, market := range r.markets {
			if ctx.Err() != nil {
				return nil, lastDiag
			}
			tracks, err := r.catalog.SearchTracks(ctx, creds, keyword, market, searchLimit)
			if err != nil {
				lastDiag = diagnosticOf(err)
				r.logger.Debug().Err(err).Str("keyword", keyword).Str("market", marketLabel(market)).Msg("search failed")
				continue
			}
			if pool := playableSpotifyTracks(tracks); len(pool) > 0 {
				return pool, nil
			}
		}
	}
	return nil, lastDiag
}

// recommendationFallback repeats the search pattern against the
// recommendation endpoint, seeded genre by genre.
func (r *Resolver) recommendationFallback(ctx context.Context, creds musicapi.CredentialSource, terms TermSet) ([]PlayableTrack, any) {
	genres := terms.Genres
	if len(genres) == 0 {
		genres = defaultGenres
	}

	var lastDiag any
	for _, genre := range genres {
		for _, market := range r.markets {
			if ctx.Err() != nil {
				return nil, lastDiag
			}
			tracks, err := r.catalog.Recommendations(ctx, creds, []string{genre}, market, recommendationLimit)
			if err != nil {
				lastDiag = diagnosticOf(err)
				r.logger.Debug().Err(err).Str("genre", genre).Str("market", marketLabel(market)).Msg("recommendations failed")
				continue
			}
			if pool := playableSpotifyTracks(tracks); len(pool) > 0 {
				return pool, nil
			}
		}
	}
	return nil, lastDiag
}

// catalogFallback queries the independent credential-free catalog.
func (r *Resolver) catalogFallback(ctx context.Context, terms TermSet) ([]PlayableTrack, any) {
	keywords := terms.Keywords
	if len(keywords) == 0 {
		keywords = defaultKeywords
	}

	var lastDiag any
	for _, keyword := range keywords {
		if ctx.Err() != nil {
			return nil, lastDiag
		}
		tracks, err := r.fallback.SearchTracks(ctx, keyword, fallbackLimit)
		if err != nil {
			lastDiag = diagnosticOf(err)
			r.logger.Debug().Err(err).Str("keyword", keyword).Msg("fallback catalog search failed")
			continue
		}
		if pool := playableITunesTracks(tracks); len(pool) > 0 {
			return pool, nil
		}
	}
	return nil, lastDiag
}

// choose selects uniformly at random; the pool is already filtered to
// playable items, so no further ranking applies.
func (r *Resolver) choose(pool []PlayableTrack) *PlayableTrack {
	track := pool[r.pick(len(pool))]
	return &track
}

func budgetExceeded(ctx context.Context) bool {
	return ctx.Err() != nil
}

func diagnosticOf(err error) any {
	var apiErr *musicapi.APIError
	if errors.As(err, &apiErr) {
		if details := apiErr.Details(); details != nil {
			return details
		}
	}
	var authErr *musicapi.AuthError
	if errors.As(err, &authErr) {
		if details := authErr.Details(); details != nil {
			return details
		}
	}
	return err.Error()
}

func marketLabel(market string) string {
	if market == "" {
		return "any"
	}
	return market
}
