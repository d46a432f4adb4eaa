// Spotify Web API client for the preview resolver.
//
// Response types cover the subset of
// https://developer.spotify.com/documentation/web-api/reference/ the
// resolver consumes.
package musicapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const defaultSpotifyBaseURL = "https://api.spotify.com/v1"

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyArtist is the simplified artist object attached to tracks.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyAlbum is the simplified album object attached to tracks.
type SpotifyAlbum struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Images []SpotifyImage `json:"images"`
}

// SpotifyTrack represents a Spotify track. Type and IsLocal distinguish real
// catalog tracks from podcast episodes and local files in playlist listings.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	IsLocal    bool            `json:"is_local"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	PreviewURL string          `json:"preview_url"`
}

// SpotifyPlaylistItem wraps a track within a playlist context. Track may be
// null for removed or unavailable entries.
type SpotifyPlaylistItem struct {
	AddedAt string        `json:"added_at"`
	Track   *SpotifyTrack `json:"track"`
}

// SpotifyTrackPage is one page of a playlist's track listing.
type SpotifyTrackPage struct {
	Items  []SpotifyPlaylistItem `json:"items"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
	Next   *string               `json:"next"`
}

// SpotifyPlaylist holds the playlist metadata used for the existence check.
type SpotifyPlaylist struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Public bool   `json:"public"`
	Tracks struct {
		Total int `json:"total"`
	} `json:"tracks"`
}

type spotifySearchResponse struct {
	Tracks *struct {
		Items []SpotifyTrack `json:"items"`
	} `json:"tracks"`
}

type spotifyRecommendationsResponse struct {
	Tracks []SpotifyTrack `json:"tracks"`
}

// SpotifyClient exposes the playlist, search and recommendation endpoints
// through the retrying executor. Credentials flow per call so one client can
// serve both app-scoped and user-scoped requests.
type SpotifyClient struct {
	baseURL  string
	executor *Executor
}

func NewSpotifyClient(executor *Executor) *SpotifyClient {
	return &SpotifyClient{
		baseURL:  defaultSpotifyBaseURL,
		executor: executor,
	}
}

// PlaylistMetadata performs a lightweight fetch to verify the playlist
// resolves under the given credential.
func (c *SpotifyClient) PlaylistMetadata(ctx context.Context, creds CredentialSource, playlistID string) (*SpotifyPlaylist, error) {
	params := url.Values{}
	params.Set("fields", "id,name,public,tracks.total")

	var playlist SpotifyPlaylist
	endpoint := fmt.Sprintf("%s/playlists/%s?%s", c.baseURL, url.PathEscape(playlistID), params.Encode())
	if err := c.executor.GetJSON(ctx, creds, endpoint, &playlist); err != nil {
		return nil, err
	}
	return &playlist, nil
}

// PlaylistTracks fetches one page of the playlist's track listing. An empty
// market omits the market parameter.
func (c *SpotifyClient) PlaylistTracks(ctx context.Context, creds CredentialSource, playlistID, market string, limit, offset int) (*SpotifyTrackPage, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	if market != "" {
		params.Set("market", market)
	}

	var page SpotifyTrackPage
	endpoint := fmt.Sprintf("%s/playlists/%s/tracks?%s", c.baseURL, url.PathEscape(playlistID), params.Encode())
	if err := c.executor.GetJSON(ctx, creds, endpoint, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// SearchTracks performs a keyword track search in the given market.
func (c *SpotifyClient) SearchTracks(ctx context.Context, creds CredentialSource, query, market string, limit int) ([]SpotifyTrack, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "track")
	params.Set("limit", strconv.Itoa(limit))
	if market != "" {
		params.Set("market", market)
	}

	var response spotifySearchResponse
	endpoint := fmt.Sprintf("%s/search?%s", c.baseURL, params.Encode())
	if err := c.executor.GetJSON(ctx, creds, endpoint, &response); err != nil {
		return nil, err
	}
	if response.Tracks == nil {
		return nil, nil
	}
	return response.Tracks.Items, nil
}

// Recommendations fetches tracks seeded by the given genres.
func (c *SpotifyClient) Recommendations(ctx context.Context, creds CredentialSource, genres []string, market string, limit int) ([]SpotifyTrack, error) {
	if len(genres) == 0 {
		return nil, fmt.Errorf("no genre seeds provided")
	}

	params := url.Values{}
	params.Set("seed_genres", strings.Join(genres, ","))
	params.Set("limit", strconv.Itoa(limit))
	if market != "" {
		params.Set("market", market)
	}

	var response spotifyRecommendationsResponse
	endpoint := fmt.Sprintf("%s/recommendations?%s", c.baseURL, params.Encode())
	if err := c.executor.GetJSON(ctx, creds, endpoint, &response); err != nil {
		return nil, err
	}
	return response.Tracks, nil
}
