package musicapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

const defaultITunesSearchURL = "https://itunes.apple.com/search"

// ITunesTrack is one hit from the iTunes Search API.
type ITunesTrack struct {
	TrackName     string `json:"trackName"`
	ArtistName    string `json:"artistName"`
	PreviewURL    string `json:"previewUrl"`
	ArtworkURL100 string `json:"artworkUrl100"`
}

type itunesSearchResponse struct {
	ResultCount int           `json:"resultCount"`
	Results     []ITunesTrack `json:"results"`
}

// ITunesClient queries the public iTunes Search API. No credentials are
// required, which makes it the last-resort catalog when every authenticated
// tier comes up empty.
type ITunesClient struct {
	baseURL  string
	executor *Executor
}

func NewITunesClient(executor *Executor) *ITunesClient {
	return &ITunesClient{
		baseURL:  defaultITunesSearchURL,
		executor: executor,
	}
}

// SearchTracks searches songs matching term.
func (c *ITunesClient) SearchTracks(ctx context.Context, term string, limit int) ([]ITunesTrack, error) {
	params := url.Values{}
	params.Set("term", term)
	params.Set("entity", "song")
	params.Set("limit", strconv.Itoa(limit))

	var response itunesSearchResponse
	endpoint := fmt.Sprintf("%s?%s", c.baseURL, params.Encode())
	if err := c.executor.GetJSON(ctx, nil, endpoint, &response); err != nil {
		return nil, err
	}
	return response.Results, nil
}
