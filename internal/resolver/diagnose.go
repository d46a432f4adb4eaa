package resolver

import (
	"context"
	"math"
	"strings"

	"enunanota/internal/musicapi"
)

const exampleLimit = 5

// TrackExample identifies one track in a diagnosis report.
type TrackExample struct {
	Name   string `json:"name"`
	Artist string `json:"artist"`
}

// PlaylistReport summarizes preview availability across a whole playlist.
type PlaylistReport struct {
	Total            int            `json:"total"`
	TracksConsidered int            `json:"tracksConsidered"`
	WithPreview      int            `json:"withPreview"`
	WithoutPreview   int            `json:"withoutPreview"`
	Percentage       int            `json:"percentage"`
	ExamplesWith     []TrackExample `json:"examplesWith"`
	ExamplesWithout  []TrackExample `json:"examplesWithout"`
}

// Diagnose pages through the entire playlist without a market filter and
// counts how many real tracks carry a preview. Episodes, local files and
// null entries are skipped from consideration.
func (r *Resolver) Diagnose(ctx context.Context, playlistID, refreshToken string) (*PlaylistReport, error) {
	ctx, cancel := context.WithTimeout(ctx, r.budget)
	defer cancel()

	creds := r.credentials.AppSource()
	if refreshToken != "" {
		creds = r.credentials.UserSource(refreshToken)
	}

	var items []musicapi.SpotifyPlaylistItem
	offset := 0
	for {
		page, err := r.catalog.PlaylistTracks(ctx, creds, playlistID, "", directPageLimit, offset)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
		if page.Next == nil {
			break
		}
		offset += directPageLimit
	}

	report := &PlaylistReport{Total: len(items)}
	for _, item := range items {
		t := item.Track
		if t == nil || t.Type != "track" || t.IsLocal {
			continue
		}
		example := TrackExample{Name: t.Name, Artist: displayArtists(t.Artists)}
		if t.PreviewURL != "" {
			report.WithPreview++
			if len(report.ExamplesWith) < exampleLimit {
				report.ExamplesWith = append(report.ExamplesWith, example)
			}
		} else {
			report.WithoutPreview++
			if len(report.ExamplesWithout) < exampleLimit {
				report.ExamplesWithout = append(report.ExamplesWithout, example)
			}
		}
	}

	report.TracksConsidered = report.WithPreview + report.WithoutPreview
	if report.TracksConsidered > 0 {
		report.Percentage = int(math.Round(float64(report.WithPreview) / float64(report.TracksConsidered) * 100))
	}
	return report, nil
}

func displayArtists(artists []musicapi.SpotifyArtist) string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}
