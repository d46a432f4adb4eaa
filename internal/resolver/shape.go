package resolver

import (
	"strings"

	"enunanota/internal/musicapi"
)

// PlayableTrack is the uniform record returned to callers. It is only ever
// built from catalog items carrying a non-empty preview URL.
type PlayableTrack struct {
	Title      string
	Artists    []string
	PreviewURL string
	ArtworkURL string
}

// DisplayArtists joins the artist credits into a single display string.
func (t PlayableTrack) DisplayArtists() string {
	return strings.Join(t.Artists, ", ")
}

// shapeSpotifyTrack normalizes a Spotify track (playlist item, search hit or
// recommendation hit all share this shape). ok is false for items that are
// not playable: episodes, local files and tracks without a preview.
func shapeSpotifyTrack(t musicapi.SpotifyTrack) (PlayableTrack, bool) {
	if t.Type != "track" || t.IsLocal || t.PreviewURL == "" {
		return PlayableTrack{}, false
	}

	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		if a.Name != "" {
			artists = append(artists, a.Name)
		}
	}

	return PlayableTrack{
		Title:      t.Name,
		Artists:    artists,
		PreviewURL: t.PreviewURL,
		ArtworkURL: largestImage(t.Album.Images),
	}, true
}

// shapeITunesTrack normalizes an iTunes search hit.
func shapeITunesTrack(t musicapi.ITunesTrack) (PlayableTrack, bool) {
	if t.PreviewURL == "" {
		return PlayableTrack{}, false
	}
	return PlayableTrack{
		Title:      t.TrackName,
		Artists:    []string{t.ArtistName},
		PreviewURL: t.PreviewURL,
		ArtworkURL: upgradeITunesArtwork(t.ArtworkURL100),
	}, true
}

// playableSpotifyTracks filters a batch of tracks to the playable subset.
func playableSpotifyTracks(tracks []musicapi.SpotifyTrack) []PlayableTrack {
	var pool []PlayableTrack
	for _, t := range tracks {
		if shaped, ok := shapeSpotifyTrack(t); ok {
			pool = append(pool, shaped)
		}
	}
	return pool
}

// playablePlaylistItems filters playlist entries, skipping null tracks.
func playablePlaylistItems(items []musicapi.SpotifyPlaylistItem) []PlayableTrack {
	var pool []PlayableTrack
	for _, item := range items {
		if item.Track == nil {
			continue
		}
		if shaped, ok := shapeSpotifyTrack(*item.Track); ok {
			pool = append(pool, shaped)
		}
	}
	return pool
}

// playableITunesTracks filters iTunes hits to the playable subset.
func playableITunesTracks(tracks []musicapi.ITunesTrack) []PlayableTrack {
	var pool []PlayableTrack
	for _, t := range tracks {
		if shaped, ok := shapeITunesTrack(t); ok {
			pool = append(pool, shaped)
		}
	}
	return pool
}

// largestImage picks the highest-resolution artwork. Spotify usually orders
// images widest first, but that is not guaranteed.
func largestImage(images []musicapi.SpotifyImage) string {
	best := ""
	bestArea := -1
	for _, img := range images {
		area := img.Width * img.Height
		if area > bestArea {
			bestArea = area
			best = img.URL
		}
	}
	return best
}

// upgradeITunesArtwork swaps the 100x100 thumbnail for the 600x600 rendition
// the artwork CDN also serves.
func upgradeITunesArtwork(url string) string {
	return strings.ReplaceAll(url, "100x100", "600x600")
}
