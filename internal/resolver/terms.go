package resolver

import "strings"

// TermSet approximates a playlist's content when it cannot be resolved
// directly: Keywords feed the search tiers, Genres seed recommendations.
type TermSet struct {
	Keywords []string
	Genres   []string
}

// fallbackTerms maps known playlist identifiers to their term sets. Lookup is
// an exact match on the trimmed identifier; a miss means the identifier has
// no approximation and a 404 on the existence check is final.
var fallbackTerms = map[string]TermSet{
	// Today's Top Hits
	"37i9dQZF1DXcBWIGoYBM5M": {
		Keywords: []string{"today's top hits", "top global hits", "pop hits"},
		Genres:   []string{"pop", "dance"},
	},
	// Viva Latino
	"37i9dQZF1DX10zKzsJ2jva": {
		Keywords: []string{"viva latino", "latin hits", "reggaeton hits"},
		Genres:   []string{"latin", "reggaeton"},
	},
	// Rock Classics
	"37i9dQZF1DWXRqgorJj26U": {
		Keywords: []string{"rock classics", "classic rock hits"},
		Genres:   []string{"rock", "classic-rock"},
	},
	// Kochi
	"7v4y32dRRPqgENTN2T5xg1": {
		Keywords: []string{"kochi", "indie argentina"},
		Genres:   []string{"indie", "latin"},
	},
}

// defaultGenres seed the recommendation tier when a term set carries none.
var defaultGenres = []string{"pop", "rock", "latin"}

// defaultKeywords drive the last-resort catalog when no term set exists.
var defaultKeywords = []string{"top hits"}

// TermsFor returns the fallback term set for a playlist identifier.
func TermsFor(playlistID string) (TermSet, bool) {
	terms, ok := fallbackTerms[strings.TrimSpace(playlistID)]
	return terms, ok
}
