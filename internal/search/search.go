package search

import (
	"context"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"lytter/internal/store/scrobbledb"
)

const (
	minQueryLength = 2
	fuzzyCutoff    = 60
)

// Match is one search result: an artist, its play count, and a 0-100
// similarity score.
type Match struct {
	Artist     string
	Plays      int
	Similarity float64
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize removes accents and diacritics so "u" matches "ü". It decomposes
// to NFD and drops the combining marks.
func Normalize(s string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		return s
	}
	return out
}

// Search ranks the store's distinct artists against query. Substring matches
// (case- and accent-insensitive) score a perfect 100; remaining candidates go
// through a weighted-ratio fuzzy match with a cutoff. Results sort by
// similarity, then play count. The candidate set is recomputed from the store
// on every call, so a freshly ingested artist is immediately searchable.
func Search(ctx context.Context, store *scrobbledb.DB, query string, limit int) ([]Match, error) {
	if utf8.RuneCountInString(query) < minQueryLength {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	counts, err := store.ArtistPlayCounts(ctx)
	if err != nil { return nil, err }
	if len(counts) == 0 {
		return nil, nil
	}

	qLower := strings.ToLower(query)
	qNorm := Normalize(qLower)

	matched := map[string]Match{}
	var remaining []string
	for artist, plays := range counts {
		aLower := strings.ToLower(artist)
		if strings.Contains(aLower, qLower) || strings.Contains(Normalize(aLower), qNorm) {
			matched[artist] = Match{Artist: artist, Plays: plays, Similarity: 100}
			continue
		}
		remaining = append(remaining, artist)
	}

	for _, artist := range remaining {
		score := fuzzy.WRatio(query, artist)
		if score >= fuzzyCutoff {
			matched[artist] = Match{Artist: artist, Plays: counts[artist], Similarity: float64(score)}
		}
	}

	out := make([]Match, 0, len(matched))
	for _, m := range matched {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		if out[i].Plays != out[j].Plays {
			return out[i].Plays > out[j].Plays
		}
		return out[i].Artist < out[j].Artist
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
