// Package matcher scores Tidal search candidates against a Spotify source
// track and picks the best match.
//
// Matching tiers, strongest first: ISRC equality, normalized title+artist
// equality, then fuzzy title similarity with a duration check. Each tier maps
// to a confidence score so callers can decide whether to accept a match
// automatically or ask the user.
package matcher

import (
	"sort"

	"github.com/agnivade/levenshtein"
	"github.com/lunamoth/tidesync/internal/services"
	"github.com/lunamoth/tidesync/internal/shared"
)

// Method identifies which tier produced a match.
type Method string

const (
	MethodISRC       Method = "isrc"
	MethodNormalized Method = "normalized"
	MethodFuzzy      Method = "fuzzy"
)

const (
	// Minimum fuzzy similarity for a candidate to count as a match.
	FuzzyThreshold = 0.85
	// Fuzzy matches must also agree on duration within this many seconds.
	DurationTolerance = 2
)

// Candidate is a scored destination track.
type Candidate struct {
	Track      services.Track
	Method     Method
	Confidence float64
}

// Matcher scores candidates for a source track.
type Matcher struct {
	fuzzyThreshold    float64
	durationTolerance int
}

// New returns a Matcher with the default thresholds.
func New() *Matcher {
	return &Matcher{
		fuzzyThreshold:    FuzzyThreshold,
		durationTolerance: DurationTolerance,
	}
}

// Query builds the search query for a source track, "title artists", the
// same string a user would type into the search box.
func Query(track services.Track) string {
	if track.Artist == "" {
		return track.Title
	}
	return track.Title + " " + track.Artist
}

// Best returns the highest-confidence candidate for the source track, or
// [shared.ErrNoMatch] when no candidate clears a matching tier.
func (m *Matcher) Best(source services.Track, candidates []services.Track) (*Candidate, error) {
	ranked := m.Rank(source, candidates)
	if len(ranked) == 0 {
		return nil, shared.ErrNoMatch
	}
	return &ranked[0], nil
}

// Rank scores every candidate that clears a matching tier and returns them
// ordered by confidence, best first. Candidates that match no tier are
// dropped.
func (m *Matcher) Rank(source services.Track, candidates []services.Track) []Candidate {
	var ranked []Candidate

	for _, c := range candidates {
		if cand, ok := m.score(source, c); ok {
			ranked = append(ranked, cand)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})

	return ranked
}

// RankAll scores every candidate, keeping the ones that clear no tier as
// low-confidence fuzzy entries instead of dropping them. Used to show a user
// the near misses when nothing met the threshold.
func (m *Matcher) RankAll(source services.Track, candidates []services.Track) []Candidate {
	ranked := make([]Candidate, 0, len(candidates))

	for _, c := range candidates {
		cand, ok := m.score(source, c)
		if !ok {
			sim := Similarity(
				shared.NormalizeTitle(source.Title),
				shared.NormalizeTitle(c.Title),
			)
			cand = Candidate{Track: c, Method: MethodFuzzy, Confidence: sim * 0.9}
		}
		ranked = append(ranked, cand)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})

	return ranked
}

func (m *Matcher) score(source, candidate services.Track) (Candidate, bool) {
	if source.ISRC != "" && candidate.ISRC != "" && source.ISRC == candidate.ISRC {
		return Candidate{Track: candidate, Method: MethodISRC, Confidence: 1.0}, true
	}

	sourceKey := shared.NormalizeTrackKey(source.Title, source.Artist)
	candidateKey := shared.NormalizeTrackKey(candidate.Title, candidate.Artist)
	if sourceKey == candidateKey {
		return Candidate{Track: candidate, Method: MethodNormalized, Confidence: 0.95}, true
	}

	sim := Similarity(
		shared.NormalizeTitle(source.Title),
		shared.NormalizeTitle(candidate.Title),
	)
	if sim >= m.fuzzyThreshold && m.durationClose(source, candidate) {
		// Cap fuzzy confidence below the normalized tier.
		conf := sim * 0.9
		return Candidate{Track: candidate, Method: MethodFuzzy, Confidence: conf}, true
	}

	return Candidate{}, false
}

func (m *Matcher) durationClose(a, b services.Track) bool {
	if a.Duration == 0 || b.Duration == 0 {
		// Unknown duration on either side; don't let it veto the match.
		return true
	}
	diff := a.Duration - b.Duration
	if diff < 0 {
		diff = -diff
	}
	return diff <= m.durationTolerance
}

// Similarity returns the normalized Levenshtein similarity of two strings,
// 1.0 for equal strings and 0.0 for entirely different ones.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	dist := levenshtein.ComputeDistance(a, b)
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}

	return 1.0 - float64(dist)/float64(longest)
}
