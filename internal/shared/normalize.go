package shared

import "strings"

// NormalizeTrackKey builds a comparison key from a track title and artist.
//
// Lowercases, strips remix/version decorations, and collapses whitespace so
// the same recording compares equal across services.
func NormalizeTrackKey(title, artist string) string {
	return NormalizeTitle(title) + "|" + NormalizeTitle(artist)
}

// NormalizeTitle normalizes a single title or artist name for comparison.
//
// Everything after the first parenthetical, bracket, or " - " suffix is
// dropped, matching how services decorate titles ("(Remastered)", "- Live").
func NormalizeTitle(s string) string {
	s = strings.ToLower(s)

	for _, sep := range []string{"(", "[", " - "} {
		if idx := strings.Index(s, sep); idx >= 0 {
			s = s[:idx]
		}
	}

	s = strings.Map(func(r rune) rune {
		switch r {
		case '\'', '"', '’', '“', '”', '!', '?', '.', ',':
			return -1
		}
		return r
	}, s)

	return strings.Join(strings.Fields(s), " ")
}
