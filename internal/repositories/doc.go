// Package repositories implements SQLite persistence for resolved track
// matches.
//
// The match cache remembers which Tidal track a Spotify track resolved to,
// so reruns skip the search and never re-ask the user about a track they
// already picked.
//
// Key Implementations:
//   - [MatchRepository] : track match persistence with Spotify-ID and ISRC lookups
package repositories
