// package services defines interfaces for interacting with music streaming HTTP APIs
//
// Spotify (source), Tidal (destination)
package services

import (
	"context"

	"golang.org/x/oauth2"
)

// Service defines the operations shared by both music service providers.
type Service interface {
	// Authenticate performs OAuth or token authentication with the service.
	// Returns an error if authentication fails.
	Authenticate(ctx context.Context, credentials map[string]string) error

	// GetPlaylists retrieves all playlists for the authenticated user.
	GetPlaylists(ctx context.Context) ([]Playlist, error)

	// GetPlaylist retrieves a specific playlist by ID.
	GetPlaylist(ctx context.Context, playlistID string) (*Playlist, error)

	// ExportPlaylist exports a playlist with all its tracks.
	ExportPlaylist(ctx context.Context, playlistID string) (*PlaylistExport, error)

	// SearchTracks searches the service catalog and returns candidate tracks.
	SearchTracks(ctx context.Context, query string, limit int) ([]Track, error)

	// Name returns the name of the service (e.g., "Spotify", "Tidal")
	Name() string
}

// OAuthService extends Service for providers using the authorization code flow.
type OAuthService interface {
	Service

	// GetAuthURL returns the provider authorization URL for the given state token.
	GetAuthURL(state string) string

	// GetOAuthConfig exposes the underlying OAuth2 config for callback handling.
	GetOAuthConfig() *oauth2.Config

	// OAuthenticate authenticates with a previously obtained token.
	OAuthenticate(ctx context.Context, token *oauth2.Token) error
}

// Playlist represents a music playlist from any service
type Playlist struct {
	ID          string
	Name        string
	Description string
	TrackCount  int
	Public      bool
}

// PlaylistExport represents a playlist with all its tracks
type PlaylistExport struct {
	Playlist Playlist
	Tracks   []Track
}

// Track represents a music track from any service
type Track struct {
	ID       string
	Title    string
	Artist   string // All artist names joined with ", "
	Album    string
	Duration int    // Duration in seconds
	ISRC     string // International Standard Recording Code for matching
}

// TrackPage is one page of a playlist's tracks.
type TrackPage struct {
	Items  []Track
	Total  int
	Offset int
	Next   bool
}
