package repositories

import (
	"errors"
	"fmt"

	"github.com/lunamoth/tidesync/internal/services"
	"github.com/lunamoth/tidesync/internal/shared"
	"github.com/lunamoth/tidesync/internal/tasks"
)

// MatchCacheAdapter implements tasks.MatchCache using MatchRepository.
//
// Lookups try the Spotify track ID first, then fall back to the ISRC so a
// re-released track with a new ID still hits the cache.
type MatchCacheAdapter struct {
	repo *MatchRepository
}

// NewMatchCacheAdapter creates a new MatchCacheAdapter with the given repository
func NewMatchCacheAdapter(repo *MatchRepository) *MatchCacheAdapter {
	return &MatchCacheAdapter{repo: repo}
}

// Get returns the cached match for a track, or nil on a cache miss.
func (a *MatchCacheAdapter) Get(spotifyID, isrc string) (*tasks.CachedMatch, error) {
	match, err := a.repo.GetBySpotifyID(spotifyID)
	if err != nil && !errors.Is(err, shared.ErrTrackNotFound) {
		return nil, fmt.Errorf("failed to look up match: %w", err)
	}

	if match == nil && isrc != "" {
		match, err = a.repo.GetByISRC(isrc)
		if err != nil && !errors.Is(err, shared.ErrTrackNotFound) {
			return nil, fmt.Errorf("failed to look up match: %w", err)
		}
	}

	if match == nil {
		return nil, nil
	}

	return &tasks.CachedMatch{TidalID: match.TidalID, Method: match.MatchedBy}, nil
}

// Put stores a resolved match.
func (a *MatchCacheAdapter) Put(track services.Track, tidalID, method string) error {
	return a.repo.Save(&TrackMatch{
		SpotifyID: track.ID,
		TidalID:   tidalID,
		Title:     track.Title,
		Artist:    track.Artist,
		ISRC:      track.ISRC,
		MatchedBy: method,
	})
}
