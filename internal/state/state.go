// Package state persists sync progress to a local JSON file.
//
// One record is kept per Spotify playlist name: the cursor (idx) of the last
// durably processed source entry and the list of tracks that could not be
// matched on Tidal. Reruns resume from the cursor and never reprocess
// entries before it.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lunamoth/tidesync/internal/shared"
)

// MissingTrack describes a source track with no confident Tidal match.
type MissingTrack struct {
	Title     string `json:"title"`
	Artists   string `json:"artists"`
	ISRC      string `json:"isrc,omitempty"`
	SpotifyID string `json:"spotify_id"`
}

// PlaylistState tracks sync progress for a single playlist.
type PlaylistState struct {
	// Idx is the number of source entries already processed. A rerun
	// starts at this offset.
	Idx int `json:"idx"`
	// Missing holds tracks that were skipped because no match was found.
	Missing []MissingTrack `json:"missing"`
}

// File is the on-disk sync state, keyed by Spotify playlist name.
type File struct {
	Playlists map[string]*PlaylistState `json:"playlists"`

	path string
}

// Load reads the state file at path. A missing file yields an empty state;
// a file that exists but cannot be parsed is an error.
func Load(path string) (*File, error) {
	f := &File{
		Playlists: map[string]*PlaylistState{},
		path:      path,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	if err := json.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrStateCorrupt, err)
	}

	if f.Playlists == nil {
		f.Playlists = map[string]*PlaylistState{}
	}

	return f, nil
}

// Save writes the state to disk atomically (temp file + rename).
func (f *File) Save() error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".sync_state_*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp state file: %w", err)
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	return nil
}

// Path returns the file path this state was loaded from.
func (f *File) Path() string {
	return f.path
}

// Playlist returns the state entry for a playlist name, creating it if absent.
func (f *File) Playlist(name string) *PlaylistState {
	if st, ok := f.Playlists[name]; ok {
		return st
	}
	st := &PlaylistState{}
	f.Playlists[name] = st
	return st
}

// Reset removes the state entry for a playlist name.
func (f *File) Reset(name string) {
	delete(f.Playlists, name)
}

// AddMissing appends a missing track, deduplicating by Spotify ID.
func (s *PlaylistState) AddMissing(track MissingTrack) {
	for _, m := range s.Missing {
		if m.SpotifyID == track.SpotifyID {
			return
		}
	}
	s.Missing = append(s.Missing, track)
}

// RemoveMissing drops a track from the missing list once it has been matched.
func (s *PlaylistState) RemoveMissing(spotifyID string) {
	for i, m := range s.Missing {
		if m.SpotifyID == spotifyID {
			s.Missing = append(s.Missing[:i], s.Missing[i+1:]...)
			return
		}
	}
}
