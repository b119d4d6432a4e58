package repositories

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lunamoth/tidesync/internal/shared"
)

// TrackMatch is a resolved Spotify -> Tidal track pairing.
type TrackMatch struct {
	ID        string
	SpotifyID string
	TidalID   string
	Title     string
	Artist    string
	ISRC      string
	MatchedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MatchRepository persists resolved track matches.
//
// One row per Spotify track ID; re-resolving a track updates the existing
// row instead of inserting a duplicate.
type MatchRepository struct {
	db *sql.DB
}

// NewMatchRepository creates a new MatchRepository with the given database connection
func NewMatchRepository(db *sql.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

// Save inserts or updates the match for a Spotify track.
func (r *MatchRepository) Save(match *TrackMatch) error {
	if match.SpotifyID == "" {
		return fmt.Errorf("%w: spotify_id is required", shared.ErrInvalidInput)
	}
	if match.TidalID == "" {
		return fmt.Errorf("%w: tidal_id is required", shared.ErrInvalidInput)
	}

	now := time.Now()
	if match.ID == "" {
		match.ID = shared.GenerateID()
	}
	if match.CreatedAt.IsZero() {
		match.CreatedAt = now
	}
	match.UpdatedAt = now

	query := `
		INSERT INTO track_matches (id, spotify_id, tidal_id, title, artist, isrc, matched_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		match.ID,
		match.SpotifyID,
		match.TidalID,
		match.Title,
		match.Artist,
		match.ISRC,
		match.MatchedBy,
		match.CreatedAt,
		match.UpdatedAt,
	)
	if err == nil {
		return nil
	}

	if !strings.Contains(err.Error(), "UNIQUE constraint") {
		return fmt.Errorf("failed to insert match: %w", err)
	}

	update := `
		UPDATE track_matches
		SET tidal_id = ?, title = ?, artist = ?, isrc = ?, matched_by = ?, updated_at = ?
		WHERE spotify_id = ?
	`

	if _, err := r.db.Exec(update,
		match.TidalID,
		match.Title,
		match.Artist,
		match.ISRC,
		match.MatchedBy,
		match.UpdatedAt,
		match.SpotifyID,
	); err != nil {
		return fmt.Errorf("failed to update match: %w", err)
	}

	return nil
}

// GetBySpotifyID retrieves the match for a Spotify track ID.
//
// Returns [shared.ErrTrackNotFound] when no match is cached.
func (r *MatchRepository) GetBySpotifyID(spotifyID string) (*TrackMatch, error) {
	query := `
		SELECT id, spotify_id, tidal_id, title, artist, isrc, matched_by, created_at, updated_at
		FROM track_matches
		WHERE spotify_id = ?
	`

	return r.scanOne(r.db.QueryRow(query, spotifyID))
}

// GetByISRC retrieves a cached match by ISRC.
//
// Different Spotify releases of the same recording share an ISRC, so a hit
// here saves a search even for a track ID never seen before.
func (r *MatchRepository) GetByISRC(isrc string) (*TrackMatch, error) {
	query := `
		SELECT id, spotify_id, tidal_id, title, artist, isrc, matched_by, created_at, updated_at
		FROM track_matches
		WHERE isrc = ? AND isrc != ''
		LIMIT 1
	`

	return r.scanOne(r.db.QueryRow(query, isrc))
}

// Delete removes the cached match for a Spotify track ID.
func (r *MatchRepository) Delete(spotifyID string) error {
	result, err := r.db.Exec(`DELETE FROM track_matches WHERE spotify_id = ?`, spotifyID)
	if err != nil {
		return fmt.Errorf("failed to delete match: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: no cached match for %s", shared.ErrTrackNotFound, spotifyID)
	}

	return nil
}

// List retrieves all cached matches ordered by creation time.
func (r *MatchRepository) List() ([]*TrackMatch, error) {
	query := `
		SELECT id, spotify_id, tidal_id, title, artist, isrc, matched_by, created_at, updated_at
		FROM track_matches
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	var matches []*TrackMatch
	for rows.Next() {
		var m TrackMatch
		if err := rows.Scan(&m.ID, &m.SpotifyID, &m.TidalID, &m.Title, &m.Artist, &m.ISRC, &m.MatchedBy, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return matches, nil
}

func (r *MatchRepository) scanOne(row *sql.Row) (*TrackMatch, error) {
	var m TrackMatch

	err := row.Scan(&m.ID, &m.SpotifyID, &m.TidalID, &m.Title, &m.Artist, &m.ISRC, &m.MatchedBy, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, shared.ErrTrackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan match: %w", err)
	}

	return &m, nil
}
