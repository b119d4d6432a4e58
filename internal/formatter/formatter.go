// package formatter renders playlist exports and missing-track reports to
// various formats (CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/lunamoth/tidesync/internal/services"
	"github.com/lunamoth/tidesync/internal/shared"
	"github.com/lunamoth/tidesync/internal/state"
)

// ExportToCSV converts a PlaylistExport to CSV format with columns: ID, Title, Artist, Album, Duration, ISRC
func ExportToCSV(export *services.PlaylistExport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "Artist", "Album", "Duration", "ISRC"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range export.Tracks {
		record := []string{
			track.ID,
			track.Title,
			track.Artist,
			track.Album,
			strconv.Itoa(track.Duration),
			track.ISRC,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a PlaylistExport to Markdown format
func ExportToMarkdown(export *services.PlaylistExport) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", export.Playlist.Name))

	if export.Playlist.Description != "" {
		buf.WriteString(fmt.Sprintf("**Description**: %s\n\n", export.Playlist.Description))
	}

	buf.WriteString(fmt.Sprintf("**Tracks**: %d\n", len(export.Tracks)))
	buf.WriteString(fmt.Sprintf("**Visibility**: %s\n\n", shared.VisibilityString(export.Playlist.Public)))

	buf.WriteString("## Tracks\n\n")
	for i, track := range export.Tracks {
		duration := shared.FormatDuration(track.Duration)
		albumPart := ""
		if track.Album != "" {
			albumPart = fmt.Sprintf(" (%s)", track.Album)
		}
		buf.WriteString(fmt.Sprintf("%d. %s - %s%s [%s]\n", i+1, track.Artist, track.Title, albumPart, duration))
	}

	return buf.Bytes(), nil
}

// ExportToText converts a PlaylistExport to plain text format
func ExportToText(export *services.PlaylistExport) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Playlist: %s\n", export.Playlist.Name))
	if export.Playlist.Description != "" {
		buf.WriteString(fmt.Sprintf("Description: %s\n", export.Playlist.Description))
	}
	buf.WriteString(fmt.Sprintf("Tracks: %d\n\n", len(export.Tracks)))

	for i, track := range export.Tracks {
		buf.WriteString(fmt.Sprintf("%d. %s - %s\n", i+1, track.Artist, track.Title))
	}

	return buf.Bytes(), nil
}

// WriteExport exports a playlist to the given format ("csv", "markdown", or
// "txt") and writes it to filepath. An empty filepath derives the name from
// the playlist ID.
func WriteExport(export *services.PlaylistExport, format, filepath string) (string, error) {
	var (
		data []byte
		err  error
		ext  string
	)

	switch format {
	case "csv":
		data, err = ExportToCSV(export)
		ext = "csv"
	case "markdown", "md":
		data, err = ExportToMarkdown(export)
		ext = "md"
	case "txt", "text", "":
		data, err = ExportToText(export)
		ext = "txt"
	default:
		return "", fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidFlag, format)
	}
	if err != nil {
		return "", err
	}

	if filepath == "" {
		filepath = fmt.Sprintf("%s_tracks.%s", export.Playlist.ID, ext)
	}

	if err := os.WriteFile(filepath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}

	return filepath, nil
}

// MissingToCSV renders the missing tracks of one playlist as CSV with
// columns: Title, Artists, ISRC, SpotifyID
func MissingToCSV(missing []state.MissingTrack) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Title", "Artists", "ISRC", "SpotifyID"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range missing {
		record := []string{track.Title, track.Artists, track.ISRC, track.SpotifyID}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// MissingToMarkdown renders a missing-track report for one or more playlists.
func MissingToMarkdown(playlists map[string]*state.PlaylistState) []byte {
	var buf bytes.Buffer

	buf.WriteString("# Missing Tracks\n\n")

	for name, st := range playlists {
		if len(st.Missing) == 0 {
			continue
		}

		buf.WriteString(fmt.Sprintf("## %s (%d missing)\n\n", name, len(st.Missing)))
		for i, track := range st.Missing {
			isrcPart := ""
			if track.ISRC != "" {
				isrcPart = fmt.Sprintf(" `%s`", track.ISRC)
			}
			buf.WriteString(fmt.Sprintf("%d. %s - %s%s\n", i+1, track.Artists, track.Title, isrcPart))
		}
		buf.WriteString("\n")
	}

	return buf.Bytes()
}

// MissingToText renders missing tracks as plain text, one track per line.
func MissingToText(missing []state.MissingTrack) []byte {
	var buf bytes.Buffer

	for _, track := range missing {
		buf.WriteString(fmt.Sprintf("%s - %s\n", track.Artists, track.Title))
	}

	return buf.Bytes()
}

// WriteMissingReport writes the missing tracks of one playlist to a file in
// the given format ("csv", "markdown", or "txt").
func WriteMissingReport(name string, st *state.PlaylistState, format, filepath string) (string, error) {
	var (
		data []byte
		err  error
		ext  string
	)

	switch format {
	case "csv":
		data, err = MissingToCSV(st.Missing)
		ext = "csv"
	case "markdown", "md":
		data = MissingToMarkdown(map[string]*state.PlaylistState{name: st})
		ext = "md"
	case "txt", "text", "":
		data = MissingToText(st.Missing)
		ext = "txt"
	default:
		return "", fmt.Errorf("%w: unknown report format %q", shared.ErrInvalidFlag, format)
	}
	if err != nil {
		return "", err
	}

	if filepath == "" {
		filepath = fmt.Sprintf("%s_missing.%s", name, ext)
	}

	if err := os.WriteFile(filepath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}

	return filepath, nil
}
