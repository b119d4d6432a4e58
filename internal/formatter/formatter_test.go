package formatter

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lunamoth/tidesync/internal/services"
	"github.com/lunamoth/tidesync/internal/shared"
	"github.com/lunamoth/tidesync/internal/state"
	th "github.com/lunamoth/tidesync/internal/testing"
)

func testExport() *services.PlaylistExport {
	return &services.PlaylistExport{
		Playlist: services.Playlist{
			ID:          "test123",
			Name:        "Test Playlist",
			Description: "A test playlist",
			TrackCount:  2,
			Public:      true,
		},
		Tracks: []services.Track{
			{
				ID:       "track1",
				Title:    "Song One",
				Artist:   "Artist One",
				Album:    "Album One",
				Duration: 180,
				ISRC:     "USRC12345678",
			},
			{
				ID:       "track2",
				Title:    "Song Two",
				Artist:   "Artist Two",
				Duration: 240,
				ISRC:     "USRC87654321",
			},
		},
	}
}

func TestExporters(t *testing.T) {
	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(testExport())
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}

		output := string(data)

		if !strings.Contains(output, "ID,Title,Artist,Album,Duration,ISRC") {
			t.Errorf("CSV missing headers, got: %s", output)
		}
		if !strings.Contains(output, "track1") {
			t.Errorf("CSV missing track1 ID")
		}
		if !strings.Contains(output, "Song One") {
			t.Errorf("CSV missing track1 title")
		}
		if !strings.Contains(output, "USRC12345678") {
			t.Errorf("CSV missing track1 ISRC")
		}
	})

	t.Run("ExportToMarkdown", func(t *testing.T) {
		data, err := ExportToMarkdown(testExport())
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}

		output := string(data)

		if !strings.Contains(output, "# Test Playlist") {
			t.Errorf("Markdown missing title")
		}
		if !strings.Contains(output, "**Description**: A test playlist") {
			t.Errorf("Markdown missing description")
		}
		if !strings.Contains(output, "**Tracks**: 2") {
			t.Errorf("Markdown missing track count")
		}
		if !strings.Contains(output, "**Visibility**: Public") {
			t.Errorf("Markdown missing visibility")
		}
		if !strings.Contains(output, "1. Artist One - Song One (Album One) [3:00]") {
			t.Errorf("Markdown missing formatted track line, got:\n%s", output)
		}
		// No album on the second track, so no parenthetical.
		if !strings.Contains(output, "2. Artist Two - Song Two [4:00]") {
			t.Errorf("Markdown track without album malformed, got:\n%s", output)
		}
	})

	t.Run("ExportToText", func(t *testing.T) {
		data, err := ExportToText(testExport())
		if err != nil {
			t.Fatalf("ExportToText failed: %v", err)
		}

		output := string(data)

		if !strings.Contains(output, "Playlist: Test Playlist") {
			t.Errorf("text missing playlist name")
		}
		if !strings.Contains(output, "1. Artist One - Song One") {
			t.Errorf("text missing first track")
		}
	})
}

func TestWriteExport(t *testing.T) {
	t.Run("writes CSV to the given path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.csv")

		got, err := WriteExport(testExport(), "csv", path)
		if err != nil {
			t.Fatalf("WriteExport failed: %v", err)
		}
		if got != path {
			t.Errorf("WriteExport path = %q, want %q", got, path)
		}

		content := th.MustReadFile(t, path)
		if !strings.Contains(content, "Song One") {
			t.Errorf("exported file missing track data")
		}
	})

	t.Run("derives the filename from the playlist ID", func(t *testing.T) {
		wd := th.MustGetwd(t)
		th.MustChdir(t, t.TempDir())
		defer th.MustChdir(t, wd)

		got, err := WriteExport(testExport(), "markdown", "")
		if err != nil {
			t.Fatalf("WriteExport failed: %v", err)
		}
		if got != "test123_tracks.md" {
			t.Errorf("WriteExport path = %q, want test123_tracks.md", got)
		}
		th.AssertFileExists(t, got)
	})

	t.Run("empty format defaults to text", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.txt")

		if _, err := WriteExport(testExport(), "", path); err != nil {
			t.Fatalf("WriteExport failed: %v", err)
		}
		th.AssertFileExists(t, path)
	})

	t.Run("unknown format is rejected", func(t *testing.T) {
		_, err := WriteExport(testExport(), "xml", "")
		if !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("WriteExport error = %v, want ErrInvalidFlag", err)
		}
	})
}

func testMissing() []state.MissingTrack {
	return []state.MissingTrack{
		{Title: "Rare Cut", Artists: "Obscure Band", ISRC: "XX123", SpotifyID: "s1"},
		{Title: "Deep Track", Artists: "Another Band", SpotifyID: "s2"},
	}
}

func TestMissingReports(t *testing.T) {
	t.Run("MissingToCSV", func(t *testing.T) {
		data, err := MissingToCSV(testMissing())
		if err != nil {
			t.Fatalf("MissingToCSV failed: %v", err)
		}

		output := string(data)
		if !strings.Contains(output, "Title,Artists,ISRC,SpotifyID") {
			t.Errorf("CSV missing headers, got: %s", output)
		}
		if !strings.Contains(output, "Rare Cut,Obscure Band,XX123,s1") {
			t.Errorf("CSV missing record, got: %s", output)
		}
	})

	t.Run("MissingToMarkdown", func(t *testing.T) {
		playlists := map[string]*state.PlaylistState{
			"Mix":   {Missing: testMissing()},
			"Empty": {},
		}

		output := string(MissingToMarkdown(playlists))

		if !strings.Contains(output, "# Missing Tracks") {
			t.Errorf("Markdown missing heading")
		}
		if !strings.Contains(output, "## Mix (2 missing)") {
			t.Errorf("Markdown missing playlist section, got:\n%s", output)
		}
		if !strings.Contains(output, "1. Obscure Band - Rare Cut `XX123`") {
			t.Errorf("Markdown missing ISRC annotation, got:\n%s", output)
		}
		if strings.Contains(output, "## Empty") {
			t.Errorf("Markdown includes playlist with nothing missing")
		}
	})

	t.Run("MissingToText", func(t *testing.T) {
		output := string(MissingToText(testMissing()))

		if !strings.Contains(output, "Obscure Band - Rare Cut") {
			t.Errorf("text missing track line, got: %s", output)
		}
	})
}

func TestWriteMissingReport(t *testing.T) {
	st := &state.PlaylistState{Missing: testMissing()}

	t.Run("writes to the given path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing.csv")

		got, err := WriteMissingReport("Mix", st, "csv", path)
		if err != nil {
			t.Fatalf("WriteMissingReport failed: %v", err)
		}
		if got != path {
			t.Errorf("WriteMissingReport path = %q, want %q", got, path)
		}

		content := th.MustReadFile(t, path)
		if !strings.Contains(content, "Rare Cut") {
			t.Errorf("report missing track data")
		}
	})

	t.Run("derives the filename from the playlist name", func(t *testing.T) {
		wd := th.MustGetwd(t)
		th.MustChdir(t, t.TempDir())
		defer th.MustChdir(t, wd)

		got, err := WriteMissingReport("Mix", st, "", "")
		if err != nil {
			t.Fatalf("WriteMissingReport failed: %v", err)
		}
		if got != "Mix_missing.txt" {
			t.Errorf("WriteMissingReport path = %q, want Mix_missing.txt", got)
		}
	})

	t.Run("unknown format is rejected", func(t *testing.T) {
		_, err := WriteMissingReport("Mix", st, "pdf", "")
		if !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("WriteMissingReport error = %v, want ErrInvalidFlag", err)
		}
	})
}
