// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"testing"

	"github.com/lunamoth/tidesync/internal/services"
)

// MockService is a test double for [services.Service]
type MockService struct{}

func (m *MockService) Authenticate(ctx context.Context, credentials map[string]string) error {
	return nil
}

func (m *MockService) GetPlaylists(ctx context.Context) ([]services.Playlist, error) {
	return []services.Playlist{}, nil
}
func (m *MockService) GetPlaylist(ctx context.Context, playlistID string) (*services.Playlist, error) {
	return nil, nil
}
func (m *MockService) ExportPlaylist(ctx context.Context, playlistID string) (*services.PlaylistExport, error) {
	return nil, nil
}
func (m *MockService) SearchTracks(ctx context.Context, query string, limit int) ([]services.Track, error) {
	return nil, nil
}
func (m *MockService) Name() string { return "mock" }

// FakeSource is a configurable test double for tasks.Source.
type FakeSource struct {
	Playlists   map[string]*services.PlaylistExport // keyed by playlist name
	ExportFroms []int                               // offsets passed to ExportPlaylistFrom, in order
	Err         error
}

func (f *FakeSource) FindPlaylistByName(ctx context.Context, name string) (*services.Playlist, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if export, ok := f.Playlists[name]; ok {
		pl := export.Playlist
		return &pl, nil
	}
	return nil, errors.New("playlist not found")
}

func (f *FakeSource) ExportPlaylist(ctx context.Context, playlistID string) (*services.PlaylistExport, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	for _, export := range f.Playlists {
		if export.Playlist.ID == playlistID {
			return export, nil
		}
	}
	return nil, errors.New("playlist not found")
}

// ExportPlaylistFrom returns the stored export's tracks from offset onward
// together with the playlist's full track count.
func (f *FakeSource) ExportPlaylistFrom(ctx context.Context, playlistID string, offset int) (*services.PlaylistExport, int, error) {
	f.ExportFroms = append(f.ExportFroms, offset)

	export, err := f.ExportPlaylist(ctx, playlistID)
	if err != nil {
		return nil, 0, err
	}

	total := len(export.Tracks)
	if offset > total {
		offset = total
	}

	suffix := *export
	suffix.Tracks = export.Tracks[offset:]
	return &suffix, total, nil
}

// FakeDestination is a configurable in-memory test double for tasks.Destination.
//
// It records appended tracks and serves searches from the Catalog map, keyed
// by the search query.
type FakeDestination struct {
	Playlist    services.Playlist
	Items       []services.Track
	Catalog     map[string][]services.Track
	Appends     [][]string // track ID batches passed to AddTracks
	SearchCalls []string   // queries passed to SearchTracks, in order
	AddErr      error      // returned by AddTracks when set
	SearchErr   error      // returned by SearchTracks when set
	Created     bool
}

func (f *FakeDestination) EnsurePlaylist(ctx context.Context, name, description string) (*services.Playlist, bool, error) {
	if f.Playlist.ID == "" {
		f.Playlist = services.Playlist{ID: "dest-1", Name: name, Description: description}
		f.Created = true
	}
	pl := f.Playlist
	return &pl, f.Created, nil
}

func (f *FakeDestination) PlaylistItems(ctx context.Context, playlistID string) ([]services.Track, error) {
	return f.Items, nil
}

func (f *FakeDestination) AddTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	if f.AddErr != nil {
		return f.AddErr
	}
	batch := make([]string, len(trackIDs))
	copy(batch, trackIDs)
	f.Appends = append(f.Appends, batch)
	return nil
}

func (f *FakeDestination) SearchTracks(ctx context.Context, query string, limit int) ([]services.Track, error) {
	f.SearchCalls = append(f.SearchCalls, query)
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}
	return f.Catalog[query], nil
}

// AddedIDs flattens all recorded append batches into one slice.
func (f *FakeDestination) AddedIDs() []string {
	var ids []string
	for _, batch := range f.Appends {
		ids = append(ids, batch...)
	}
	return ids
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
