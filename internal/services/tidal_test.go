package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lunamoth/tidesync/internal/shared"
	"golang.org/x/oauth2"
)

func newTestTidal(t *testing.T, handler http.Handler) (*TidalService, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	svc, err := NewTidalService(map[string]string{
		"client_id":    "id",
		"session_file": filepath.Join(t.TempDir(), "session.json"),
	})
	if err != nil {
		t.Fatalf("NewTidalService() error = %v", err)
	}

	svc.baseURL = server.URL
	svc.httpClient = server.Client()
	svc.token = &oauth2.Token{AccessToken: "test-token", Expiry: time.Now().Add(time.Hour)}
	svc.userID = 42
	svc.countryCode = "NO"

	return svc, server
}

func TestNewTidalService(t *testing.T) {
	t.Run("missing client_id", func(t *testing.T) {
		_, err := NewTidalService(map[string]string{})
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("NewTidalService() error = %v, want ErrMissingCredentials", err)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		svc, err := NewTidalService(map[string]string{"client_id": "id"})
		if err != nil {
			t.Fatalf("NewTidalService() error = %v", err)
		}
		if svc.sessionFile != "tidal_session.json" {
			t.Errorf("sessionFile = %q, want default", svc.sessionFile)
		}
		if svc.countryCode != "US" {
			t.Errorf("countryCode = %q, want US", svc.countryCode)
		}
	})
}

func TestTidalService_doRequest(t *testing.T) {
	t.Run("appends country code", func(t *testing.T) {
		var gotCountry string
		svc, _ := newTestTidal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotCountry = r.URL.Query().Get("countryCode")
			fmt.Fprint(w, `{}`)
		}))

		if err := svc.doRequest(context.Background(), http.MethodGet, "/sessions", nil, nil, nil); err != nil {
			t.Fatalf("doRequest() error = %v", err)
		}
		if gotCountry != "NO" {
			t.Errorf("countryCode = %q, want NO", gotCountry)
		}
	})

	t.Run("401 maps to token expired", func(t *testing.T) {
		svc, _ := newTestTidal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))

		err := svc.doRequest(context.Background(), http.MethodGet, "/sessions", nil, nil, nil)
		if !errors.Is(err, shared.ErrTokenExpired) {
			t.Errorf("doRequest() error = %v, want ErrTokenExpired", err)
		}
	})

	t.Run("error body userMessage is surfaced", func(t *testing.T) {
		svc, _ := newTestTidal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			fmt.Fprint(w, `{"userMessage": "playlist changed"}`)
		}))

		err := svc.doRequest(context.Background(), http.MethodGet, "/playlists/x", nil, nil, nil)
		if err == nil || !errors.Is(err, shared.ErrAPIRequest) {
			t.Fatalf("doRequest() error = %v, want ErrAPIRequest", err)
		}
		if got := err.Error(); !strings.Contains(got, "playlist changed") {
			t.Errorf("doRequest() error %q does not carry userMessage", got)
		}
	})

	t.Run("no token", func(t *testing.T) {
		svc, err := NewTidalService(map[string]string{"client_id": "id"})
		if err != nil {
			t.Fatal(err)
		}

		err = svc.doRequest(context.Background(), http.MethodGet, "/sessions", nil, nil, nil)
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("doRequest() error = %v, want ErrNotAuthenticated", err)
		}
	})
}

func TestTidalService_GetPlaylists(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/42/playlists", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("offset") {
		case "0":
			fmt.Fprint(w, `{
				"items": [{"uuid": "u1", "title": "First", "numberOfTracks": 5}],
				"totalNumberOfItems": 2, "limit": 50, "offset": 0
			}`)
		default:
			fmt.Fprint(w, `{
				"items": [{"uuid": "u2", "title": "Second", "publicPlaylist": true}],
				"totalNumberOfItems": 2, "limit": 50, "offset": 1
			}`)
		}
	})

	svc, _ := newTestTidal(t, mux)

	playlists, err := svc.GetPlaylists(context.Background())
	if err != nil {
		t.Fatalf("GetPlaylists() error = %v", err)
	}

	if len(playlists) != 2 {
		t.Fatalf("GetPlaylists() = %d playlists, want 2 across pages", len(playlists))
	}
	if playlists[0].ID != "u1" || playlists[0].TrackCount != 5 {
		t.Errorf("GetPlaylists()[0] = %+v", playlists[0])
	}
	if !playlists[1].Public {
		t.Errorf("GetPlaylists()[1].Public = false, want true")
	}
}

func TestTidalService_PlaylistItems(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/playlists/u1/items", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"items": [
				{"type": "track", "item": {
					"id": 101, "title": "Song One", "duration": 200, "isrc": "US1",
					"artists": [{"id": 1, "name": "Artist A"}, {"id": 2, "name": "Artist B"}],
					"album": {"id": 9, "title": "Album X"}
				}},
				{"type": "video", "item": {"id": 102, "title": "Music Video"}},
				{"type": "track", "item": {
					"id": 103, "title": "Song Two", "duration": 180,
					"artist": {"id": 3, "name": "Solo Artist"}
				}}
			],
			"totalNumberOfItems": 3
		}`)
	})

	svc, _ := newTestTidal(t, mux)

	tracks, err := svc.PlaylistItems(context.Background(), "u1")
	if err != nil {
		t.Fatalf("PlaylistItems() error = %v", err)
	}

	if len(tracks) != 2 {
		t.Fatalf("PlaylistItems() = %d tracks, want 2 (video dropped)", len(tracks))
	}
	if tracks[0].ID != "101" || tracks[0].Artist != "Artist A, Artist B" {
		t.Errorf("PlaylistItems()[0] = %+v", tracks[0])
	}
	// Singular artist field is the fallback when artists is empty.
	if tracks[1].Artist != "Solo Artist" {
		t.Errorf("PlaylistItems()[1].Artist = %q, want Solo Artist", tracks[1].Artist)
	}
}

func TestTidalService_EnsurePlaylist(t *testing.T) {
	t.Run("existing playlist is reused", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/users/42/playlists", func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				t.Error("EnsurePlaylist() created a playlist that already exists")
			}
			fmt.Fprint(w, `{
				"items": [{"uuid": "u1", "title": "Mirror"}],
				"totalNumberOfItems": 1
			}`)
		})

		svc, _ := newTestTidal(t, mux)

		pl, created, err := svc.EnsurePlaylist(context.Background(), "Mirror", "desc")
		if err != nil {
			t.Fatalf("EnsurePlaylist() error = %v", err)
		}
		if created {
			t.Error("EnsurePlaylist() created = true, want false")
		}
		if pl.ID != "u1" {
			t.Errorf("EnsurePlaylist() ID = %s, want u1", pl.ID)
		}
	})

	t.Run("absent playlist is created", func(t *testing.T) {
		var gotTitle string
		mux := http.NewServeMux()
		mux.HandleFunc("/users/42/playlists", func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				if err := r.ParseForm(); err != nil {
					t.Fatal(err)
				}
				gotTitle = r.PostForm.Get("title")
				fmt.Fprint(w, `{"uuid": "new-1", "title": "Mirror"}`)
				return
			}
			fmt.Fprint(w, `{"items": [], "totalNumberOfItems": 0}`)
		})

		svc, _ := newTestTidal(t, mux)

		pl, created, err := svc.EnsurePlaylist(context.Background(), "Mirror", "desc")
		if err != nil {
			t.Fatalf("EnsurePlaylist() error = %v", err)
		}
		if !created {
			t.Error("EnsurePlaylist() created = false, want true")
		}
		if pl.ID != "new-1" {
			t.Errorf("EnsurePlaylist() ID = %s, want new-1", pl.ID)
		}
		if gotTitle != "Mirror" {
			t.Errorf("create form title = %q, want Mirror", gotTitle)
		}
	})
}

func TestTidalService_AddTracks(t *testing.T) {
	t.Run("guards the append with the playlist ETag", func(t *testing.T) {
		var gotETag, gotTrackIDs, gotDupes string
		mux := http.NewServeMux()
		mux.HandleFunc("/playlists/u1", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("ETag", "12345")
			fmt.Fprint(w, `{"uuid": "u1", "title": "Mirror"}`)
		})
		mux.HandleFunc("/playlists/u1/items", func(w http.ResponseWriter, r *http.Request) {
			gotETag = r.Header.Get("If-None-Match")
			if err := r.ParseForm(); err != nil {
				t.Fatal(err)
			}
			gotTrackIDs = r.PostForm.Get("trackIds")
			gotDupes = r.PostForm.Get("onDupes")
			fmt.Fprint(w, `{}`)
		})

		svc, _ := newTestTidal(t, mux)

		if err := svc.AddTracks(context.Background(), "u1", []string{"101", "103"}); err != nil {
			t.Fatalf("AddTracks() error = %v", err)
		}

		if gotETag != "12345" {
			t.Errorf("If-None-Match = %q, want the playlist ETag", gotETag)
		}
		if gotTrackIDs != "101,103" {
			t.Errorf("trackIds = %q, want comma-joined IDs", gotTrackIDs)
		}
		if gotDupes != "SKIP" {
			t.Errorf("onDupes = %q, want SKIP", gotDupes)
		}
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		svc, _ := newTestTidal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("AddTracks() made a request for an empty batch")
		}))

		if err := svc.AddTracks(context.Background(), "u1", nil); err != nil {
			t.Fatalf("AddTracks() error = %v", err)
		}
	})

	t.Run("oversized batch is rejected", func(t *testing.T) {
		svc, _ := newTestTidal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("AddTracks() made a request for an oversized batch")
		}))

		ids := make([]string, TidalAddBatchSize+1)
		for i := range ids {
			ids[i] = fmt.Sprintf("%d", i)
		}

		err := svc.AddTracks(context.Background(), "u1", ids)
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("AddTracks() error = %v, want ErrInvalidArgument", err)
		}
	})

	t.Run("missing ETag fails the append", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/playlists/u1", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"uuid": "u1"}`)
		})

		svc, _ := newTestTidal(t, mux)

		err := svc.AddTracks(context.Background(), "u1", []string{"101"})
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("AddTracks() error = %v, want ErrAPIRequest", err)
		}
	})
}

func TestTidalService_SearchTracks(t *testing.T) {
	var gotQuery, gotLimit string
	mux := http.NewServeMux()
	mux.HandleFunc("/search/tracks", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		gotLimit = r.URL.Query().Get("limit")
		fmt.Fprint(w, `{
			"items": [{"id": 101, "title": "Nightcall", "duration": 258, "isrc": "FR1",
				"artists": [{"id": 1, "name": "Kavinsky"}]}],
			"totalNumberOfItems": 1
		}`)
	})

	svc, _ := newTestTidal(t, mux)

	tracks, err := svc.SearchTracks(context.Background(), "Nightcall Kavinsky", 10)
	if err != nil {
		t.Fatalf("SearchTracks() error = %v", err)
	}

	if gotQuery != "Nightcall Kavinsky" || gotLimit != "10" {
		t.Errorf("search request query=%q limit=%q", gotQuery, gotLimit)
	}
	if len(tracks) != 1 || tracks[0].ID != "101" || tracks[0].ISRC != "FR1" {
		t.Errorf("SearchTracks() = %+v", tracks)
	}
}

func TestTidalService_Sessions(t *testing.T) {
	t.Run("load without a session file", func(t *testing.T) {
		svc, err := NewTidalService(map[string]string{
			"client_id":    "id",
			"session_file": filepath.Join(t.TempDir(), "absent.json"),
		})
		if err != nil {
			t.Fatal(err)
		}

		err = svc.LoadSession(context.Background())
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("LoadSession() error = %v, want ErrNotAuthenticated", err)
		}
	})

	t.Run("save and load round trip", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"sessionId": "sid", "userId": 77, "countryCode": "DE"}`)
		})

		svc, server := newTestTidal(t, mux)

		if err := svc.SaveSession(); err != nil {
			t.Fatalf("SaveSession() error = %v", err)
		}

		reloaded, err := NewTidalService(map[string]string{
			"client_id":    "id",
			"session_file": svc.sessionFile,
		})
		if err != nil {
			t.Fatal(err)
		}
		reloaded.baseURL = server.URL
		reloaded.httpClient = server.Client()

		if err := reloaded.LoadSession(context.Background()); err != nil {
			t.Fatalf("LoadSession() error = %v", err)
		}

		if reloaded.token.AccessToken != "test-token" {
			t.Errorf("token = %q after reload", reloaded.token.AccessToken)
		}
		if reloaded.userID != 77 || reloaded.countryCode != "DE" {
			t.Errorf("session check not applied: userID=%d country=%s", reloaded.userID, reloaded.countryCode)
		}
	})

	t.Run("expired session without a refresh token", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		session := fmt.Sprintf(`{"access_token": "stale", "refresh_token": "", "expiry": %q}`,
			time.Now().Add(-time.Hour).Format(time.RFC3339))
		if err := os.WriteFile(path, []byte(session), 0600); err != nil {
			t.Fatal(err)
		}

		svc, err := NewTidalService(map[string]string{
			"client_id":    "id",
			"session_file": path,
		})
		if err != nil {
			t.Fatal(err)
		}

		err = svc.LoadSession(context.Background())
		if !errors.Is(err, shared.ErrNoRefreshToken) {
			t.Errorf("LoadSession() error = %v, want ErrNoRefreshToken", err)
		}
	})

	t.Run("corrupt session file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		if err := os.WriteFile(path, []byte("{broken"), 0600); err != nil {
			t.Fatal(err)
		}

		svc, err := NewTidalService(map[string]string{
			"client_id":    "id",
			"session_file": path,
		})
		if err != nil {
			t.Fatal(err)
		}

		err = svc.LoadSession(context.Background())
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			t.Errorf("LoadSession() error = %v, want ErrInvalidCredentials", err)
		}
	})
}
