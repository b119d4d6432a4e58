package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Credentials.Spotify.RedirectURI != "http://localhost:3000/callback" {
		t.Errorf("default redirect_uri = %q", config.Credentials.Spotify.RedirectURI)
	}
	if config.Credentials.Tidal.SessionFile != "tidal_session.json" {
		t.Errorf("default session_file = %q", config.Credentials.Tidal.SessionFile)
	}
	if config.Sync.StateFile != "sync_state.json" {
		t.Errorf("default state_file = %q", config.Sync.StateFile)
	}
	if !config.Sync.Auto {
		t.Error("default sync.auto = false, want true")
	}
	if config.Sync.BatchSize != 100 {
		t.Errorf("default batch_size = %d, want 100", config.Sync.BatchSize)
	}
	if config.Sync.RateLimit != 2.0 {
		t.Errorf("default rate_limit = %v, want 2.0", config.Sync.RateLimit)
	}
	if config.Database.Path != "tidesync.db" {
		t.Errorf("default database path = %q", config.Database.Path)
	}
	if config.Server.Port != 3000 {
		t.Errorf("default server port = %d", config.Server.Port)
	}
	if config.Logging.Level != "info" {
		t.Errorf("default log level = %q", config.Logging.Level)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("loads a valid config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		content := `
[credentials.spotify]
client_id = "abc"
client_secret = "def"

[credentials.tidal]
client_id = "tidal-id"

[sync]
state_file = "custom_state.json"
prefix = "spotify: "

[[sync.playlists]]
name = "Road Trip"
auto = false
`
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}

		config, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}

		if config.Credentials.Spotify.ClientID != "abc" {
			t.Errorf("spotify client_id = %q", config.Credentials.Spotify.ClientID)
		}
		if config.Credentials.Tidal.ClientID != "tidal-id" {
			t.Errorf("tidal client_id = %q", config.Credentials.Tidal.ClientID)
		}
		if config.Sync.Prefix != "spotify: " {
			t.Errorf("sync prefix = %q", config.Sync.Prefix)
		}
		if len(config.Sync.Playlists) != 1 || config.Sync.Playlists[0].Name != "Road Trip" {
			t.Errorf("sync playlists = %+v", config.Sync.Playlists)
		}
		if config.Sync.Playlists[0].Auto == nil || *config.Sync.Playlists[0].Auto {
			t.Error("playlist auto override not parsed")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
		if !errors.Is(err, ErrMissingConfig) {
			t.Errorf("LoadConfig() error = %v, want ErrMissingConfig", err)
		}
	})

	t.Run("invalid toml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(path, []byte("[[["), 0600); err != nil {
			t.Fatal(err)
		}

		_, err := LoadConfig(path)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("LoadConfig() error = %v, want ErrInvalidConfig", err)
		}
	})
}

func TestSaveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	config := DefaultConfig()
	config.Credentials.Spotify.ClientID = "saved-id"
	config.Sync.Playlists = []PlaylistSyncConfig{{Name: "Focus"}}

	if err := SaveConfig(path, config); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() after save error = %v", err)
	}

	if loaded.Credentials.Spotify.ClientID != "saved-id" {
		t.Errorf("client_id = %q after round trip", loaded.Credentials.Spotify.ClientID)
	}
	if len(loaded.Sync.Playlists) != 1 || loaded.Sync.Playlists[0].Name != "Focus" {
		t.Errorf("playlists = %+v after round trip", loaded.Sync.Playlists)
	}
}

func TestCreateConfigFile(t *testing.T) {
	t.Run("creates from the embedded template", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")

		if err := CreateConfigFile(path); err != nil {
			t.Fatalf("CreateConfigFile() error = %v", err)
		}

		config, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("created config does not load: %v", err)
		}
		if config.Sync.StateFile != "sync_state.json" {
			t.Errorf("created config state_file = %q", config.Sync.StateFile)
		}
	})

	t.Run("refuses to overwrite an existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(path, []byte("# mine"), 0600); err != nil {
			t.Fatal(err)
		}

		if err := CreateConfigFile(path); err == nil {
			t.Error("CreateConfigFile() expected error for existing file")
		}
	})
}

func TestSpotifyConfig(t *testing.T) {
	t.Run("Map carries all credential fields", func(t *testing.T) {
		c := SpotifyConfig{
			ClientID:     "id",
			ClientSecret: "secret",
			RedirectURI:  "http://localhost/cb",
			AccessToken:  "at",
			RefreshToken: "rt",
		}

		m := c.Map()
		if m["client_id"] != "id" || m["client_secret"] != "secret" || m["access_token"] != "at" {
			t.Errorf("Map() = %v", m)
		}
	})

	t.Run("Token is nil without saved tokens", func(t *testing.T) {
		if (SpotifyConfig{}).Token() != nil {
			t.Error("Token() should be nil for empty credentials")
		}
	})

	t.Run("Token carries saved values", func(t *testing.T) {
		expiry := time.Now().Add(time.Hour)
		c := SpotifyConfig{AccessToken: "at", RefreshToken: "rt", Expiry: expiry}

		token := c.Token()
		if token == nil || token.AccessToken != "at" || token.RefreshToken != "rt" {
			t.Errorf("Token() = %+v", token)
		}
	})

	t.Run("Update rejects an empty token", func(t *testing.T) {
		c := &SpotifyConfig{}
		if err := c.Update(nil); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Update(nil) error = %v, want ErrInvalidCredentials", err)
		}
	})

	t.Run("Update keeps the old refresh token when absent", func(t *testing.T) {
		c := &SpotifyConfig{RefreshToken: "old-rt"}

		if err := c.Update(&oauth2.Token{AccessToken: "new-at"}); err != nil {
			t.Fatalf("Update() error = %v", err)
		}

		if c.AccessToken != "new-at" {
			t.Errorf("AccessToken = %q", c.AccessToken)
		}
		if c.RefreshToken != "old-rt" {
			t.Errorf("RefreshToken = %q, want old token kept", c.RefreshToken)
		}
	})
}

func TestSyncConfigOverrides(t *testing.T) {
	no := false
	s := SyncConfig{Prefix: "spotify: ", Auto: true}

	t.Run("PrefixFor", func(t *testing.T) {
		if got := s.PrefixFor(PlaylistSyncConfig{Name: "Mix"}); got != "spotify: " {
			t.Errorf("PrefixFor() = %q, want global prefix", got)
		}
		if got := s.PrefixFor(PlaylistSyncConfig{Name: "Mix", Prefix: "sp/"}); got != "sp/" {
			t.Errorf("PrefixFor() = %q, want per-playlist override", got)
		}
	})

	t.Run("AutoFor", func(t *testing.T) {
		if !s.AutoFor(PlaylistSyncConfig{Name: "Mix"}) {
			t.Error("AutoFor() = false, want global default")
		}
		if s.AutoFor(PlaylistSyncConfig{Name: "Mix", Auto: &no}) {
			t.Error("AutoFor() = true, want per-playlist override")
		}
	})
}

func TestTidalConfigMap(t *testing.T) {
	c := TidalConfig{ClientID: "tid", SessionFile: "session.json"}

	m := c.Map()
	if m["client_id"] != "tid" || m["session_file"] != "session.json" {
		t.Errorf("Map() = %v", m)
	}
}
