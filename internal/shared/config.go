package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/oauth2"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Sync        SyncConfig        `toml:"sync"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Logging     LoggingConfig     `toml:"logging"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
	Tidal   TidalConfig   `toml:"tidal"`
}

// SpotifyConfig contains Spotify API credentials and saved OAuth tokens.
type SpotifyConfig struct {
	ClientID     string    `toml:"client_id"`
	ClientSecret string    `toml:"client_secret"`
	RedirectURI  string    `toml:"redirect_uri"`
	AccessToken  string    `toml:"access_token,omitempty"`
	RefreshToken string    `toml:"refresh_token,omitempty"`
	Expiry       time.Time `toml:"expiry,omitempty"`
}

// Map returns the credentials as a map for service construction.
func (c SpotifyConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     c.ClientID,
		"client_secret": c.ClientSecret,
		"redirect_uri":  c.RedirectURI,
		"access_token":  c.AccessToken,
		"refresh_token": c.RefreshToken,
	}
}

// Token returns the saved tokens as an [oauth2.Token], or nil if no token has been saved.
func (c SpotifyConfig) Token() *oauth2.Token {
	if c.AccessToken == "" && c.RefreshToken == "" {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		Expiry:       c.Expiry,
	}
}

// Update stores the tokens from an OAuth2 exchange back into the config.
func (c *SpotifyConfig) Update(token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidCredentials)
	}

	c.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		c.RefreshToken = token.RefreshToken
	}
	c.Expiry = token.Expiry
	return nil
}

// TidalConfig contains Tidal API credentials.
//
// Tidal uses the device authorization flow, so only a client ID is needed.
// The session token is persisted to SessionFile between runs.
type TidalConfig struct {
	ClientID    string `toml:"client_id"`
	SessionFile string `toml:"session_file"`
}

// Map returns the credentials as a map for service construction.
func (c TidalConfig) Map() map[string]string {
	return map[string]string{
		"client_id":    c.ClientID,
		"session_file": c.SessionFile,
	}
}

// SyncConfig contains playlist sync settings.
type SyncConfig struct {
	StateFile string               `toml:"state_file"`
	Prefix    string               `toml:"prefix"`
	Auto      bool                 `toml:"auto"`
	BatchSize int                  `toml:"batch_size"`
	RateLimit float64              `toml:"rate_limit"`
	Playlists []PlaylistSyncConfig `toml:"playlists"`
}

// PlaylistSyncConfig holds per-playlist sync settings.
//
// Prefix and Auto override the [SyncConfig] defaults when set.
type PlaylistSyncConfig struct {
	Name   string `toml:"name"`
	Prefix string `toml:"prefix,omitempty"`
	Auto   *bool  `toml:"auto,omitempty"`
}

// PrefixFor returns the effective Tidal playlist name prefix for a playlist.
func (s SyncConfig) PrefixFor(p PlaylistSyncConfig) string {
	if p.Prefix != "" {
		return p.Prefix
	}
	return s.Prefix
}

// AutoFor returns whether a playlist syncs without interactive match resolution.
func (s SyncConfig) AutoFor(p PlaylistSyncConfig) bool {
	if p.Auto != nil {
		return *p.Auto
	}
	return s.Auto
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains settings for the OAuth callback HTTP server.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LoggingConfig contains log output settings.
type LoggingConfig struct {
	File  string `toml:"file,omitempty"`
	Level string `toml:"level,omitempty"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingConfig, err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &config, nil
}

// SaveConfig writes the configuration back to a TOML file.
func SaveConfig(path string, config *Config) error {
	data, err := toml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
