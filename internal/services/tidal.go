// Tidal API implementation of [Service]
//
// Uses the device authorization grant for login (the flow the Tidal TV apps
// use) and the v1 API for playlist and catalog operations. The session token
// is persisted to a JSON file between runs.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lunamoth/tidesync/internal/shared"
	"golang.org/x/oauth2"
)

const (
	tidalDeviceAuthURL = "https://auth.tidal.com/v1/oauth2/device_authorization"
	tidalTokenURL      = "https://auth.tidal.com/v1/oauth2/token"
	tidalBaseURL       = "https://api.tidal.com/v1"

	tidalPageSize = 50
	// Tidal rejects item appends larger than this in a single request.
	TidalAddBatchSize = 100
)

// TidalArtist represents an artist in Tidal responses.
type TidalArtist struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type tidalAlbum struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// TidalTrack represents a track in Tidal responses.
type TidalTrack struct {
	ID       int64         `json:"id"`
	Title    string        `json:"title"`
	Duration int           `json:"duration"` // seconds
	ISRC     string        `json:"isrc"`
	Artist   TidalArtist   `json:"artist"`
	Artists  []TidalArtist `json:"artists"`
	Album    tidalAlbum    `json:"album"`
}

// TidalPlaylist represents a playlist from Tidal.
type TidalPlaylist struct {
	UUID           string `json:"uuid"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	NumberOfTracks int    `json:"numberOfTracks"`
	PublicPlaylist bool   `json:"publicPlaylist"`
}

type tidalPaginatedPlaylists struct {
	Items              []TidalPlaylist `json:"items"`
	TotalNumberOfItems int             `json:"totalNumberOfItems"`
	Limit              int             `json:"limit"`
	Offset             int             `json:"offset"`
}

type tidalPlaylistItem struct {
	Type string     `json:"type"`
	Item TidalTrack `json:"item"`
}

type tidalPaginatedItems struct {
	Items              []tidalPlaylistItem `json:"items"`
	TotalNumberOfItems int                 `json:"totalNumberOfItems"`
	Limit              int                 `json:"limit"`
	Offset             int                 `json:"offset"`
}

type tidalSearchResult struct {
	Items              []TidalTrack `json:"items"`
	TotalNumberOfItems int          `json:"totalNumberOfItems"`
}

// tidalSession is the persisted login session (the saved device-flow token).
type tidalSession struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
	UserID       int64     `json:"user_id"`
	CountryCode  string    `json:"country_code"`
}

// TidalService implements the Service interface for Tidal API interactions.
type TidalService struct {
	config      *oauth2.Config
	token       *oauth2.Token
	httpClient  *http.Client
	baseURL     string
	sessionFile string
	userID      int64
	countryCode string
}

// NewTidalService creates a new Tidal service.
//
// The session file holds the saved login between runs; it may not exist yet.
func NewTidalService(credentials map[string]string) (*TidalService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing tidal client_id", shared.ErrMissingCredentials)
	}

	sessionFile := credentials["session_file"]
	if sessionFile == "" {
		sessionFile = "tidal_session.json"
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: credentials["client_secret"],
		Scopes:       []string{"r_usr", "w_usr"},
		Endpoint: oauth2.Endpoint{
			DeviceAuthURL: tidalDeviceAuthURL,
			TokenURL:      tidalTokenURL,
		},
	}

	return &TidalService{
		config:      config,
		httpClient:  http.DefaultClient,
		baseURL:     tidalBaseURL,
		sessionFile: sessionFile,
		countryCode: "US",
	}, nil
}

func (t *TidalService) Name() string {
	return "Tidal"
}

// Authenticate restores a saved session from the session file.
//
// Returns [shared.ErrNotAuthenticated] when no valid session exists; callers
// should then run the device login flow.
func (t *TidalService) Authenticate(ctx context.Context, credentials map[string]string) error {
	if f, ok := credentials["session_file"]; ok && f != "" {
		t.sessionFile = f
	}
	return t.LoadSession(ctx)
}

// StartDeviceLogin begins the device authorization flow.
//
// The returned response carries the verification URL the user must open.
func (t *TidalService) StartDeviceLogin(ctx context.Context) (*oauth2.DeviceAuthResponse, error) {
	resp, err := t.config.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: device authorization failed: %v", shared.ErrAuthFailed, err)
	}
	return resp, nil
}

// CompleteDeviceLogin polls the token endpoint until the user approves the
// login, then verifies the session and persists it to the session file.
func (t *TidalService) CompleteDeviceLogin(ctx context.Context, da *oauth2.DeviceAuthResponse) error {
	token, err := t.config.DeviceAccessToken(ctx, da)
	if err != nil {
		return fmt.Errorf("%w: device login failed: %v", shared.ErrAuthFailed, err)
	}

	t.token = token

	if err := t.checkLogin(ctx); err != nil {
		return err
	}

	return t.SaveSession()
}

// LoadSession restores the session from the session file and verifies it,
// refreshing the token when expired.
func (t *TidalService) LoadSession(ctx context.Context) error {
	data, err := os.ReadFile(t.sessionFile)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: no saved Tidal session", shared.ErrNotAuthenticated)
	}
	if err != nil {
		return fmt.Errorf("failed to read session file: %w", err)
	}

	var session tidalSession
	if err := json.Unmarshal(data, &session); err != nil {
		return fmt.Errorf("%w: session file unreadable: %v", shared.ErrInvalidCredentials, err)
	}

	t.token = &oauth2.Token{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		Expiry:       session.Expiry,
	}
	t.userID = session.UserID
	if session.CountryCode != "" {
		t.countryCode = session.CountryCode
	}

	if !t.token.Valid() {
		if t.token.RefreshToken == "" {
			return fmt.Errorf("%w: saved Tidal session expired", shared.ErrNoRefreshToken)
		}
		refreshed, err := t.config.TokenSource(ctx, t.token).Token()
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
		}
		t.token = refreshed
	}

	if err := t.checkLogin(ctx); err != nil {
		return err
	}

	return t.SaveSession()
}

// SaveSession persists the current session to the session file.
func (t *TidalService) SaveSession() error {
	if t.token == nil {
		return fmt.Errorf("%w: no session to save", shared.ErrNotAuthenticated)
	}

	session := tidalSession{
		AccessToken:  t.token.AccessToken,
		RefreshToken: t.token.RefreshToken,
		Expiry:       t.token.Expiry,
		UserID:       t.userID,
		CountryCode:  t.countryCode,
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := os.WriteFile(t.sessionFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}

	return nil
}

// checkLogin verifies the current token against /sessions and records the
// user ID and country code for subsequent requests.
func (t *TidalService) checkLogin(ctx context.Context) error {
	var session struct {
		SessionID   string `json:"sessionId"`
		UserID      int64  `json:"userId"`
		CountryCode string `json:"countryCode"`
	}

	if err := t.doRequest(ctx, http.MethodGet, "/sessions", nil, &session, nil); err != nil {
		return fmt.Errorf("%w: session check failed: %v", shared.ErrAuthFailed, err)
	}

	t.userID = session.UserID
	if session.CountryCode != "" {
		t.countryCode = session.CountryCode
	}

	return nil
}

// doRequest performs an authenticated request to the Tidal API.
//
// Form values (if any) are sent urlencoded. Extra headers are applied after
// the defaults, so callers can set If-None-Match for guarded appends.
func (t *TidalService) doRequest(ctx context.Context, method, endpoint string, form url.Values, result any, headers map[string]string) error {
	if t.token == nil {
		return fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}

	apiURL := t.baseURL + endpoint
	if !strings.Contains(endpoint, "countryCode=") {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		apiURL += sep + "countryCode=" + t.countryCode
	}

	var req *http.Request
	var err error

	if form != nil {
		req, err = http.NewRequestWithContext(ctx, method, apiURL, strings.NewReader(form.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, method, apiURL, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+t.token.AccessToken)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: tidal returned 401", shared.ErrTokenExpired)
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: tidal API status 404", shared.ErrTrackNotFound)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp struct {
			UserMessage string `json:"userMessage"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errResp); decodeErr == nil && errResp.UserMessage != "" {
			return fmt.Errorf("%w: tidal API status %d: %s", shared.ErrAPIRequest, resp.StatusCode, errResp.UserMessage)
		}
		return fmt.Errorf("%w: tidal API status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// playlistETag fetches a playlist and returns the ETag required for appends.
func (t *TidalService) playlistETag(ctx context.Context, playlistUUID string) (string, error) {
	if t.token == nil {
		return "", fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}

	apiURL := fmt.Sprintf("%s/playlists/%s?countryCode=%s", t.baseURL, playlistUUID, t.countryCode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.token.AccessToken)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: tidal API status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	etag := resp.Header.Get("ETag")
	if etag == "" {
		return "", fmt.Errorf("%w: playlist response missing ETag", shared.ErrAPIRequest)
	}

	return etag, nil
}

// Service interface implementation

// GetPlaylists retrieves all playlists for the logged-in user.
func (t *TidalService) GetPlaylists(ctx context.Context) ([]Playlist, error) {
	var allPlaylists []Playlist
	offset := 0

	for {
		endpoint := fmt.Sprintf("/users/%d/playlists?limit=%d&offset=%d", t.userID, tidalPageSize, offset)

		var response tidalPaginatedPlaylists
		if err := t.doRequest(ctx, http.MethodGet, endpoint, nil, &response, nil); err != nil {
			return nil, err
		}

		for _, tp := range response.Items {
			allPlaylists = append(allPlaylists, playlistFromTidal(tp))
		}

		offset += len(response.Items)
		if offset >= response.TotalNumberOfItems || len(response.Items) == 0 {
			break
		}
	}

	return allPlaylists, nil
}

// GetPlaylist retrieves a playlist by UUID.
func (t *TidalService) GetPlaylist(ctx context.Context, playlistID string) (*Playlist, error) {
	endpoint := fmt.Sprintf("/playlists/%s", playlistID)

	var tp TidalPlaylist
	if err := t.doRequest(ctx, http.MethodGet, endpoint, nil, &tp, nil); err != nil {
		return nil, err
	}

	pl := playlistFromTidal(tp)
	return &pl, nil
}

// ExportPlaylist exports a playlist with all its tracks.
func (t *TidalService) ExportPlaylist(ctx context.Context, playlistID string) (*PlaylistExport, error) {
	pl, err := t.GetPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	tracks, err := t.PlaylistItems(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	return &PlaylistExport{Playlist: *pl, Tracks: tracks}, nil
}

// PlaylistItems retrieves all tracks in a playlist, paging as needed.
//
// Non-track items (videos) are dropped.
func (t *TidalService) PlaylistItems(ctx context.Context, playlistUUID string) ([]Track, error) {
	var tracks []Track
	offset := 0

	for {
		endpoint := fmt.Sprintf("/playlists/%s/items?limit=%d&offset=%d", playlistUUID, TidalAddBatchSize, offset)

		var response tidalPaginatedItems
		if err := t.doRequest(ctx, http.MethodGet, endpoint, nil, &response, nil); err != nil {
			return nil, err
		}

		for _, item := range response.Items {
			if item.Type != "" && item.Type != "track" {
				continue
			}
			tracks = append(tracks, trackFromTidal(item.Item))
		}

		offset += len(response.Items)
		if offset >= response.TotalNumberOfItems || len(response.Items) == 0 {
			break
		}
	}

	return tracks, nil
}

// CreatePlaylist creates a new playlist for the logged-in user.
func (t *TidalService) CreatePlaylist(ctx context.Context, title, description string) (*Playlist, error) {
	endpoint := fmt.Sprintf("/users/%d/playlists", t.userID)

	form := url.Values{
		"title":       {title},
		"description": {description},
	}

	var tp TidalPlaylist
	if err := t.doRequest(ctx, http.MethodPost, endpoint, form, &tp, nil); err != nil {
		return nil, fmt.Errorf("failed to create playlist: %w", err)
	}

	pl := playlistFromTidal(tp)
	return &pl, nil
}

// EnsurePlaylist returns the user's playlist with the given name, creating it
// when absent.
func (t *TidalService) EnsurePlaylist(ctx context.Context, name, description string) (*Playlist, bool, error) {
	playlists, err := t.GetPlaylists(ctx)
	if err != nil {
		return nil, false, err
	}

	for _, pl := range playlists {
		if pl.Name == name {
			return &pl, false, nil
		}
	}

	created, err := t.CreatePlaylist(ctx, name, description)
	if err != nil {
		return nil, false, err
	}

	return created, true, nil
}

// AddTracks appends tracks to a playlist.
//
// Appends are guarded with the playlist ETag (If-None-Match) so concurrent
// modifications fail instead of clobbering. Tidal caps a single append at
// [TidalAddBatchSize] tracks; callers batch accordingly.
func (t *TidalService) AddTracks(ctx context.Context, playlistUUID string, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return nil
	}
	if len(trackIDs) > TidalAddBatchSize {
		return fmt.Errorf("%w: at most %d tracks per append", shared.ErrInvalidArgument, TidalAddBatchSize)
	}

	etag, err := t.playlistETag(ctx, playlistUUID)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("/playlists/%s/items", playlistUUID)
	form := url.Values{
		"trackIds":           {strings.Join(trackIDs, ",")},
		"onArtifactNotFound": {"FAIL"},
		"onDupes":            {"SKIP"},
	}

	headers := map[string]string{"If-None-Match": etag}
	if err := t.doRequest(ctx, http.MethodPost, endpoint, form, nil, headers); err != nil {
		return fmt.Errorf("failed to add tracks: %w", err)
	}

	return nil
}

// SearchTracks searches the Tidal catalog and returns candidate tracks.
func (t *TidalService) SearchTracks(ctx context.Context, query string, limit int) ([]Track, error) {
	if limit <= 0 || limit > tidalPageSize {
		limit = 10
	}

	endpoint := fmt.Sprintf("/search/tracks?query=%s&limit=%d&offset=0", url.QueryEscape(query), limit)

	var response tidalSearchResult
	if err := t.doRequest(ctx, http.MethodGet, endpoint, nil, &response, nil); err != nil {
		return nil, err
	}

	tracks := make([]Track, len(response.Items))
	for i, tt := range response.Items {
		tracks[i] = trackFromTidal(tt)
	}

	return tracks, nil
}

func playlistFromTidal(tp TidalPlaylist) Playlist {
	return Playlist{
		ID:          tp.UUID,
		Name:        tp.Title,
		Description: tp.Description,
		TrackCount:  tp.NumberOfTracks,
		Public:      tp.PublicPlaylist,
	}
}

func trackFromTidal(tt TidalTrack) Track {
	artists := tt.Artists
	if len(artists) == 0 && tt.Artist.Name != "" {
		artists = []TidalArtist{tt.Artist}
	}

	names := make([]string, len(artists))
	for i, a := range artists {
		names[i] = a.Name
	}

	return Track{
		ID:       strconv.FormatInt(tt.ID, 10),
		Title:    tt.Title,
		Artist:   strings.Join(names, ", "),
		Album:    tt.Album.Title,
		Duration: tt.Duration,
		ISRC:     tt.ISRC,
	}
}
