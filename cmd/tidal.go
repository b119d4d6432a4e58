package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lunamoth/tidesync/internal/services"
	"github.com/lunamoth/tidesync/internal/shared"
	"github.com/urfave/cli/v3"
)

// tidalService returns the runner's Tidal service as its concrete type, which
// carries the device-login and playlist-write operations.
func (r *Runner) tidalService() (*services.TidalService, error) {
	if r.tidal == nil {
		return nil, fmt.Errorf("%w: Tidal service not initialized (set credentials.tidal.client_id)", shared.ErrServiceUnavailable)
	}
	svc, ok := r.tidal.(*services.TidalService)
	if !ok {
		return nil, fmt.Errorf("%w: Tidal service does not support this operation", shared.ErrServiceUnavailable)
	}
	return svc, nil
}

// TidalAuth logs in to Tidal with the device authorization flow.
//
// Prints a verification URL for the user to open; once the login is approved
// the session is saved to the session file for later runs.
func (r *Runner) TidalAuth(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.tidalService()
	if err != nil {
		return err
	}

	if err := svc.LoadSession(ctx); err == nil {
		r.writePlain("✓ Already logged in to Tidal (session file is valid)\n")
		return nil
	} else if !errors.Is(err, shared.ErrNotAuthenticated) {
		r.logger.Warnf("saved session unusable, starting fresh login %v", err)
	}

	da, err := svc.StartDeviceLogin(ctx)
	if err != nil {
		return err
	}

	verificationURL := da.VerificationURIComplete
	if verificationURL == "" {
		verificationURL = da.VerificationURI
	}
	if verificationURL != "" && !strings.HasPrefix(verificationURL, "http") {
		verificationURL = "https://" + verificationURL
	}

	r.writePlain("→ Open this URL to approve the login:\n%s\n\n", verificationURL)
	if da.UserCode != "" {
		r.writePlain("→ Code: %s\n", da.UserCode)
	}
	if err := shared.OpenBrowser(verificationURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
	}

	r.writePlain("→ Waiting for approval...\n")

	if err := svc.CompleteDeviceLogin(ctx, da); err != nil {
		return err
	}

	r.writePlainln("✓ Logged in to Tidal")
	r.writePlain("✓ Session saved\n")

	return nil
}

// TidalPlaylists lists the logged-in user's Tidal playlists.
func (r *Runner) TidalPlaylists(ctx context.Context, cmd *cli.Command) error {
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")

	svc, err := r.tidalService()
	if err != nil {
		return err
	}

	if err := svc.LoadSession(ctx); err != nil {
		return err
	}

	playlists, err := svc.GetPlaylists(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if useJSON {
		return r.writeJSON(playlists, pretty)
	}

	r.writePlain("Found %d playlists:\n\n", len(playlists))
	for i, p := range playlists {
		r.writePlain("%d. %s\n", i+1, p.Name)
		if p.Description != "" {
			r.writePlain("   Description: %s\n", p.Description)
		}
		r.writePlain("   ID: %s\n", p.ID)
		r.writePlain("   Tracks: %d\n", p.TrackCount)
		r.writePlain("\n")
	}

	return nil
}

// TidalSearch searches the Tidal catalog for a track.
func (r *Runner) TidalSearch(ctx context.Context, cmd *cli.Command) error {
	query := cmd.StringArg("query")
	limit := cmd.Int("limit")
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")

	if query == "" {
		return fmt.Errorf("%w: search query is required", shared.ErrMissingArgument)
	}

	svc, err := r.tidalService()
	if err != nil {
		return err
	}

	if err := svc.LoadSession(ctx); err != nil {
		return err
	}

	r.logger.Infof("searching tidal for %q", query)

	tracks, err := svc.SearchTracks(ctx, query, limit)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if useJSON {
		return r.writeJSON(tracks, pretty)
	}

	if len(tracks) == 0 {
		r.writePlain("No results for %q\n", query)
		return nil
	}

	r.writePlain("Found %d tracks:\n\n", len(tracks))
	for i, t := range tracks {
		r.writePlain("%d. %s - %s [%s]\n", i+1, t.Artist, t.Title, shared.FormatDuration(t.Duration))
		if t.Album != "" {
			r.writePlain("   Album: %s\n", t.Album)
		}
		if t.ISRC != "" {
			r.writePlain("   ISRC: %s\n", t.ISRC)
		}
		r.writePlain("   ID: %s\n", t.ID)
	}

	return nil
}
