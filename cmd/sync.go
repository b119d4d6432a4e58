package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/lunamoth/tidesync/internal/formatter"
	"github.com/lunamoth/tidesync/internal/repositories"
	"github.com/lunamoth/tidesync/internal/services"
	"github.com/lunamoth/tidesync/internal/shared"
	"github.com/lunamoth/tidesync/internal/state"
	"github.com/lunamoth/tidesync/internal/tasks"
	"github.com/lunamoth/tidesync/internal/ui"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"
)

// SyncRun mirrors one or all configured playlists to Tidal.
//
// With a playlist argument only that playlist is synced; otherwise every
// playlist in the config's sync.playlists list is processed in order.
func (r *Runner) SyncRun(ctx context.Context, cmd *cli.Command) error {
	if r.spotify == nil {
		return fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
	}

	source, ok := r.spotify.(tasks.Source)
	if !ok {
		return fmt.Errorf("%w: Spotify service cannot act as a sync source", shared.ErrServiceUnavailable)
	}

	tidal, err := r.tidalService()
	if err != nil {
		return err
	}

	if err := r.spotify.Authenticate(ctx, r.config.Credentials.Spotify.Map()); err != nil {
		if reauthed, authErr := r.handleSpotifyAuthError(ctx, err, cmd); !reauthed || authErr != nil {
			return fmt.Errorf("spotify authentication failed: %w", err)
		}
	}

	if err := tidal.LoadSession(ctx); err != nil {
		return fmt.Errorf("tidal login required, run 'tidesync tidal auth': %w", err)
	}

	playlists := r.playlistsToSync(cmd.StringArg("playlist"))
	if len(playlists) == 0 {
		return fmt.Errorf("%w: no playlists to sync (pass a name or set sync.playlists in config.toml)", shared.ErrMissingArgument)
	}

	syncState, err := state.Load(r.config.Sync.StateFile)
	if err != nil {
		return err
	}

	cache, closeDB := r.openMatchCache()
	if closeDB != nil {
		defer closeDB()
	}

	var limiter *rate.Limiter
	if r.config.Sync.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(r.config.Sync.RateLimit), 1)
	}

	for _, pl := range playlists {
		auto := r.config.Sync.AutoFor(pl)
		if cmd.Bool("auto") {
			auto = true
		}
		if cmd.Bool("interactive") {
			auto = false
		}

		var resolver tasks.Resolver
		if !auto {
			resolver = ui.NewPicker()
		}

		engine := tasks.NewPlaylistEngine(source, tidal, syncState, tasks.EngineOpts{
			Cache:     cache,
			Resolver:  resolver,
			Limiter:   limiter,
			BatchSize: r.config.Sync.BatchSize,
		})

		destName := r.config.Sync.PrefixFor(pl) + pl.Name
		r.writePlainHeader(fmt.Sprintf("Syncing %q → %q", pl.Name, destName))

		result, err := r.runWithProgress(ctx, engine, tasks.RunOptions{
			SourceName: pl.Name,
			DestName:   destName,
			Auto:       auto,
		})
		if result != nil {
			r.writeSyncSummary(pl.Name, result)
		}
		if err != nil {
			return fmt.Errorf("sync of %q failed: %w", pl.Name, err)
		}
	}

	return nil
}

// runWithProgress runs the engine while draining its progress channel to the output.
func (r *Runner) runWithProgress(ctx context.Context, engine *tasks.PlaylistEngine, opts tasks.RunOptions) (*tasks.SyncRunResult, error) {
	progress := make(chan tasks.ProgressUpdate, 50)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for update := range progress {
			r.writePlain("%s\n", update.Message)
		}
	}()

	result, err := engine.Run(ctx, opts, progress)
	close(progress)
	wg.Wait()

	return result, err
}

func (r *Runner) writeSyncSummary(name string, result *tasks.SyncRunResult) {
	r.writePlainln("Summary for %q:", name)
	r.writePlain("  Added:   %d\n", result.Added)
	r.writePlain("  Present: %d\n", result.AlreadyPresent)
	r.writePlain("  Missing: %d\n", result.Missing)
	if result.CacheHits > 0 {
		r.writePlain("  Cache hits: %d\n", result.CacheHits)
	}
	r.writePlain("  Cursor:  %d/%d\n", result.EndIdx, result.Total)
}

// playlistsToSync resolves which playlists this run covers.
func (r *Runner) playlistsToSync(name string) []shared.PlaylistSyncConfig {
	if name != "" {
		for _, pl := range r.config.Sync.Playlists {
			if pl.Name == name {
				return []shared.PlaylistSyncConfig{pl}
			}
		}
		return []shared.PlaylistSyncConfig{{Name: name}}
	}
	return r.config.Sync.Playlists
}

// openMatchCache opens the sqlite match cache from the config.
//
// A missing or broken database disables caching rather than failing the run.
func (r *Runner) openMatchCache() (tasks.MatchCache, func() error) {
	if r.config.Database.Path == "" {
		return nil, nil
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		r.logger.Warn("match cache unavailable", "error", err)
		return nil, nil
	}

	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		r.logger.Warn("match cache migrations failed", "error", err)
		db.Close()
		return nil, nil
	}

	return repositories.NewMatchCacheAdapter(repositories.NewMatchRepository(db)), db.Close
}

// SyncStatus shows the saved cursor and missing tracks per playlist.
func (r *Runner) SyncStatus(ctx context.Context, cmd *cli.Command) error {
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")

	syncState, err := state.Load(r.config.Sync.StateFile)
	if err != nil {
		return err
	}

	if useJSON {
		return r.writeJSON(syncState, pretty)
	}

	if len(syncState.Playlists) == 0 {
		r.writePlain("No sync state recorded yet (state file: %s)\n", r.config.Sync.StateFile)
		return nil
	}

	for name, st := range syncState.Playlists {
		r.writePlain("%s\n", name)
		r.writePlain("  Cursor:  %d\n", st.Idx)
		r.writePlain("  Missing: %d\n", len(st.Missing))
		for _, track := range st.Missing {
			r.writePlain("    • %s - %s\n", track.Artists, track.Title)
		}
		r.writePlain("\n")
	}

	return nil
}

// SyncReset clears the saved cursor and missing list for a playlist.
func (r *Runner) SyncReset(ctx context.Context, cmd *cli.Command) error {
	name := cmd.StringArg("playlist")
	if name == "" {
		return fmt.Errorf("%w: playlist name is required", shared.ErrMissingArgument)
	}

	syncState, err := state.Load(r.config.Sync.StateFile)
	if err != nil {
		return err
	}

	if _, ok := syncState.Playlists[name]; !ok {
		return fmt.Errorf("%w: no sync state for %q", shared.ErrPlaylistNotFound, name)
	}

	syncState.Reset(name)
	if err := syncState.Save(); err != nil {
		return err
	}

	r.writePlain("✓ Sync state for %q reset\n", name)
	return nil
}

// SyncReport writes a missing-tracks report for a playlist.
func (r *Runner) SyncReport(ctx context.Context, cmd *cli.Command) error {
	name := cmd.StringArg("playlist")
	format := cmd.String("format")
	output := cmd.String("output")

	if name == "" {
		return fmt.Errorf("%w: playlist name is required", shared.ErrMissingArgument)
	}

	syncState, err := state.Load(r.config.Sync.StateFile)
	if err != nil {
		return err
	}

	st, ok := syncState.Playlists[name]
	if !ok {
		return fmt.Errorf("%w: no sync state for %q", shared.ErrPlaylistNotFound, name)
	}

	if len(st.Missing) == 0 {
		r.writePlain("No missing tracks for %q\n", name)
		return nil
	}

	file, err := formatter.WriteMissingReport(name, st, format, output)
	if err != nil {
		return err
	}

	r.writePlain("✓ Report written to %s (%d tracks)\n", file, len(st.Missing))
	return nil
}

// SyncDiff compares a Spotify playlist against its Tidal mirror.
func (r *Runner) SyncDiff(ctx context.Context, cmd *cli.Command) error {
	name := cmd.StringArg("playlist")
	if name == "" {
		return fmt.Errorf("%w: playlist name is required", shared.ErrMissingArgument)
	}

	if r.spotify == nil {
		return fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
	}

	source, ok := r.spotify.(*services.SpotifyService)
	if !ok {
		return fmt.Errorf("%w: playlist lookup by name unavailable", shared.ErrServiceUnavailable)
	}

	tidal, err := r.tidalService()
	if err != nil {
		return err
	}
	if err := tidal.LoadSession(ctx); err != nil {
		return err
	}

	srcPl, err := source.FindPlaylistByName(ctx, name)
	if err != nil {
		return err
	}

	destName := cmd.String("dest")
	if destName == "" {
		destName = r.config.Sync.PrefixFor(shared.PlaylistSyncConfig{Name: name}) + name
	}

	destPl, err := findTidalPlaylist(ctx, tidal, destName)
	if err != nil {
		return err
	}

	engine := tasks.NewPlaylistEngine(source, tidal, nil, tasks.EngineOpts{})
	result, err := engine.Diff(ctx, r.spotify, r.tidal, srcPl.ID, destPl.ID, nil)
	if err != nil {
		return err
	}

	cmp := result.Comparison
	r.writePlainHeader(fmt.Sprintf("%q vs %q", name, destName))
	r.writePlain("Matched: %d\n", cmp.MatchedCount)

	if len(cmp.MissingInDest) > 0 {
		r.writePlainln("Missing on Tidal (%d):", len(cmp.MissingInDest))
		for _, track := range cmp.MissingInDest {
			r.writePlain("  • %s - %s\n", track.Artist, track.Title)
		}
	}

	if len(cmp.ExtraInDest) > 0 {
		r.writePlainln("Only on Tidal (%d):", len(cmp.ExtraInDest))
		for _, track := range cmp.ExtraInDest {
			r.writePlain("  • %s - %s\n", track.Artist, track.Title)
		}
	}

	if len(cmp.MissingInDest) == 0 && len(cmp.ExtraInDest) == 0 {
		r.writePlain("Playlists are in sync\n")
	}

	return nil
}

// findTidalPlaylist resolves a Tidal playlist by exact title.
func findTidalPlaylist(ctx context.Context, tidal *services.TidalService, name string) (*services.Playlist, error) {
	playlists, err := tidal.GetPlaylists(ctx)
	if err != nil {
		return nil, err
	}
	for _, pl := range playlists {
		if pl.Name == name {
			return &pl, nil
		}
	}
	return nil, fmt.Errorf("%w: no Tidal playlist named %q", shared.ErrPlaylistNotFound, name)
}
