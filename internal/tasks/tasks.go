package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/lunamoth/tidesync/internal/matcher"
	"github.com/lunamoth/tidesync/internal/services"
	"github.com/lunamoth/tidesync/internal/shared"
	"github.com/lunamoth/tidesync/internal/state"
	"golang.org/x/time/rate"
)

// Number of search results considered per source track.
const searchLimit = 10

// Source provides playlists to mirror. Implemented by the Spotify service.
//
// ExportPlaylistFrom pages tracks starting at offset and returns the
// playlist's total track count alongside, so resumed runs never refetch
// pages before the cursor.
type Source interface {
	FindPlaylistByName(ctx context.Context, name string) (*services.Playlist, error)
	ExportPlaylistFrom(ctx context.Context, playlistID string, offset int) (*services.PlaylistExport, int, error)
}

// Destination receives mirrored playlists. Implemented by the Tidal service.
type Destination interface {
	EnsurePlaylist(ctx context.Context, name, description string) (*services.Playlist, bool, error)
	PlaylistItems(ctx context.Context, playlistID string) ([]services.Track, error)
	AddTracks(ctx context.Context, playlistID string, trackIDs []string) error
	SearchTracks(ctx context.Context, query string, limit int) ([]services.Track, error)
}

// MatchCache remembers resolved track matches across runs.
//
// Get returns nil (no error) on a cache miss.
type MatchCache interface {
	Get(spotifyID, isrc string) (*CachedMatch, error)
	Put(track services.Track, tidalID, method string) error
}

// CachedMatch is a previously resolved destination track.
type CachedMatch struct {
	TidalID string
	Method  string
}

// Resolver chooses among uncertain candidates, typically by asking the user.
//
// Returning a nil candidate (and nil error) skips the track, recording it as
// missing.
type Resolver interface {
	Resolve(ctx context.Context, source services.Track, candidates []matcher.Candidate) (*matcher.Candidate, error)
}

// TrackStatus describes the sync outcome for a single source track.
type TrackStatus int

const (
	StatusAdded TrackStatus = iota
	StatusAlreadyPresent
	StatusMissing
	StatusPending // matched but not yet flushed when the run ended in error
)

func (s TrackStatus) String() string {
	switch s {
	case StatusAdded:
		return "added"
	case StatusAlreadyPresent:
		return "present"
	case StatusMissing:
		return "missing"
	case StatusPending:
		return "pending"
	default:
		return ""
	}
}

// TrackSyncResult records what happened to one source track during a run.
type TrackSyncResult struct {
	Track   services.Track     // Source track from Spotify
	Matched *matcher.Candidate // Accepted Tidal match (nil when missing)
	Status  TrackStatus
	Cached  bool // Match came from the cache, no search performed
}

// SyncRunResult contains all data from a playlist sync run.
type SyncRunResult struct {
	SourcePlaylist *services.PlaylistExport // Source playlist with tracks
	DestPlaylist   *services.Playlist       // Destination playlist (created or found)
	DestCreated    bool                     // Destination playlist was created this run
	Results        []TrackSyncResult        // Per-track outcomes, in source order
	StartIdx       int                      // Cursor position at the start of the run
	EndIdx         int                      // Cursor position after the run
	Added          int                      // Tracks appended this run
	AlreadyPresent int                      // Tracks already on the destination
	Missing        int                      // Tracks recorded as missing this run
	CacheHits      int                      // Matches served from the cache
	Total          int                      // Total tracks in the source playlist
}

// ComparisonResult contains track comparison details between two playlists.
type ComparisonResult struct {
	SourcePlaylist *services.PlaylistExport // Source playlist
	DestPlaylist   *services.PlaylistExport // Destination playlist
	MatchedCount   int                      // Tracks found in both
	MissingInDest  []services.Track         // Tracks in source but not in dest
	ExtraInDest    []services.Track         // Tracks in dest but not in source
}

// SyncDiffResult contains the results of comparing two playlists.
type SyncDiffResult struct {
	Comparison ComparisonResult
}

// RunOptions configures a single playlist sync run.
type RunOptions struct {
	SourceName string // Spotify playlist name
	DestName   string // Tidal playlist title (prefix already applied)
	Auto       bool   // Accept uncertain matches without consulting the resolver
}

// SyncEngine defines operations for mirroring playlists between services.
type SyncEngine interface {
	// Run mirrors one Spotify playlist to Tidal, resuming from the state
	// file cursor and advancing it only past durably processed entries.
	Run(ctx context.Context, opts RunOptions, progress chan<- ProgressUpdate) (*SyncRunResult, error)

	// Diff compares two playlists across services by identifying matched
	// tracks, missing tracks, and extra tracks.
	Diff(ctx context.Context, sourceSvc, destSvc services.Service, sourceID, destID string, progress chan<- ProgressUpdate) (*SyncDiffResult, error)
}

// PlaylistEngine implements SyncEngine for playlist operations.
// Contains dependencies on music services, the match cache, and sync state.
type PlaylistEngine struct {
	source    Source
	dest      Destination
	match     *matcher.Matcher
	cache     MatchCache
	resolver  Resolver
	state     *state.File
	limiter   *rate.Limiter
	batchSize int
}

// EngineOpts carries the optional dependencies for a PlaylistEngine.
type EngineOpts struct {
	Cache     MatchCache    // nil disables match caching
	Resolver  Resolver      // nil means uncertain matches are never prompted
	Limiter   *rate.Limiter // nil disables rate limiting
	BatchSize int           // destination append batch size; 0 uses the Tidal maximum
}

// NewPlaylistEngine creates a new PlaylistEngine with the provided services.
func NewPlaylistEngine(source Source, dest Destination, st *state.File, opts EngineOpts) *PlaylistEngine {
	batch := opts.BatchSize
	if batch <= 0 || batch > services.TidalAddBatchSize {
		batch = services.TidalAddBatchSize
	}

	return &PlaylistEngine{
		source:    source,
		dest:      dest,
		match:     matcher.New(),
		cache:     opts.Cache,
		resolver:  opts.Resolver,
		state:     st,
		limiter:   opts.Limiter,
		batchSize: batch,
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *PlaylistEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
		// Sent successfully
	default:
		// Channel full or closed, skip this update
	}
}

// destIndex tracks what is already on the destination playlist so reruns
// and duplicate source entries never append the same recording twice.
type destIndex struct {
	ids   map[string]bool // Tidal track IDs
	isrcs map[string]bool
	keys  map[string]bool // normalized title|artist keys
}

func buildDestIndex(tracks []services.Track) *destIndex {
	idx := &destIndex{
		ids:   make(map[string]bool, len(tracks)),
		isrcs: make(map[string]bool, len(tracks)),
		keys:  make(map[string]bool, len(tracks)),
	}
	for _, t := range tracks {
		idx.add(t)
	}
	return idx
}

func (d *destIndex) add(t services.Track) {
	if t.ID != "" {
		d.ids[t.ID] = true
	}
	if t.ISRC != "" {
		d.isrcs[t.ISRC] = true
	}
	d.keys[shared.NormalizeTrackKey(t.Title, t.Artist)] = true
}

func (d *destIndex) contains(t services.Track) bool {
	if t.ISRC != "" && d.isrcs[t.ISRC] {
		return true
	}
	return d.keys[shared.NormalizeTrackKey(t.Title, t.Artist)]
}

// pendingAdd is a matched track waiting for its batch append.
type pendingAdd struct {
	entryIdx  int
	track     services.Track
	candidate matcher.Candidate
	cached    bool
}

// Run mirrors one Spotify playlist to Tidal.
//
// Entries before the state cursor are never touched. The cursor advances
// past an entry only once its outcome is durable: immediately for tracks
// already on the destination or recorded as missing, and after the batch
// append succeeds for matched tracks. A run that fails mid-way leaves the
// cursor at the first entry whose append did not land, so the rerun picks
// up exactly there.
func (e *PlaylistEngine) Run(ctx context.Context, opts RunOptions, progress chan<- ProgressUpdate) (*SyncRunResult, error) {
	if e.source == nil {
		return nil, fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
	}
	if e.dest == nil {
		return nil, fmt.Errorf("%w: Tidal service not initialized", shared.ErrServiceUnavailable)
	}
	if e.state == nil {
		return nil, fmt.Errorf("%w: sync state not loaded", shared.ErrServiceUnavailable)
	}

	result := &SyncRunResult{}

	e.sendProgress(progress, fetchingSourceUpdate(opts.SourceName))

	srcMeta, err := e.source.FindPlaylistByName(ctx, opts.SourceName)
	if err != nil {
		return nil, err
	}

	st := e.state.Playlist(opts.SourceName)

	srcPlaylist, total, err := e.source.ExportPlaylistFrom(ctx, srcMeta.ID, st.Idx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to export playlist: %v", shared.ErrAPIRequest, err)
	}

	result.SourcePlaylist = srcPlaylist
	result.Total = total
	e.sendProgress(progress, foundPlaylistUpdate(srcPlaylist, total))

	destName := opts.DestName
	if destName == "" {
		destName = opts.SourceName
	}
	destPlaylist, created, err := e.dest.EnsurePlaylist(ctx, destName, "Imported from Spotify")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare Tidal playlist: %w", err)
	}
	result.DestPlaylist = destPlaylist
	result.DestCreated = created
	e.sendProgress(progress, ensureDestUpdate(destName, created))

	destTracks, err := e.dest.PlaylistItems(ctx, destPlaylist.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list Tidal playlist items: %w", err)
	}
	index := buildDestIndex(destTracks)
	e.sendProgress(progress, buildIndexUpdate(len(destTracks)))

	if st.Idx > total {
		// Source playlist shrank since the last run.
		st.Idx = total
	}
	// Entries before the cursor were never fetched; base anchors the
	// exported slice to absolute playlist positions.
	base := st.Idx
	result.StartIdx = st.Idx
	if st.Idx > 0 {
		e.sendProgress(progress, resumeUpdate(st.Idx, result.Total))
	}

	var pending []pendingAdd

	// flush appends the pending batch and advances the cursor past every
	// entry up to and including `through`.
	flush := func(through int) error {
		if len(pending) == 0 {
			return nil
		}

		ids := make([]string, len(pending))
		for i, p := range pending {
			ids[i] = p.candidate.Track.ID
		}

		e.sendProgress(progress, appendTracksUpdate(len(ids), through+1, result.Total))

		if err := e.dest.AddTracks(ctx, destPlaylist.ID, ids); err != nil {
			return fmt.Errorf("failed to add tracks to Tidal: %w", err)
		}

		for _, p := range pending {
			result.Results = append(result.Results, TrackSyncResult{
				Track:   p.track,
				Matched: &p.candidate,
				Status:  StatusAdded,
				Cached:  p.cached,
			})
			result.Added++
			if p.cached {
				result.CacheHits++
			}
			st.RemoveMissing(p.track.ID)
			if e.cache != nil && !p.cached {
				if err := e.cache.Put(p.track, p.candidate.Track.ID, string(p.candidate.Method)); err != nil {
					return fmt.Errorf("failed to cache match: %w", err)
				}
			}
		}

		pending = nil
		st.Idx = through + 1
		if err := e.state.Save(); err != nil {
			return err
		}
		return nil
	}

	// advance moves the cursor past entry i when no appends are in flight
	// ahead of it. With pending appends the outcome is already recorded;
	// the cursor catches up when the batch lands.
	advance := func(i int) error {
		if len(pending) > 0 {
			return nil
		}
		st.Idx = i + 1
		return e.state.Save()
	}

	for off := 0; off < len(srcPlaylist.Tracks); off++ {
		if err := ctx.Err(); err != nil {
			e.state.Save()
			return result, err
		}

		i := base + off
		track := srcPlaylist.Tracks[off]
		e.sendProgress(progress, searchTrackUpdate(i+1, result.Total, track))

		if index.contains(track) {
			result.Results = append(result.Results, TrackSyncResult{Track: track, Status: StatusAlreadyPresent})
			result.AlreadyPresent++
			st.RemoveMissing(track.ID)
			if err := advance(i); err != nil {
				return result, err
			}
			continue
		}

		cand, cached, err := e.resolveTrack(ctx, track, opts.Auto)
		if err != nil {
			if isFatal(err) {
				e.state.Save()
				return result, err
			}
			// Per-track failures never block the rest of the playlist.
			cand = nil
		}

		if cand == nil {
			st.AddMissing(state.MissingTrack{
				Title:     track.Title,
				Artists:   track.Artist,
				ISRC:      track.ISRC,
				SpotifyID: track.ID,
			})
			result.Results = append(result.Results, TrackSyncResult{Track: track, Status: StatusMissing})
			result.Missing++
			e.sendProgress(progress, trackMissingUpdate(i+1, result.Total, track))
			if err := advance(i); err != nil {
				return result, err
			}
			continue
		}

		if index.ids[cand.Track.ID] {
			// Cached match already on the playlist.
			result.Results = append(result.Results, TrackSyncResult{Track: track, Matched: cand, Status: StatusAlreadyPresent, Cached: cached})
			result.AlreadyPresent++
			st.RemoveMissing(track.ID)
			if err := advance(i); err != nil {
				return result, err
			}
			continue
		}

		pending = append(pending, pendingAdd{entryIdx: i, track: track, candidate: *cand, cached: cached})
		index.add(cand.Track)

		if len(pending) >= e.batchSize {
			if err := flush(i); err != nil {
				e.state.Save()
				return result, err
			}
		}
	}

	if err := flush(base + len(srcPlaylist.Tracks) - 1); err != nil {
		e.state.Save()
		return result, err
	}

	st.Idx = base + len(srcPlaylist.Tracks)
	if err := e.state.Save(); err != nil {
		return result, err
	}

	result.EndIdx = st.Idx
	return result, nil
}

// resolveTrack finds the Tidal track for a source track: cache first, then
// catalog search plus matching, then the resolver for uncertain cases. With
// auto set the resolver is never consulted.
//
// A nil candidate with nil error means the track has no match.
func (e *PlaylistEngine) resolveTrack(ctx context.Context, track services.Track, auto bool) (*matcher.Candidate, bool, error) {
	if e.cache != nil {
		hit, err := e.cache.Get(track.ID, track.ISRC)
		if err != nil {
			return nil, false, err
		}
		if hit != nil {
			return &matcher.Candidate{
				Track:      services.Track{ID: hit.TidalID, Title: track.Title, Artist: track.Artist, ISRC: track.ISRC},
				Method:     matcher.Method(hit.Method),
				Confidence: 1.0,
			}, true, nil
		}
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, false, err
		}
	}

	found, err := e.dest.SearchTracks(ctx, matcher.Query(track), searchLimit)
	if err != nil {
		return nil, false, err
	}

	ranked := e.match.Rank(track, found)

	// ISRC and exact normalized matches are accepted unconditionally.
	if len(ranked) > 0 && ranked[0].Method != matcher.MethodFuzzy {
		return &ranked[0], false, nil
	}

	if e.resolver != nil && !auto {
		candidates := ranked
		if len(candidates) == 0 {
			// Nothing cleared a tier, but the search did return results;
			// let the user see the near misses before giving up.
			candidates = e.match.RankAll(track, found)
		}
		cand, err := e.resolver.Resolve(ctx, track, candidates)
		if err != nil {
			return nil, false, err
		}
		return cand, false, nil
	}

	if len(ranked) > 0 {
		return &ranked[0], false, nil
	}

	return nil, false, nil
}

// isFatal reports whether a per-track error should abort the whole run
// instead of marking the track missing.
func isFatal(err error) bool {
	return errors.Is(err, shared.ErrTokenExpired) ||
		errors.Is(err, shared.ErrNotAuthenticated) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Diff compares two playlists and identifies differences.
func (e *PlaylistEngine) Diff(ctx context.Context, sourceSvc, destSvc services.Service, sourceID, destID string, progress chan<- ProgressUpdate) (*SyncDiffResult, error) {
	if sourceSvc == nil || destSvc == nil {
		return nil, fmt.Errorf("%w: service not initialized", shared.ErrServiceUnavailable)
	}

	result := &SyncDiffResult{}

	e.sendProgress(progress, fetchSourceUpdate(1, 2, sourceSvc.Name()))
	sourceExport, err := sourceSvc.ExportPlaylist(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to export source playlist: %v", shared.ErrPlaylistNotFound, err)
	}

	e.sendProgress(progress, fetchDestUpdate(2, 2, destSvc.Name()))
	destExport, err := destSvc.ExportPlaylist(ctx, destID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to export destination playlist: %v", shared.ErrPlaylistNotFound, err)
	}

	result.Comparison.SourcePlaylist = sourceExport
	result.Comparison.DestPlaylist = destExport

	e.sendProgress(progress, buildDestMapUpdate(1, 2))
	destTrackMap := make(map[string]services.Track)
	destISRCMap := make(map[string]services.Track)

	for _, track := range destExport.Tracks {
		normalizedKey := shared.NormalizeTrackKey(track.Title, track.Artist)
		destTrackMap[normalizedKey] = track
		if track.ISRC != "" {
			destISRCMap[track.ISRC] = track
		}
	}

	e.sendProgress(progress, compareTracksUpdate(2, 2))
	var missingInDest []services.Track
	matchedCount := 0

	for _, srcTrack := range sourceExport.Tracks {
		matched := false

		if srcTrack.ISRC != "" {
			if _, found := destISRCMap[srcTrack.ISRC]; found {
				matched = true
			}
		}

		if !matched {
			normalizedKey := shared.NormalizeTrackKey(srcTrack.Title, srcTrack.Artist)
			if _, found := destTrackMap[normalizedKey]; found {
				matched = true
			}
		}

		if matched {
			matchedCount++
		} else {
			missingInDest = append(missingInDest, srcTrack)
		}
	}

	sourceTrackMap := make(map[string]services.Track)
	sourceISRCMap := make(map[string]services.Track)

	for _, track := range sourceExport.Tracks {
		normalizedKey := shared.NormalizeTrackKey(track.Title, track.Artist)
		sourceTrackMap[normalizedKey] = track
		if track.ISRC != "" {
			sourceISRCMap[track.ISRC] = track
		}
	}

	var extraInDest []services.Track
	for _, destTrack := range destExport.Tracks {
		matched := false

		if destTrack.ISRC != "" {
			if _, found := sourceISRCMap[destTrack.ISRC]; found {
				matched = true
			}
		}

		if !matched {
			normalizedKey := shared.NormalizeTrackKey(destTrack.Title, destTrack.Artist)
			if _, found := sourceTrackMap[normalizedKey]; found {
				matched = true
			}
		}

		if !matched {
			extraInDest = append(extraInDest, destTrack)
		}
	}

	result.Comparison.MatchedCount = matchedCount
	result.Comparison.MissingInDest = missingInDest
	result.Comparison.ExtraInDest = extraInDest

	return result, nil
}
