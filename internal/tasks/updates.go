package tasks

import (
	"fmt"

	"github.com/lunamoth/tidesync/internal/services"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchSource Phase = iota
	FetchDest
	BuildIndex
	SearchTracks
	AppendTracks
	SaveState
	Compare
)

func (p Phase) String() string {
	switch p {
	case FetchSource:
		return "fetch_source"
	case FetchDest:
		return "fetch_dest"
	case BuildIndex:
		return "build_index"
	case SearchTracks:
		return "search_tracks"
	case AppendTracks:
		return "append_tracks"
	case SaveState:
		return "save_state"
	case Compare:
		return "compare"
	default:
		return ""
	}
}

func fetchingSourceUpdate(name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchSource,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetching playlist %q from Spotify...", name),
	}
}

func foundPlaylistUpdate(export *services.PlaylistExport, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchSource,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Found playlist: %s (%d tracks)", export.Playlist.Name, total),
		Data:    export,
	}
}

func fetchSourceUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchSource,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Fetching source playlist (%s)...", name),
	}
}

func fetchDestUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchDest,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Fetching destination playlist (%s)...", name),
	}
}

func ensureDestUpdate(name string, created bool) ProgressUpdate {
	msg := fmt.Sprintf("Using Tidal playlist: %s", name)
	if created {
		msg = fmt.Sprintf("Created Tidal playlist: %s", name)
	}
	return ProgressUpdate{
		Phase:   FetchDest,
		Step:    1,
		Total:   1,
		Message: msg,
	}
}

func buildIndexUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BuildIndex,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Indexing %d existing Tidal tracks...", count),
	}
}

func resumeUpdate(idx, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SearchTracks,
		Step:    idx,
		Total:   total,
		Message: fmt.Sprintf("Resuming at track %d of %d", idx+1, total),
	}
}

func searchTrackUpdate(step, total int, tr services.Track) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SearchTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s - %s", step, total, tr.Artist, tr.Title),
	}
}

func trackMissingUpdate(step, total int, tr services.Track) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SearchTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ no match: %s - %s", step, total, tr.Artist, tr.Title),
	}
}

func appendTracksUpdate(count, flushedThrough, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   AppendTracks,
		Step:    flushedThrough,
		Total:   total,
		Message: fmt.Sprintf("Adding %d tracks to Tidal...", count),
	}
}

func buildDestMapUpdate(step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Compare,
		Step:    step,
		Total:   total,
		Message: "Building track comparison maps...",
	}
}

func compareTracksUpdate(step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Compare,
		Step:    step,
		Total:   total,
		Message: "Comparing tracks...",
	}
}
