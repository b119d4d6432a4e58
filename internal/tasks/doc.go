// package tasks implements playlist sync operations between music services.
//
// The core abstraction is [PlaylistEngine], which mirrors Spotify playlists to
// Tidal: it resolves the source playlist, matches each track against the
// Tidal catalog, and appends matches in batches. Progress is durable: a
// cursor in the state file records how far the sync got, so an interrupted
// run resumes where it stopped and never reprocesses earlier entries.
// Operations emit progress updates via channels for non-blocking status
// reporting to CLI/UI layers.
package tasks
