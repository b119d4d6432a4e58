// Package ui implements the interactive parts of the terminal interface
// using bubbletea's Elm architecture.
//
// The main component is [Picker], a candidate chooser shown when a track has
// no certain Tidal match and the playlist is not configured for automatic
// syncing. The model implements bubbletea's standard Init/Update/View
// pattern; keyboard navigation uses vim-style bindings (j/k, enter, s, q)
// with contextual help displayed via charmbracelet/bubbles/help.
package ui
