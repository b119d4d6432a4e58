// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// spotifyCommand handles Spotify operations
func spotifyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "spotify",
		Aliases: []string{"spot"},
		Usage:   "Spotify playlist operations",
		Commands: []*cli.Command{
			{
				Name:   "auth",
				Usage:  "Authenticate with Spotify using OAuth2",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SpotifyAuth,
			},
			{
				Name:  "playlists",
				Usage: "List Spotify playlists",
				Flags: []cli.Flag{
					configFlag(),
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of playlists to return",
						Value: 50,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
				},
				Action: r.SpotifyPlaylists,
			},
			{
				Name:  "export",
				Usage: "Export a playlist with all tracks",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "name",
						Usage: "Playlist name to export",
					},
					&cli.StringFlag{
						Name:  "id",
						Usage: "Playlist ID to export",
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "Export format: json, csv, markdown, or txt",
						Value: "json",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print JSON output",
						Value: true,
					},
				},
				Action: r.SpotifyExport,
			},
		},
	}
}

// tidalCommand handles Tidal operations
func tidalCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tidal",
		Usage: "Tidal playlist operations",
		Commands: []*cli.Command{
			{
				Name:   "auth",
				Usage:  "Log in to Tidal with the device authorization flow",
				Flags:  []cli.Flag{configFlag()},
				Action: r.TidalAuth,
			},
			{
				Name:  "playlists",
				Usage: "List Tidal playlists",
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
				},
				Action: r.TidalPlaylists,
			},
			{
				Name:  "search",
				Usage: "Search the Tidal catalog for a track",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "query",
					},
				},
				Flags: []cli.Flag{
					configFlag(),
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
						Value: 10,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.TidalSearch,
			},
		},
	}
}

// syncCommand handles playlist mirroring operations
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Mirror Spotify playlists to Tidal",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Sync playlists, resuming from the saved cursor",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "playlist",
					},
				},
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:  "auto",
						Usage: "Accept uncertain matches without prompting",
					},
					&cli.BoolFlag{
						Name:    "interactive",
						Aliases: []string{"i"},
						Usage:   "Prompt for uncertain matches even when the config says auto",
					},
				},
				Action: r.SyncRun,
			},
			{
				Name:  "status",
				Usage: "Show sync progress and missing tracks per playlist",
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.SyncStatus,
			},
			{
				Name:  "reset",
				Usage: "Reset the sync cursor for a playlist",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "playlist",
					},
				},
				Flags:  []cli.Flag{configFlag()},
				Action: r.SyncReset,
			},
			{
				Name:  "report",
				Usage: "Write a missing-tracks report for a playlist",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "playlist",
					},
				},
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "format",
						Usage: "Report format: csv, markdown, or txt",
						Value: "txt",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
					},
				},
				Action: r.SyncReport,
			},
			{
				Name:  "diff",
				Usage: "Compare a Spotify playlist against its Tidal mirror",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "playlist",
					},
				},
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "dest",
						Usage: "Tidal playlist name (defaults to prefix + playlist name)",
					},
				},
				Action: r.SyncDiff,
			},
		},
	}
}

// setupCommand handles setup operations for configuration and the match cache database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Create a config.toml from the bundled template",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize the match cache database and run migrations",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupDatabase,
			},
		},
	}
}
