package main

import (
	"context"
	"errors"
	"os"

	"github.com/charmbracelet/log"
	"github.com/lunamoth/tidesync/internal/services"
	"github.com/lunamoth/tidesync/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		if loadedConfig, err := shared.LoadConfig("config.toml"); err == nil {
			config = loadedConfig
		}
	}

	if config.Logging.Level != "" {
		if level, err := log.ParseLevel(config.Logging.Level); err == nil {
			shared.SetLogLevel(logger, level)
		}
	}
	if config.Logging.File != "" {
		if fileLogger, err := shared.NewFileLogger(config.Logging.File); err == nil {
			logger = fileLogger
		} else {
			logger.Warn("failed to open log file, logging to stderr", "error", err)
		}
	}

	var spotifyService services.Service
	if config.Credentials.Spotify.ClientID != "" && config.Credentials.Spotify.ClientSecret != "" {
		if svc, err := services.NewSpotifyService(config.Credentials.Spotify.Map()); err == nil {
			spotifyService = svc
		}
	}

	var tidalService services.Service
	if config.Credentials.Tidal.ClientID != "" {
		if svc, err := services.NewTidalService(config.Credentials.Tidal.Map()); err == nil {
			tidalService = svc
		}
	}

	runner := NewRunner(RunnerOpts{
		Config:  config,
		Spotify: spotifyService,
		Tidal:   tidalService,
		Logger:  logger,
	})

	app := &cli.Command{
		Name:     "tidesync",
		Usage:    "Mirror Spotify playlists to Tidal",
		Version:  "0.3.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		err_ := errors.Unwrap(err)
		if errors.Is(err_, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			os.Exit(0)
		} else {
			logger.Fatalf("application error: %v", err)
		}
	}
}
