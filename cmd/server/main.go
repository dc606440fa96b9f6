// Command server runs the chat backend.
//
// Configuration comes from the environment and an optional .env file; see
// internal/config for the full list of variables.
package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/sakif/chat-backend/internal/config"
	"github.com/sakif/chat-backend/internal/repository/jsonfile"
	"github.com/sakif/chat-backend/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	srv, err := server.New(cfg, logger)
	if err != nil {
		if errors.Is(err, jsonfile.ErrCorrupt) {
			logger.Error("storage file is corrupt; fix or remove it, or set STORAGE_RESET_ON_CORRUPT=true to back it up and start empty",
				slog.String("path", cfg.Storage.Path),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT or SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
