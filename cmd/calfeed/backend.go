package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/alfredjeanlab/calfeed/internal/config"
	"github.com/alfredjeanlab/calfeed/internal/export"
	"github.com/alfredjeanlab/calfeed/internal/store"
	"github.com/alfredjeanlab/calfeed/internal/store/memory"
	"github.com/alfredjeanlab/calfeed/internal/store/postgres"
)

// loadConfig loads and validates the server configuration. Commands that
// run against the store use it too.
func loadConfig(useMemory bool) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(!useMemory); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(format string) *slog.Logger {
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func openStore(ctx context.Context, cfg *config.Config, useMemory bool) (store.Store, error) {
	if useMemory {
		return memory.New(), nil
	}
	s, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return s, nil
}

// exportDestinations builds the snapshot destinations named in cfg. A
// destination that fails to initialize is logged and skipped.
func exportDestinations(ctx context.Context, cfg config.ExportConfig, logger *slog.Logger) []export.Destination {
	var dests []export.Destination
	if cfg.S3Bucket != "" {
		d, err := export.NewS3Destination(ctx, export.S3Options{
			Bucket:   cfg.S3Bucket,
			Key:      cfg.S3Key,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		})
		if err != nil {
			logger.Error("failed to create S3 export destination", "err", err)
		} else {
			dests = append(dests, d)
			logger.Info("export S3 destination enabled", "bucket", cfg.S3Bucket, "key", cfg.S3Key)
		}
	}
	if cfg.File != "" {
		dests = append(dests, &export.FileDestination{Path: cfg.File})
		logger.Info("export file destination enabled", "path", cfg.File)
	}
	return dests
}
