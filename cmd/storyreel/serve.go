package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"storyreel/internal/api"
	"storyreel/internal/editor"
	"storyreel/internal/media"
	"storyreel/internal/server"
	"storyreel/internal/storage"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(a)
		},
	}
}

func runServe(a *app) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	logger.Info().
		Str("version", api.Version).
		Msg("starting storyreel server")

	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize storage")
		return err
	}
	defer store.Close()

	prober := media.NewProber(logger)
	stills := media.NewStillExtractor(cfg.Thumbnails.OutputDir, logger)

	if prober.IsAvailable() {
		logger.Info().Msg("ffprobe available - duration probing enabled")
	} else {
		logger.Warn().Msg("ffprobe not found - drops without a duration use the default")
	}
	if stills.IsAvailable() {
		logger.Info().Msg("ffmpeg available - video thumbnails enabled")
	} else {
		logger.Warn().Msg("ffmpeg not found - video thumbnails disabled")
	}

	opts, err := editor.OptionsFromConfig(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("invalid editor configuration")
		return err
	}
	manager := editor.NewManager(store, opts, logger)
	manager.SetProber(prober)
	manager.SetStillExtractor(stills)
	defer manager.Close()

	srv := server.New(cfg, logger, store, manager)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if prober.IsAvailable() {
		go probeAssets(ctx, store, prober, logger, 100, 500*time.Millisecond)
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}

		logger.Info().Msg("received shutdown signal")
		cancel()

		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("shutdown error")
		}
	}()

	if err := srv.Start(); err != nil {
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("server stopped")
	return nil
}

// probeAssets fills in metadata for assets registered without it, one batch
// at a time, until none are left or ctx ends.
func probeAssets(ctx context.Context, store *storage.SQLiteStorage, prober *media.Prober, logger zerolog.Logger, batch int, pause time.Duration) {
	log := logger.With().Str("component", "probe").Logger()
	for {
		assets, err := store.GetAssetsWithoutMetadata(batch)
		if err != nil {
			log.Error().Err(err).Msg("failed to list unprobed assets")
			return
		}
		if len(assets) == 0 {
			return
		}

		probed := 0
		for _, asset := range assets {
			if ctx.Err() != nil {
				return
			}
			meta, err := prober.Probe(ctx, asset.Src)
			if err != nil {
				log.Debug().Err(err).Str("src", asset.Src).Msg("probe failed")
				continue
			}
			if err := store.UpdateAssetMetadata(asset.ID, meta.Duration, meta.Width, meta.Height, meta.VideoCodec, meta.AudioCodec); err != nil {
				log.Error().Err(err).Str("id", asset.ID).Msg("failed to store metadata")
				continue
			}
			probed++
		}
		log.Info().Int("probed", probed).Int("batch", len(assets)).Msg("asset metadata batch done")
		if probed == 0 {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(pause):
		}
	}
}
