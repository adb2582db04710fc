package main

import (
	"fmt"
	"log/slog"

	"stickerbridge/internal/config"
	"stickerbridge/internal/dispatch"
	"stickerbridge/internal/fetch"
	"stickerbridge/internal/gifcache"
	"stickerbridge/internal/journal"
	"stickerbridge/internal/metrics"
	"stickerbridge/internal/tgs"
	"stickerbridge/internal/webm"
)

// services bundles the components shared by serve and the one-shot commands.
type services struct {
	cache      *gifcache.Store
	journal    *journal.Store
	latency    *metrics.LatencyTracker
	dispatcher *dispatch.Dispatcher
}

func openServices(cfg *config.Config, logger *slog.Logger) (*services, error) {
	cache, err := gifcache.New(cfg.Paths.CacheDir, logger)
	if err != nil {
		return nil, fmt.Errorf("open gif cache: %w", err)
	}
	store, err := journal.Open(cfg.JournalPath())
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	fetcher := fetch.NewClient(fetch.Config{
		Timeout:   cfg.DownloadTimeout(),
		UserAgent: cfg.Download.UserAgent,
	})
	video := webm.New(cfg, cache, fetcher, logger)
	vector := tgs.New(cfg, cache, fetcher, logger)
	latency := metrics.NewLatencyTracker(metrics.DefaultRelativeAccuracy)
	dispatcher := dispatch.New(cfg, cache, video, vector, logger,
		dispatch.WithRecorder(store),
		dispatch.WithLatencyTracker(latency),
	)

	return &services{
		cache:      cache,
		journal:    store,
		latency:    latency,
		dispatcher: dispatcher,
	}, nil
}

func (s *services) Close() error {
	if s == nil {
		return nil
	}
	return s.journal.Close()
}
