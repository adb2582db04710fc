package tgs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"stickerbridge/internal/config"
	"stickerbridge/internal/failcache"
	"stickerbridge/internal/fetch"
	"stickerbridge/internal/gifcache"
	"stickerbridge/internal/logging"
	"stickerbridge/internal/metrics"
	"stickerbridge/internal/sticker"
)

// Converter turns TGS documents into cached GIFs.
type Converter struct {
	cache       *gifcache.Store
	fetcher     *fetch.Client
	renderer    Renderer
	failures    *failcache.Cache
	logger      *slog.Logger
	maxDownload int64
	maxDocument int64
	size        int
}

// Option customizes the converter.
type Option func(*Converter)

// WithRenderer overrides the renderer (useful for tests).
func WithRenderer(renderer Renderer) Option {
	return func(c *Converter) {
		if renderer != nil {
			c.renderer = renderer
		}
	}
}

// WithFailureCache overrides the failure cache built from configuration.
func WithFailureCache(failures *failcache.Cache) Option {
	return func(c *Converter) {
		c.failures = failures
	}
}

// New constructs a Converter from configuration. The renderer defaults to a
// CommandRenderer for the configured command.
func New(cfg *config.Config, cache *gifcache.Store, fetcher *fetch.Client, logger *slog.Logger, opts ...Option) *Converter {
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Converter{
		cache:       cache,
		fetcher:     fetcher,
		renderer:    NewCommandRenderer(cfg),
		failures:    failcache.New(cfg.FailureCacheTTL()),
		logger:      logging.NewComponentLogger(logger, "tgs"),
		maxDownload: cfg.Download.MaxVectorBytes,
		maxDocument: cfg.Renderer.MaxDocumentBytes,
		size:        config.StickerSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Convert returns a handle to the GIF for sourceURL. ok is false when the
// document could not be converted; the caller should fall back to the static
// image. Download failures also degrade but are not remembered, so the next
// request retries them. err is non-nil only for cache write failures.
func (c *Converter) Convert(ctx context.Context, sourceURL string) (sticker.Handle, bool, error) {
	key := sticker.KeyFor(sourceURL)
	logger := c.logger.With(
		logging.String(logging.FieldCacheKey, key.String()),
		logging.String(logging.FieldStickerKind, sticker.KindVector.String()),
	)
	if c.cache.Has(key) {
		logger.DebugContext(ctx, "using cached gif")
		return c.cache.HandleFor(key), true, nil
	}
	if failure, ok := c.failures.Lookup(key); ok {
		logger.DebugContext(ctx, "skipping recently failed sticker",
			logging.String("reason", failure.Reason),
			logging.Duration("since", time.Since(failure.FailedAt)),
		)
		return sticker.Handle{}, false, nil
	}

	start := time.Now()
	payload, err := c.fetcher.Bytes(ctx, sourceURL, c.maxDownload)
	if err != nil {
		logging.WarnWithContext(ctx, logger, "vector sticker download failed; falling back to static image", "download_failed",
			logging.String("stage", "download"),
			logging.Error(sticker.NewError(sticker.ErrDownloadFailed, key, err, nil)),
			logging.String(logging.FieldErrorHint, "check that the source URL is reachable"),
			logging.String(logging.FieldImpact, "sticker delivered as a static image"),
		)
		return sticker.Handle{}, false, nil
	}

	document, err := Decompress(payload, c.maxDocument)
	if err != nil {
		c.degrade(ctx, logger, key, "decompress", err)
		return sticker.Handle{}, false, nil
	}

	gif, err := c.render(ctx, document)
	if err != nil {
		c.degrade(ctx, logger, key, "render", err)
		return sticker.Handle{}, false, nil
	}
	if err := gifcache.ValidatePayload(gif); err != nil {
		c.degrade(ctx, logger, key, "render", err)
		return sticker.Handle{}, false, nil
	}

	handle, err := c.cache.WriteAtomic(ctx, key, gif)
	if err != nil {
		return sticker.Handle{}, false, sticker.NewError(sticker.ErrCacheWriteFailed, key, err, nil)
	}
	c.failures.Forget(key)

	logger.InfoContext(ctx, "vector sticker converted",
		logging.String(logging.FieldEventType, "sticker_converted"),
		logging.Bytes("gif_size", int64(len(gif))),
		logging.Duration("elapsed", time.Since(start)),
	)
	return handle, true, nil
}

// FailureReason returns the remembered reason key last failed to convert.
func (c *Converter) FailureReason(key sticker.Key) (string, bool) {
	failure, ok := c.failures.Lookup(key)
	if !ok {
		return "", false
	}
	return failure.Reason, true
}

func (c *Converter) render(ctx context.Context, document []byte) ([]byte, error) {
	gif, err := c.renderer.Render(ctx, document, c.size, c.size)
	switch {
	case err == nil:
		metrics.ToolRuns.WithLabelValues("renderer", "ok").Inc()
		return gif, nil
	case errors.Is(err, context.DeadlineExceeded):
		metrics.ToolRuns.WithLabelValues("renderer", "timeout").Inc()
	default:
		metrics.ToolRuns.WithLabelValues("renderer", "error").Inc()
	}
	return nil, err
}

func (c *Converter) degrade(ctx context.Context, logger *slog.Logger, key sticker.Key, stage string, err error) {
	reason := fmt.Sprintf("%s: %v", stage, err)
	c.failures.Remember(key, reason)
	logging.WarnWithContext(ctx, logger, "vector sticker conversion failed; falling back to static image", "vector_conversion_degraded",
		logging.String("stage", stage),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the renderer command and that the source is a valid TGS file"),
		logging.String(logging.FieldImpact, "sticker delivered as a static image"),
	)
}
