package webm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"stickerbridge/internal/config"
	"stickerbridge/internal/fetch"
	"stickerbridge/internal/fileutil"
	"stickerbridge/internal/gifcache"
	"stickerbridge/internal/logging"
	"stickerbridge/internal/metrics"
	"stickerbridge/internal/sticker"
)

// ScratchExtension is the extension of downloaded clips.
const ScratchExtension = ".webm"

// Executor runs an external tool and returns its combined output.
type Executor interface {
	Run(ctx context.Context, name string, args []string) ([]byte, error)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, name string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	return cmd.CombinedOutput()
}

// Converter turns WebM clips into cached GIFs.
type Converter struct {
	cache      *gifcache.Store
	fetcher    *fetch.Client
	exec       Executor
	logger     *slog.Logger
	ffmpeg     string
	scratchDir string
	timeout    time.Duration
	maxBytes   int64
}

// Option customizes the converter.
type Option func(*Converter)

// WithExecutor overrides how ffmpeg is launched (useful for tests).
func WithExecutor(executor Executor) Option {
	return func(c *Converter) {
		if executor != nil {
			c.exec = executor
		}
	}
}

// WithToolTimeout overrides the configured transcoder timeout.
func WithToolTimeout(timeout time.Duration) Option {
	return func(c *Converter) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// New constructs a Converter from configuration.
func New(cfg *config.Config, cache *gifcache.Store, fetcher *fetch.Client, logger *slog.Logger, opts ...Option) *Converter {
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Converter{
		cache:      cache,
		fetcher:    fetcher,
		exec:       commandExecutor{},
		logger:     logging.NewComponentLogger(logger, "webm"),
		ffmpeg:     cfg.Transcoder.FFmpegBinary,
		scratchDir: cfg.Paths.ScratchDir,
		timeout:    cfg.TranscoderTimeout(),
		maxBytes:   cfg.Download.MaxVideoBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Args builds the ffmpeg command line that renders input as a 256px wide,
// 20 fps, endlessly looping GIF at output.
func Args(input, output string) []string {
	filter := fmt.Sprintf(
		"fps=20,scale=%d:-1:flags=lanczos,split[s0][s1];[s0]palettegen[p];[s1][p]paletteuse",
		config.StickerSize,
	)
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", input,
		"-vf", filter,
		"-loop", "0",
		output,
	}
}

// ScratchPath returns where the clip for key is downloaded.
func (c *Converter) ScratchPath(key sticker.Key) string {
	return filepath.Join(c.scratchDir, string(key)+ScratchExtension)
}

// Convert returns a handle to the GIF for sourceURL, converting it when the
// cache has no entry. Failures are *sticker.Error values.
func (c *Converter) Convert(ctx context.Context, sourceURL string) (sticker.Handle, error) {
	key := sticker.KeyFor(sourceURL)
	logger := c.logger.With(
		logging.String(logging.FieldCacheKey, key.String()),
		logging.String(logging.FieldStickerKind, sticker.KindVideo.String()),
	)
	if c.cache.Has(key) {
		logger.DebugContext(ctx, "using cached gif")
		return c.cache.HandleFor(key), nil
	}

	start := time.Now()
	scratch := c.ScratchPath(key)
	defer c.removeScratch(ctx, scratch)

	if err := os.MkdirAll(c.scratchDir, 0o755); err != nil {
		return sticker.Handle{}, sticker.NewError(sticker.ErrCacheWriteFailed, key, fmt.Errorf("ensure scratch dir: %w", err), nil)
	}

	logger.DebugContext(ctx, "downloading video sticker", logging.String("source_url", sourceURL))
	downloaded, err := c.fetcher.ToFile(ctx, sourceURL, scratch, c.maxBytes)
	if err != nil {
		return sticker.Handle{}, sticker.NewError(sticker.ErrDownloadFailed, key, err, nil)
	}

	incoming := c.cache.IncomingPath(key)
	output, err := c.transcode(ctx, scratch, incoming)
	if err != nil {
		c.cache.Discard(incoming)
		return sticker.Handle{}, sticker.NewError(sticker.ErrConversionFailed, key, err, output)
	}

	handle, err := c.cache.Commit(ctx, incoming, key)
	if err != nil {
		if gifcache.IsInvalidPayload(err) {
			return sticker.Handle{}, sticker.NewError(sticker.ErrConversionFailed, key, err, output)
		}
		return sticker.Handle{}, sticker.NewError(sticker.ErrCacheWriteFailed, key, err, nil)
	}

	logger.InfoContext(ctx, "video sticker converted",
		logging.String(logging.FieldEventType, "sticker_converted"),
		logging.Bytes("source_size", downloaded),
		logging.Duration("elapsed", time.Since(start)),
	)
	return handle, nil
}

func (c *Converter) transcode(ctx context.Context, input, output string) ([]byte, error) {
	toolCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.exec.Run(toolCtx, c.ffmpeg, Args(input, output))
	if err == nil {
		metrics.ToolRuns.WithLabelValues("ffmpeg", "ok").Inc()
		return out, nil
	}
	if errors.Is(toolCtx.Err(), context.DeadlineExceeded) {
		metrics.ToolRuns.WithLabelValues("ffmpeg", "timeout").Inc()
		return out, fmt.Errorf("ffmpeg timed out after %s: %w", c.timeout, context.DeadlineExceeded)
	}
	metrics.ToolRuns.WithLabelValues("ffmpeg", "error").Inc()
	return out, fmt.Errorf("ffmpeg: %w", err)
}

func (c *Converter) removeScratch(ctx context.Context, path string) {
	info, statErr := os.Stat(path)
	if err := fileutil.RemoveIfExists(path); err != nil {
		logging.WarnWithContext(ctx, c.logger, "failed to remove scratch file", "scratch_cleanup_failed",
			logging.String("scratch_path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the file manually"),
			logging.String(logging.FieldImpact, "scratch directory keeps the downloaded clip"),
		)
		return
	}
	if statErr == nil {
		c.logger.DebugContext(ctx, "removed scratch file",
			logging.String("scratch_path", path),
			logging.Bytes("size", info.Size()),
		)
	}
}
