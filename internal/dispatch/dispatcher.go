package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/singleflight"

	"stickerbridge/internal/config"
	"stickerbridge/internal/gifcache"
	"stickerbridge/internal/journal"
	"stickerbridge/internal/logging"
	"stickerbridge/internal/metrics"
	"stickerbridge/internal/sticker"
)

// Outcome describes how a resolution was satisfied.
type Outcome string

const (
	// OutcomeCached means the GIF was already in the cache.
	OutcomeCached Outcome = "cached"
	// OutcomeConverted means the GIF was produced by this resolution.
	OutcomeConverted Outcome = "converted"
	// OutcomeDegraded means a vector sticker could not be converted and the
	// caller should deliver the original URL.
	OutcomeDegraded Outcome = "degraded"
	// OutcomePassthrough means the asset needs no conversion.
	OutcomePassthrough Outcome = "passthrough"
	// OutcomeFailed is recorded for hard failures. Resolve never returns it.
	OutcomeFailed Outcome = "failed"
)

// lockRetryDelay is how often a busy key lock is polled.
const lockRetryDelay = 50 * time.Millisecond

// Resolution is the result of resolving one asset.
type Resolution struct {
	Outcome Outcome        `json:"outcome"`
	Key     sticker.Key    `json:"key,omitempty"`
	URL     string         `json:"url"`
	Handle  sticker.Handle `json:"-"`
}

// VideoConverter converts WebM clips. Failures are hard.
type VideoConverter interface {
	Convert(ctx context.Context, sourceURL string) (sticker.Handle, error)
}

// VectorConverter converts TGS documents. ok=false is a soft failure.
type VectorConverter interface {
	Convert(ctx context.Context, sourceURL string) (sticker.Handle, bool, error)
}

type failureExplainer interface {
	FailureReason(key sticker.Key) (string, bool)
}

// Recorder persists resolution history.
type Recorder interface {
	Record(ctx context.Context, entry journal.Entry) error
}

// Dispatcher resolves assets through the cache and converters.
type Dispatcher struct {
	cache    *gifcache.Store
	video    VideoConverter
	vector   VectorConverter
	recorder Recorder
	latency  *metrics.LatencyTracker
	logger   *slog.Logger
	gifURL   func(name string) string
	lockDir  string
	lockWait time.Duration

	group singleflight.Group
}

// Option customizes the dispatcher.
type Option func(*Dispatcher)

// WithRecorder records every conversion in r.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) {
		d.recorder = r
	}
}

// WithLatencyTracker records resolution latency per outcome.
func WithLatencyTracker(lt *metrics.LatencyTracker) Option {
	return func(d *Dispatcher) {
		d.latency = lt
	}
}

// New constructs a Dispatcher.
func New(cfg *config.Config, cache *gifcache.Store, video VideoConverter, vector VectorConverter, logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Dispatcher{
		cache:   cache,
		video:   video,
		vector:  vector,
		logger:  logging.NewComponentLogger(logger, "dispatch"),
		gifURL:  cfg.GIFURL,
		lockDir: cfg.LockDir(),
		// A holder in another process finishes within its own timeouts.
		lockWait: cfg.DownloadTimeout() + max(cfg.TranscoderTimeout(), cfg.RendererTimeout()) + 5*time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Resolve returns where asset can be delivered from. Video failures are
// returned as *sticker.Error; vector conversion failures degrade to the
// original URL.
func (d *Dispatcher) Resolve(ctx context.Context, asset sticker.Asset) (Resolution, error) {
	if !asset.Kind.Convertible() {
		metrics.Resolutions.WithLabelValues(asset.Kind.String(), string(OutcomePassthrough)).Inc()
		return Resolution{Outcome: OutcomePassthrough, URL: asset.URL}, nil
	}

	start := time.Now()
	key := sticker.KeyFor(asset.URL)
	if d.cache.Has(key) {
		res := d.hit(key)
		d.observe(ctx, asset, res, nil, time.Since(start), false)
		return res, nil
	}

	ch := d.group.DoChan(string(key), func() (any, error) {
		workCtx := context.WithoutCancel(ctx)
		res, err := d.convert(workCtx, asset, key)
		d.observe(workCtx, asset, res, err, time.Since(start), err == nil && res.Outcome == OutcomeConverted)
		return res, err
	})
	select {
	case <-ctx.Done():
		return Resolution{}, ctx.Err()
	case result := <-ch:
		if result.Err != nil {
			return Resolution{}, result.Err
		}
		return result.Val.(Resolution), nil
	}
}

func (d *Dispatcher) convert(ctx context.Context, asset sticker.Asset, key sticker.Key) (Resolution, error) {
	unlock := d.lockKey(ctx, key)
	defer unlock()

	if d.cache.Has(key) {
		return d.hit(key), nil
	}

	switch asset.Kind {
	case sticker.KindVideo:
		handle, err := d.video.Convert(ctx, asset.URL)
		if err != nil {
			return Resolution{Key: key}, err
		}
		return d.converted(handle), nil
	case sticker.KindVector:
		handle, ok, err := d.vector.Convert(ctx, asset.URL)
		if err != nil {
			return Resolution{Key: key}, err
		}
		if !ok {
			return Resolution{Outcome: OutcomeDegraded, Key: key, URL: asset.URL}, nil
		}
		return d.converted(handle), nil
	default:
		return Resolution{}, fmt.Errorf("dispatch: unsupported kind %q", asset.Kind)
	}
}

func (d *Dispatcher) hit(key sticker.Key) Resolution {
	handle := d.cache.HandleFor(key)
	return Resolution{Outcome: OutcomeCached, Key: key, URL: d.gifURL(handle.Name()), Handle: handle}
}

func (d *Dispatcher) converted(handle sticker.Handle) Resolution {
	return Resolution{Outcome: OutcomeConverted, Key: handle.Key, URL: d.gifURL(handle.Name()), Handle: handle}
}

// lockKey takes the cross-process lock for key. When the lock cannot be
// taken the conversion proceeds unlocked; the atomic commit still keeps
// readers from seeing partial files.
func (d *Dispatcher) lockKey(ctx context.Context, key sticker.Key) func() {
	if err := os.MkdirAll(d.lockDir, 0o755); err != nil {
		d.lockFailed(ctx, key, err)
		return func() {}
	}
	lock := flock.New(filepath.Join(d.lockDir, string(key)+".lock"))
	lockCtx, cancel := context.WithTimeout(ctx, d.lockWait)
	defer cancel()

	locked, err := lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil || !locked {
		if err == nil {
			err = errors.New("lock busy")
		}
		d.lockFailed(ctx, key, err)
		return func() {}
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			d.logger.Debug("failed to release key lock",
				logging.String(logging.FieldCacheKey, key.String()),
				logging.Error(err),
			)
		}
	}
}

func (d *Dispatcher) lockFailed(ctx context.Context, key sticker.Key, err error) {
	logging.WarnWithContext(ctx, d.logger, "could not take conversion lock; converting without it", "key_lock_failed",
		logging.String(logging.FieldCacheKey, key.String()),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check permissions on "+d.lockDir),
		logging.String(logging.FieldImpact, "another process may convert the same sticker concurrently"),
	)
}

func (d *Dispatcher) observe(ctx context.Context, asset sticker.Asset, res Resolution, err error, elapsed time.Duration, converted bool) {
	outcome := res.Outcome
	if err != nil {
		outcome = OutcomeFailed
	}
	kind := asset.Kind.String()
	metrics.Resolutions.WithLabelValues(kind, string(outcome)).Inc()
	d.latency.Record(kind+"_"+string(outcome), elapsed)
	if converted {
		metrics.ConversionSeconds.WithLabelValues(kind).Observe(elapsed.Seconds())
	}

	entry := journal.Entry{
		Key:       sticker.KeyFor(asset.URL).String(),
		SourceURL: asset.URL,
		Kind:      kind,
		Outcome:   string(outcome),
		Duration:  elapsed,
	}
	switch {
	case err != nil:
		code := "unknown"
		if c := sticker.CodeOf(err); c != nil {
			code = c.Error()
		}
		metrics.ConversionFailures.WithLabelValues(kind, code).Inc()
		entry.ErrorCode = code
		entry.ErrorMessage = err.Error()
		logging.WarnWithContext(ctx, d.logger, "sticker conversion failed", "sticker_conversion_failed",
			logging.String(logging.FieldCacheKey, entry.Key),
			logging.String(logging.FieldStickerKind, kind),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, hintFor(err)),
			logging.String(logging.FieldImpact, "sticker could not be delivered"),
		)
	case outcome == OutcomeDegraded:
		metrics.ConversionFailures.WithLabelValues(kind, "degraded").Inc()
		if explainer, ok := d.vector.(failureExplainer); ok {
			if reason, found := explainer.FailureReason(res.Key); found {
				entry.ErrorMessage = reason
			}
		}
	case res.Handle.Path != "":
		if info, statErr := os.Stat(res.Handle.Path); statErr == nil {
			entry.SizeBytes = info.Size()
		}
	}

	if d.recorder == nil {
		return
	}
	if recErr := d.recorder.Record(ctx, entry); recErr != nil {
		d.logger.Debug("failed to record resolution", logging.Error(recErr))
	}
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, sticker.ErrDownloadFailed):
		return "check that the source URL is reachable"
	case errors.Is(err, sticker.ErrConversionFailed):
		return "check ffmpeg output in the error and run 'stickerbridge deps'"
	case errors.Is(err, sticker.ErrCacheWriteFailed):
		return "check free space and permissions on the cache directory"
	default:
		return "check logs for details"
	}
}
