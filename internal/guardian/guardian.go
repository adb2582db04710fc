package guardian

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"stickerbridge/internal/config"
	"stickerbridge/internal/gifcache"
	"stickerbridge/internal/logging"
	"stickerbridge/internal/metrics"
)

// State is the guardian's current activity.
type State int32

const (
	StateIdle State = iota
	StateMeasuring
	StatePurging
)

func (s State) String() string {
	switch s {
	case StateMeasuring:
		return "measuring"
	case StatePurging:
		return "purging"
	default:
		return "idle"
	}
}

// Sweep actions.
const (
	ActionIdle    = "idle"
	ActionPurged  = "purged"
	ActionSkipped = "skipped"
)

// Report describes one sweep.
type Report struct {
	StartedAt   time.Time            `json:"started_at"`
	Duration    time.Duration        `json:"duration"`
	Action      string               `json:"action"`
	Policy      string               `json:"policy"`
	SizeBytes   int64                `json:"size_bytes"`
	BudgetBytes int64                `json:"budget_bytes"`
	Purge       gifcache.PurgeReport `json:"purge"`
	Reaped      gifcache.PurgeReport `json:"reaped"`
}

// Guardian periodically enforces the cache budget.
type Guardian struct {
	cache      *gifcache.Store
	logger     *slog.Logger
	lock       *flock.Flock
	budget     int64
	interval   time.Duration
	policy     string
	scratchDir string
	staleAfter time.Duration

	state atomic.Int32

	mu   sync.Mutex
	last *Report
}

// Option customizes the guardian.
type Option func(*Guardian)

// WithInterval overrides the configured sweep interval.
func WithInterval(interval time.Duration) Option {
	return func(g *Guardian) {
		if interval > 0 {
			g.interval = interval
		}
	}
}

// New constructs a Guardian from configuration.
func New(cfg *config.Config, cache *gifcache.Store, logger *slog.Logger, opts ...Option) *Guardian {
	if logger == nil {
		logger = logging.NewNop()
	}
	g := &Guardian{
		cache:      cache,
		logger:     logging.NewComponentLogger(logger, "guardian"),
		lock:       flock.New(cfg.GuardianLockPath()),
		budget:     cfg.Cache.MaxBytes,
		interval:   cfg.SweepInterval(),
		policy:     cfg.Cache.EvictionPolicy,
		scratchDir: cfg.Paths.ScratchDir,
		staleAfter: cfg.StaleFileAge(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// State returns what the guardian is doing now.
func (g *Guardian) State() State {
	return State(g.state.Load())
}

// LastReport returns the most recent sweep report.
func (g *Guardian) LastReport() (Report, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last == nil {
		return Report{}, false
	}
	return *g.last, true
}

// Budget returns the cache size budget in bytes.
func (g *Guardian) Budget() int64 {
	return g.budget
}

// Interval returns the time between sweeps.
func (g *Guardian) Interval() time.Duration {
	return g.interval
}

// Run sweeps immediately and then on every interval until ctx is done.
func (g *Guardian) Run(ctx context.Context) {
	g.logger.Info("cache guardian started",
		logging.String("cache_dir", g.cache.Root()),
		logging.Bytes("budget", g.budget),
		logging.Duration("interval", g.interval),
		logging.String("policy", g.policy),
	)
	g.Sweep(ctx)

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			g.logger.Info("cache guardian stopped")
			return
		case <-ticker.C:
			g.Sweep(ctx)
		}
	}
}

// Sweep reaps files abandoned by crashed conversions, then measures the
// cache and evicts when it has reached the budget. Failures are logged; they
// never abort the sweep.
func (g *Guardian) Sweep(ctx context.Context) Report {
	report := Report{
		StartedAt:   time.Now(),
		Policy:      g.policy,
		BudgetBytes: g.budget,
	}
	defer func() {
		report.Duration = time.Since(report.StartedAt)
		g.state.Store(int32(StateIdle))
		metrics.Sweeps.WithLabelValues(report.Action).Inc()
		g.mu.Lock()
		g.last = &report
		g.mu.Unlock()
	}()

	if !g.tryLock(ctx) {
		report.Action = ActionSkipped
		return report
	}
	defer func() {
		if err := g.lock.Unlock(); err != nil {
			g.logger.Debug("failed to release sweep lock", logging.Error(err))
		}
	}()

	g.state.Store(int32(StateMeasuring))
	report.Reaped = g.reap(ctx)
	report.SizeBytes = g.cache.SizeBytes()
	metrics.CacheBytes.Set(float64(report.SizeBytes))
	if report.SizeBytes < g.budget {
		report.Action = ActionIdle
		g.logger.Debug("cache within budget",
			logging.Bytes("size", report.SizeBytes),
			logging.Bytes("budget", g.budget),
		)
		return report
	}

	g.state.Store(int32(StatePurging))
	switch g.policy {
	case config.EvictionOldestFirst:
		report.Purge = g.evictOldest(ctx, report.SizeBytes)
	default:
		report.Purge = g.cache.PurgeAll(ctx)
	}
	report.Action = ActionPurged
	metrics.EvictedFiles.Add(float64(report.Purge.Removed))
	metrics.EvictedBytes.Add(float64(report.Purge.FreedBytes))
	metrics.CacheBytes.Set(float64(max(report.SizeBytes-report.Purge.FreedBytes, 0)))

	g.logger.Info("cache budget exceeded; evicted entries",
		logging.String(logging.FieldEventType, "cache_evicted"),
		logging.String("policy", g.policy),
		logging.Bytes("size", report.SizeBytes),
		logging.Bytes("budget", g.budget),
		logging.Int("removed", report.Purge.Removed),
		logging.Bytes("freed", report.Purge.FreedBytes),
		logging.Int("failed", report.Purge.Failed),
	)
	return report
}

// evictOldest removes entries by ascending mtime until the cache is below
// budget or no entries remain.
func (g *Guardian) evictOldest(ctx context.Context, size int64) gifcache.PurgeReport {
	var report gifcache.PurgeReport
	entries, err := g.cache.Entries()
	if err != nil {
		logging.WarnWithContext(ctx, g.logger, "failed to list cache entries", "cache_list_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on "+g.cache.Root()),
			logging.String(logging.FieldImpact, "cache stays over budget until the next sweep"),
		)
		return report
	}
	for _, entry := range entries {
		if size < g.budget || ctx.Err() != nil {
			break
		}
		freed, err := g.cache.Remove(entry)
		if err != nil {
			report.Failed++
			logging.WarnWithContext(ctx, g.logger, "failed to evict cache entry", "cache_evict_failed",
				logging.String("cache_path", entry.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check permissions on "+g.cache.Root()),
			)
			continue
		}
		report.Removed++
		report.FreedBytes += freed
		size -= freed
	}
	return report
}

// reap removes staged GIFs and scratch downloads older than the longest a
// live conversion can hold them. Left in place they count against the
// budget but are never evicted.
func (g *Guardian) reap(ctx context.Context) gifcache.PurgeReport {
	report := g.cache.ReapIncoming(ctx, g.staleAfter)
	scratch := g.cache.ReapStale(ctx, g.scratchDir, g.staleAfter)
	report.Removed += scratch.Removed
	report.FreedBytes += scratch.FreedBytes
	report.Failed += scratch.Failed
	if report.Removed > 0 || report.Failed > 0 {
		g.logger.Info("reaped abandoned conversion files",
			logging.String(logging.FieldEventType, "stale_files_reaped"),
			logging.Int("removed", report.Removed),
			logging.Bytes("freed", report.FreedBytes),
			logging.Int("failed", report.Failed),
			logging.Duration("older_than", g.staleAfter),
		)
	}
	return report
}

func (g *Guardian) tryLock(ctx context.Context) bool {
	if err := os.MkdirAll(filepath.Dir(g.lock.Path()), 0o755); err != nil {
		g.lockFailed(ctx, err)
		return false
	}
	locked, err := g.lock.TryLock()
	if err != nil {
		g.lockFailed(ctx, err)
		return false
	}
	if !locked {
		g.logger.Debug("another process is sweeping; skipping tick",
			logging.String("lock_path", g.lock.Path()),
		)
		return false
	}
	return true
}

func (g *Guardian) lockFailed(ctx context.Context, err error) {
	logging.WarnWithContext(ctx, g.logger, "failed to take sweep lock; skipping tick", "sweep_lock_failed",
		logging.String("lock_path", g.lock.Path()),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check permissions on the state directory"),
		logging.String(logging.FieldImpact, "cache is not measured until the next sweep"),
	)
}
