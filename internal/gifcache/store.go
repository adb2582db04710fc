package gifcache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"stickerbridge/internal/fileutil"
	"stickerbridge/internal/logging"
	"stickerbridge/internal/sticker"
)

// IncomingDirName is the staging subdirectory for partially written GIFs.
const IncomingDirName = ".incoming"

const gifMIME = "image/gif"

var (
	// ErrEmptyPayload means a tool produced a zero-byte file or no output.
	ErrEmptyPayload = errors.New("gifcache: empty payload")
	// ErrNotGIF means a tool produced output that is not a GIF image.
	ErrNotGIF = errors.New("gifcache: payload is not a GIF")
)

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

// Store is the content-addressed GIF cache rooted at one directory.
type Store struct {
	root   string
	logger *slog.Logger
	statfs statfsFunc
}

// Entry describes one cached file directly under the root.
type Entry struct {
	Name       string      `json:"name"`
	Key        sticker.Key `json:"key,omitempty"`
	Path       string      `json:"path"`
	SizeBytes  int64       `json:"size_bytes"`
	ModifiedAt time.Time   `json:"modified_at"`
}

// PurgeReport summarizes a PurgeAll or eviction pass.
type PurgeReport struct {
	Removed    int   `json:"removed"`
	FreedBytes int64 `json:"freed_bytes"`
	Failed     int   `json:"failed"`
}

// Stats describes current cache usage.
type Stats struct {
	Root         string  `json:"root"`
	Entries      int     `json:"entries"`
	Incoming     int     `json:"incoming"`
	TotalBytes   int64   `json:"total_bytes"`
	FreeBytes    uint64  `json:"free_bytes"`
	TotalFSBytes uint64  `json:"total_fs_bytes"`
	FreeRatio    float64 `json:"free_ratio"`
}

// New opens the cache rooted at root, creating it and its staging
// subdirectory when missing.
func New(root string, logger *slog.Logger) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("gifcache: cache dir is empty")
	}
	if err := os.MkdirAll(filepath.Join(root, IncomingDirName), 0o755); err != nil {
		return nil, fmt.Errorf("gifcache: ensure cache dir: %w", err)
	}
	return &Store{
		root:   root,
		logger: logging.NewComponentLogger(logger, "gifcache"),
		statfs: realStatfs,
	}, nil
}

// Root returns the cache directory.
func (s *Store) Root() string {
	return s.root
}

// PathFor returns the final cache path for key. It does not touch the disk.
func (s *Store) PathFor(key sticker.Key) string {
	return filepath.Join(s.root, key.FileName())
}

// HandleFor returns the handle for key's final path.
func (s *Store) HandleFor(key sticker.Key) sticker.Handle {
	return sticker.Handle{Key: key, Path: s.PathFor(key)}
}

// Has reports whether a complete entry exists for key. Any filesystem error
// is treated as a miss.
func (s *Store) Has(key sticker.Key) bool {
	info, err := os.Stat(s.PathFor(key))
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// SizeBytes sums the sizes of all regular files under the root, staging
// included. Symlinks are neither followed nor counted. Files that disappear
// during the walk are skipped; any other failure yields 0.
func (s *Store) SizeBytes() int64 {
	var total int64
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				if path == s.root {
					return fs.SkipAll
				}
				return nil
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		s.logger.Warn("cache size measurement failed",
			logging.String("cache_dir", s.root),
			logging.Error(err),
			logging.String(logging.FieldEventType, "cache_measure_failed"),
			logging.String(logging.FieldErrorHint, "check cache directory permissions"),
		)
		return 0
	}
	return total
}

// PurgeAll removes every regular file directly under the root. Failures are
// logged and skipped.
func (s *Store) PurgeAll(ctx context.Context) PurgeReport {
	return s.removeFlat(ctx, s.root, time.Time{})
}

// ReapIncoming removes staged files under the incoming directory whose
// modification time is older than maxAge. Staged files only outlive their
// conversion when the process died between staging and commit.
func (s *Store) ReapIncoming(ctx context.Context, maxAge time.Duration) PurgeReport {
	return s.ReapStale(ctx, filepath.Join(s.root, IncomingDirName), maxAge)
}

// ReapStale removes regular files directly under dir that are older than
// maxAge. It is used for directories the store does not own, such as the
// scratch download directory.
func (s *Store) ReapStale(ctx context.Context, dir string, maxAge time.Duration) PurgeReport {
	if dir == "" || maxAge <= 0 {
		return PurgeReport{}
	}
	return s.removeFlat(ctx, dir, time.Now().Add(-maxAge))
}

// removeFlat deletes regular files directly under dir. A non-zero cutoff
// limits removal to files modified before it.
func (s *Store) removeFlat(ctx context.Context, dir string, cutoff time.Time) PurgeReport {
	var report PurgeReport
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.WarnContext(ctx, "cache purge could not list directory",
				logging.String("cache_dir", dir),
				logging.Error(err),
				logging.String(logging.FieldEventType, "cache_purge_list_failed"),
				logging.String(logging.FieldErrorHint, "check cache directory permissions"),
			)
			report.Failed++
		}
		return report
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		var size int64
		if info, err := entry.Info(); err == nil {
			if !cutoff.IsZero() && !info.ModTime().Before(cutoff) {
				continue
			}
			size = info.Size()
		} else if !cutoff.IsZero() {
			continue
		}
		if err := os.Remove(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			report.Failed++
			s.logger.WarnContext(ctx, "cache purge skipped file",
				logging.String("source_file", path),
				logging.Error(fmt.Errorf("%w: %w", sticker.ErrSweepFailed, err)),
				logging.String(logging.FieldEventType, "cache_purge_file_failed"),
				logging.String(logging.FieldErrorHint, "remove the file manually or fix its permissions"),
			)
			continue
		}
		report.Removed++
		report.FreedBytes += size
	}
	return report
}

// IncomingPath returns a unique staging path for a conversion of key.
func (s *Store) IncomingPath(key sticker.Key) string {
	return filepath.Join(s.root, IncomingDirName, fmt.Sprintf("%s-%s%s", key, uuid.NewString(), sticker.GIFExtension))
}

// Commit validates the staged file at incoming and renames it to key's final
// path. The staged file is removed when validation or the rename fails.
func (s *Store) Commit(ctx context.Context, incoming string, key sticker.Key) (sticker.Handle, error) {
	if err := validateFile(incoming); err != nil {
		s.Discard(incoming)
		return sticker.Handle{}, err
	}
	if err := fileutil.SyncFile(incoming); err != nil {
		s.Discard(incoming)
		return sticker.Handle{}, fmt.Errorf("gifcache: flush staged file: %w", err)
	}
	target := s.PathFor(key)
	if err := os.Rename(incoming, target); err != nil {
		s.Discard(incoming)
		return sticker.Handle{}, fmt.Errorf("gifcache: commit %s: %w", key, err)
	}
	s.logger.DebugContext(ctx, "committed cache entry",
		logging.String("cache_key", key.String()),
		logging.String("cache_path", target),
	)
	return sticker.Handle{Key: key, Path: target}, nil
}

// WriteAtomic validates payload and stores it under key.
func (s *Store) WriteAtomic(ctx context.Context, key sticker.Key, payload []byte) (sticker.Handle, error) {
	if err := ValidatePayload(payload); err != nil {
		return sticker.Handle{}, err
	}
	incoming := s.IncomingPath(key)
	if err := fileutil.WriteFileAtomic(incoming, payload, 0o644); err != nil {
		s.Discard(incoming)
		return sticker.Handle{}, fmt.Errorf("gifcache: stage %s: %w", key, err)
	}
	return s.Commit(ctx, incoming, key)
}

// Discard removes a staged or scratch file, logging failures.
func (s *Store) Discard(path string) {
	if err := fileutil.RemoveIfExists(path); err != nil {
		s.logger.Warn("failed to remove temporary file",
			logging.String("source_file", path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "cache_cleanup_failed"),
			logging.String(logging.FieldErrorHint, "remove the file manually; the next sweep counts it against the budget"),
		)
	}
}

// Entries lists regular files directly under the root, oldest first.
func (s *Store) Entries() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("gifcache: list root: %w", err)
	}
	entries := make([]Entry, 0, len(dirEntries))
	for _, d := range dirEntries {
		if !d.Type().IsRegular() {
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue
		}
		key, _ := sticker.KeyFromFileName(d.Name())
		entries = append(entries, Entry{
			Name:       d.Name(),
			Key:        key,
			Path:       filepath.Join(s.root, d.Name()),
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ModifiedAt.Before(entries[j].ModifiedAt)
	})
	return entries, nil
}

// Remove deletes the cache entry at path. It returns the bytes freed.
func (s *Store) Remove(entry Entry) (int64, error) {
	if filepath.Dir(entry.Path) != filepath.Clean(s.root) {
		return 0, fmt.Errorf("gifcache: %q is outside the cache root", entry.Path)
	}
	if err := os.Remove(entry.Path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %w", sticker.ErrSweepFailed, err)
	}
	return entry.SizeBytes, nil
}

// Stats returns current cache usage and filesystem free-space info.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	entries, err := s.Entries()
	if err != nil {
		return Stats{}, err
	}
	incoming, _ := os.ReadDir(filepath.Join(s.root, IncomingDirName))
	totalFS, freeFS, err := s.statfs(s.root)
	if err != nil {
		return Stats{}, fmt.Errorf("gifcache: statfs: %w", err)
	}
	ratio := 1.0
	if totalFS > 0 {
		ratio = float64(freeFS) / float64(totalFS)
	}
	stats := Stats{
		Root:         s.root,
		Entries:      len(entries),
		Incoming:     len(incoming),
		TotalBytes:   s.SizeBytes(),
		FreeBytes:    freeFS,
		TotalFSBytes: totalFS,
		FreeRatio:    ratio,
	}
	if stats.Entries == 0 {
		s.logger.DebugContext(ctx, "gif cache empty", logging.String("cache_dir", s.root))
	}
	return stats, nil
}

// ValidatePayload checks that payload is a non-empty GIF image.
func ValidatePayload(payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	if mime := mimetype.Detect(payload); !mime.Is(gifMIME) {
		return fmt.Errorf("%w (detected %s)", ErrNotGIF, mime.String())
	}
	return nil
}

// IsInvalidPayload reports whether err came from output validation rather
// than from the filesystem.
func IsInvalidPayload(err error) bool {
	return errors.Is(err, ErrEmptyPayload) || errors.Is(err, ErrNotGIF)
}

func validateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: no output file", ErrEmptyPayload)
		}
		return fmt.Errorf("gifcache: inspect staged file: %w", err)
	}
	if !info.Mode().IsRegular() || info.Size() == 0 {
		return ErrEmptyPayload
	}
	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("gifcache: detect staged file: %w", err)
	}
	if !mime.Is(gifMIME) {
		return fmt.Errorf("%w (detected %s)", ErrNotGIF, mime.String())
	}
	return nil
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return total, free, nil
}
