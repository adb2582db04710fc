package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	CacheDir   string `toml:"cache_dir"`
	ScratchDir string `toml:"scratch_dir"`
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
}

// Cache contains the size budget and sweep schedule of the GIF cache.
type Cache struct {
	MaxBytes             int64  `toml:"max_bytes"`
	SweepIntervalSeconds int    `toml:"sweep_interval_seconds"`
	EvictionPolicy       string `toml:"eviction_policy"`
}

// Download contains limits for fetching source stickers.
type Download struct {
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxVideoBytes  int64  `toml:"max_video_bytes"`
	MaxVectorBytes int64  `toml:"max_vector_bytes"`
	UserAgent      string `toml:"user_agent"`
}

// Transcoder contains ffmpeg settings for video stickers.
type Transcoder struct {
	FFmpegBinary   string `toml:"ffmpeg_binary"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Renderer contains settings for the vector sticker renderer.
type Renderer struct {
	// Command is the renderer executable. It reads a Lottie JSON document on
	// stdin and writes a GIF to stdout.
	Command string `toml:"command"`
	// Args are passed to Command. {width} and {height} are substituted.
	Args                []string `toml:"args"`
	TimeoutSeconds      int      `toml:"timeout_seconds"`
	MaxDocumentBytes    int64    `toml:"max_document_bytes"`
	FailureCacheMinutes int      `toml:"failure_cache_minutes"`
}

// Server contains HTTP settings.
type Server struct {
	Bind          string `toml:"bind"`
	PublicBaseURL string `toml:"public_base_url"`
}

// Metrics toggles the Prometheus endpoint.
type Metrics struct {
	Enabled bool `toml:"enabled"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for stickerbridge.
//
// Configuration sections by subsystem:
//   - Paths: cache, scratch, state and log directories
//   - Cache: size budget, sweep interval and eviction policy
//   - Download: source fetch timeout and size limits
//   - Transcoder: ffmpeg binary and timeout for video stickers
//   - Renderer: vector sticker renderer command and limits
//   - Server: HTTP bind address and public base URL
//   - Metrics: Prometheus endpoint toggle
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Cache      Cache      `toml:"cache"`
	Download   Download   `toml:"download"`
	Transcoder Transcoder `toml:"transcoder"`
	Renderer   Renderer   `toml:"renderer"`
	Server     Server     `toml:"server"`
	Metrics    Metrics    `toml:"metrics"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("stickerbridge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the service writes to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.CacheDir, c.Paths.ScratchDir, c.Paths.StateDir, c.LockDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.LogDir) != "" {
		if err := os.MkdirAll(c.Paths.LogDir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", c.Paths.LogDir, err)
		}
	}
	return nil
}

// LockDir holds per-key conversion locks shared by every process using the cache.
func (c *Config) LockDir() string {
	return filepath.Join(c.Paths.StateDir, "locks")
}

// GuardianLockPath is the lock that keeps concurrent sweepers apart.
func (c *Config) GuardianLockPath() string {
	return filepath.Join(c.Paths.StateDir, "guardian.lock")
}

// JournalPath is the SQLite database holding conversion history.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.StateDir, "journal.db")
}

// LogPath is the service log file, empty when file logging is disabled.
func (c *Config) LogPath() string {
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "stickerbridge.log")
}

// SweepInterval returns the guardian period.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Cache.SweepIntervalSeconds) * time.Second
}

// DownloadTimeout bounds a single source fetch.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Download.TimeoutSeconds) * time.Second
}

// TranscoderTimeout bounds a single ffmpeg run.
func (c *Config) TranscoderTimeout() time.Duration {
	return time.Duration(c.Transcoder.TimeoutSeconds) * time.Second
}

// RendererTimeout bounds a single renderer run.
func (c *Config) RendererTimeout() time.Duration {
	return time.Duration(c.Renderer.TimeoutSeconds) * time.Second
}

// StaleFileAge is the age past which a staged GIF or scratch download can
// no longer belong to a running conversion.
func (c *Config) StaleFileAge() time.Duration {
	return c.DownloadTimeout() + max(c.TranscoderTimeout(), c.RendererTimeout()) + time.Minute
}

// FailureCacheTTL is how long a vector render failure is remembered.
func (c *Config) FailureCacheTTL() time.Duration {
	return time.Duration(c.Renderer.FailureCacheMinutes) * time.Minute
}

// GIFURL builds the public URL for a cached GIF name.
func (c *Config) GIFURL(name string) string {
	return strings.TrimRight(c.Server.PublicBaseURL, "/") + "/gif/" + name
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultCacheRoot() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "stickerbridge")
	}
	return "~/.cache/stickerbridge"
}

// SampleConfig returns the commented sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
