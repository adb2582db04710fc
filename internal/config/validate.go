package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateTimeouts(); err != nil {
		return err
	}
	if err := c.validateRenderer(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		return errors.New("paths.cache_dir must be set")
	}
	if strings.TrimSpace(c.Paths.ScratchDir) == "" {
		return errors.New("paths.scratch_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	// The guardian purges every flat file under the cache root; scratch
	// downloads must live elsewhere.
	if filepath.Clean(c.Paths.ScratchDir) == filepath.Clean(c.Paths.CacheDir) {
		return errors.New("paths.scratch_dir must differ from paths.cache_dir")
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.MaxBytes <= 0 {
		return errors.New("cache.max_bytes must be positive")
	}
	if c.Cache.SweepIntervalSeconds <= 0 {
		return errors.New("cache.sweep_interval_seconds must be positive")
	}
	switch c.Cache.EvictionPolicy {
	case EvictionPurgeAll, EvictionOldestFirst:
	default:
		return fmt.Errorf("cache.eviction_policy: unsupported value %q (want %s or %s)", c.Cache.EvictionPolicy, EvictionPurgeAll, EvictionOldestFirst)
	}
	return nil
}

func (c *Config) validateTimeouts() error {
	return ensurePositiveMap(map[string]int{
		"download.timeout_seconds":   c.Download.TimeoutSeconds,
		"transcoder.timeout_seconds": c.Transcoder.TimeoutSeconds,
		"renderer.timeout_seconds":   c.Renderer.TimeoutSeconds,
	})
}

func (c *Config) validateRenderer() error {
	if strings.TrimSpace(c.Transcoder.FFmpegBinary) == "" {
		return errors.New("transcoder.ffmpeg_binary must be set")
	}
	if strings.TrimSpace(c.Renderer.Command) == "" {
		return errors.New("renderer.command must be set")
	}
	if c.Download.MaxVectorBytes <= 0 || c.Download.MaxVideoBytes <= 0 {
		return errors.New("download size limits must be positive")
	}
	if c.Renderer.MaxDocumentBytes <= 0 {
		return errors.New("renderer.max_document_bytes must be positive")
	}
	return nil
}

func (c *Config) validateServer() error {
	if strings.TrimSpace(c.Server.Bind) == "" {
		return errors.New("server.bind must be set")
	}
	parsed, err := url.Parse(c.Server.PublicBaseURL)
	if err != nil {
		return fmt.Errorf("server.public_base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("server.public_base_url must be an http(s) URL, got %q (set STICKERBRIDGE_PUBLIC_BASE_URL or edit the config)", c.Server.PublicBaseURL)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
