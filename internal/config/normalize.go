package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCache()
	c.normalizeDownload()
	c.normalizeTranscoder()
	c.normalizeRenderer()
	c.normalizeServer()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = Default().Paths.CacheDir
	}
	if c.Paths.CacheDir, err = expandPath(strings.TrimSpace(c.Paths.CacheDir)); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ScratchDir) == "" {
		c.Paths.ScratchDir = Default().Paths.ScratchDir
	}
	if c.Paths.ScratchDir, err = expandPath(strings.TrimSpace(c.Paths.ScratchDir)); err != nil {
		return fmt.Errorf("paths.scratch_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	// An empty log_dir disables file logging.
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCache() {
	if c.Cache.MaxBytes <= 0 {
		c.Cache.MaxBytes = defaultCacheMaxBytes
	}
	if c.Cache.SweepIntervalSeconds <= 0 {
		c.Cache.SweepIntervalSeconds = defaultSweepIntervalSeconds
	}
	c.Cache.EvictionPolicy = strings.ToLower(strings.TrimSpace(c.Cache.EvictionPolicy))
	if c.Cache.EvictionPolicy == "" {
		c.Cache.EvictionPolicy = defaultEvictionPolicy
	}
}

func (c *Config) normalizeDownload() {
	if c.Download.TimeoutSeconds <= 0 {
		c.Download.TimeoutSeconds = defaultDownloadTimeoutSeconds
	}
	if c.Download.MaxVideoBytes <= 0 {
		c.Download.MaxVideoBytes = defaultMaxVideoBytes
	}
	if c.Download.MaxVectorBytes <= 0 {
		c.Download.MaxVectorBytes = defaultMaxVectorBytes
	}
	c.Download.UserAgent = strings.TrimSpace(c.Download.UserAgent)
	if c.Download.UserAgent == "" {
		c.Download.UserAgent = defaultUserAgent
	}
}

func (c *Config) normalizeTranscoder() {
	c.Transcoder.FFmpegBinary = strings.TrimSpace(c.Transcoder.FFmpegBinary)
	if c.Transcoder.FFmpegBinary == "" {
		c.Transcoder.FFmpegBinary = defaultFFmpegBinary
	}
	if c.Transcoder.TimeoutSeconds <= 0 {
		c.Transcoder.TimeoutSeconds = defaultTranscoderTimeout
	}
}

func (c *Config) normalizeRenderer() {
	c.Renderer.Command = strings.TrimSpace(c.Renderer.Command)
	if c.Renderer.Command == "" {
		c.Renderer.Command = defaultRendererCommand
	}
	if c.Renderer.Args == nil {
		c.Renderer.Args = append([]string(nil), defaultRendererArgs...)
	}
	if c.Renderer.TimeoutSeconds <= 0 {
		c.Renderer.TimeoutSeconds = defaultRendererTimeout
	}
	if c.Renderer.MaxDocumentBytes <= 0 {
		c.Renderer.MaxDocumentBytes = defaultMaxDocumentBytes
	}
	if c.Renderer.FailureCacheMinutes < 0 {
		c.Renderer.FailureCacheMinutes = 0
	}
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultServerBind
	}
	if value, ok := os.LookupEnv("STICKERBRIDGE_PUBLIC_BASE_URL"); ok && strings.TrimSpace(value) != "" {
		c.Server.PublicBaseURL = value
	}
	c.Server.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Server.PublicBaseURL), "/")
	if c.Server.PublicBaseURL == "" {
		c.Server.PublicBaseURL = "http://" + c.Server.Bind
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
