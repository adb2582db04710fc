package config

import "path/filepath"

const (
	defaultConfigPath             = "~/.config/stickerbridge/config.toml"
	defaultStateDir               = "~/.local/share/stickerbridge"
	defaultLogDir                 = "~/.local/share/stickerbridge/logs"
	defaultCacheMaxBytes          = 100 * 1024 * 1024
	defaultSweepIntervalSeconds   = 300
	defaultEvictionPolicy         = EvictionPurgeAll
	defaultDownloadTimeoutSeconds = 30
	defaultMaxVideoBytes          = 16 * 1024 * 1024
	defaultMaxVectorBytes         = 1024 * 1024
	defaultUserAgent              = "stickerbridge/dev"
	defaultFFmpegBinary           = "ffmpeg"
	defaultTranscoderTimeout      = 60
	defaultRendererCommand        = "lottie_convert.py"
	defaultRendererTimeout        = 60
	defaultMaxDocumentBytes       = 16 * 1024 * 1024
	defaultFailureCacheMinutes    = 10
	defaultServerBind             = "127.0.0.1:8787"
	defaultPublicBaseURL          = "http://127.0.0.1:8787"
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Eviction policies understood by the cache guardian.
const (
	EvictionPurgeAll    = "purge_all"
	EvictionOldestFirst = "oldest_first"
)

// StickerSize is the edge length in pixels of rendered vector stickers.
const StickerSize = 256

var defaultRendererArgs = []string{
	"--input-format", "lottie",
	"--output-format", "gif",
	"--width", "{width}",
	"--height", "{height}",
	"-", "-",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	cacheRoot := defaultCacheRoot()
	return Config{
		Paths: Paths{
			CacheDir:   filepath.Join(cacheRoot, "gif"),
			ScratchDir: filepath.Join(cacheRoot, "scratch"),
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
		},
		Cache: Cache{
			MaxBytes:             defaultCacheMaxBytes,
			SweepIntervalSeconds: defaultSweepIntervalSeconds,
			EvictionPolicy:       defaultEvictionPolicy,
		},
		Download: Download{
			TimeoutSeconds: defaultDownloadTimeoutSeconds,
			MaxVideoBytes:  defaultMaxVideoBytes,
			MaxVectorBytes: defaultMaxVectorBytes,
			UserAgent:      defaultUserAgent,
		},
		Transcoder: Transcoder{
			FFmpegBinary:   defaultFFmpegBinary,
			TimeoutSeconds: defaultTranscoderTimeout,
		},
		Renderer: Renderer{
			Command:             defaultRendererCommand,
			Args:                append([]string(nil), defaultRendererArgs...),
			TimeoutSeconds:      defaultRendererTimeout,
			MaxDocumentBytes:    defaultMaxDocumentBytes,
			FailureCacheMinutes: defaultFailureCacheMinutes,
		},
		Server: Server{
			Bind:          defaultServerBind,
			PublicBaseURL: defaultPublicBaseURL,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
