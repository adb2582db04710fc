package sticker

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// Kind identifies how an asset must be processed before delivery.
type Kind string

const (
	// KindStatic assets (webp, png) are delivered unchanged.
	KindStatic Kind = "static"
	// KindVideo assets are WebM clips transcoded with ffmpeg.
	KindVideo Kind = "video"
	// KindVector assets are gzip-compressed Lottie documents (TGS).
	KindVector Kind = "vector"
)

// ParseKind converts user or config input into a Kind.
func ParseKind(value string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "static", "image", "":
		return KindStatic, nil
	case "video", "webm":
		return KindVideo, nil
	case "vector", "tgs", "lottie":
		return KindVector, nil
	default:
		return "", fmt.Errorf("unknown sticker kind %q", value)
	}
}

// KindFromExtension maps a file path or URL path to a Kind. It is meant for
// the metadata layer that resolves sticker files; the conversion core only
// consumes the resulting Kind.
func KindFromExtension(p string) Kind {
	if idx := strings.IndexAny(p, "?#"); idx >= 0 {
		p = p[:idx]
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".webm":
		return KindVideo
	case ".tgs":
		return KindVector
	default:
		return KindStatic
	}
}

// Convertible reports whether assets of this kind are rewritten to GIF.
func (k Kind) Convertible() bool {
	return k == KindVideo || k == KindVector
}

func (k Kind) String() string {
	return string(k)
}

// Asset is a reference to a source sticker file.
type Asset struct {
	URL  string
	Kind Kind
}

// Key is the content fingerprint of a source URL. It names the cache entry.
type Key string

// KeyLength is the number of hex characters in a Key.
const KeyLength = md5.Size * 2

var keyPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// KeyFor derives the cache key for a source URL. MD5 matches the naming of
// caches produced by earlier deployments.
func KeyFor(sourceURL string) Key {
	sum := md5.Sum([]byte(sourceURL))
	return Key(hex.EncodeToString(sum[:]))
}

// ParseKey validates a key received from outside the process.
func ParseKey(value string) (Key, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	if !keyPattern.MatchString(value) {
		return "", false
	}
	return Key(value), true
}

// KeyFromFileName extracts the key from a cache file name such as "<key>.gif".
func KeyFromFileName(name string) (Key, bool) {
	if filepath.Ext(name) != GIFExtension {
		return "", false
	}
	return ParseKey(strings.TrimSuffix(name, GIFExtension))
}

func (k Key) String() string {
	return string(k)
}

// FileName returns the cache file name for the key.
func (k Key) FileName() string {
	return string(k) + GIFExtension
}

// GIFExtension is the extension of every cache entry.
const GIFExtension = ".gif"

// Handle references a complete GIF in the cache.
type Handle struct {
	Key  Key
	Path string
}

// Name returns the file name of the cached GIF.
func (h Handle) Name() string {
	if h.Key == "" {
		return ""
	}
	return h.Key.FileName()
}

// IsZero reports whether the handle references nothing.
func (h Handle) IsZero() bool {
	return h.Key == "" && h.Path == ""
}
