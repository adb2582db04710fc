// Package config loads, normalizes, and validates stickerbridge configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// STICKERBRIDGE_PUBLIC_BASE_URL. The Config type centralizes every knob the
// server and CLI need: cache and scratch directories, the cache size budget,
// and timeouts for downloads and external tools.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
