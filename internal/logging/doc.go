// Package logging assembles structured slog loggers and formatting helpers used
// across stickerbridge.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes helpers so request handlers can tag log lines with a
// correlation ID. When a log directory is configured, every record is also
// written as JSON to a file. The package provides a no-op logger for tests and
// wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup to ensure new
// components emit data with the same shape and routing guarantees as the rest
// of the system.
package logging
