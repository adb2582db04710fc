// Package dispatch routes sticker assets to the matching converter.
//
// Video and vector assets are converted to GIF; everything else passes
// through unchanged. Identical keys never convert twice at once: inside one
// process callers share a single in-flight conversion, and across processes
// sharing a cache directory a per-key file lock serializes the work. Each
// caller waits on its own context, while the shared conversion is bounded only
// by the download and tool timeouts.
package dispatch
