// Package server exposes converted stickers and service status over HTTP.
//
// Routes:
//
//	GET  /gif/{name}    cached GIF by file name (<key>.gif)
//	POST /api/resolve   resolve {url, kind} to a deliverable URL
//	GET  /api/status    cache usage, guardian state, latency quantiles
//	GET  /healthz       liveness
//	GET  /metrics       Prometheus exposition, when enabled
package server
