// Package metrics exposes Prometheus collectors for conversions, the cache
// guardian and the HTTP surface, plus a DDSketch-backed latency tracker used
// for quantiles in status output.
//
// Collectors are registered with the default registry at init so the
// /metrics handler can serve them without further wiring.
package metrics
