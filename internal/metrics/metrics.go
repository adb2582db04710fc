package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Resolutions counts dispatcher results by sticker kind and outcome.
var Resolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "stickerbridge_resolutions_total",
	Help: "Sticker resolutions by kind and outcome.",
}, []string{"kind", "outcome"})

// ConversionFailures counts failed conversions by kind and error code.
var ConversionFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "stickerbridge_conversion_failures_total",
	Help: "Failed conversions by kind and error code.",
}, []string{"kind", "code"})

// ToolRuns counts external tool invocations by tool and result.
var ToolRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "stickerbridge_tool_runs_total",
	Help: "External transcoder and renderer invocations.",
}, []string{"tool", "result"})

// ConversionSeconds observes end-to-end conversion time per kind.
var ConversionSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "stickerbridge_conversion_seconds",
	Help:    "Time spent converting a sticker, download included.",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
}, []string{"kind"})

// CacheBytes is the last measured size of the GIF cache.
var CacheBytes = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "stickerbridge_cache_bytes",
	Help: "Bytes used by the GIF cache at the last sweep.",
})

// Sweeps counts guardian ticks by action (idle, purged, skipped).
var Sweeps = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "stickerbridge_cache_sweeps_total",
	Help: "Cache guardian sweeps by action.",
}, []string{"action"})

// EvictedFiles counts files removed by the guardian.
var EvictedFiles = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "stickerbridge_cache_evicted_files_total",
	Help: "Files removed from the GIF cache by the guardian.",
})

// EvictedBytes counts bytes freed by the guardian.
var EvictedBytes = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "stickerbridge_cache_evicted_bytes_total",
	Help: "Bytes freed from the GIF cache by the guardian.",
})

// HTTPRequests counts HTTP requests by route, method and status code.
var HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "stickerbridge_http_requests_total",
	Help: "HTTP requests served.",
}, []string{"route", "method", "status"})

// HTTPResponseTime observes HTTP handler latency per route.
var HTTPResponseTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name: "stickerbridge_http_response_time_seconds",
	Help: "HTTP handler latency.",
}, []string{"route", "method"})

func init() {
	prometheus.MustRegister(Resolutions)
	prometheus.MustRegister(ConversionFailures)
	prometheus.MustRegister(ToolRuns)
	prometheus.MustRegister(ConversionSeconds)
	prometheus.MustRegister(CacheBytes)
	prometheus.MustRegister(Sweeps)
	prometheus.MustRegister(EvictedFiles)
	prometheus.MustRegister(EvictedBytes)
	prometheus.MustRegister(HTTPRequests)
	prometheus.MustRegister(HTTPResponseTime)
}
