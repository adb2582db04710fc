package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"stickerbridge/internal/config"
	"stickerbridge/internal/dispatch"
	"stickerbridge/internal/gifcache"
	"stickerbridge/internal/guardian"
	"stickerbridge/internal/logging"
	"stickerbridge/internal/metrics"
	"stickerbridge/internal/server"
	"stickerbridge/internal/sticker"
	"stickerbridge/internal/testsupport"
)

type fakeResolver struct {
	mu     sync.Mutex
	res    dispatch.Resolution
	err    error
	assets []sticker.Asset
}

func (f *fakeResolver) Resolve(_ context.Context, asset sticker.Asset) (dispatch.Resolution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets = append(f.assets, asset)
	return f.res, f.err
}

func (f *fakeResolver) last() sticker.Asset {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.assets[len(f.assets)-1]
}

type fixture struct {
	cfg      *config.Config
	cache    *gifcache.Store
	resolver *fakeResolver
	srv      *httptest.Server
}

func newFixture(t *testing.T, metricsEnabled bool) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Metrics.Enabled = metricsEnabled
	cache, err := gifcache.New(cfg.Paths.CacheDir, logging.NewNop())
	if err != nil {
		t.Fatalf("gifcache.New: %v", err)
	}
	resolver := &fakeResolver{}
	latency := metrics.NewLatencyTracker(0.01)
	latency.Record("video_converted", 120*time.Millisecond)
	s := server.New(cfg, server.Deps{
		Cache:    cache,
		Resolver: resolver,
		Guardian: guardian.New(cfg, cache, logging.NewNop()),
		Latency:  latency,
	}, logging.NewNop())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &fixture{cfg: cfg, cache: cache, resolver: resolver, srv: srv}
}

func (f *fixture) post(t *testing.T, body string) (*http.Response, map[string]string) {
	t.Helper()
	resp, err := http.Post(f.srv.URL+"/api/resolve", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	payload := map[string]string{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp, payload
}

func TestServeCachedGIF(t *testing.T) {
	f := newFixture(t, false)
	key := sticker.KeyFor("https://example/test.webm")
	testsupport.WriteGIF(t, f.cache.PathFor(key))

	resp, err := http.Get(f.srv.URL + "/gif/" + key.FileName())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/gif" {
		t.Fatalf("expected image/gif, got %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, testsupport.GIFBytes()) {
		t.Fatal("unexpected body")
	}
	if resp.Header.Get(server.RequestIDHeader) == "" {
		t.Fatal("expected a generated request id")
	}
}

func TestServeGIFErrors(t *testing.T) {
	f := newFixture(t, false)
	key := sticker.KeyFor("https://example/missing.webm")
	cases := map[string]int{
		"/gif/" + key.FileName():        http.StatusNotFound,
		"/gif/not-a-key.gif":            http.StatusBadRequest,
		"/gif/" + key.String() + ".png": http.StatusBadRequest,
	}
	for path, want := range cases {
		resp, err := http.Get(f.srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Fatalf("%s: expected %d, got %d", path, want, resp.StatusCode)
		}
	}
}

func TestResolveReturnsDeliveryURL(t *testing.T) {
	f := newFixture(t, false)
	key := sticker.KeyFor("https://example/a.webm")
	f.resolver.res = dispatch.Resolution{
		Outcome: dispatch.OutcomeConverted,
		Key:     key,
		URL:     f.cfg.GIFURL(key.FileName()),
		Handle:  sticker.Handle{Key: key, Path: f.cache.PathFor(key)},
	}

	resp, payload := f.post(t, `{"url":"https://example/a.webm","kind":"video"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if payload["outcome"] != "converted" || payload["url"] != "http://stickers.test/gif/"+key.FileName() || payload["handle"] != key.FileName() {
		t.Fatalf("unexpected payload %v", payload)
	}
	if got := f.resolver.last(); got.Kind != sticker.KindVideo || got.URL != "https://example/a.webm" {
		t.Fatalf("unexpected asset %+v", got)
	}
}

func TestResolveInfersKindFromExtension(t *testing.T) {
	f := newFixture(t, false)
	f.resolver.res = dispatch.Resolution{Outcome: dispatch.OutcomeDegraded, URL: "https://example/b.tgs"}

	resp, payload := f.post(t, `{"url":"https://example/b.tgs?v=2"}`)
	if resp.StatusCode != http.StatusOK || payload["outcome"] != "degraded" {
		t.Fatalf("unexpected response %d %v", resp.StatusCode, payload)
	}
	if got := f.resolver.last(); got.Kind != sticker.KindVector {
		t.Fatalf("expected vector kind, got %s", got.Kind)
	}
}

func TestResolveHardFailure(t *testing.T) {
	f := newFixture(t, false)
	f.resolver.err = sticker.NewError(sticker.ErrConversionFailed, "k", errors.New("ffmpeg: exit status 1"), nil)

	resp, payload := f.post(t, `{"url":"https://example/a.webm","kind":"video"}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
	if payload["error"] != server.DeliveryFailedMessage {
		t.Fatalf("unexpected error message %q", payload["error"])
	}
}

func TestResolveRejectsBadRequests(t *testing.T) {
	f := newFixture(t, false)
	for _, body := range []string{
		`not json`,
		`{"url":""}`,
		`{"url":"ftp://example/a.webm"}`,
		`{"url":"https://example/a.webm","kind":"hologram"}`,
	} {
		resp, _ := f.post(t, body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, resp.StatusCode)
		}
	}
}

func TestStatusReportsCacheAndGuardian(t *testing.T) {
	f := newFixture(t, false)
	testsupport.WriteGIF(t, f.cache.PathFor(sticker.KeyFor("https://example/x.webm")))

	resp, err := http.Get(f.srv.URL + "/api/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var status server.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Cache == nil || status.Cache.Entries != 1 {
		t.Fatalf("unexpected cache stats %+v", status.Cache)
	}
	if status.Guardian == nil || status.Guardian.State != "idle" || status.Guardian.BudgetBytes != f.cfg.Cache.MaxBytes {
		t.Fatalf("unexpected guardian status %+v", status.Guardian)
	}
	if len(status.Latency) != 1 || status.Latency[0].Operation != "video_converted" {
		t.Fatalf("unexpected latency %+v", status.Latency)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	enabled := newFixture(t, true)
	if _, err := http.Get(enabled.srv.URL + "/healthz"); err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp, err := http.Get(enabled.srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "stickerbridge_http_requests_total") {
		t.Fatalf("expected metrics exposition, got %d", resp.StatusCode)
	}

	disabled := newFixture(t, false)
	resp, err = http.Get(disabled.srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 with metrics disabled, got %d", resp.StatusCode)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := newFixture(t, false)
	req, _ := http.NewRequest(http.MethodGet, f.srv.URL+"/healthz", nil)
	req.Header.Set(server.RequestIDHeader, "req-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get(server.RequestIDHeader) != "req-123" {
		t.Fatalf("expected echoed request id, got %d %q", resp.StatusCode, resp.Header.Get(server.RequestIDHeader))
	}
}
