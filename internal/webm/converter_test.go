package webm_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"stickerbridge/internal/config"
	"stickerbridge/internal/fetch"
	"stickerbridge/internal/gifcache"
	"stickerbridge/internal/logging"
	"stickerbridge/internal/sticker"
	"stickerbridge/internal/testsupport"
	"stickerbridge/internal/webm"
)

type harness struct {
	cfg       *config.Config
	cache     *gifcache.Store
	source    *testsupport.SourceServer
	tool      *testsupport.FakeTranscoder
	converter *webm.Converter
}

func newHarness(t *testing.T, tool *testsupport.FakeTranscoder, opts ...webm.Option) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cache, err := gifcache.New(cfg.Paths.CacheDir, logging.NewNop())
	if err != nil {
		t.Fatalf("gifcache.New: %v", err)
	}
	source := testsupport.NewSourceServer(t, map[string][]byte{
		"/clip.webm": testsupport.WebMBytes(),
	})
	fetcher := fetch.NewClient(fetch.Config{Timeout: cfg.DownloadTimeout()})
	opts = append([]webm.Option{webm.WithExecutor(tool)}, opts...)
	return &harness{
		cfg:       cfg,
		cache:     cache,
		source:    source,
		tool:      tool,
		converter: webm.New(cfg, cache, fetcher, logging.NewNop(), opts...),
	}
}

func (h *harness) assertNoLeftovers(t *testing.T) {
	t.Helper()
	scratch, err := os.ReadDir(h.cfg.Paths.ScratchDir)
	if err != nil {
		t.Fatalf("read scratch dir: %v", err)
	}
	if len(scratch) != 0 {
		t.Fatalf("expected empty scratch dir, found %d entries", len(scratch))
	}
	incoming, err := os.ReadDir(filepath.Join(h.cfg.Paths.CacheDir, gifcache.IncomingDirName))
	if err != nil {
		t.Fatalf("read incoming dir: %v", err)
	}
	if len(incoming) != 0 {
		t.Fatalf("expected empty staging dir, found %d entries", len(incoming))
	}
}

func TestConvertProducesGIF(t *testing.T) {
	h := newHarness(t, &testsupport.FakeTranscoder{})
	url := h.source.URLFor("/clip.webm")

	handle, err := h.converter.Convert(context.Background(), url)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	key := sticker.KeyFor(url)
	if handle.Key != key || handle.Path != h.cache.PathFor(key) {
		t.Fatalf("unexpected handle %+v", handle)
	}
	data, err := os.ReadFile(handle.Path)
	if err != nil {
		t.Fatalf("read gif: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("GIF8")) {
		t.Fatalf("expected GIF magic, got % x", data[:4])
	}

	args := h.tool.LastArgs()
	if args[0] != h.cfg.Transcoder.FFmpegBinary {
		t.Fatalf("expected ffmpeg binary first, got %q", args[0])
	}
	if !slices.Contains(args, "-loop") || !slices.Contains(args, h.converter.ScratchPath(key)) {
		t.Fatalf("unexpected ffmpeg args %v", args)
	}
	h.assertNoLeftovers(t)
}

func TestConvertIsIdempotent(t *testing.T) {
	h := newHarness(t, &testsupport.FakeTranscoder{})
	url := h.source.URLFor("/clip.webm")

	first, err := h.converter.Convert(context.Background(), url)
	if err != nil {
		t.Fatalf("first Convert failed: %v", err)
	}
	second, err := h.converter.Convert(context.Background(), url)
	if err != nil {
		t.Fatalf("second Convert failed: %v", err)
	}
	if first != second {
		t.Fatalf("expected identical handles, got %+v and %+v", first, second)
	}
	if h.tool.Calls() != 1 {
		t.Fatalf("expected one ffmpeg run, got %d", h.tool.Calls())
	}
	if h.source.Hits() != 1 {
		t.Fatalf("expected one download, got %d", h.source.Hits())
	}
}

func TestConvertDownloadFailure(t *testing.T) {
	h := newHarness(t, &testsupport.FakeTranscoder{})
	url := h.source.URLFor("/missing.webm")

	_, err := h.converter.Convert(context.Background(), url)
	if !errors.Is(err, sticker.ErrDownloadFailed) {
		t.Fatalf("expected ErrDownloadFailed, got %v", err)
	}
	var typed *sticker.Error
	if !errors.As(err, &typed) || typed.Key != sticker.KeyFor(url) {
		t.Fatalf("expected typed error carrying the key, got %v", err)
	}
	if h.tool.Calls() != 0 {
		t.Fatalf("expected ffmpeg not to run, got %d", h.tool.Calls())
	}
	if h.cache.Has(sticker.KeyFor(url)) {
		t.Fatal("expected no cache entry")
	}
	h.assertNoLeftovers(t)
}

func TestConvertToolFailureLeavesNoEntry(t *testing.T) {
	h := newHarness(t, &testsupport.FakeTranscoder{
		Fail:   true,
		Output: []byte("clip.webm: Invalid data found when processing input\n"),
	})
	url := h.source.URLFor("/clip.webm")

	_, err := h.converter.Convert(context.Background(), url)
	if !errors.Is(err, sticker.ErrConversionFailed) {
		t.Fatalf("expected ErrConversionFailed, got %v", err)
	}
	var typed *sticker.Error
	if !errors.As(err, &typed) || typed.Output != "clip.webm: Invalid data found when processing input" {
		t.Fatalf("expected tool diagnostics on the error, got %+v", typed)
	}
	if h.cache.Has(sticker.KeyFor(url)) {
		t.Fatal("expected no cache entry after tool failure")
	}
	h.assertNoLeftovers(t)
}

func TestConvertRejectsNonGIFOutput(t *testing.T) {
	h := newHarness(t, &testsupport.FakeTranscoder{Payload: []byte("this is not an image")})
	url := h.source.URLFor("/clip.webm")

	_, err := h.converter.Convert(context.Background(), url)
	if !errors.Is(err, sticker.ErrConversionFailed) {
		t.Fatalf("expected ErrConversionFailed, got %v", err)
	}
	if _, statErr := os.Stat(h.cache.PathFor(sticker.KeyFor(url))); !os.IsNotExist(statErr) {
		t.Fatalf("expected no file under the final name, got %v", statErr)
	}
	h.assertNoLeftovers(t)
}

func TestConvertEmptyOutputIsConversionFailure(t *testing.T) {
	h := newHarness(t, &testsupport.FakeTranscoder{Payload: []byte{}})
	url := h.source.URLFor("/clip.webm")

	if _, err := h.converter.Convert(context.Background(), url); !errors.Is(err, sticker.ErrConversionFailed) {
		t.Fatalf("expected ErrConversionFailed, got %v", err)
	}
	if h.cache.Has(sticker.KeyFor(url)) {
		t.Fatal("expected zero-byte output to stay invisible")
	}
}

func TestConvertEmptyDownloadStillRunsTool(t *testing.T) {
	h := newHarness(t, &testsupport.FakeTranscoder{Fail: true, Output: []byte("End of file")})
	h.source.Set("/empty.webm", []byte{})
	url := h.source.URLFor("/empty.webm")

	_, err := h.converter.Convert(context.Background(), url)
	if !errors.Is(err, sticker.ErrConversionFailed) {
		t.Fatalf("expected the tool to reject the empty clip, got %v", err)
	}
	if h.tool.Calls() != 1 {
		t.Fatalf("expected ffmpeg to run once, got %d", h.tool.Calls())
	}
}

func TestConvertTimeoutIsConversionFailure(t *testing.T) {
	h := newHarness(t, &testsupport.FakeTranscoder{Delay: 2 * time.Second}, webm.WithToolTimeout(50*time.Millisecond))
	url := h.source.URLFor("/clip.webm")

	_, err := h.converter.Convert(context.Background(), url)
	if !errors.Is(err, sticker.ErrConversionFailed) {
		t.Fatalf("expected ErrConversionFailed, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline to be reported, got %v", err)
	}
	h.assertNoLeftovers(t)
}

// interruptedTool writes the start of a GIF and stops, the way ffmpeg leaves
// its output when the process is killed mid-run.
type interruptedTool struct {
	started chan struct{}
	crash   bool
}

func (x *interruptedTool) Run(ctx context.Context, name string, args []string) ([]byte, error) {
	if err := os.WriteFile(args[len(args)-1], []byte("GIF89a"), 0o644); err != nil {
		return nil, err
	}
	if x.crash {
		panic("transcoder crashed mid-write")
	}
	close(x.started)
	<-ctx.Done()
	return []byte("Exiting normally, received signal 15."), ctx.Err()
}

func TestCancelledConversionLeavesNoEntry(t *testing.T) {
	tool := &interruptedTool{started: make(chan struct{})}
	h := newHarness(t, &testsupport.FakeTranscoder{}, webm.WithExecutor(tool))
	url := h.source.URLFor("/clip.webm")
	key := sticker.KeyFor(url)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-tool.started
		cancel()
	}()

	_, err := h.converter.Convert(ctx, url)
	if !errors.Is(err, sticker.ErrConversionFailed) {
		t.Fatalf("expected ErrConversionFailed, got %v", err)
	}
	if h.cache.Has(key) {
		t.Fatal("expected no cache entry after cancellation")
	}
	if _, err := os.Stat(h.cache.PathFor(key)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected nothing at the cache path, stat err = %v", err)
	}
	h.assertNoLeftovers(t)
}

func TestCrashedConversionLeavesNoEntry(t *testing.T) {
	h := newHarness(t, &testsupport.FakeTranscoder{}, webm.WithExecutor(&interruptedTool{crash: true}))
	url := h.source.URLFor("/clip.webm")
	key := sticker.KeyFor(url)

	var recovered any
	func() {
		defer func() { recovered = recover() }()
		_, _ = h.converter.Convert(context.Background(), url)
	}()
	if recovered == nil {
		t.Fatal("expected the crash to propagate")
	}
	if h.cache.Has(key) {
		t.Fatal("expected no cache entry after a crash")
	}
	if _, err := os.Stat(h.cache.PathFor(key)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected nothing at the cache path, stat err = %v", err)
	}
	if _, err := os.Stat(h.converter.ScratchPath(key)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected scratch clip removed, stat err = %v", err)
	}

	incomingDir := filepath.Join(h.cfg.Paths.CacheDir, gifcache.IncomingDirName)
	staged, err := os.ReadDir(incomingDir)
	if err != nil || len(staged) != 1 {
		t.Fatalf("expected one abandoned staged file, got %d (%v)", len(staged), err)
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(filepath.Join(incomingDir, staged[0].Name()), past, past); err != nil {
		t.Fatal(err)
	}
	if report := h.cache.ReapIncoming(context.Background(), h.cfg.StaleFileAge()); report.Removed != 1 {
		t.Fatalf("expected abandoned staged file reaped, got %+v", report)
	}
	h.assertNoLeftovers(t)
}

func TestArgsUsePaletteFilter(t *testing.T) {
	args := webm.Args("in.webm", "out.gif")
	want := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", "in.webm",
		"-vf", "fps=20,scale=256:-1:flags=lanczos,split[s0][s1];[s0]palettegen[p];[s1][p]paletteuse",
		"-loop", "0",
		"out.gif",
	}
	if !slices.Equal(args, want) {
		t.Fatalf("unexpected args:\n got %v\nwant %v", args, want)
	}
}
