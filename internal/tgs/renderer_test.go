package tgs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stickerbridge/internal/testsupport"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "render.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestCommandRendererPipesDocument(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args.txt")
	script := writeScript(t, `echo "$@" > "`+argsFile+`"
cat`)
	renderer := &CommandRenderer{
		Command: script,
		Args:    []string{"--width", "{width}", "--height", "{height}", "-", "-"},
		Timeout: 5 * time.Second,
	}

	out, err := renderer.Render(context.Background(), []byte("document"), 256, 128)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if string(out) != "document" {
		t.Fatalf("expected stdout passthrough, got %q", out)
	}
	args, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	if got := strings.TrimSpace(string(args)); got != "--width 256 --height 128 - -" {
		t.Fatalf("unexpected args %q", got)
	}
}

func TestCommandRendererReportsStderr(t *testing.T) {
	script := writeScript(t, `echo "bad lottie" >&2
exit 3`)
	renderer := &CommandRenderer{Command: script, Timeout: 5 * time.Second}

	_, err := renderer.Render(context.Background(), nil, 256, 256)
	if err == nil || !strings.Contains(err.Error(), "bad lottie") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestCommandRendererTimeout(t *testing.T) {
	script := writeScript(t, "exec sleep 5")
	renderer := &CommandRenderer{Command: script, Timeout: 100 * time.Millisecond}

	_, err := renderer.Render(context.Background(), nil, 256, 256)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestCommandRendererRequiresCommand(t *testing.T) {
	if _, err := (&CommandRenderer{}).Render(context.Background(), nil, 1, 1); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestDecompress(t *testing.T) {
	doc, err := Decompress(testsupport.TGSBytes(t), 0)
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if string(doc) != testsupport.LottieDocument {
		t.Fatalf("unexpected document %q", doc)
	}

	if _, err := Decompress([]byte("plain"), 0); !errors.Is(err, ErrNotGzip) {
		t.Fatalf("expected ErrNotGzip, got %v", err)
	}
	if _, err := Decompress(testsupport.TGSBytes(t), 8); !errors.Is(err, ErrDocumentTooLarge) {
		t.Fatalf("expected ErrDocumentTooLarge, got %v", err)
	}
	if _, err := Decompress(testsupport.Gzip(t, []byte("{not json")), 0); !errors.Is(err, ErrNotLottie) {
		t.Fatalf("expected ErrNotLottie, got %v", err)
	}
}
