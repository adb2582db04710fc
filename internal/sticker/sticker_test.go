package sticker_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"stickerbridge/internal/sticker"
)

func TestKeyForIsDeterministic(t *testing.T) {
	url := "https://example/test.webm"
	first := sticker.KeyFor(url)
	second := sticker.KeyFor(url)
	if first != second {
		t.Fatalf("expected identical keys, got %q and %q", first, second)
	}
	if len(first) != sticker.KeyLength {
		t.Fatalf("expected key length %d, got %d", sticker.KeyLength, len(first))
	}
	if _, ok := sticker.ParseKey(string(first)); !ok {
		t.Fatalf("derived key %q does not parse", first)
	}
}

func TestKeyForDistinctURLs(t *testing.T) {
	seen := make(map[sticker.Key]string, 500)
	for i := 0; i < 500; i++ {
		url := fmt.Sprintf("https://api.example/file/bot/stickers/file_%d.webm", i)
		key := sticker.KeyFor(url)
		if prev, ok := seen[key]; ok {
			t.Fatalf("collision between %q and %q", prev, url)
		}
		seen[key] = url
	}
}

func TestKeyForMatchesKnownDigest(t *testing.T) {
	// md5("") is a well-known constant; earlier caches used the same naming.
	if got := sticker.KeyFor(""); got != "d41d8cd98f00b204e9800998ecf8427e" {
		t.Fatalf("unexpected digest for empty url: %s", got)
	}
}

func TestKeyFromFileName(t *testing.T) {
	key := sticker.KeyFor("https://example/a.tgs")
	got, ok := sticker.KeyFromFileName(key.FileName())
	if !ok || got != key {
		t.Fatalf("expected %q, got %q (ok=%v)", key, got, ok)
	}
	for _, name := range []string{"notakey.gif", key.String() + ".webm", "../" + key.FileName(), ""} {
		if _, ok := sticker.KeyFromFileName(name); ok {
			t.Fatalf("expected %q to be rejected", name)
		}
	}
}

func TestParseKind(t *testing.T) {
	cases := map[string]sticker.Kind{
		"video":  sticker.KindVideo,
		"WEBM":   sticker.KindVideo,
		"vector": sticker.KindVector,
		"tgs":    sticker.KindVector,
		"static": sticker.KindStatic,
		"":       sticker.KindStatic,
	}
	for input, want := range cases {
		got, err := sticker.ParseKind(input)
		if err != nil {
			t.Fatalf("ParseKind(%q) returned error: %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseKind(%q) = %q, want %q", input, got, want)
		}
	}
	if _, err := sticker.ParseKind("mp3"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestKindFromExtension(t *testing.T) {
	if got := sticker.KindFromExtension("https://api.example/file/bot1/stickers/a.webm"); got != sticker.KindVideo {
		t.Fatalf("expected video, got %q", got)
	}
	if got := sticker.KindFromExtension("stickers/b.TGS?x=1"); got != sticker.KindVector {
		t.Fatalf("expected vector, got %q", got)
	}
	if got := sticker.KindFromExtension("stickers/c.webp"); got != sticker.KindStatic {
		t.Fatalf("expected static, got %q", got)
	}
	if sticker.KindStatic.Convertible() {
		t.Fatal("static assets must not be convertible")
	}
}

func TestErrorUnwrapsCodeAndCause(t *testing.T) {
	cause := errors.New("exit status 1")
	err := sticker.NewError(sticker.ErrConversionFailed, "abc", cause, []byte("  Invalid data found  \n"))

	if !errors.Is(err, sticker.ErrConversionFailed) {
		t.Fatal("expected errors.Is to match the code")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to match the cause")
	}
	if sticker.CodeOf(fmt.Errorf("wrapped: %w", err)) != sticker.ErrConversionFailed {
		t.Fatal("expected CodeOf to find the code through wrapping")
	}
	if err.Output != "Invalid data found" {
		t.Fatalf("unexpected output %q", err.Output)
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Fatalf("expected diagnostics in message, got %q", err.Error())
	}
}

func TestErrorOutputIsBounded(t *testing.T) {
	long := strings.Repeat("x", 10000) + "tail"
	err := sticker.NewError(sticker.ErrConversionFailed, "", nil, []byte(long))
	if len(err.Output) > 4100 {
		t.Fatalf("expected bounded output, got %d bytes", len(err.Output))
	}
	if !strings.HasSuffix(err.Output, "tail") {
		t.Fatal("expected the tail of the output to be preserved")
	}
}
