package fetch_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stickerbridge/internal/fetch"
)

func TestToFileWritesBody(t *testing.T) {
	payload := bytes.Repeat([]byte("w"), 1024)
	var gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	client := fetch.NewClient(fetch.Config{Timeout: time.Second, UserAgent: "stickerbridge/test"})
	dst := filepath.Join(t.TempDir(), "scratch", "clip.webm")
	written, err := client.ToFile(context.Background(), srv.URL+"/clip.webm", dst, 0)
	if err != nil {
		t.Fatalf("ToFile failed: %v", err)
	}
	if written != int64(len(payload)) {
		t.Fatalf("expected %d bytes, got %d", len(payload), written)
	}
	data, err := os.ReadFile(dst)
	if err != nil || !bytes.Equal(data, payload) {
		t.Fatalf("unexpected file contents (%v)", err)
	}
	if gotAgent != "stickerbridge/test" {
		t.Fatalf("expected user agent to be sent, got %q", gotAgent)
	}
}

func TestToFileRejectsNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	client := fetch.NewClient(fetch.Config{Timeout: time.Second})
	dst := filepath.Join(t.TempDir(), "clip.webm")
	_, err := client.ToFile(context.Background(), srv.URL, dst, 0)
	var statusErr *fetch.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusNotFound || statusErr.Body != "gone" {
		t.Fatalf("unexpected status error %+v", statusErr)
	}
	if _, statErr := os.Stat(dst); !os.IsNotExist(statErr) {
		t.Fatalf("expected no file after failed download, got %v", statErr)
	}
}

func TestToFileEnforcesLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), 200))
	}))
	defer srv.Close()

	client := fetch.NewClient(fetch.Config{Timeout: time.Second})
	dst := filepath.Join(t.TempDir(), "clip.webm")
	if _, err := client.ToFile(context.Background(), srv.URL, dst, 100); !errors.Is(err, fetch.ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Fatalf("expected oversized download to be removed, got %v", err)
	}
}

func TestBytesEnforcesLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), 64))
	}))
	defer srv.Close()

	client := fetch.NewClient(fetch.Config{Timeout: time.Second})
	data, err := client.Bytes(context.Background(), srv.URL, 64)
	if err != nil || len(data) != 64 {
		t.Fatalf("expected 64 bytes at the limit, got %d (%v)", len(data), err)
	}
	if _, err := client.Bytes(context.Background(), srv.URL, 63); !errors.Is(err, fetch.ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestTimeoutIsAFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := fetch.NewClient(fetch.Config{Timeout: 50 * time.Millisecond})
	if _, err := client.Bytes(context.Background(), srv.URL, 0); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestUnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := fetch.NewClient(fetch.Config{Timeout: time.Second})
	if _, err := client.Bytes(context.Background(), url, 0); err == nil {
		t.Fatal("expected error for closed server")
	}
}
