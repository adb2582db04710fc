package testsupport

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
)

// minimalGIF is a 1x1 transparent GIF89a image.
var minimalGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00,
	0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00,
	0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02,
	0x44, 0x01, 0x00, 0x3b,
}

// LottieDocument is a minimal Lottie animation as found inside a TGS file.
const LottieDocument = `{"tgs":1,"v":"5.5.2","fr":60,"ip":0,"op":180,"w":512,"h":512,"nm":"test","ddd":0,"assets":[],"layers":[]}`

// GIFBytes returns a fresh copy of a valid GIF payload.
func GIFBytes() []byte {
	return append([]byte(nil), minimalGIF...)
}

// TGSBytes returns a gzip-compressed Lottie document.
func TGSBytes(t testing.TB) []byte {
	t.Helper()
	return Gzip(t, []byte(LottieDocument))
}

// Gzip compresses payload.
func Gzip(t testing.TB, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

// WebMBytes returns bytes carrying the EBML magic of a WebM container. The
// payload is not playable; converters under test use fake tools.
func WebMBytes() []byte {
	return append([]byte{0x1a, 0x45, 0xdf, 0xa3}, bytes.Repeat([]byte{0x42}, 60)...)
}

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, int(size)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteGIF writes a valid GIF at path.
func WriteGIF(t testing.TB, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, GIFBytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
