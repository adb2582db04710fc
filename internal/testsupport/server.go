package testsupport

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

// SourceServer serves sticker source files from memory and counts requests.
type SourceServer struct {
	*httptest.Server

	mu    sync.Mutex
	files map[string][]byte
	hits  atomic.Int64
}

// NewSourceServer starts a server that returns files by request path. Unknown
// paths answer 404. The server is closed on test cleanup.
func NewSourceServer(t testing.TB, files map[string][]byte) *SourceServer {
	t.Helper()

	src := &SourceServer{files: make(map[string][]byte, len(files))}
	for name, payload := range files {
		src.files[name] = payload
	}
	src.Server = httptest.NewServer(http.HandlerFunc(src.serve))
	t.Cleanup(src.Close)
	return src
}

func (s *SourceServer) serve(w http.ResponseWriter, r *http.Request) {
	s.hits.Add(1)
	s.mu.Lock()
	payload, ok := s.files[r.URL.Path]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(payload)
}

// Set replaces or adds the file served at path.
func (s *SourceServer) Set(path string, payload []byte) {
	s.mu.Lock()
	s.files[path] = payload
	s.mu.Unlock()
}

// URLFor returns the absolute URL for path.
func (s *SourceServer) URLFor(path string) string {
	return s.URL + path
}

// Hits returns the number of requests served.
func (s *SourceServer) Hits() int {
	return int(s.hits.Load())
}
