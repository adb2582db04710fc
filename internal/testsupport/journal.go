package testsupport

import (
	"testing"

	"stickerbridge/internal/config"
	"stickerbridge/internal/journal"
)

// MustOpenJournal opens the conversion journal for cfg and registers cleanup.
func MustOpenJournal(t testing.TB, cfg *config.Config) *journal.Store {
	t.Helper()

	store, err := journal.Open(cfg.JournalPath())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
