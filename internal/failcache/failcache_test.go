package failcache

import (
	"testing"
	"time"

	"stickerbridge/internal/sticker"
)

func TestRememberAndLookup(t *testing.T) {
	c := New(time.Minute)
	key := sticker.KeyFor("https://example/a.tgs")

	if _, ok := c.Lookup(key); ok {
		t.Fatal("expected empty cache")
	}
	c.Remember(key, "renderer exited 1")
	failure, ok := c.Lookup(key)
	if !ok || failure.Reason != "renderer exited 1" {
		t.Fatalf("unexpected lookup result %+v %v", failure, ok)
	}
	if failure.FailedAt.IsZero() {
		t.Fatal("expected failure timestamp")
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", c.Len())
	}

	c.Forget(key)
	if _, ok := c.Lookup(key); ok {
		t.Fatal("expected key to be forgotten")
	}
}

func TestEntriesExpire(t *testing.T) {
	c := New(20 * time.Millisecond)
	key := sticker.KeyFor("https://example/b.tgs")
	c.Remember(key, "bad document")
	time.Sleep(50 * time.Millisecond)
	if _, ok := c.Lookup(key); ok {
		t.Fatal("expected entry to expire")
	}
}

func TestDisabledCacheRemembersNothing(t *testing.T) {
	for _, c := range []*Cache{New(0), nil} {
		key := sticker.KeyFor("https://example/c.tgs")
		c.Remember(key, "ignored")
		if _, ok := c.Lookup(key); ok {
			t.Fatal("expected disabled cache to remember nothing")
		}
		if c.Len() != 0 || c.TTL() != 0 {
			t.Fatal("expected disabled cache to be empty")
		}
	}
}
