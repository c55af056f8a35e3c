package storage

import (
	"errors"
	"path/filepath"
	"sort"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

func liveURLs(t *testing.T, store SeenStore) []string {
	t.Helper()
	var got []string
	if err := store.ForEach(func(u string) error {
		got = append(got, u)
		return nil
	}); err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	sort.Strings(got)
	return got
}

func containsURL(urls []string, url string) bool {
	for _, u := range urls {
		if u == url {
			return true
		}
	}
	return false
}

func TestBoltStoreMarksAndExpires(t *testing.T) {
	store, err := openBolt(filepath.Join(t.TempDir(), "seen.db"), Options{TTL: time.Minute, CleanupInterval: time.Second})
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	defer store.Close()

	clock := time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }
	store.lastCleanup.Store(clock.Unix())

	if got := liveURLs(t, store); len(got) != 0 {
		t.Fatalf("expected empty store, got %v", got)
	}
	if err := store.Mark("https://a/view/1"); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if !containsURL(liveURLs(t, store), "https://a/view/1") {
		t.Fatalf("expected url marked")
	}

	clock = clock.Add(2 * time.Minute)
	if containsURL(liveURLs(t, store), "https://a/view/1") {
		t.Fatalf("expected entry to expire")
	}
}

func TestBoltStoreCleanupDropsExpiredEntries(t *testing.T) {
	store, err := openBolt(filepath.Join(t.TempDir(), "seen.db"), Options{TTL: time.Minute, CleanupInterval: time.Second})
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	defer store.Close()

	clock := time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }
	store.lastCleanup.Store(clock.Unix())

	if err := store.Mark("old"); err != nil {
		t.Fatalf("Mark old: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := store.Mark("new"); err != nil {
		t.Fatalf("Mark new: %v", err)
	}

	var keys []string
	if err := store.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(seenBucket)).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	if len(keys) != 1 || keys[0] != "new" {
		t.Fatalf("expected cleanup to drop expired key, got %v", keys)
	}
}

func TestBoltStoreZeroTTLNeverExpires(t *testing.T) {
	store, err := openBolt(filepath.Join(t.TempDir(), "nested", "seen.db"), Options{CleanupInterval: time.Second})
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	defer store.Close()

	clock := time.Now()
	store.now = func() time.Time { return clock }
	if err := store.Mark("u1"); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	clock = clock.Add(24 * 365 * time.Hour)
	if !containsURL(liveURLs(t, store), "u1") {
		t.Fatalf("expected zero ttl entry to persist")
	}
}

func TestBoltStoreForEachSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.db")
	store, err := openBolt(path, Options{CleanupInterval: time.Hour})
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	for _, u := range []string{"u3", "u1", "u2"} {
		if err := store.Mark(u); err != nil {
			t.Fatalf("Mark %s: %v", u, err)
		}
	}
	store.Close()

	reopened, err := openBolt(path, Options{CleanupInterval: time.Hour})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got := liveURLs(t, reopened)
	if len(got) != 3 || got[0] != "u1" || got[2] != "u3" {
		t.Fatalf("unexpected entries %v", got)
	}

	stop := errors.New("stop")
	if err := reopened.ForEach(func(string) error { return stop }); !errors.Is(err, stop) {
		t.Fatalf("expected iteration error, got %v", err)
	}
}

func TestNewSeenStoreSupportsNoop(t *testing.T) {
	store, err := NewSeenStore("none", "", Options{})
	if err != nil {
		t.Fatalf("NewSeenStore none: %v", err)
	}
	if err := store.Mark("x"); err != nil {
		t.Fatalf("noop Mark: %v", err)
	}
	if got := liveURLs(t, store); len(got) != 0 {
		t.Fatalf("noop store never keeps urls, got %v", got)
	}
}

func TestNewSeenStoreRejectsUnknown(t *testing.T) {
	if _, err := NewSeenStore("redis", "", Options{}); err == nil {
		t.Fatalf("expected unsupported type error")
	}
	if _, err := NewSeenStore("bbolt", " ", Options{}); err == nil {
		t.Fatalf("expected missing path error")
	}
}
