package storage

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	seenBucket       = "seen_urls"
	expiryValueBytes = 8
)

// boltStore implements SeenStore on top of BoltDB. Values hold the expiry as
// big-endian unix seconds; zero means the entry never expires.
type boltStore struct {
	db              *bolt.DB
	cleanupMu       sync.Mutex
	lastCleanup     atomic.Int64
	ttl             time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
}

func openBolt(path string, opts Options) (*boltStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(seenBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init bucket: %w", err)
	}

	store := &boltStore{
		db:              db,
		ttl:             opts.TTL,
		cleanupInterval: opts.CleanupInterval,
		now:             time.Now,
	}
	store.lastCleanup.Store(store.now().Unix())
	return store, nil
}

func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Mark records url with the configured TTL.
func (b *boltStore) Mark(url string) error {
	if b == nil || b.db == nil {
		return nil
	}
	now := b.now()
	if err := b.maybeCleanupExpired(now); err != nil {
		return err
	}

	buf := make([]byte, expiryValueBytes)
	if b.ttl > 0 {
		binary.BigEndian.PutUint64(buf, uint64(now.Add(b.ttl).Unix()))
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(seenBucket))
		if bucket == nil {
			return fmt.Errorf("seen bucket missing")
		}
		return bucket.Put([]byte(url), buf)
	})
}

// ForEach calls fn for every live entry. Iteration stops at the first error.
func (b *boltStore) ForEach(fn func(url string) error) error {
	if b == nil || b.db == nil {
		return nil
	}
	now := b.now()
	return b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(seenBucket))
		if bucket == nil {
			return fmt.Errorf("seen bucket missing")
		}
		return bucket.ForEach(func(k, v []byte) error {
			if !live(v, now) {
				return nil
			}
			return fn(string(k))
		})
	})
}

// maybeCleanupExpired removes expired entries on a fixed cadence.
func (b *boltStore) maybeCleanupExpired(now time.Time) error {
	if b.ttl <= 0 {
		return nil
	}

	last := time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	b.cleanupMu.Lock()
	defer b.cleanupMu.Unlock()

	last = time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(seenBucket))
		if bucket == nil {
			return fmt.Errorf("seen bucket missing")
		}
		cursor := bucket.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			if !live(v, now) {
				if err := cursor.Delete(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err == nil {
		b.lastCleanup.Store(now.Unix())
	}
	return err
}

func live(value []byte, now time.Time) bool {
	if len(value) != expiryValueBytes {
		return false
	}
	unix := int64(binary.BigEndian.Uint64(value))
	if unix == 0 {
		return true
	}
	return time.Unix(unix, 0).After(now)
}
