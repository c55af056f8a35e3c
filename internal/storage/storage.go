// Package storage persists crawl output and the set of URLs already collected.
package storage

import (
	"fmt"
	"strings"
	"time"
)

// SeenStore is an optional durable mirror of persisted article URLs.
type SeenStore interface {
	Close() error
	Mark(url string) error
	ForEach(fn func(url string) error) error
}

// Options controls retention for concrete store implementations.
// A zero TTL keeps entries forever.
type Options struct {
	TTL             time.Duration
	CleanupInterval time.Duration
}

const defaultCleanupInterval = 12 * time.Hour

// NewSeenStore creates the configured seen-store backend.
func NewSeenStore(typ, path string, opts Options) (SeenStore, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}

	switch typ {
	case "", "none", "disabled":
		return noopStore{}, nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		store, err := openBolt(path, opts)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

type noopStore struct{}

func (noopStore) Close() error                     { return nil }
func (noopStore) Mark(string) error                { return nil }
func (noopStore) ForEach(func(string) error) error { return nil }
