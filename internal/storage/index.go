package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/samvad-hq/samvad-archive-crawler/internal/logger"
)

// LoadStats summarizes how the index was seeded.
type LoadStats struct {
	Lines    int
	Loaded   int
	Skipped  int
	Mirrored int
}

// Index is the set of article URLs already persisted or currently in flight.
// Reserve is atomic check-and-insert so a URL is fetched at most once per run.
type Index struct {
	mu     sync.Mutex
	urls   map[string]struct{}
	mirror SeenStore
	log    logger.Logger
}

// NewIndex creates an empty index. mirror may be nil.
func NewIndex(mirror SeenStore, log logger.Logger) *Index {
	if mirror == nil {
		mirror = noopStore{}
	}
	return &Index{
		urls:   make(map[string]struct{}),
		mirror: mirror,
		log:    logger.Ensure(log),
	}
}

// LoadIndex seeds an index from an existing JSONL sink and the mirror.
// A missing sink is an empty index. Lines that fail to parse are skipped with
// a warning.
func LoadIndex(jsonlPath string, mirror SeenStore, log logger.Logger) (*Index, LoadStats, error) {
	idx := NewIndex(mirror, log)
	var stats LoadStats

	file, err := os.Open(jsonlPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, stats, fmt.Errorf("open output for index: %w", err)
	default:
		defer file.Close()
		if err := idx.loadJSONL(file, &stats); err != nil {
			return nil, stats, err
		}
	}

	err = idx.mirror.ForEach(func(url string) error {
		if idx.add(url) {
			stats.Mirrored++
		}
		return nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("seed index from seen store: %w", err)
	}
	return idx, stats, nil
}

// loadJSONL reads one record per line. Lines have no length limit so a
// single oversized record never blocks startup.
func (i *Index) loadJSONL(r io.Reader, stats *LoadStats) error {
	reader := bufio.NewReaderSize(r, 64<<10)
	for {
		raw, readErr := reader.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return fmt.Errorf("read output for index: %w", readErr)
		}
		i.loadLine(bytes.TrimSpace(raw), stats)
		if readErr != nil {
			return nil
		}
	}
}

func (i *Index) loadLine(line []byte, stats *LoadStats) {
	if len(line) == 0 {
		return
	}
	stats.Lines++

	var rec struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(line, &rec); err != nil || strings.TrimSpace(rec.URL) == "" {
		stats.Skipped++
		i.log.WarnObj("skipping unreadable output line", "index_load", map[string]any{
			"line":  stats.Lines,
			"bytes": len(line),
			"error": errString(err),
		})
		return
	}
	if i.add(rec.URL) {
		stats.Loaded++
	}
}

func errString(err error) string {
	if err == nil {
		return "missing url"
	}
	return err.Error()
}

func (i *Index) add(url string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.urls[url]; ok {
		return false
	}
	i.urls[url] = struct{}{}
	return true
}

// Reserve inserts url and reports true when it was not already present.
func (i *Index) Reserve(url string) bool {
	if i == nil {
		return false
	}
	return i.add(url)
}

// Release drops a reservation that did not lead to a persisted record.
func (i *Index) Release(url string) {
	if i == nil {
		return
	}
	i.mu.Lock()
	delete(i.urls, url)
	i.mu.Unlock()
}

// Commit records a persisted URL in the durable mirror.
func (i *Index) Commit(url string) error {
	if i == nil {
		return nil
	}
	if err := i.mirror.Mark(url); err != nil {
		return fmt.Errorf("mark seen url: %w", err)
	}
	return nil
}

// Contains reports whether url is persisted or reserved.
func (i *Index) Contains(url string) bool {
	if i == nil {
		return false
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.urls[url]
	return ok
}

// Len returns the number of URLs in the index.
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.urls)
}
