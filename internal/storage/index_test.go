package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samvad-hq/samvad-archive-crawler/internal/domain"
)

func TestLoadIndexMissingFileIsEmpty(t *testing.T) {
	idx, stats, err := LoadIndex(filepath.Join(t.TempDir(), "absent.jsonl"), nil, nil)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if idx.Len() != 0 || stats.Lines != 0 {
		t.Fatalf("expected empty index, len=%d stats=%+v", idx.Len(), stats)
	}
}

func TestLoadIndexSkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "articles.jsonl")
	content := `{"id":"A1","url":"https://x/view/A1"}
not json at all
{"id":"A2","url":"https://x/view/A2"}

{"id":"A3"}
{"id":"A1","url":"https://x/view/A1"}
{"id":"A4","url":"https://x/vi`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	idx, stats, err := LoadIndex(path, nil, nil)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if idx.Len() != 2 {
		t.Fatalf("expected 2 urls, got %d", idx.Len())
	}
	if stats.Lines != 6 || stats.Loaded != 2 || stats.Skipped != 3 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if !idx.Contains("https://x/view/A1") || !idx.Contains("https://x/view/A2") {
		t.Fatalf("expected both valid urls in index")
	}
}

func TestLoadIndexReadsOversizedRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "articles.jsonl")
	w, err := OpenWriter(path, false)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	big := record("BIG1")
	big.BodyText = strings.Repeat("가", 6<<20)
	for _, rec := range []domain.ArticleRecord{big, record("N1")} {
		if err := w.Append(rec); err != nil {
			t.Fatalf("Append %s: %v", rec.ID, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() <= 17<<20 {
		t.Fatalf("expected an output file past 17MiB, err=%v", err)
	}

	idx, stats, err := LoadIndex(path, nil, nil)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if stats.Lines != 2 || stats.Loaded != 2 || stats.Skipped != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if !idx.Contains(big.URL) || !idx.Contains(record("N1").URL) {
		t.Fatalf("expected both records in index")
	}
}

func TestLoadIndexSkipsOversizedGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "articles.jsonl")
	content := `{"url":"https://x/view/G1","body":"` + strings.Repeat("x", 17<<20) + "\n" +
		`{"url":"https://x/view/G2"}` + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	idx, stats, err := LoadIndex(path, nil, nil)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if stats.Lines != 2 || stats.Loaded != 1 || stats.Skipped != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if idx.Contains("https://x/view/G1") || !idx.Contains("https://x/view/G2") {
		t.Fatalf("expected only the well-formed record")
	}
}

func TestLoadIndexSeedsFromMirror(t *testing.T) {
	dir := t.TempDir()
	mirror, err := openBolt(filepath.Join(dir, "seen.db"), Options{CleanupInterval: time.Hour})
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	defer mirror.Close()
	if err := mirror.Mark("https://x/view/M1"); err != nil {
		t.Fatalf("Mark: %v", err)
	}

	path := filepath.Join(dir, "articles.jsonl")
	if err := os.WriteFile(path, []byte(`{"url":"https://x/view/J1"}`+"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	idx, stats, err := LoadIndex(path, mirror, nil)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if idx.Len() != 2 || stats.Mirrored != 1 {
		t.Fatalf("expected jsonl and mirror urls, len=%d stats=%+v", idx.Len(), stats)
	}

	if err := idx.Commit("https://x/view/J2"); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if !containsURL(liveURLs(t, mirror), "https://x/view/J2") {
		t.Fatalf("expected commit to reach mirror")
	}
}

func TestIndexReserveRelease(t *testing.T) {
	idx := NewIndex(nil, nil)
	if !idx.Reserve("u") {
		t.Fatalf("first reserve should succeed")
	}
	if idx.Reserve("u") {
		t.Fatalf("second reserve should fail")
	}
	idx.Release("u")
	if idx.Contains("u") {
		t.Fatalf("released url should be gone")
	}
	if !idx.Reserve("u") {
		t.Fatalf("reserve after release should succeed")
	}
}

func TestIndexReserveIsAtomic(t *testing.T) {
	idx := NewIndex(nil, nil)
	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if idx.Reserve(fmt.Sprintf("u%d", i%8)) {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	if wins.Load() != 8 || idx.Len() != 8 {
		t.Fatalf("expected 8 winners, got %d (len %d)", wins.Load(), idx.Len())
	}
}

func TestNilIndex(t *testing.T) {
	var idx *Index
	if idx.Reserve("u") || idx.Contains("u") || idx.Len() != 0 {
		t.Fatalf("nil index should be inert")
	}
	idx.Release("u")
	if err := idx.Commit("u"); err != nil {
		t.Fatalf("nil commit: %v", err)
	}
}
