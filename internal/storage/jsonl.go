package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/samvad-hq/samvad-archive-crawler/internal/domain"
)

// Writer appends article records to a JSON Lines file. Each record is written
// with a single write call under a mutex so lines never interleave.
type Writer struct {
	mu         sync.Mutex
	file       *os.File
	path       string
	syncWrites bool
}

// OpenWriter opens path for appending, creating it and its directory when
// needed. A trailing partial line left by an interrupted run is terminated
// so the next record starts on its own line.
func OpenWriter(path string, syncWrites bool) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}
	if err := terminateLastLine(file); err != nil {
		file.Close()
		return nil, err
	}

	return &Writer{file: file, path: path, syncWrites: syncWrites}, nil
}

func terminateLastLine(file *os.File) error {
	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat output file: %w", err)
	}
	if info.Size() == 0 {
		return nil
	}

	last := make([]byte, 1)
	if _, err := file.ReadAt(last, info.Size()-1); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read output tail: %w", err)
	}
	if last[0] == '\n' {
		return nil
	}
	if _, err := file.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("repair output tail: %w", err)
	}
	return nil
}

// Append encodes rec as one line and writes it.
func (w *Writer) Append(rec domain.ArticleRecord) error {
	if w == nil {
		return errors.New("writer is nil")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("encode record %s: %w", rec.ID, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return errors.New("writer is closed")
	}
	if _, err := w.file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("append record %s: %w", rec.ID, err)
	}
	if w.syncWrites {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("sync output file: %w", err)
		}
	}
	return nil
}

// Path returns the output file path.
func (w *Writer) Path() string {
	if w == nil {
		return ""
	}
	return w.path
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
