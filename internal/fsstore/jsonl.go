package fsstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONLWriter appends one JSON document per line to a log file. Each
// append is flushed before returning so a crash loses at most the
// record being written.
type JSONLWriter struct {
	path string

	mu     sync.Mutex
	file   *os.File
	closed bool
}

func NewJSONLWriter(path string) (*JSONLWriter, error) {
	normalizedPath, err := normalizePath(path)
	if err != nil {
		return nil, err
	}
	if err := EnsureDir(filepath.Dir(normalizedPath), defaultDirPerm); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(normalizedPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, defaultFilePerm)
	if err != nil {
		return nil, fmt.Errorf("fsstore open jsonl %s: %w", normalizedPath, err)
	}
	return &JSONLWriter{path: normalizedPath, file: file}, nil
}

func (w *JSONLWriter) AppendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: jsonl encode %s: %v", ErrEncodeFailed, w.path, err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.file == nil {
		return fmt.Errorf("fsstore jsonl %s: writer is closed", w.path)
	}
	if _, err := w.file.Write(data); err != nil {
		return fmt.Errorf("fsstore append jsonl %s: %w", w.path, err)
	}
	return w.file.Sync()
}

func (w *JSONLWriter) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
