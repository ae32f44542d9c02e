// Package audit appends one JSONL record per executed admin mutation,
// so state changes in the shared stores stay attributable.
package audit

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/quailyquaily/listkeeper/internal/fsstore"
)

type Record struct {
	At             time.Time `json:"at"`
	ConversationID string    `json:"conversation_id"`
	ActorID        string    `json:"actor_id"`
	Command        string    `json:"command"`
	Keyword        string    `json:"keyword,omitempty"`
	OK             bool      `json:"ok"`
}

type Recorder interface {
	Record(ctx context.Context, record Record) error
}

// Nop discards records; used when auditing is disabled.
type Nop struct{}

func (Nop) Record(context.Context, Record) error { return nil }

type JSONLSink struct {
	lockPath string
	writer   *fsstore.JSONLWriter

	mu sync.Mutex
}

func NewJSONLSink(path string) (*JSONLSink, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("missing audit path")
	}
	lockPath, err := fsstore.BuildLockPath(filepath.Join(filepath.Dir(path), ".fslocks"), "audit.mutations")
	if err != nil {
		return nil, err
	}
	writer, err := fsstore.NewJSONLWriter(path)
	if err != nil {
		return nil, err
	}
	return &JSONLSink{lockPath: lockPath, writer: writer}, nil
}

func (s *JSONLSink) Record(ctx context.Context, record Record) error {
	if s == nil || s.writer == nil {
		return nil
	}
	if record.At.IsZero() {
		record.At = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fsstore.WithLock(ctx, s.lockPath, func() error {
		return s.writer.AppendJSON(record)
	})
}

func (s *JSONLSink) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer == nil {
		return nil
	}
	err := s.writer.Close()
	s.writer = nil
	return err
}
