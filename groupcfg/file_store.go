package groupcfg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/quailyquaily/listkeeper/internal/fsstore"
)

const (
	groupsFilename   = "groups.json"
	groupFileVersion = 1
)

type groupFile struct {
	Version       int               `json:"version"`
	Conversations map[string]Config `json:"conversations"`
}

// FileStore persists conversation configs as one JSON document, fully
// rewritten on every setter call. Last writer wins under the intended
// single-process sequential access.
type FileStore struct {
	root   string
	logger *slog.Logger

	mu sync.Mutex
}

func NewFileStore(root string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{root: strings.TrimSpace(root), logger: logger}
}

func (s *FileStore) Get(ctx context.Context, conversationID string) (Config, error) {
	if err := ensureNotCanceled(ctx); err != nil {
		return Config{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.loadLocked()[strings.TrimSpace(conversationID)]
	if !ok {
		return DefaultConfig(), nil
	}
	return cfg, nil
}

func (s *FileStore) SetOpen(ctx context.Context, conversationID string, open bool) error {
	return s.update(ctx, conversationID, func(cfg *Config) {
		cfg.IsOpen = open
	})
}

func (s *FileStore) SetWelcome(ctx context.Context, conversationID, template string) error {
	return s.update(ctx, conversationID, func(cfg *Config) {
		cfg.Welcome = strings.TrimSpace(template)
	})
}

func (s *FileStore) SetBye(ctx context.Context, conversationID, template string) error {
	return s.update(ctx, conversationID, func(cfg *Config) {
		cfg.Bye = strings.TrimSpace(template)
	})
}

func (s *FileStore) update(ctx context.Context, conversationID string, mutate func(*Config)) error {
	if err := ensureNotCanceled(ctx); err != nil {
		return err
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return fmt.Errorf("conversation id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	lockPath, err := s.lockPath()
	if err != nil {
		return err
	}
	return fsstore.WithLock(ctx, lockPath, func() error {
		conversations := s.loadLocked()
		cfg, ok := conversations[conversationID]
		if !ok {
			cfg = DefaultConfig()
		}
		mutate(&cfg)
		conversations[conversationID] = cfg
		file := groupFile{Version: groupFileVersion, Conversations: conversations}
		return fsstore.WriteJSONAtomic(s.groupsPath(), file)
	})
}

func (s *FileStore) loadLocked() map[string]Config {
	var file groupFile
	found, err := fsstore.ReadJSON(s.groupsPath(), &file)
	if err != nil {
		if errors.Is(err, fsstore.ErrDecodeFailed) {
			s.logger.Warn("group_store_corrupt", "path", s.groupsPath(), "error", err.Error())
		} else {
			s.logger.Warn("group_store_read_error", "path", s.groupsPath(), "error", err.Error())
		}
		return map[string]Config{}
	}
	if !found || file.Conversations == nil {
		return map[string]Config{}
	}
	return file.Conversations
}

func (s *FileStore) rootPath() string {
	root := strings.TrimSpace(s.root)
	if root == "" {
		return "state"
	}
	return filepath.Clean(root)
}

func (s *FileStore) groupsPath() string {
	return filepath.Join(s.rootPath(), groupsFilename)
}

func (s *FileStore) lockPath() (string, error) {
	return fsstore.BuildLockPath(filepath.Join(s.rootPath(), ".fslocks"), "groups.main")
}

func ensureNotCanceled(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
