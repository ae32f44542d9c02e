package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/quailyquaily/listkeeper/internal/fsstore"
)

const (
	triggersFilename   = "triggers.json"
	mediaDirname       = "media"
	triggerFileVersion = 1
)

type triggerEntry struct {
	Keyword string `json:"keyword"`
	Item    Item   `json:"item"`
}

// Entries are kept as an ordered slice per conversation so keyword
// enumeration reflects insertion order.
type triggerFile struct {
	Version       int                       `json:"version"`
	Conversations map[string][]triggerEntry `json:"conversations"`
}

// FileStore persists the trigger library as one JSON document, fully
// rewritten on every mutation, with media bytes in a sibling blob dir.
type FileStore struct {
	root   string
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

func NewFileStore(root string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		root:   strings.TrimSpace(root),
		logger: logger,
		now:    time.Now,
	}
}

func (s *FileStore) Lookup(ctx context.Context, conversationID, keyword string) (Item, bool, error) {
	if err := ensureNotCanceled(ctx); err != nil {
		return Item{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.loadLocked()[strings.TrimSpace(conversationID)]
	keyword = NormalizeKeyword(keyword)
	for _, entry := range entries {
		if entry.Keyword == keyword {
			return entry.Item, true, nil
		}
	}
	return Item{}, false, nil
}

func (s *FileStore) Upsert(ctx context.Context, conversationID, keyword string, item Item) error {
	if err := ensureNotCanceled(ctx); err != nil {
		return err
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return fmt.Errorf("conversation id is required")
	}
	keyword = NormalizeKeyword(keyword)
	if keyword == "" {
		return fmt.Errorf("keyword is required")
	}
	if err := item.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	lockPath, err := s.lockPath()
	if err != nil {
		return err
	}
	return fsstore.WithLock(ctx, lockPath, func() error {
		conversations := s.loadLocked()
		entries := conversations[conversationID]

		now := s.now().UTC()
		item.UpdatedAt = now
		replaced := false
		for i := range entries {
			if entries[i].Keyword != keyword {
				continue
			}
			prev := entries[i].Item
			item.CreatedAt = prev.CreatedAt
			if prev.MediaRef != "" && prev.MediaRef != item.MediaRef {
				s.removeMediaLocked(prev.MediaRef)
			}
			entries[i].Item = item
			replaced = true
			break
		}
		if !replaced {
			item.CreatedAt = now
			entries = append(entries, triggerEntry{Keyword: keyword, Item: item})
		}
		conversations[conversationID] = entries
		return s.saveLocked(conversations)
	})
}

func (s *FileStore) Remove(ctx context.Context, conversationID, keyword string) (bool, error) {
	if err := ensureNotCanceled(ctx); err != nil {
		return false, err
	}
	conversationID = strings.TrimSpace(conversationID)
	keyword = NormalizeKeyword(keyword)

	s.mu.Lock()
	defer s.mu.Unlock()
	lockPath, err := s.lockPath()
	if err != nil {
		return false, err
	}
	removed := false
	err = fsstore.WithLock(ctx, lockPath, func() error {
		conversations := s.loadLocked()
		entries := conversations[conversationID]
		kept := entries[:0]
		for _, entry := range entries {
			if entry.Keyword == keyword {
				removed = true
				if entry.Item.MediaRef != "" {
					s.removeMediaLocked(entry.Item.MediaRef)
				}
				continue
			}
			kept = append(kept, entry)
		}
		if !removed {
			return nil
		}
		if len(kept) == 0 {
			delete(conversations, conversationID)
		} else {
			conversations[conversationID] = kept
		}
		return s.saveLocked(conversations)
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

func (s *FileStore) Keywords(ctx context.Context, conversationID string) ([]string, error) {
	if err := ensureNotCanceled(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.loadLocked()[strings.TrimSpace(conversationID)]
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Keyword)
	}
	return out, nil
}

func (s *FileStore) Get(ctx context.Context, conversationID string) (map[string]Item, error) {
	if err := ensureNotCanceled(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.loadLocked()[strings.TrimSpace(conversationID)]
	out := make(map[string]Item, len(entries))
	for _, entry := range entries {
		out[entry.Keyword] = entry.Item
	}
	return out, nil
}

func (s *FileStore) SaveMedia(ctx context.Context, conversationID, keyword, mimeType string, data []byte) (string, error) {
	if err := ensureNotCanceled(ctx); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("media data is empty")
	}
	name := fmt.Sprintf("%s-%s-%d%s",
		slugToken(conversationID),
		slugToken(NormalizeKeyword(keyword)),
		s.now().UTC().UnixNano(),
		extensionForMime(mimeType),
	)
	dir := s.mediaDir()
	if err := fsstore.EnsureDir(dir, 0o700); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := fsstore.WriteFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// loadLocked reads the backing document, degrading to an empty mapping
// on corruption so a broken file never takes down the event loop. The
// next successful write repairs the document.
func (s *FileStore) loadLocked() map[string][]triggerEntry {
	var file triggerFile
	found, err := fsstore.ReadJSON(s.triggersPath(), &file)
	if err != nil {
		if errors.Is(err, fsstore.ErrDecodeFailed) {
			s.logger.Warn("trigger_store_corrupt", "path", s.triggersPath(), "error", err.Error())
		} else {
			s.logger.Warn("trigger_store_read_error", "path", s.triggersPath(), "error", err.Error())
		}
		return map[string][]triggerEntry{}
	}
	if !found || file.Conversations == nil {
		return map[string][]triggerEntry{}
	}
	return file.Conversations
}

func (s *FileStore) saveLocked(conversations map[string][]triggerEntry) error {
	file := triggerFile{Version: triggerFileVersion, Conversations: conversations}
	return fsstore.WriteJSONAtomic(s.triggersPath(), file)
}

func (s *FileStore) removeMediaLocked(mediaRef string) {
	if strings.TrimSpace(mediaRef) == "" {
		return
	}
	if err := os.Remove(mediaRef); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("trigger_media_remove_error", "media_ref", mediaRef, "error", err.Error())
	}
}

func (s *FileStore) rootPath() string {
	root := strings.TrimSpace(s.root)
	if root == "" {
		return "state"
	}
	return filepath.Clean(root)
}

func (s *FileStore) triggersPath() string {
	return filepath.Join(s.rootPath(), triggersFilename)
}

func (s *FileStore) mediaDir() string {
	return filepath.Join(s.rootPath(), mediaDirname)
}

func (s *FileStore) lockPath() (string, error) {
	return fsstore.BuildLockPath(filepath.Join(s.rootPath(), ".fslocks"), "triggers.main")
}

func slugToken(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return "unnamed"
	}
	var b strings.Builder
	lastDash := false
	for _, r := range value {
		isLetter := r >= 'a' && r <= 'z'
		isDigit := r >= '0' && r <= '9'
		if isLetter || isDigit {
			b.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}
	token := strings.Trim(b.String(), "-")
	if token == "" {
		return "unnamed"
	}
	return token
}

func extensionForMime(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "audio/ogg", "audio/ogg; codecs=opus":
		return ".ogg"
	case "audio/mpeg":
		return ".mp3"
	case "application/pdf":
		return ".pdf"
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
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
