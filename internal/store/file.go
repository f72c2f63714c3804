package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "signalbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files under the configured directory:
//   - channels.json  (ordered JSON array of destination ids)
//   - posts.json     (JSON array of ledger entries, append-only)
//   - outbox.json    (JSON array of outbox entries, replaced in place)
//
// A single mutex serializes every read-modify-write span, which is the
// cooperative lock the dispatcher and sweep rely on. Writes go through a tmp
// file + rename so a crash never leaves a half-written collection.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	channelsPath string
	postsPath    string
	outboxPath   string
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		dir = "./data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fileStore{
		log:          log,
		channelsPath: filepath.Join(dir, "channels.json"),
		postsPath:    filepath.Join(dir, "posts.json"),
		outboxPath:   filepath.Join(dir, "outbox.json"),
	}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) Channels(ctx context.Context) []string {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	s.loadLocked(s.channelsPath, &out)
	return out
}

func (s *fileStore) UpdateChannels(ctx context.Context, fn func([]string) ([]string, bool)) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	var cur []string
	s.loadLocked(s.channelsPath, &cur)
	next, changed := fn(cur)
	if !changed {
		return nil
	}
	return s.saveLocked(s.channelsPath, next)
}

func (s *fileStore) Posts(ctx context.Context) []LedgerEntry {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []LedgerEntry
	s.loadLocked(s.postsPath, &out)
	return out
}

func (s *fileStore) AppendPost(ctx context.Context, e LedgerEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	var cur []LedgerEntry
	s.loadLocked(s.postsPath, &cur)
	cur = append(cur, e)
	return s.saveLocked(s.postsPath, cur)
}

func (s *fileStore) Outbox(ctx context.Context) []OutboxEntry {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []OutboxEntry
	s.loadLocked(s.outboxPath, &out)
	return out
}

func (s *fileStore) AppendOutbox(ctx context.Context, e OutboxEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	var cur []OutboxEntry
	s.loadLocked(s.outboxPath, &cur)
	cur = append(cur, e)
	return s.saveLocked(s.outboxPath, cur)
}

func (s *fileStore) UpdateOutbox(ctx context.Context, fn func([]OutboxEntry) ([]OutboxEntry, bool)) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	var cur []OutboxEntry
	s.loadLocked(s.outboxPath, &cur)
	next, changed := fn(cur)
	if !changed {
		return nil
	}
	return s.saveLocked(s.outboxPath, next)
}

// loadLocked decodes path into out. Missing files are normal (first run);
// anything else degrades to empty and logs at warn.
func (s *fileStore) loadLocked(path string, out any) {
	b, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("store read failed; treating as empty", logx.String("path", path), logx.Err(err))
		}
		return
	}
	if err := json.Unmarshal(b, out); err != nil {
		s.log.Warn("store file corrupt; treating as empty", logx.String("path", path), logx.Err(err))
	}
}

func (s *fileStore) saveLocked(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrUnavailable, filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrUnavailable, filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: replace %s: %v", ErrUnavailable, filepath.Base(path), err)
	}
	return nil
}
