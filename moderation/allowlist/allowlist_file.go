package allowlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// Allow-list persisted as a single JSON array of identity strings.
//
// The in-memory set is authoritative for the lifetime of the process. Each Add updates memory first and then rewrites the whole file (pretty-printed); a crash between the two loses only the newest entry.
type FileAllowList struct {
	mu     sync.RWMutex
	path   string
	logger *slog.Logger
	order  []string
	set    map[string]bool
}

// Loads the allow-list from path, creating an empty file if none exists.
//
// Read and parse failures are logged and degrade to an empty set, so the engine can still start.
func LoadFileAllowList(path string, logger *slog.Logger) *FileAllowList {
	if logger == nil {
		logger = slog.Default()
	}
	s := &FileAllowList{
		path:   path,
		logger: logger.With("store", "allowlist", "path", path),
		set:    make(map[string]bool),
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Info("creating empty allow-list file")
		if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
			s.logger.Warn("failed to create allow-list file", "err", err)
		}
		return s
	} else if err != nil {
		s.logger.Warn("failed to read allow-list file, starting empty", "err", err)
		return s
	}

	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		s.logger.Warn("failed to parse allow-list file, starting empty", "err", err)
		return s
	}
	for _, id := range ids {
		if !s.set[id] {
			s.set[id] = true
			s.order = append(s.order, id)
		}
	}
	s.logger.Info("loaded allow-list", "count", len(s.order))
	return s
}

func (s *FileAllowList) Contains(ctx context.Context, identity string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set[identity], nil
}

// Adds the identity in memory and rewrites the file. On write failure the in-memory entry is kept, and an error wrapping ErrStoreIO is returned.
func (s *FileAllowList) Add(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.set[identity] {
		return nil
	}
	s.set[identity] = true
	s.order = append(s.order, identity)

	if err := s.saveLocked(); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreIO, err)
	}
	s.logger.Info("added verified identity", "identity", identity)
	return nil
}

// Number of identities currently held in memory.
func (s *FileAllowList) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *FileAllowList) saveLocked() error {
	b, err := json.MarshalIndent(s.order, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, b, 0o644)
}

var _ AllowList = (*FileAllowList)(nil)
