package allowlist

import (
	"context"
	"sync"
)

type MemAllowList struct {
	mu  sync.RWMutex
	set map[string]bool
}

func NewMemAllowList(identities ...string) *MemAllowList {
	s := &MemAllowList{
		set: make(map[string]bool, len(identities)),
	}
	for _, id := range identities {
		s.set[id] = true
	}
	return s
}

func (s *MemAllowList) Contains(ctx context.Context, identity string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set[identity], nil
}

func (s *MemAllowList) Add(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set[identity] = true
	return nil
}

var _ AllowList = (*MemAllowList)(nil)
