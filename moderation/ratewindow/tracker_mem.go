package ratewindow

import (
	"context"
	"sync"
	"time"
)

type MemTracker struct {
	Window    time.Duration
	Threshold int

	mu      sync.Mutex
	windows map[string][]time.Time
}

func NewMemTracker() *MemTracker {
	return &MemTracker{
		Window:    DefaultWindow,
		Threshold: DefaultThreshold,
		windows:   make(map[string][]time.Time),
	}
}

func (t *MemTracker) Record(ctx context.Context, key string, now time.Time) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	w := append(t.windows[key], now)
	kept := w[:0]
	for _, ts := range w {
		if now.Sub(ts) <= t.Window {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= t.Threshold {
		delete(t.windows, key)
		return true, nil
	}
	t.windows[key] = kept
	return false, nil
}

func (t *MemTracker) Clear(ctx context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.windows, key)
	return nil
}

// Number of timestamps currently held for the key.
func (t *MemTracker) Size(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.windows[key])
}

// Number of keys with a window in memory.
func (t *MemTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.windows)
}

var _ Tracker = (*MemTracker)(nil)
