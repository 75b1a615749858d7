package engine

import (
	"context"
	"sync"
	"time"
)

// Keyed delayed tasks tied to the engine's lifetime. At most one task (or reservation) exists per key. Close cancels everything still outstanding and waits for tasks already running.
type scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	tasks  map[string]*time.Timer
	closed bool
}

func newScheduler() *scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &scheduler{
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]*time.Timer),
	}
}

// Claims key without scheduling anything yet. Returns false if the key is already claimed or scheduled, or the scheduler is closed.
func (s *scheduler) Reserve(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if _, ok := s.tasks[key]; ok {
		return false
	}
	s.tasks[key] = nil
	return true
}

// Drops a reservation (or cancels a scheduled task) for key.
func (s *scheduler) Release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.tasks[key]; t != nil && t.Stop() {
		s.wg.Done()
	}
	delete(s.tasks, key)
}

// Schedules fn to run after delay under key, replacing any reservation. fn receives a context which is cancelled when the scheduler closes.
func (s *scheduler) Schedule(key string, delay time.Duration, fn func(context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		delete(s.tasks, key)
		return
	}
	if t := s.tasks[key]; t != nil && t.Stop() {
		s.wg.Done()
	}
	s.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		s.mu.Lock()
		if s.tasks[key] == t {
			delete(s.tasks, key)
		}
		s.mu.Unlock()
		fn(s.ctx)
	})
	s.tasks[key] = t
}

// Returns true if key is reserved or has a task waiting to run.
func (s *scheduler) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[key]
	return ok
}

func (s *scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.cancel()
	for key, t := range s.tasks {
		if t != nil && t.Stop() {
			s.wg.Done()
		}
		delete(s.tasks, key)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
