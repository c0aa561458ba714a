package idempotency

import (
	"context"
	"log"
	"sync"
	"time"
)

type memoryEntry struct {
	resp      *CachedResponse
	expiresAt time.Time
}

// MemoryStore 进程内存储，单实例部署使用
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	entries  map[string]memoryEntry
	inFlight map[string]struct{}
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		ttl:      ttl,
		entries:  make(map[string]memoryEntry),
		inFlight: make(map[string]struct{}),
		now:      time.Now,
	}
}

func (s *MemoryStore) Lookup(_ context.Context, key string) (*CachedResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.entries, key)
		return nil, nil
	}
	return cloneResponse(entry.resp), nil
}

func (s *MemoryStore) Store(_ context.Context, key string, resp *CachedResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{resp: cloneResponse(resp), expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Acquire(_ context.Context, key string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.inFlight[key]; busy {
		return nil, ErrInFlight
	}
	s.inFlight[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.inFlight, key)
			s.mu.Unlock()
		})
	}, nil
}

// Sweep 清理过期记录，返回清理条数
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// RunSweeper 定期清理，直到 ctx 取消
func (s *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				log.Printf("[Idempotency] 清理过期记录: %d", n)
			}
		}
	}
}

func cloneResponse(resp *CachedResponse) *CachedResponse {
	if resp == nil {
		return nil
	}
	c := *resp
	c.Body = append([]byte(nil), resp.Body...)
	return &c
}
