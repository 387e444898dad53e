package store

import (
	"context"
	"sync"
)

// MemoryStore 进程内的列表存储，进程退出后数据丢失
type MemoryStore struct {
	mu    sync.RWMutex
	lists map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{lists: make(map[string][]string)}
}

func (s *MemoryStore) Append(ctx context.Context, key, value string) error {
	return s.AppendTrimmed(ctx, key, value, 0)
}

func (s *MemoryStore) AppendTrimmed(_ context.Context, key, value string, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := append(s.lists[key], value)
	if keep > 0 && len(list) > keep {
		trimmed := make([]string, keep)
		copy(trimmed, list[len(list)-keep:])
		list = trimmed
	}
	s.lists[key] = list
	return nil
}

func (s *MemoryStore) Range(_ context.Context, key string, start, stop int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.lists[key]
	lo, hi, ok := normalizeRange(len(list), start, stop)
	if !ok {
		return []string{}, nil
	}
	out := make([]string, hi-lo)
	copy(out, list[lo:hi])
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
