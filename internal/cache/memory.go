package cache

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps values in process. Watchers see every mutation.
type MemoryStore struct {
	mu       sync.RWMutex
	values   map[string]string
	watchers map[int]chan Event
	nextID   int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string), watchers: make(map[int]chan Event)}
}

func (s *MemoryStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.values[key]; ok && old == value {
		return nil
	}
	s.values[key] = value
	s.notify([]string{key})
	return nil
}

func (s *MemoryStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	s.notify([]string{key})
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		return nil
	}
	keys := sortedKeys(s.values)
	s.values = make(map[string]string)
	s.notify(keys)
	return nil
}

func (s *MemoryStore) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.values), nil
}

// Watch calls fn for each mutation until ctx is done.
func (s *MemoryStore) Watch(ctx context.Context, fn func(Event)) error {
	ch := make(chan Event, 16)
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-ch:
			fn(ev)
		}
	}
}

// notify must be called with s.mu held. Slow watchers drop events.
func (s *MemoryStore) notify(keys []string) {
	for _, ch := range s.watchers {
		select {
		case ch <- Event{Keys: append([]string(nil), keys...)}:
		default:
		}
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
