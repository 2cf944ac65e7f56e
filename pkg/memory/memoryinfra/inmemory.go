package memoryinfra

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/break1145/GraphDo/pkg/memory"
)

type entry struct {
	key       string
	value     []byte
	createdAt time.Time
	updatedAt time.Time
}

// InMemoryStore is the volatile memory.Store. Records live only as long as the process.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string][]*entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string][]*entry)}
}

func (s *InMemoryStore) Search(_ context.Context, ns memory.Namespace) ([]memory.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.records[ns.Prefix()]
	items := make([]memory.Item, len(entries))
	for i, e := range entries {
		items[i] = e.toItem(ns)
	}
	return items, nil
}

func (s *InMemoryStore) Get(_ context.Context, ns memory.Namespace, key string) (*memory.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.records[ns.Prefix()] {
		if e.key == key {
			item := e.toItem(ns)
			return &item, nil
		}
	}
	return nil, memory.ErrRecordNotFound().
		WithDetail("prefix", ns.Prefix()).
		WithDetail("key", key)
}

func (s *InMemoryStore) Put(_ context.Context, ns memory.Namespace, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	prefix := ns.Prefix()
	for _, e := range s.records[prefix] {
		if e.key == key {
			e.value = slices.Clone(value)
			e.updatedAt = now
			return nil
		}
	}
	s.records[prefix] = append(s.records[prefix], &entry{
		key:       key,
		value:     slices.Clone(value),
		createdAt: now,
		updatedAt: now,
	})
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, ns memory.Namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := ns.Prefix()
	entries := s.records[prefix]
	for i, e := range entries {
		if e.key == key {
			s.records[prefix] = slices.Delete(entries, i, i+1)
			return nil
		}
	}
	return memory.ErrRecordNotFound().
		WithDetail("prefix", prefix).
		WithDetail("key", key)
}

func (s *InMemoryStore) Ping(context.Context) error { return nil }

func (e *entry) toItem(ns memory.Namespace) memory.Item {
	return memory.Item{
		Namespace: ns,
		Key:       e.key,
		Value:     slices.Clone(e.value),
		CreatedAt: e.createdAt,
		UpdatedAt: e.updatedAt,
	}
}
