package memoryinfra

import (
	"context"

	"github.com/break1145/GraphDo/pkg/memory"
	"github.com/break1145/GraphDo/pkg/metrics"
)

// InstrumentedStore counts every operation of the wrapped store
type InstrumentedStore struct {
	next memory.Store
}

func NewInstrumentedStore(next memory.Store) *InstrumentedStore {
	return &InstrumentedStore{next: next}
}

func (s *InstrumentedStore) Search(ctx context.Context, ns memory.Namespace) ([]memory.Item, error) {
	items, err := s.next.Search(ctx, ns)
	metrics.ObserveStore("search", err)
	return items, err
}

func (s *InstrumentedStore) Get(ctx context.Context, ns memory.Namespace, key string) (*memory.Item, error) {
	item, err := s.next.Get(ctx, ns, key)
	metrics.ObserveStore("get", err)
	return item, err
}

func (s *InstrumentedStore) Put(ctx context.Context, ns memory.Namespace, key string, value []byte) error {
	err := s.next.Put(ctx, ns, key, value)
	metrics.ObserveStore("put", err)
	return err
}

func (s *InstrumentedStore) Delete(ctx context.Context, ns memory.Namespace, key string) error {
	err := s.next.Delete(ctx, ns, key)
	metrics.ObserveStore("delete", err)
	return err
}

func (s *InstrumentedStore) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}
