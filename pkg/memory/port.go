package memory

import "context"

// Store is the namespaced record collection backing long-term memory.
// Implementations must be safe for concurrent use.
type Store interface {
	// Search returns every record in ns in insertion order
	Search(ctx context.Context, ns Namespace) ([]Item, error)
	Get(ctx context.Context, ns Namespace, key string) (*Item, error)
	// Put upserts the record atomically
	Put(ctx context.Context, ns Namespace, key string, value []byte) error
	Delete(ctx context.Context, ns Namespace, key string) error
	Ping(ctx context.Context) error
}
