// Package cache provides the advisory text caches shared by the matchers
// and the chunk retriever. Entries are keyed by input text; a miss or an
// evicted entry only forces recomputation.
package cache

import "context"

// Cache is a string key-value store with best-effort semantics. Set never
// fails the caller; implementations log and drop on backend errors.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key string, value string)
}
