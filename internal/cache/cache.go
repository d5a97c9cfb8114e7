// Package cache provides the shared key/value cache behind the participation
// read path. It is deliberately not a general-purpose cache framework: it
// supports exactly the get/set/delete shapes the participation lookups need,
// single and batched. Entries are derived, disposable state: every value
// must be reproducible from the relational store.
package cache

import "context"

// Service is the injected cache backend. Implementations provide atomic
// get/set per key but no cross-key transactions; callers must tolerate
// interleaving between a MultiGet and the following MultiSet.
type Service interface {
	// Get returns the value for key, or (nil, nil) on a miss.
	Get(ctx context.Context, key string) ([]byte, error)

	Set(ctx context.Context, key string, value []byte) error

	Delete(ctx context.Context, key string) error

	// MultiGet fetches many keys in one call. Missing keys are simply absent
	// from the returned map.
	MultiGet(ctx context.Context, keys []string) (map[string][]byte, error)

	// MultiSet writes many keys in one call.
	MultiSet(ctx context.Context, items map[string][]byte) error

	MultiDelete(ctx context.Context, keys []string) error
}
