package client

import (
	"context"
	"fmt"
	"sync"
)

// Refetcher fetches the canonical value for a cache key from the
// authoritative backend. Used after a confirmed mutation to converge on
// server-side ordering the speculative apply only approximated.
type Refetcher func(ctx context.Context, key string) (any, error)

// Coordinator runs optimistic mutations against a Cache: speculative apply
// before the server confirms, exact-snapshot rollback when it refuses.
// Mutations against the same cache key serialize; their snapshot/restore
// pairs never interleave.
type Coordinator struct {
	cache   *Cache
	refetch Refetcher // optional

	mu     sync.Mutex
	scopes map[string]*sync.Mutex
}

// NewCoordinator creates a coordinator over cache. refetch may be nil;
// confirmed mutations then keep the speculative value until the next
// explicit reload.
func NewCoordinator(cache *Cache, refetch Refetcher) *Coordinator {
	return &Coordinator{
		cache:   cache,
		refetch: refetch,
		scopes:  make(map[string]*sync.Mutex),
	}
}

// Cache returns the view store the coordinator mutates.
func (co *Coordinator) Cache() *Cache { return co.cache }

// Mutate runs one optimistic mutation against key:
//
//  1. snapshot the current cached value,
//  2. apply the speculative value synchronously,
//  3. send the request to the authoritative backend,
//  4. on success keep the speculative value and refetch in the background,
//  5. on failure restore the snapshot exactly and return the error.
//
// apply receives the current value (nil if none is cached) and returns the
// speculative one; it must not mutate its argument.
func (co *Coordinator) Mutate(ctx context.Context, key string, apply func(current any) any, send func(ctx context.Context) error) error {
	scope := co.scope(key)
	scope.Lock()
	defer scope.Unlock()

	snapshot, had := co.cache.Get(key)
	co.cache.Set(key, apply(snapshot))

	if err := send(ctx); err != nil {
		if had {
			co.cache.Set(key, snapshot)
		} else {
			co.cache.Delete(key)
		}
		return fmt.Errorf("client.Mutate %s: %w", key, err)
	}

	if co.refetch != nil {
		go co.converge(key)
	}
	return nil
}

func (co *Coordinator) converge(key string) {
	canonical, err := co.refetch(context.Background(), key)
	if err != nil {
		// Speculative value stands; the next refetch converges.
		return
	}

	scope := co.scope(key)
	scope.Lock()
	co.cache.Set(key, canonical)
	scope.Unlock()
}

func (co *Coordinator) scope(key string) *sync.Mutex {
	co.mu.Lock()
	defer co.mu.Unlock()

	m, ok := co.scopes[key]
	if !ok {
		m = &sync.Mutex{}
		co.scopes[key] = m
	}
	return m
}
