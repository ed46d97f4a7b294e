// Package titleindex is the process-wide duplicate-avoidance index: a
// persistent store of normalized titles already known to the library, and
// an in-memory tier that short-circuits lookups within one run.
package titleindex

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/matsen/paperfeed/internal/reference"
)

// Store is the persistent tier. Append must be durable when it returns.
type Store interface {
	Load() (map[string]string, error)
	Append(title, key string) error
}

// Index maps normalized titles to remote keys.
// Writes are serialized; it is safe for concurrent use.
type Index struct {
	store Store

	mu    sync.RWMutex
	known map[string]string

	inflight singleflight.Group
}

// Open loads the persistent tier into a new Index.
func Open(store Store) (*Index, error) {
	known, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading title index: %w", err)
	}
	if known == nil {
		known = make(map[string]string)
	}
	return &Index{store: store, known: known}, nil
}

// Contains reports whether the title is already known.
func (x *Index) Contains(title string) bool {
	key := reference.NormalizeTitle(title)
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.known[key]
	return ok
}

// Key returns the remote key recorded for a title.
func (x *Index) Key(title string) (string, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	k, ok := x.known[reference.NormalizeTitle(title)]
	return k, ok
}

// Record adds a title to both tiers. Re-recording a known pair is a no-op
// for the in-memory tier and an idempotent append for the store.
func (x *Index) Record(title, key string) error {
	norm := reference.NormalizeTitle(title)

	x.mu.Lock()
	defer x.mu.Unlock()

	if existing, ok := x.known[norm]; ok && existing == key {
		return nil
	}
	if err := x.store.Append(norm, key); err != nil {
		return fmt.Errorf("recording %q: %w", norm, err)
	}
	x.known[norm] = key
	return nil
}

// Len returns the number of known titles.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.known)
}

// Once runs fn for a title unless a call for the same normalized title is
// already in flight, in which case it waits and shares that call's result.
func (x *Index) Once(title string, fn func() (reference.Item, error)) (reference.Item, error) {
	v, err, _ := x.inflight.Do(reference.NormalizeTitle(title), func() (any, error) {
		return fn()
	})
	if err != nil {
		return reference.Item{}, err
	}
	return v.(reference.Item), nil
}
