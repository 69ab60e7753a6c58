package session

import "sync"

// busySet tracks keys with an in-flight invocation. Maintenance paths
// (eviction, pruning, manual delete) consult it before removing anything.
type busySet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newBusySet() *busySet {
	return &busySet{keys: make(map[string]struct{})}
}

// acquire marks key busy. Returns false if it already was.
func (b *busySet) acquire(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.keys[key]; ok {
		return false
	}
	b.keys[key] = struct{}{}
	return true
}

func (b *busySet) release(key string) {
	b.mu.Lock()
	delete(b.keys, key)
	b.mu.Unlock()
}

func (b *busySet) isBusy(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.keys[key]
	return ok
}

func (b *busySet) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.keys)
}

// snapshot returns the busy keys as a lookup map.
func (b *busySet) snapshot() map[string]bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]bool, len(b.keys))
	for k := range b.keys {
		out[k] = true
	}
	return out
}
