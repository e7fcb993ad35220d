package cart

import "sync"

// mutationGuard serializes mutations per cart line. A key is held from the
// moment an intent is accepted until its remote call resolves; intents on a
// held key are ignored, keys for other lines stay independently available.
type mutationGuard struct {
	mu      sync.Mutex
	pending map[string]struct{}
}

func newMutationGuard() *mutationGuard {
	return &mutationGuard{pending: make(map[string]struct{})}
}

// tryAcquire marks the key pending unless it already is.
func (guard *mutationGuard) tryAcquire(key string) bool {
	guard.mu.Lock()
	defer guard.mu.Unlock()
	if _, held := guard.pending[key]; held {
		return false
	}
	guard.pending[key] = struct{}{}
	return true
}

// release clears the key. Safe to call for a key that is not held.
func (guard *mutationGuard) release(key string) {
	guard.mu.Lock()
	defer guard.mu.Unlock()
	delete(guard.pending, key)
}

// tryAcquireAll acquires every key or none of them.
func (guard *mutationGuard) tryAcquireAll(keys []string) bool {
	guard.mu.Lock()
	defer guard.mu.Unlock()
	for _, key := range keys {
		if _, held := guard.pending[key]; held {
			return false
		}
	}
	for _, key := range keys {
		guard.pending[key] = struct{}{}
	}
	return true
}

// releaseAll clears every key.
func (guard *mutationGuard) releaseAll(keys []string) {
	guard.mu.Lock()
	defer guard.mu.Unlock()
	for _, key := range keys {
		delete(guard.pending, key)
	}
}
