package inbox

import (
	"sync"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/unibox/internal/store"
)

type convKey struct {
	channelID uuid.UUID
	platform  store.Platform
	userID    string
	kind      store.ConversationKind
}

// keyedLocks serializes conversation lookups and updates per conversation
// key, so two near-simultaneous deliveries for the same thread cannot race
// to double-create the aggregate or double-increment the unread count.
// Cross-process races are caught by the storage unique constraints.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[convKey]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[convKey]*lockEntry)}
}

// lock acquires the per-key mutex and returns its unlock func. Entries are
// refcounted and removed when unused, so the map stays bounded by in-flight
// work rather than by total conversation count.
func (k *keyedLocks) lock(key convKey) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &lockEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
