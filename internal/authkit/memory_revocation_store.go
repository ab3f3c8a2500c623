package authkit

import (
	"context"
	"sync"
	"time"
)

// MemoryRevocationStore is an in-memory RevocationStore intended for tests and single-instance dev.
type MemoryRevocationStore struct {
	mutex   sync.Mutex
	entries map[string]memoryRevocation
	now     func() time.Time
}

type memoryRevocation struct {
	value     string
	expiresAt time.Time
}

// NewMemoryRevocationStore creates an empty in-memory revocation store.
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{
		entries: make(map[string]memoryRevocation),
		now:     time.Now,
	}
}

// Set stores value under key until ttl elapses.
func (store *MemoryRevocationStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.purgeExpiredLocked()
	store.entries[key] = memoryRevocation{value: value, expiresAt: store.now().Add(ttl)}
	return nil
}

// Exists reports whether an unexpired entry is stored under key.
func (store *MemoryRevocationStore) Exists(ctx context.Context, key string) (bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	entry, ok := store.entries[key]
	if !ok {
		return false, nil
	}
	if !store.now().Before(entry.expiresAt) {
		delete(store.entries, key)
		return false, nil
	}
	return true, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (store *MemoryRevocationStore) Delete(ctx context.Context, key string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	delete(store.entries, key)
	return nil
}

// ExpiresAt returns the expiry of the entry stored under key.
func (store *MemoryRevocationStore) ExpiresAt(key string) (time.Time, bool) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	entry, ok := store.entries[key]
	return entry.expiresAt, ok
}

func (store *MemoryRevocationStore) purgeExpiredLocked() {
	now := store.now()
	for key, entry := range store.entries {
		if !now.Before(entry.expiresAt) {
			delete(store.entries, key)
		}
	}
}
