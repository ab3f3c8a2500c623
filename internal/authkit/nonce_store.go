package authkit

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrNonceNotFound indicates the supplied state value was not issued or already consumed.
	ErrNonceNotFound = errors.New("auth.nonce.not_found")
	// ErrNonceExpired indicates the state value expired before the provider redirected back.
	ErrNonceExpired = errors.New("auth.nonce.expired")
)

// NonceStore issues one-time state values that bind an OAuth redirect to its callback.
type NonceStore interface {
	// Issue creates a new state value with the configured TTL.
	Issue(ctx context.Context) (string, error)
	// Consume validates and invalidates an issued state value.
	Consume(ctx context.Context, token string) error
}

type memoryNonceStore struct {
	mutex   sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryNonceStore constructs an in-memory NonceStore with the provided TTL.
func NewMemoryNonceStore(ttl time.Duration) NonceStore {
	return &memoryNonceStore{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (store *memoryNonceStore) Issue(ctx context.Context) (string, error) {
	token, err := generateOpaque()
	if err != nil {
		return "", err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.purgeExpiredLocked()
	store.entries[token] = store.now().Add(store.ttl)
	return token, nil
}

func (store *memoryNonceStore) Consume(ctx context.Context, token string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	defer store.purgeExpiredLocked()
	expiry, ok := store.entries[token]
	if !ok {
		return ErrNonceNotFound
	}
	delete(store.entries, token)
	if store.now().After(expiry) {
		return ErrNonceExpired
	}
	return nil
}

func (store *memoryNonceStore) purgeExpiredLocked() {
	now := store.now()
	for token, expiry := range store.entries {
		if now.After(expiry) {
			delete(store.entries, token)
		}
	}
}
