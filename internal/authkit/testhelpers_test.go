package authkit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sayup/server/internal/models"
	"github.com/sayup/server/internal/storage"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

const (
	testSigningKey      = "0123456789abcdef0123456789abcdef"
	defaultTestNonceTTL = 5 * time.Minute
)

type controllableClock struct {
	mutex   sync.Mutex
	current time.Time
}

func (clock *controllableClock) Now() time.Time {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	return clock.current
}

func (clock *controllableClock) Advance(duration time.Duration) {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	clock.current = clock.current.Add(duration)
}

type testIdentityStore struct {
	mutex   sync.Mutex
	byID    map[int64]models.Identity
	nextID  int64
	findErr error
}

func newTestIdentityStore() *testIdentityStore {
	return &testIdentityStore{byID: make(map[int64]models.Identity)}
}

func (store *testIdentityStore) FindByEmail(ctx context.Context, email string) (models.Identity, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.findErr != nil {
		return models.Identity{}, store.findErr
	}
	for _, identity := range store.byID {
		if strings.EqualFold(identity.Email, email) {
			return identity, nil
		}
	}
	return models.Identity{}, storage.ErrNotFound
}

func (store *testIdentityStore) FindByID(ctx context.Context, identityID int64) (models.Identity, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	identity, ok := store.byID[identityID]
	if !ok {
		return models.Identity{}, storage.ErrNotFound
	}
	return identity, nil
}

func (store *testIdentityStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := store.FindByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (store *testIdentityStore) Save(ctx context.Context, identity models.Identity) (models.Identity, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	identity.Email = strings.ToLower(strings.TrimSpace(identity.Email))
	if identity.ID == 0 {
		for _, existing := range store.byID {
			if existing.Email == identity.Email {
				return models.Identity{}, storage.ErrConflict
			}
		}
		store.nextID++
		identity.ID = store.nextID
		identity.CreatedAt = time.Now().UTC()
	} else if _, ok := store.byID[identity.ID]; !ok {
		return models.Identity{}, storage.ErrNotFound
	}
	store.byID[identity.ID] = identity
	return identity, nil
}

func (store *testIdentityStore) seed(t *testing.T, email string, password string, active bool) models.Identity {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	saved, err := store.Save(context.Background(), models.Identity{
		Email:        email,
		Username:     models.UsernameFromEmail(email),
		PasswordHash: string(hash),
		Role:         models.RoleUser,
		Active:       active,
	})
	if err != nil {
		t.Fatalf("seed identity: %v", err)
	}
	return saved
}

type failingRevocationStore struct {
	err error
}

func (store failingRevocationStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return store.err
}

func (store failingRevocationStore) Exists(ctx context.Context, key string) (bool, error) {
	return false, store.err
}

func (store failingRevocationStore) Delete(ctx context.Context, key string) error {
	return store.err
}

func newTestServerConfig() ServerConfig {
	return ServerConfig{
		SigningKey: []byte(testSigningKey),
		Issuer:     "sayup-test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	}
}

type tokenFixture struct {
	service     *TokenService
	identities  *testIdentityStore
	revocations *MemoryRevocationStore
	clock       *controllableClock
	metrics     *CounterMetrics
}

func newTokenFixture(t *testing.T, configuration ServerConfig) tokenFixture {
	t.Helper()
	clock := &controllableClock{current: time.Unix(1700000000, 0).UTC()}
	identities := newTestIdentityStore()
	revocations := NewMemoryRevocationStore()
	revocations.now = clock.Now
	metrics := NewCounterMetrics()
	service, err := NewTokenService(configuration, identities, revocations,
		WithClock(clock),
		WithLogger(zaptest.NewLogger(t)),
		WithMetrics(metrics),
	)
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}
	return tokenFixture{
		service:     service,
		identities:  identities,
		revocations: revocations,
		clock:       clock,
		metrics:     metrics,
	}
}

func init() {
	passwordHashCost = bcrypt.MinCost
}
