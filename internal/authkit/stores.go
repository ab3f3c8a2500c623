package authkit

import (
	"context"
	"time"

	"github.com/sayup/server/internal/models"
)

// IdentityStore persists and retrieves identities. Implementations return
// storage.ErrNotFound and storage.ErrConflict for absent and duplicate records.
type IdentityStore interface {
	FindByEmail(ctx context.Context, email string) (models.Identity, error)
	FindByID(ctx context.Context, identityID int64) (models.Identity, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Save(ctx context.Context, identity models.Identity) (models.Identity, error)
}

// RevocationStore is a TTL-bearing key/value store that holds revoked tokens.
type RevocationStore interface {
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}
