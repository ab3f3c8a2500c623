package web

import (
	"context"

	"github.com/sayup/server/internal/models"
	"github.com/sayup/server/internal/storage"
)

type singleIdentityStore struct {
	identity models.Identity
}

func (store *singleIdentityStore) FindByEmail(ctx context.Context, email string) (models.Identity, error) {
	if email != store.identity.Email {
		return models.Identity{}, storage.ErrNotFound
	}
	return store.identity, nil
}

func (store *singleIdentityStore) FindByID(ctx context.Context, identityID int64) (models.Identity, error) {
	if identityID != store.identity.ID {
		return models.Identity{}, storage.ErrNotFound
	}
	return store.identity, nil
}

func (store *singleIdentityStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return email == store.identity.Email, nil
}

func (store *singleIdentityStore) Save(ctx context.Context, identity models.Identity) (models.Identity, error) {
	store.identity = identity
	return identity, nil
}
