package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sayup/server/internal/models"
	"gorm.io/gorm"
)

type identityRecord struct {
	ID           int64      `gorm:"column:id;primaryKey;autoIncrement"`
	Email        string     `gorm:"column:email;size:255;uniqueIndex;not null"`
	Username     string     `gorm:"column:username;size:100;not null;default:''"`
	PasswordHash string     `gorm:"column:password_hash;size:255;not null"`
	Role         string     `gorm:"column:role;size:20;not null"`
	Active       bool       `gorm:"column:active;not null"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at"`
}

func (identityRecord) TableName() string {
	return "identities"
}

func (record identityRecord) toModel() models.Identity {
	return models.Identity{
		ID:           record.ID,
		Email:        record.Email,
		Username:     record.Username,
		PasswordHash: record.PasswordHash,
		Role:         record.Role,
		Active:       record.Active,
		CreatedAt:    record.CreatedAt,
		LastLoginAt:  record.LastLoginAt,
	}
}

func identityRecordFromModel(identity models.Identity) identityRecord {
	return identityRecord{
		ID:           identity.ID,
		Email:        identity.Email,
		Username:     identity.Username,
		PasswordHash: identity.PasswordHash,
		Role:         identity.Role,
		Active:       identity.Active,
		CreatedAt:    identity.CreatedAt,
		LastLoginAt:  identity.LastLoginAt,
	}
}

// IdentityStore persists SayUp identities.
type IdentityStore struct {
	db          *gorm.DB
	driverLabel string
}

// FindByEmail returns the identity registered under email, or ErrNotFound.
func (store *IdentityStore) FindByEmail(ctx context.Context, email string) (models.Identity, error) {
	var record identityRecord
	err := store.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Identity{}, fmt.Errorf("storage.identity.find_by_email.%s: %w", store.driverLabel, ErrNotFound)
		}
		return models.Identity{}, fmt.Errorf("storage.identity.find_by_email.%s: %w", store.driverLabel, err)
	}
	return record.toModel(), nil
}

// FindByID returns the identity with the given id, or ErrNotFound.
func (store *IdentityStore) FindByID(ctx context.Context, identityID int64) (models.Identity, error) {
	var record identityRecord
	err := store.db.WithContext(ctx).Where("id = ?", identityID).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Identity{}, fmt.Errorf("storage.identity.find_by_id.%s: %w", store.driverLabel, ErrNotFound)
		}
		return models.Identity{}, fmt.Errorf("storage.identity.find_by_id.%s: %w", store.driverLabel, err)
	}
	return record.toModel(), nil
}

// ExistsByEmail reports whether an identity is registered under email.
func (store *IdentityStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).Model(&identityRecord{}).Where("email = ?", normalizeEmail(email)).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("storage.identity.exists_by_email.%s: %w", store.driverLabel, err)
	}
	return count > 0, nil
}

// Save inserts a new identity (ID == 0) or overwrites an existing one.
func (store *IdentityStore) Save(ctx context.Context, identity models.Identity) (models.Identity, error) {
	record := identityRecordFromModel(identity)
	record.Email = normalizeEmail(record.Email)
	if record.ID == 0 {
		if record.CreatedAt.IsZero() {
			record.CreatedAt = time.Now().UTC()
		}
		if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
			if isDuplicateError(err) {
				return models.Identity{}, fmt.Errorf("storage.identity.create.%s: %w", store.driverLabel, ErrConflict)
			}
			return models.Identity{}, fmt.Errorf("storage.identity.create.%s: %w", store.driverLabel, err)
		}
		return record.toModel(), nil
	}

	result := store.db.WithContext(ctx).Model(&identityRecord{}).
		Where("id = ?", record.ID).
		Updates(map[string]any{
			"email":         record.Email,
			"username":      record.Username,
			"password_hash": record.PasswordHash,
			"role":          record.Role,
			"active":        record.Active,
			"last_login_at": record.LastLoginAt,
		})
	if result.Error != nil {
		if isDuplicateError(result.Error) {
			return models.Identity{}, fmt.Errorf("storage.identity.update.%s: %w", store.driverLabel, ErrConflict)
		}
		return models.Identity{}, fmt.Errorf("storage.identity.update.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return models.Identity{}, fmt.Errorf("storage.identity.update.%s: %w", store.driverLabel, ErrNotFound)
	}
	return store.FindByID(ctx, record.ID)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
