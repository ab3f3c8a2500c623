package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sayup/server/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// relationshipRecord stores one friend edge. pair_low/pair_high hold the ordered identity ids
// so the unique index covers the unordered pair.
type relationshipRecord struct {
	ID          int64          `gorm:"column:id;primaryKey;autoIncrement"`
	RequesterID int64          `gorm:"column:requester_id;not null;index"`
	AddresseeID int64          `gorm:"column:addressee_id;not null;index:idx_relationship_addressee_status"`
	PairLow     int64          `gorm:"column:pair_low;not null;uniqueIndex:idx_relationship_pair"`
	PairHigh    int64          `gorm:"column:pair_high;not null;uniqueIndex:idx_relationship_pair"`
	Status      string         `gorm:"column:status;size:16;not null;index:idx_relationship_addressee_status"`
	Version     int64          `gorm:"column:version;not null"`
	RequestedAt time.Time      `gorm:"column:requested_at;not null"`
	AcceptedAt  *time.Time     `gorm:"column:accepted_at"`
	RejectedAt  *time.Time     `gorm:"column:rejected_at"`
	Requester   identityRecord `gorm:"foreignKey:RequesterID"`
	Addressee   identityRecord `gorm:"foreignKey:AddresseeID"`
}

func (relationshipRecord) TableName() string {
	return "friend_relationships"
}

func (record relationshipRecord) toModel() (models.FriendRelationship, error) {
	status := models.RelationshipStatus(record.Status)
	if !status.Valid() {
		return models.FriendRelationship{}, fmt.Errorf("storage.relationship.%d status %q: %w", record.ID, record.Status, ErrInvalidStatus)
	}
	return models.FriendRelationship{
		ID:          record.ID,
		Requester:   record.Requester.toModel(),
		Addressee:   record.Addressee.toModel(),
		Status:      status,
		RequestedAt: record.RequestedAt,
		AcceptedAt:  record.AcceptedAt,
		RejectedAt:  record.RejectedAt,
		Version:     record.Version,
	}, nil
}

func orderedPair(firstID int64, secondID int64) (int64, int64) {
	if firstID <= secondID {
		return firstID, secondID
	}
	return secondID, firstID
}

// RelationshipStore persists friend relationship edges.
type RelationshipStore struct {
	db          *gorm.DB
	driverLabel string
}

func (store *RelationshipStore) preloaded(ctx context.Context) *gorm.DB {
	return store.db.WithContext(ctx).Preload("Requester").Preload("Addressee")
}

// FindByID returns the edge with the given id, or ErrNotFound.
func (store *RelationshipStore) FindByID(ctx context.Context, relationshipID int64) (models.FriendRelationship, error) {
	var record relationshipRecord
	err := store.preloaded(ctx).Where("id = ?", relationshipID).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.FriendRelationship{}, fmt.Errorf("storage.relationship.find_by_id.%s: %w", store.driverLabel, ErrNotFound)
		}
		return models.FriendRelationship{}, fmt.Errorf("storage.relationship.find_by_id.%s: %w", store.driverLabel, err)
	}
	return record.toModel()
}

// FindRelationship returns the edge between two identities in either direction, or ErrNotFound.
func (store *RelationshipStore) FindRelationship(ctx context.Context, firstID int64, secondID int64) (models.FriendRelationship, error) {
	pairLow, pairHigh := orderedPair(firstID, secondID)
	var record relationshipRecord
	err := store.preloaded(ctx).Where("pair_low = ? AND pair_high = ?", pairLow, pairHigh).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.FriendRelationship{}, fmt.Errorf("storage.relationship.find_pair.%s: %w", store.driverLabel, ErrNotFound)
		}
		return models.FriendRelationship{}, fmt.Errorf("storage.relationship.find_pair.%s: %w", store.driverLabel, err)
	}
	return record.toModel()
}

// FindByAddresseeAndStatus lists edges addressed to addresseeID in the given status, oldest first.
func (store *RelationshipStore) FindByAddresseeAndStatus(ctx context.Context, addresseeID int64, status models.RelationshipStatus) ([]models.FriendRelationship, error) {
	var records []relationshipRecord
	err := store.preloaded(ctx).
		Where("addressee_id = ? AND status = ?", addresseeID, string(status)).
		Order("requested_at ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("storage.relationship.find_by_addressee.%s: %w", store.driverLabel, err)
	}
	return toModels(records)
}

// FindAllAccepted lists accepted edges touching identityID in either direction.
func (store *RelationshipStore) FindAllAccepted(ctx context.Context, identityID int64) ([]models.FriendRelationship, error) {
	var records []relationshipRecord
	err := store.preloaded(ctx).
		Where("status = ? AND (requester_id = ? OR addressee_id = ?)", string(models.StatusAccepted), identityID, identityID).
		Order("id ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("storage.relationship.find_accepted.%s: %w", store.driverLabel, err)
	}
	return toModels(records)
}

// Save inserts a new edge (ID == 0) or updates an existing one guarded by its Version.
// Inserting a second edge for the same pair fails with ErrConflict; an update whose Version
// no longer matches fails with ErrStaleVersion.
func (store *RelationshipStore) Save(ctx context.Context, relationship models.FriendRelationship) (models.FriendRelationship, error) {
	if !relationship.Status.Valid() {
		return models.FriendRelationship{}, fmt.Errorf("storage.relationship.save.%s: %w", store.driverLabel, ErrInvalidStatus)
	}
	if relationship.ID == 0 {
		return store.create(ctx, relationship)
	}

	result := store.db.WithContext(ctx).Model(&relationshipRecord{}).
		Where("id = ? AND version = ?", relationship.ID, relationship.Version).
		Updates(map[string]any{
			"status":      string(relationship.Status),
			"accepted_at": relationship.AcceptedAt,
			"rejected_at": relationship.RejectedAt,
			"version":     relationship.Version + 1,
		})
	if result.Error != nil {
		return models.FriendRelationship{}, fmt.Errorf("storage.relationship.update.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if countErr := store.db.WithContext(ctx).Model(&relationshipRecord{}).Where("id = ?", relationship.ID).Count(&count).Error; countErr != nil {
			return models.FriendRelationship{}, fmt.Errorf("storage.relationship.update.%s: %w", store.driverLabel, countErr)
		}
		if count == 0 {
			return models.FriendRelationship{}, fmt.Errorf("storage.relationship.update.%s: %w", store.driverLabel, ErrNotFound)
		}
		return models.FriendRelationship{}, fmt.Errorf("storage.relationship.update.%s: %w", store.driverLabel, ErrStaleVersion)
	}
	relationship.Version++
	return relationship, nil
}

func (store *RelationshipStore) create(ctx context.Context, relationship models.FriendRelationship) (models.FriendRelationship, error) {
	return store.insert(store.db.WithContext(ctx), relationship)
}

// Replace deletes stale and inserts replacement in one transaction. stale must still carry
// its current Version; otherwise nothing changes and ErrStaleVersion is returned.
func (store *RelationshipStore) Replace(ctx context.Context, stale models.FriendRelationship, replacement models.FriendRelationship) (models.FriendRelationship, error) {
	if !replacement.Status.Valid() {
		return models.FriendRelationship{}, fmt.Errorf("storage.relationship.replace.%s: %w", store.driverLabel, ErrInvalidStatus)
	}
	var created models.FriendRelationship
	err := store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND version = ?", stale.ID, stale.Version).Delete(&relationshipRecord{})
		if result.Error != nil {
			return fmt.Errorf("storage.relationship.replace.%s: %w", store.driverLabel, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("storage.relationship.replace.%s: %w", store.driverLabel, ErrStaleVersion)
		}
		inserted, insertErr := store.insert(tx, replacement)
		if insertErr != nil {
			return insertErr
		}
		created = inserted
		return nil
	})
	if err != nil {
		return models.FriendRelationship{}, err
	}
	return created, nil
}

func (store *RelationshipStore) insert(tx *gorm.DB, relationship models.FriendRelationship) (models.FriendRelationship, error) {
	pairLow, pairHigh := orderedPair(relationship.Requester.ID, relationship.Addressee.ID)
	record := relationshipRecord{
		RequesterID: relationship.Requester.ID,
		AddresseeID: relationship.Addressee.ID,
		PairLow:     pairLow,
		PairHigh:    pairHigh,
		Status:      string(relationship.Status),
		Version:     1,
		RequestedAt: relationship.RequestedAt,
		AcceptedAt:  relationship.AcceptedAt,
		RejectedAt:  relationship.RejectedAt,
	}
	if record.RequestedAt.IsZero() {
		record.RequestedAt = time.Now().UTC()
	}
	if err := tx.Omit(clause.Associations).Create(&record).Error; err != nil {
		if isDuplicateError(err) {
			return models.FriendRelationship{}, fmt.Errorf("storage.relationship.create.%s: %w", store.driverLabel, ErrConflict)
		}
		return models.FriendRelationship{}, fmt.Errorf("storage.relationship.create.%s: %w", store.driverLabel, err)
	}
	relationship.ID = record.ID
	relationship.Version = record.Version
	relationship.RequestedAt = record.RequestedAt
	return relationship, nil
}

// Delete removes the edge with the given id.
func (store *RelationshipStore) Delete(ctx context.Context, relationshipID int64) error {
	result := store.db.WithContext(ctx).Where("id = ?", relationshipID).Delete(&relationshipRecord{})
	if result.Error != nil {
		return fmt.Errorf("storage.relationship.delete.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("storage.relationship.delete.%s: %w", store.driverLabel, ErrNotFound)
	}
	return nil
}

func toModels(records []relationshipRecord) ([]models.FriendRelationship, error) {
	relationships := make([]models.FriendRelationship, 0, len(records))
	for _, record := range records {
		relationship, err := record.toModel()
		if err != nil {
			return nil, err
		}
		relationships = append(relationships, relationship)
	}
	return relationships, nil
}
