package friendship

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sayup/server/internal/models"
	"github.com/sayup/server/internal/storage"
	"go.uber.org/zap"
)

// IdentityLookup resolves identities by id.
type IdentityLookup interface {
	FindByID(ctx context.Context, identityID int64) (models.Identity, error)
}

// RelationshipStore persists friend relationship edges. Save creates when ID is zero and
// otherwise updates under an optimistic version check.
type RelationshipStore interface {
	FindByID(ctx context.Context, relationshipID int64) (models.FriendRelationship, error)
	FindRelationship(ctx context.Context, firstID int64, secondID int64) (models.FriendRelationship, error)
	FindByAddresseeAndStatus(ctx context.Context, addresseeID int64, status models.RelationshipStatus) ([]models.FriendRelationship, error)
	FindAllAccepted(ctx context.Context, identityID int64) ([]models.FriendRelationship, error)
	Save(ctx context.Context, relationship models.FriendRelationship) (models.FriendRelationship, error)
	Replace(ctx context.Context, stale models.FriendRelationship, replacement models.FriendRelationship) (models.FriendRelationship, error)
	Delete(ctx context.Context, relationshipID int64) error
}

// PendingRequest is an incoming friend request awaiting a decision.
type PendingRequest struct {
	RelationshipID int64
	Requester      models.Identity
	RequestedAt    time.Time
}

// Service runs the friend request state machine.
type Service struct {
	identities    IdentityLookup
	relationships RelationshipStore
	now           func() time.Time
	logger        *zap.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithNowFunc overrides the clock used for transition timestamps.
func WithNowFunc(now func() time.Time) Option {
	return func(service *Service) {
		if now != nil {
			service.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(service *Service) {
		if logger != nil {
			service.logger = logger
		}
	}
}

// NewService constructs a Service.
func NewService(identities IdentityLookup, relationships RelationshipStore, options ...Option) *Service {
	service := &Service{
		identities:    identities,
		relationships: relationships,
		now:           func() time.Time { return time.Now().UTC() },
		logger:        zap.NewNop(),
	}
	for _, option := range options {
		option(service)
	}
	return service
}

// SendRequest creates a pending edge from requester to addresseeID. A previously rejected
// edge between the pair is replaced atomically.
func (service *Service) SendRequest(ctx context.Context, requester models.Identity, addresseeID int64) (models.FriendRelationship, error) {
	if requester.ID == addresseeID {
		return models.FriendRelationship{}, ErrSelfRequest
	}
	addressee, err := service.identities.FindByID(ctx, addresseeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.FriendRelationship{}, fmt.Errorf("friendship.send_request: unknown addressee: %w", ErrInvalidArgument)
		}
		return models.FriendRelationship{}, service.upstream("friendship.send_request", err)
	}
	if !addressee.Active {
		return models.FriendRelationship{}, fmt.Errorf("friendship.send_request: inactive addressee: %w", ErrInvalidArgument)
	}

	request := models.FriendRelationship{
		Requester:   requester,
		Addressee:   addressee,
		Status:      models.StatusPending,
		RequestedAt: service.now(),
	}
	var created models.FriendRelationship
	existing, err := service.relationships.FindRelationship(ctx, requester.ID, addressee.ID)
	switch {
	case err == nil:
		switch existing.Status {
		case models.StatusAccepted:
			return models.FriendRelationship{}, ErrAlreadyFriends
		case models.StatusPending:
			return models.FriendRelationship{}, ErrRequestAlreadyPending
		case models.StatusRejected:
			created, err = service.relationships.Replace(ctx, existing, request)
		default:
			return models.FriendRelationship{}, fmt.Errorf("friendship.send_request: status %q: %w", existing.Status, ErrInvalidState)
		}
	case errors.Is(err, storage.ErrNotFound):
		created, err = service.relationships.Save(ctx, request)
	default:
		return models.FriendRelationship{}, service.upstream("friendship.send_request", err)
	}
	if err != nil {
		if errors.Is(err, storage.ErrConflict) || errors.Is(err, storage.ErrStaleVersion) {
			return models.FriendRelationship{}, ErrRequestAlreadyPending
		}
		return models.FriendRelationship{}, service.upstream("friendship.send_request", err)
	}
	service.logger.Info("friend request sent", zap.String("code", "friendship.request.sent"), zap.Int64("relationship_id", created.ID))
	return created, nil
}

// AcceptRequest moves a pending edge addressed to addressee into ACCEPTED.
func (service *Service) AcceptRequest(ctx context.Context, addressee models.Identity, relationshipID int64) (models.FriendRelationship, error) {
	return service.decide(ctx, "friendship.accept_request", addressee, relationshipID, func(relationship *models.FriendRelationship, at time.Time) {
		relationship.Status = models.StatusAccepted
		relationship.AcceptedAt = &at
	})
}

// RejectRequest moves a pending edge addressed to addressee into REJECTED. The edge is kept
// until a later request between the pair replaces it.
func (service *Service) RejectRequest(ctx context.Context, addressee models.Identity, relationshipID int64) (models.FriendRelationship, error) {
	return service.decide(ctx, "friendship.reject_request", addressee, relationshipID, func(relationship *models.FriendRelationship, at time.Time) {
		relationship.Status = models.StatusRejected
		relationship.RejectedAt = &at
	})
}

func (service *Service) decide(ctx context.Context, operation string, addressee models.Identity, relationshipID int64, apply func(*models.FriendRelationship, time.Time)) (models.FriendRelationship, error) {
	relationship, err := service.relationships.FindByID(ctx, relationshipID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.FriendRelationship{}, fmt.Errorf("%s: %w", operation, ErrNotFound)
		}
		return models.FriendRelationship{}, service.upstream(operation, err)
	}
	if relationship.Addressee.ID != addressee.ID {
		return models.FriendRelationship{}, fmt.Errorf("%s: %w", operation, ErrUnauthorized)
	}
	if relationship.Status != models.StatusPending {
		return models.FriendRelationship{}, fmt.Errorf("%s: %w", operation, ErrInvalidState)
	}

	apply(&relationship, service.now())
	updated, err := service.relationships.Save(ctx, relationship)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrStaleVersion):
			return models.FriendRelationship{}, fmt.Errorf("%s: concurrent decision: %w", operation, ErrInvalidState)
		case errors.Is(err, storage.ErrNotFound):
			return models.FriendRelationship{}, fmt.Errorf("%s: %w", operation, ErrNotFound)
		default:
			return models.FriendRelationship{}, service.upstream(operation, err)
		}
	}
	service.logger.Info("friend request decided", zap.String("code", operation), zap.Int64("relationship_id", updated.ID), zap.String("status", string(updated.Status)))
	return updated, nil
}

// ListFriends returns the active counterparts of every accepted edge touching identity.
func (service *Service) ListFriends(ctx context.Context, identity models.Identity) ([]models.Identity, error) {
	accepted, err := service.relationships.FindAllAccepted(ctx, identity.ID)
	if err != nil {
		return nil, service.upstream("friendship.list_friends", err)
	}
	friends := make([]models.Identity, 0, len(accepted))
	for _, relationship := range accepted {
		counterpart := relationship.Counterpart(identity.ID)
		if counterpart.Active {
			friends = append(friends, counterpart)
		}
	}
	return friends, nil
}

// ListPending returns pending requests addressed to identity from active requesters.
func (service *Service) ListPending(ctx context.Context, identity models.Identity) ([]PendingRequest, error) {
	pending, err := service.relationships.FindByAddresseeAndStatus(ctx, identity.ID, models.StatusPending)
	if err != nil {
		return nil, service.upstream("friendship.list_pending", err)
	}
	requests := make([]PendingRequest, 0, len(pending))
	for _, relationship := range pending {
		if !relationship.Requester.Active {
			continue
		}
		requests = append(requests, PendingRequest{
			RelationshipID: relationship.ID,
			Requester:      relationship.Requester,
			RequestedAt:    relationship.RequestedAt,
		})
	}
	return requests, nil
}

// RemoveFriend deletes the accepted edge between identity and friendID. Either side may unfriend.
func (service *Service) RemoveFriend(ctx context.Context, identity models.Identity, friendID int64) error {
	relationship, err := service.relationships.FindRelationship(ctx, identity.ID, friendID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("friendship.remove_friend: %w", ErrNotFound)
		}
		return service.upstream("friendship.remove_friend", err)
	}
	if relationship.Status != models.StatusAccepted {
		return fmt.Errorf("friendship.remove_friend: %w", ErrInvalidState)
	}
	if err := service.relationships.Delete(ctx, relationship.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("friendship.remove_friend: %w", ErrNotFound)
		}
		return service.upstream("friendship.remove_friend", err)
	}
	service.logger.Info("friend removed", zap.String("code", "friendship.friend.removed"), zap.Int64("relationship_id", relationship.ID))
	return nil
}

func (service *Service) upstream(operation string, err error) error {
	service.logger.Error("relationship store failure", zap.String("code", operation), zap.Error(err))
	return fmt.Errorf("%s: %w: %v", operation, ErrUpstreamFailure, err)
}
