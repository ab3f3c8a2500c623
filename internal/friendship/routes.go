package friendship

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sayup/server/internal/authkit"
	"github.com/sayup/server/internal/models"
	"go.uber.org/zap"
)

type friendResponse struct {
	UserID   int64  `json:"user_id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

type relationshipResponse struct {
	ID          int64          `json:"id"`
	Requester   friendResponse `json:"requester"`
	Addressee   friendResponse `json:"addressee"`
	Status      string         `json:"status"`
	RequestedAt time.Time      `json:"requested_at"`
	AcceptedAt  *time.Time     `json:"accepted_at,omitempty"`
	RejectedAt  *time.Time     `json:"rejected_at,omitempty"`
}

type pendingResponse struct {
	RelationshipID int64          `json:"relationship_id"`
	Requester      friendResponse `json:"requester"`
	RequestedAt    time.Time      `json:"requested_at"`
}

func newFriendResponse(identity models.Identity) friendResponse {
	return friendResponse{UserID: identity.ID, Email: identity.Email, Username: identity.Username}
}

func newRelationshipResponse(relationship models.FriendRelationship) relationshipResponse {
	return relationshipResponse{
		ID:          relationship.ID,
		Requester:   newFriendResponse(relationship.Requester),
		Addressee:   newFriendResponse(relationship.Addressee),
		Status:      string(relationship.Status),
		RequestedAt: relationship.RequestedAt,
		AcceptedAt:  relationship.AcceptedAt,
		RejectedAt:  relationship.RejectedAt,
	}
}

// MountRoutes registers the /friends endpoints. The router must already run authkit.RequireSession.
func MountRoutes(router gin.IRouter, service *Service) {
	handler := &routeHandler{service: service, logger: service.logger}
	router.POST("/friends/requests", handler.sendRequest)
	router.POST("/friends/requests/:id/accept", handler.acceptRequest)
	router.POST("/friends/requests/:id/reject", handler.rejectRequest)
	router.GET("/friends/requests/pending", handler.listPending)
	router.GET("/friends", handler.listFriends)
	router.DELETE("/friends/:friend_id", handler.removeFriend)
}

type routeHandler struct {
	service *Service
	logger  *zap.Logger
}

func (handler *routeHandler) sendRequest(contextGin *gin.Context) {
	caller, ok := handler.caller(contextGin)
	if !ok {
		return
	}
	var inbound struct {
		AddresseeID int64 `json:"addressee_id"`
	}
	if err := contextGin.ShouldBindJSON(&inbound); err != nil || inbound.AddresseeID <= 0 {
		handler.respondError(contextGin, ErrInvalidArgument)
		return
	}
	relationship, err := handler.service.SendRequest(contextGin.Request.Context(), caller, inbound.AddresseeID)
	if err != nil {
		handler.respondError(contextGin, err)
		return
	}
	contextGin.JSON(http.StatusCreated, newRelationshipResponse(relationship))
}

func (handler *routeHandler) acceptRequest(contextGin *gin.Context) {
	handler.decide(contextGin, handler.service.AcceptRequest)
}

func (handler *routeHandler) rejectRequest(contextGin *gin.Context) {
	handler.decide(contextGin, handler.service.RejectRequest)
}

func (handler *routeHandler) decide(contextGin *gin.Context, transition func(ctx context.Context, addressee models.Identity, relationshipID int64) (models.FriendRelationship, error)) {
	caller, ok := handler.caller(contextGin)
	if !ok {
		return
	}
	relationshipID, ok := handler.pathID(contextGin, "id")
	if !ok {
		return
	}
	relationship, err := transition(contextGin.Request.Context(), caller, relationshipID)
	if err != nil {
		handler.respondError(contextGin, err)
		return
	}
	contextGin.JSON(http.StatusOK, newRelationshipResponse(relationship))
}

func (handler *routeHandler) listFriends(contextGin *gin.Context) {
	caller, ok := handler.caller(contextGin)
	if !ok {
		return
	}
	friends, err := handler.service.ListFriends(contextGin.Request.Context(), caller)
	if err != nil {
		handler.respondError(contextGin, err)
		return
	}
	payload := make([]friendResponse, 0, len(friends))
	for _, friend := range friends {
		payload = append(payload, newFriendResponse(friend))
	}
	contextGin.JSON(http.StatusOK, gin.H{"friends": payload})
}

func (handler *routeHandler) listPending(contextGin *gin.Context) {
	caller, ok := handler.caller(contextGin)
	if !ok {
		return
	}
	pending, err := handler.service.ListPending(contextGin.Request.Context(), caller)
	if err != nil {
		handler.respondError(contextGin, err)
		return
	}
	payload := make([]pendingResponse, 0, len(pending))
	for _, request := range pending {
		payload = append(payload, pendingResponse{
			RelationshipID: request.RelationshipID,
			Requester:      newFriendResponse(request.Requester),
			RequestedAt:    request.RequestedAt,
		})
	}
	contextGin.JSON(http.StatusOK, gin.H{"requests": payload})
}

func (handler *routeHandler) removeFriend(contextGin *gin.Context) {
	caller, ok := handler.caller(contextGin)
	if !ok {
		return
	}
	friendID, ok := handler.pathID(contextGin, "friend_id")
	if !ok {
		return
	}
	if err := handler.service.RemoveFriend(contextGin.Request.Context(), caller, friendID); err != nil {
		handler.respondError(contextGin, err)
		return
	}
	contextGin.Status(http.StatusNoContent)
}

func (handler *routeHandler) caller(contextGin *gin.Context) (models.Identity, bool) {
	identity, ok := authkit.IdentityFromContext(contextGin)
	if !ok {
		status, code := authkit.ErrorResponse(authkit.ErrMissingCredentials)
		contextGin.AbortWithStatusJSON(status, gin.H{"error": code})
		return models.Identity{}, false
	}
	return identity, true
}

func (handler *routeHandler) pathID(contextGin *gin.Context, name string) (int64, bool) {
	value, err := strconv.ParseInt(contextGin.Param(name), 10, 64)
	if err != nil || value <= 0 {
		handler.respondError(contextGin, ErrInvalidArgument)
		return 0, false
	}
	return value, true
}

func (handler *routeHandler) respondError(contextGin *gin.Context, err error) {
	status, code := ErrorResponse(err)
	if status >= http.StatusInternalServerError {
		handler.logger.Error("friendship request failed", zap.String("code", code), zap.String("path", contextGin.FullPath()), zap.Error(err))
	}
	contextGin.AbortWithStatusJSON(status, gin.H{"error": code})
}
