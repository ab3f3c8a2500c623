package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sayup/server/internal/authkit"
	"go.uber.org/zap"
)

// HandleWhoAmI returns the profile of the identity resolved by authkit.RequireSession.
func HandleWhoAmI(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(contextGin *gin.Context) {
		identity, found := authkit.IdentityFromContext(contextGin)
		if !found {
			logger.Warn("missing identity on context",
				zap.String("code", "api.me.missing_identity"))
			status, code := authkit.ErrorResponse(authkit.ErrMissingCredentials)
			contextGin.AbortWithStatusJSON(status, gin.H{"error": code})
			return
		}

		payload := gin.H{
			"user_id":    identity.ID,
			"email":      identity.Email,
			"username":   identity.Username,
			"role":       identity.Role,
			"created_at": identity.CreatedAt,
		}
		if identity.LastLoginAt != nil {
			payload["last_login_at"] = identity.LastLoginAt
		}
		contextGin.JSON(http.StatusOK, payload)
	}
}
