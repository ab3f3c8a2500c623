package authkit

import (
	"github.com/gin-gonic/gin"
	"github.com/sayup/server/internal/models"
	"github.com/sayup/server/pkg/sessionvalidator"
)

const identityContextKey = "auth_identity"

// RequireSession validates the bearer access token and stores the resolved identity on the context.
func RequireSession(tokens *TokenService) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		token, err := sessionvalidator.BearerToken(contextGin.Request)
		if err != nil {
			abortWithError(contextGin, ErrMissingCredentials)
			return
		}
		identity, err := tokens.Validate(contextGin.Request.Context(), token)
		if err != nil {
			abortWithError(contextGin, err)
			return
		}
		contextGin.Set(identityContextKey, identity)
		contextGin.Next()
	}
}

// IdentityFromContext returns the identity stored by RequireSession.
func IdentityFromContext(contextGin *gin.Context) (models.Identity, bool) {
	value, exists := contextGin.Get(identityContextKey)
	if !exists {
		return models.Identity{}, false
	}
	identity, ok := value.(models.Identity)
	return identity, ok
}

func abortWithError(contextGin *gin.Context, err error) {
	status, code := ErrorResponse(err)
	contextGin.AbortWithStatusJSON(status, gin.H{"error": code})
}
