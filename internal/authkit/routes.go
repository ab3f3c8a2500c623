package authkit

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sayup/server/pkg/sessionvalidator"
	"go.uber.org/zap"
)

type userInfoResponse struct {
	UserID   int64  `json:"user_id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type sessionResponse struct {
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	TokenType    string           `json:"token_type"`
	ExpiresIn    int64            `json:"expires_in"`
	UserInfo     userInfoResponse `json:"user_info"`
}

func newSessionResponse(session Session) sessionResponse {
	return sessionResponse{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		TokenType:    session.TokenType,
		ExpiresIn:    session.ExpiresIn.Milliseconds(),
		UserInfo: userInfoResponse{
			UserID:   session.Identity.ID,
			Email:    session.Identity.Email,
			Username: session.Identity.Username,
			Role:     session.Identity.Role,
		},
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// MountAuthRoutes registers the /auth endpoints. credentialGuards run in front of the endpoints
// that accept credentials or provider codes.
func MountAuthRoutes(router gin.IRouter, accounts *Accounts, tokens *TokenService, nonces NonceStore, credentialGuards ...gin.HandlerFunc) {
	logger := tokens.logger
	guarded := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		chain := make([]gin.HandlerFunc, 0, len(credentialGuards)+1)
		chain = append(chain, credentialGuards...)
		return append(chain, handler)
	}
	respondSession := func(contextGin *gin.Context, status int, session Session, err error) {
		if err != nil {
			respondError(contextGin, logger, err)
			return
		}
		contextGin.JSON(status, newSessionResponse(session))
	}

	router.POST("/auth/register", guarded(func(contextGin *gin.Context) {
		var inbound credentialsRequest
		if err := contextGin.ShouldBindJSON(&inbound); err != nil {
			respondError(contextGin, logger, ErrInvalidArgument)
			return
		}
		session, err := accounts.Register(contextGin.Request.Context(), inbound.Email, inbound.Password)
		respondSession(contextGin, http.StatusCreated, session, err)
	})...)

	router.POST("/auth/login", guarded(func(contextGin *gin.Context) {
		var inbound credentialsRequest
		if err := contextGin.ShouldBindJSON(&inbound); err != nil {
			respondError(contextGin, logger, ErrInvalidArgument)
			return
		}
		session, err := accounts.Login(contextGin.Request.Context(), inbound.Email, inbound.Password)
		respondSession(contextGin, http.StatusOK, session, err)
	})...)

	router.POST("/auth/refresh", func(contextGin *gin.Context) {
		var inbound struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := contextGin.ShouldBindJSON(&inbound); err != nil {
			respondError(contextGin, logger, ErrInvalidArgument)
			return
		}
		session, err := tokens.Refresh(contextGin.Request.Context(), inbound.RefreshToken)
		respondSession(contextGin, http.StatusOK, session, err)
	})

	router.POST("/auth/logout", func(contextGin *gin.Context) {
		accessToken, err := sessionvalidator.BearerToken(contextGin.Request)
		if err != nil {
			respondError(contextGin, logger, ErrMissingCredentials)
			return
		}
		requestContext := contextGin.Request.Context()
		if _, err := tokens.Validate(requestContext, accessToken); err != nil {
			respondError(contextGin, logger, err)
			return
		}
		var inbound struct {
			RefreshToken string `json:"refresh_token"`
		}
		if contextGin.Request.ContentLength != 0 {
			if err := contextGin.ShouldBindJSON(&inbound); err != nil && !errors.Is(err, io.EOF) {
				respondError(contextGin, logger, ErrInvalidArgument)
				return
			}
		}
		if err := tokens.Revoke(requestContext, accessToken); err != nil {
			respondError(contextGin, logger, err)
			return
		}
		if strings.TrimSpace(inbound.RefreshToken) != "" {
			if err := tokens.Revoke(requestContext, inbound.RefreshToken); err != nil {
				respondError(contextGin, logger, err)
				return
			}
		}
		tokens.metrics.Increment(metricLogoutSuccess)
		contextGin.JSON(http.StatusOK, gin.H{"message": "logged out"})
	})

	router.GET("/auth/validate", func(contextGin *gin.Context) {
		accessToken, err := sessionvalidator.BearerToken(contextGin.Request)
		if err != nil {
			status, code := ErrorResponse(ErrMissingCredentials)
			contextGin.JSON(status, gin.H{"valid": false, "error": code})
			return
		}
		if _, err := tokens.Validate(contextGin.Request.Context(), accessToken); err != nil {
			status, code := ErrorResponse(err)
			if status == http.StatusBadRequest {
				status = http.StatusUnauthorized
			}
			contextGin.JSON(status, gin.H{"valid": false, "error": code})
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"valid": true})
	})

	router.GET("/auth/kakao/login", func(contextGin *gin.Context) {
		if !accounts.KakaoEnabled() {
			respondError(contextGin, logger, ErrProviderDisabled)
			return
		}
		state, err := nonces.Issue(contextGin.Request.Context())
		if err != nil {
			respondError(contextGin, logger, err)
			return
		}
		authURL, err := accounts.KakaoAuthURL(state)
		if err != nil {
			respondError(contextGin, logger, err)
			return
		}
		contextGin.Redirect(http.StatusFound, authURL)
	})

	router.GET("/auth/kakao/callback", guarded(func(contextGin *gin.Context) {
		if providerError := contextGin.Query("error"); providerError != "" {
			logger.Info("kakao consent declined", zap.String("code", "auth.kakao.declined"), zap.String("provider_error", providerError))
			respondError(contextGin, logger, ErrInvalidArgument)
			return
		}
		if err := nonces.Consume(contextGin.Request.Context(), contextGin.Query("state")); err != nil {
			logger.Info("kakao state rejected", zap.String("code", "auth.kakao.state"), zap.Error(err))
			respondError(contextGin, logger, ErrInvalidArgument)
			return
		}
		session, err := accounts.LoginWithKakao(contextGin.Request.Context(), contextGin.Query("code"))
		respondSession(contextGin, http.StatusOK, session, err)
	})...)

	router.POST("/auth/kakao", guarded(func(contextGin *gin.Context) {
		var inbound struct {
			Code string `json:"code"`
		}
		if err := contextGin.ShouldBindJSON(&inbound); err != nil {
			respondError(contextGin, logger, ErrInvalidArgument)
			return
		}
		session, err := accounts.LoginWithKakao(contextGin.Request.Context(), inbound.Code)
		respondSession(contextGin, http.StatusOK, session, err)
	})...)

	router.POST("/auth/google", guarded(func(contextGin *gin.Context) {
		var inbound struct {
			GoogleIDToken string `json:"google_id_token"`
		}
		if err := contextGin.ShouldBindJSON(&inbound); err != nil {
			respondError(contextGin, logger, ErrInvalidArgument)
			return
		}
		session, err := accounts.LoginWithGoogle(contextGin.Request.Context(), inbound.GoogleIDToken)
		respondSession(contextGin, http.StatusOK, session, err)
	})...)
}

func respondError(contextGin *gin.Context, logger *zap.Logger, err error) {
	status, code := ErrorResponse(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("code", code), zap.String("path", contextGin.FullPath()), zap.Error(err))
	}
	contextGin.AbortWithStatusJSON(status, gin.H{"error": code})
}
