package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sayup/server/internal/models"
	"github.com/sayup/server/internal/storage"
	"github.com/sayup/server/pkg/sessionvalidator"
	"go.uber.org/zap"
)

const (
	revocationKeyPrefix = "blacklist:"
	revocationValue     = "blacklisted"
	minRevocationTTL    = time.Minute
	maxRevocationTTL    = MaxTokenTTL
	tokenTypeBearer     = "Bearer"
)

// Session is the token pair handed to a client after authentication.
type Session struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    time.Duration
	Identity     models.Identity
}

// TokenService issues, validates, refreshes and revokes session tokens.
type TokenService struct {
	configuration ServerConfig
	identities    IdentityStore
	revocations   RevocationStore
	validator     *sessionvalidator.Validator
	clock         sessionvalidator.Clock
	logger        *zap.Logger
	metrics       MetricsRecorder
}

// TokenServiceOption customises a TokenService.
type TokenServiceOption func(*TokenService)

// WithClock overrides the clock used for issuance, validation and revocation TTLs.
func WithClock(clock sessionvalidator.Clock) TokenServiceOption {
	return func(service *TokenService) {
		if clock != nil {
			service.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) TokenServiceOption {
	return func(service *TokenService) {
		if logger != nil {
			service.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics MetricsRecorder) TokenServiceOption {
	return func(service *TokenService) {
		if metrics != nil {
			service.metrics = metrics
		}
	}
}

// NewTokenService validates the configuration and builds a TokenService.
func NewTokenService(configuration ServerConfig, identities IdentityStore, revocations RevocationStore, options ...TokenServiceOption) (*TokenService, error) {
	if err := configuration.Validate(); err != nil {
		return nil, err
	}
	if identities == nil || revocations == nil {
		return nil, fmt.Errorf("auth.new_token_service: %w", ErrInvalidArgument)
	}
	service := &TokenService{
		configuration: configuration,
		identities:    identities,
		revocations:   revocations,
		clock:         sessionvalidator.SystemClock(),
		logger:        zap.NewNop(),
		metrics:       noopMetrics{},
	}
	for _, option := range options {
		option(service)
	}
	validator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: configuration.SigningKey,
		Issuer:     configuration.Issuer,
		Clock:      service.clock,
	})
	if err != nil {
		return nil, fmt.Errorf("auth.new_token_service: %w", err)
	}
	service.validator = validator
	return service, nil
}

// IssueAccessToken signs a short-lived access token for identity.
func (service *TokenService) IssueAccessToken(identity models.Identity) (string, error) {
	token, _, err := MintToken(identity, sessionvalidator.TokenTypeAccess, service.configuration.Issuer, service.configuration.SigningKey, service.clock.Now(), service.configuration.AccessTTL)
	if err != nil {
		return "", fmt.Errorf("auth.issue_access_token: %w", err)
	}
	return token, nil
}

// IssueRefreshToken signs a long-lived refresh token for identity.
func (service *TokenService) IssueRefreshToken(identity models.Identity) (string, error) {
	token, _, err := MintToken(identity, sessionvalidator.TokenTypeRefresh, service.configuration.Issuer, service.configuration.SigningKey, service.clock.Now(), service.configuration.RefreshTTL)
	if err != nil {
		return "", fmt.Errorf("auth.issue_refresh_token: %w", err)
	}
	return token, nil
}

// IssueSession signs an access and refresh token pair for identity.
func (service *TokenService) IssueSession(identity models.Identity) (Session, error) {
	accessToken, err := service.IssueAccessToken(identity)
	if err != nil {
		return Session{}, err
	}
	refreshToken, err := service.IssueRefreshToken(identity)
	if err != nil {
		return Session{}, err
	}
	service.metrics.Increment(metricIssueSuccess)
	return Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    service.configuration.AccessTTL,
		Identity:     identity,
	}, nil
}

// Validate verifies an access token and resolves its subject to a fresh, active identity.
func (service *TokenService) Validate(ctx context.Context, token string) (models.Identity, error) {
	identity, err := service.authenticate(ctx, token, sessionvalidator.TokenTypeAccess)
	if err != nil {
		service.metrics.Increment(metricValidateFailure)
		return models.Identity{}, fmt.Errorf("auth.validate: %w", err)
	}
	service.metrics.Increment(metricValidateSuccess)
	return identity, nil
}

// Refresh exchanges a refresh token for a new session.
func (service *TokenService) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	identity, err := service.authenticate(ctx, refreshToken, sessionvalidator.TokenTypeRefresh)
	if err != nil {
		service.metrics.Increment(metricRefreshFailure)
		return Session{}, fmt.Errorf("auth.refresh: %w", err)
	}
	if service.configuration.RevokeConsumedRefresh {
		if err := service.Revoke(ctx, refreshToken); err != nil {
			service.metrics.Increment(metricRefreshFailure)
			return Session{}, fmt.Errorf("auth.refresh: %w", err)
		}
	}
	session, err := service.IssueSession(identity)
	if err != nil {
		service.metrics.Increment(metricRefreshFailure)
		return Session{}, fmt.Errorf("auth.refresh: %w", err)
	}
	service.metrics.Increment(metricRefreshSuccess)
	return session, nil
}

// Revoke blacklists token until shortly after its natural expiry.
// Authentic tokens are accepted even when already expired.
func (service *TokenService) Revoke(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		service.metrics.Increment(metricRevokeFailure)
		return fmt.Errorf("auth.revoke: %w", ErrInvalidArgument)
	}
	claims, err := service.validator.ParseAuthentic(token)
	if err != nil {
		service.metrics.Increment(metricRevokeFailure)
		return fmt.Errorf("auth.revoke: %w", ErrMalformedToken)
	}
	ttl := revocationTTL(claims.GetExpiresAt().Sub(service.clock.Now()))
	if err := service.revocations.Set(ctx, revocationKey(token), revocationValue, ttl); err != nil {
		service.metrics.Increment(metricStoreUnavailable)
		service.logger.Error("revocation store write failed", zap.String("code", "auth.revoke.store"), zap.Error(err))
		return fmt.Errorf("auth.revoke: %w: %v", ErrUpstreamFailure, err)
	}
	service.metrics.Increment(metricRevokeSuccess)
	service.logger.Debug("token revoked", zap.String("code", "auth.revoke.success"), zap.Duration("ttl", ttl))
	return nil
}

// IsRevoked reports whether token is blacklisted. A blank token is never revoked.
// Store failures return ErrUpstreamFailure and callers must treat them as revoked.
func (service *TokenService) IsRevoked(ctx context.Context, token string) (bool, error) {
	if strings.TrimSpace(token) == "" {
		return false, nil
	}
	exists, err := service.revocations.Exists(ctx, revocationKey(token))
	if err != nil {
		service.metrics.Increment(metricStoreUnavailable)
		service.logger.Error("revocation store read failed", zap.String("code", "auth.is_revoked.store"), zap.Error(err))
		return true, fmt.Errorf("auth.is_revoked: %w: %v", ErrUpstreamFailure, err)
	}
	return exists, nil
}

func (service *TokenService) authenticate(ctx context.Context, token string, expectedType string) (models.Identity, error) {
	if strings.TrimSpace(token) == "" {
		return models.Identity{}, ErrInvalidArgument
	}
	claims, err := service.validator.ValidateToken(token, expectedType)
	if err != nil {
		mapped := mapValidatorError(err)
		service.logger.Debug("token rejected", zap.String("code", mapped.Error()), zap.String("expected_type", expectedType))
		return models.Identity{}, mapped
	}
	revoked, err := service.IsRevoked(ctx, token)
	if err != nil {
		return models.Identity{}, err
	}
	if revoked {
		service.logger.Info("revoked token presented", zap.String("code", ErrRevoked.Error()), zap.String("subject", claims.GetEmail()))
		return models.Identity{}, ErrRevoked
	}
	return service.resolveIdentity(ctx, claims.GetEmail())
}

func (service *TokenService) resolveIdentity(ctx context.Context, email string) (models.Identity, error) {
	identity, err := service.identities.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.Identity{}, ErrUnknownIdentity
		}
		service.logger.Error("identity lookup failed", zap.String("code", "auth.identity.store"), zap.Error(err))
		return models.Identity{}, fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
	}
	if !identity.Active {
		return models.Identity{}, ErrUnknownIdentity
	}
	return identity, nil
}

func mapValidatorError(err error) error {
	switch {
	case errors.Is(err, sessionvalidator.ErrMissingToken):
		return ErrInvalidArgument
	case errors.Is(err, sessionvalidator.ErrTokenExpired):
		return ErrExpiredToken
	case errors.Is(err, sessionvalidator.ErrWrongTokenType):
		return ErrWrongTokenType
	default:
		return ErrMalformedToken
	}
}

func revocationKey(token string) string {
	return revocationKeyPrefix + token
}

func revocationTTL(remaining time.Duration) time.Duration {
	if remaining < minRevocationTTL {
		return minRevocationTTL
	}
	if remaining > maxRevocationTTL {
		return maxRevocationTTL
	}
	return remaining
}
