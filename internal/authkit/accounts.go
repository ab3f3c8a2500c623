package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sayup/server/internal/models"
	"github.com/sayup/server/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

var passwordHashCost = 12

// Accounts registers identities and authenticates them with passwords or external providers.
type Accounts struct {
	identities     IdentityStore
	tokens         *TokenService
	kakao          *KakaoClient
	google         GoogleTokenValidator
	googleClientID string
	logger         *zap.Logger
	metrics        MetricsRecorder
}

// AccountsOption customises Accounts.
type AccountsOption func(*Accounts)

// WithKakao enables Kakao login.
func WithKakao(client *KakaoClient) AccountsOption {
	return func(accounts *Accounts) {
		accounts.kakao = client
	}
}

// WithGoogle enables Google Sign-In for the given web client id.
func WithGoogle(validator GoogleTokenValidator, clientID string) AccountsOption {
	return func(accounts *Accounts) {
		accounts.google = validator
		accounts.googleClientID = clientID
	}
}

// NewAccounts builds Accounts on top of a TokenService. Logging and metrics follow the TokenService.
func NewAccounts(identities IdentityStore, tokens *TokenService, options ...AccountsOption) *Accounts {
	accounts := &Accounts{
		identities: identities,
		tokens:     tokens,
		logger:     tokens.logger,
		metrics:    tokens.metrics,
	}
	for _, option := range options {
		option(accounts)
	}
	return accounts
}

// KakaoEnabled reports whether Kakao login is configured.
func (accounts *Accounts) KakaoEnabled() bool {
	return accounts.kakao != nil
}

// KakaoAuthURL returns the Kakao consent URL for the browser flow.
func (accounts *Accounts) KakaoAuthURL(state string) (string, error) {
	if accounts.kakao == nil {
		return "", fmt.Errorf("auth.kakao_auth_url: %w", ErrProviderDisabled)
	}
	return accounts.kakao.AuthCodeURL(state), nil
}

// Register creates an active USER identity and signs it in.
func (accounts *Accounts) Register(ctx context.Context, email string, password string) (Session, error) {
	normalizedEmail := strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(normalizedEmail, "@") || len(password) < minPasswordLength {
		return Session{}, fmt.Errorf("auth.register: %w", ErrInvalidArgument)
	}
	taken, err := accounts.identities.ExistsByEmail(ctx, normalizedEmail)
	if err != nil {
		return Session{}, accounts.upstream("auth.register", err)
	}
	if taken {
		return Session{}, fmt.Errorf("auth.register: %w", ErrEmailTaken)
	}
	passwordHash, err := hashPassword(password)
	if err != nil {
		return Session{}, fmt.Errorf("auth.register: %w", err)
	}
	identity, err := accounts.identities.Save(ctx, models.Identity{
		Email:        normalizedEmail,
		Username:     models.UsernameFromEmail(normalizedEmail),
		PasswordHash: passwordHash,
		Role:         models.RoleUser,
		Active:       true,
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return Session{}, fmt.Errorf("auth.register: %w", ErrEmailTaken)
		}
		return Session{}, accounts.upstream("auth.register", err)
	}
	accounts.metrics.Increment(metricRegisterSuccess)
	accounts.logger.Info("identity registered", zap.String("code", metricRegisterSuccess), zap.Int64("identity_id", identity.ID))
	return accounts.signIn(ctx, identity)
}

// Login authenticates an email/password pair.
func (accounts *Accounts) Login(ctx context.Context, email string, password string) (Session, error) {
	identity, err := accounts.identities.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			accounts.metrics.Increment(metricLoginFailure)
			return Session{}, fmt.Errorf("auth.login: %w", ErrInvalidCredentials)
		}
		return Session{}, accounts.upstream("auth.login", err)
	}
	if !identity.Active || bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)) != nil {
		accounts.metrics.Increment(metricLoginFailure)
		return Session{}, fmt.Errorf("auth.login: %w", ErrInvalidCredentials)
	}
	return accounts.signIn(ctx, identity)
}

// LoginWithKakao exchanges a Kakao authorization code and signs the matching identity in,
// creating it on first login.
func (accounts *Accounts) LoginWithKakao(ctx context.Context, code string) (Session, error) {
	if accounts.kakao == nil {
		return Session{}, fmt.Errorf("auth.kakao_login: %w", ErrProviderDisabled)
	}
	if strings.TrimSpace(code) == "" {
		return Session{}, fmt.Errorf("auth.kakao_login: %w", ErrInvalidArgument)
	}
	profile, err := accounts.kakao.fetchProfile(ctx, code)
	if err != nil {
		accounts.metrics.Increment(metricProviderFailure)
		accounts.logger.Warn("kakao exchange failed", zap.String("code", "auth.kakao.exchange"), zap.Error(err))
		return Session{}, fmt.Errorf("auth.kakao_login: %w", ErrUpstreamFailure)
	}
	email := strings.ToLower(strings.TrimSpace(profile.KakaoAccount.Email))
	if email == "" {
		accounts.metrics.Increment(metricProviderFailure)
		return Session{}, fmt.Errorf("auth.kakao_login: email scope not granted: %w", ErrInvalidArgument)
	}
	identity, err := accounts.findOrCreate(ctx, email, profile.nickname())
	if err != nil {
		return Session{}, fmt.Errorf("auth.kakao_login: %w", err)
	}
	accounts.metrics.Increment(metricProviderSuccess)
	return accounts.signIn(ctx, identity)
}

// LoginWithGoogle verifies a Google ID token and signs the matching identity in,
// creating it on first login.
func (accounts *Accounts) LoginWithGoogle(ctx context.Context, googleIDToken string) (Session, error) {
	if accounts.google == nil {
		return Session{}, fmt.Errorf("auth.google_login: %w", ErrProviderDisabled)
	}
	if strings.TrimSpace(googleIDToken) == "" {
		return Session{}, fmt.Errorf("auth.google_login: %w", ErrInvalidArgument)
	}
	profile, err := verifyGoogleToken(ctx, accounts.google, accounts.googleClientID, googleIDToken)
	if err != nil {
		accounts.metrics.Increment(metricProviderFailure)
		return Session{}, err
	}
	identity, err := accounts.findOrCreate(ctx, strings.ToLower(profile.email), profile.displayName)
	if err != nil {
		return Session{}, fmt.Errorf("auth.google_login: %w", err)
	}
	accounts.metrics.Increment(metricProviderSuccess)
	return accounts.signIn(ctx, identity)
}

func (accounts *Accounts) findOrCreate(ctx context.Context, email string, displayName string) (models.Identity, error) {
	identity, err := accounts.identities.FindByEmail(ctx, email)
	if err == nil {
		if !identity.Active {
			return models.Identity{}, ErrInvalidCredentials
		}
		return identity, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return models.Identity{}, accounts.upstream("auth.find_or_create", err)
	}

	throwaway, err := generateOpaque()
	if err != nil {
		return models.Identity{}, err
	}
	passwordHash, err := hashPassword(throwaway)
	if err != nil {
		return models.Identity{}, err
	}
	username := strings.TrimSpace(displayName)
	if username == "" {
		username = models.UsernameFromEmail(email)
	}
	created, err := accounts.identities.Save(ctx, models.Identity{
		Email:        email,
		Username:     username,
		PasswordHash: passwordHash,
		Role:         models.RoleUser,
		Active:       true,
	})
	if errors.Is(err, storage.ErrConflict) {
		return accounts.identities.FindByEmail(ctx, email)
	}
	if err != nil {
		return models.Identity{}, accounts.upstream("auth.find_or_create", err)
	}
	accounts.logger.Info("identity created from provider", zap.String("code", "auth.provider.created"), zap.Int64("identity_id", created.ID))
	return created, nil
}

func (accounts *Accounts) signIn(ctx context.Context, identity models.Identity) (Session, error) {
	loginAt := accounts.tokens.clock.Now().UTC()
	identity.LastLoginAt = &loginAt
	stamped, err := accounts.identities.Save(ctx, identity)
	if err != nil {
		accounts.logger.Warn("last login not recorded", zap.String("code", "auth.login.stamp"), zap.Int64("identity_id", identity.ID), zap.Error(err))
	} else {
		identity = stamped
	}
	session, err := accounts.tokens.IssueSession(identity)
	if err != nil {
		return Session{}, fmt.Errorf("auth.sign_in: %w", err)
	}
	accounts.metrics.Increment(metricLoginSuccess)
	return session, nil
}

func (accounts *Accounts) upstream(operation string, err error) error {
	accounts.metrics.Increment(metricStoreUnavailable)
	accounts.logger.Error("identity store failure", zap.String("code", operation), zap.Error(err))
	return fmt.Errorf("%s: %w: %v", operation, ErrUpstreamFailure, err)
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost)
	if err != nil {
		return "", fmt.Errorf("auth.hash_password: %w", err)
	}
	return string(hash), nil
}
