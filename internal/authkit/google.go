package authkit

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/idtoken"
)

// GoogleTokenValidator verifies Google ID tokens for an audience.
type GoogleTokenValidator interface {
	Validate(ctx context.Context, token string, audience string) (*idtoken.Payload, error)
}

// NewGoogleTokenValidator builds a validator backed by Google's published certificates.
func NewGoogleTokenValidator(ctx context.Context) (GoogleTokenValidator, error) {
	return idtoken.NewValidator(ctx)
}

type googleProfile struct {
	email       string
	displayName string
}

func verifyGoogleToken(ctx context.Context, validator GoogleTokenValidator, clientID string, googleIDToken string) (googleProfile, error) {
	payload, err := validator.Validate(ctx, googleIDToken, clientID)
	if err != nil {
		return googleProfile{}, fmt.Errorf("auth.google.validate: %w", ErrInvalidCredentials)
	}
	issuerValue, _ := payload.Claims["iss"].(string)
	if issuerValue != "https://accounts.google.com" && issuerValue != "accounts.google.com" {
		return googleProfile{}, fmt.Errorf("auth.google.issuer: %w", ErrInvalidCredentials)
	}
	email, _ := payload.Claims["email"].(string)
	emailVerified, _ := payload.Claims["email_verified"].(bool)
	if strings.TrimSpace(email) == "" || !emailVerified {
		return googleProfile{}, fmt.Errorf("auth.google.unverified_email: %w", ErrInvalidCredentials)
	}
	displayName, _ := payload.Claims["name"].(string)
	return googleProfile{email: email, displayName: displayName}, nil
}
