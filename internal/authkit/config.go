package authkit

import (
	"fmt"
	"strings"
	"time"
)

const (
	// MinSigningKeyLength is the shortest accepted HS256 secret, in bytes.
	MinSigningKeyLength = 32
	// MaxTokenTTL is the longest accepted token lifetime. A revocation record never outlives it,
	// so a longer-lived token would become valid again after its revocation expired.
	MaxTokenTTL = 24 * time.Hour
)

// ServerConfig configures token signing, lifetimes and identity providers.
type ServerConfig struct {
	SigningKey            []byte
	Issuer                string
	AccessTTL             time.Duration
	RefreshTTL            time.Duration
	RevokeConsumedRefresh bool
	GoogleWebClientID     string
	Kakao                 KakaoConfig
}

// Validate checks the signing configuration.
func (configuration ServerConfig) Validate() error {
	if len(configuration.SigningKey) < MinSigningKeyLength {
		return fmt.Errorf("config.short_jwt_signing_key: signing key must be at least %d bytes", MinSigningKeyLength)
	}
	if strings.TrimSpace(configuration.Issuer) == "" {
		return fmt.Errorf("config.missing_jwt_issuer: issuer is required")
	}
	if configuration.AccessTTL <= 0 || configuration.AccessTTL > MaxTokenTTL {
		return fmt.Errorf("config.invalid_access_ttl: access ttl must be positive and at most %s", MaxTokenTTL)
	}
	if configuration.RefreshTTL <= 0 || configuration.RefreshTTL > MaxTokenTTL {
		return fmt.Errorf("config.invalid_refresh_ttl: refresh ttl must be positive and at most %s", MaxTokenTTL)
	}
	return nil
}
