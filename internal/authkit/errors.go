package authkit

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidArgument indicates missing or malformed caller input.
	ErrInvalidArgument = errors.New("auth.invalid_argument")
	// ErrMissingCredentials indicates a protected route was called without a bearer token.
	ErrMissingCredentials = errors.New("auth.missing_credentials")
	// ErrExpiredToken indicates the token expiry has passed.
	ErrExpiredToken = errors.New("auth.expired_token")
	// ErrMalformedToken indicates the token signature, structure or issuer could not be verified.
	ErrMalformedToken = errors.New("auth.malformed_token")
	// ErrWrongTokenType indicates an access token was presented where a refresh token is required, or vice versa.
	ErrWrongTokenType = errors.New("auth.wrong_token_type")
	// ErrRevoked indicates the token was revoked before its natural expiry.
	ErrRevoked = errors.New("auth.revoked")
	// ErrUnknownIdentity indicates the token subject no longer resolves to an active identity.
	ErrUnknownIdentity = errors.New("auth.unknown_identity")
	// ErrInvalidCredentials indicates an email/password pair did not authenticate.
	ErrInvalidCredentials = errors.New("auth.invalid_credentials")
	// ErrEmailTaken indicates registration was attempted with an email already in use.
	ErrEmailTaken = errors.New("auth.email_taken")
	// ErrProviderDisabled indicates an OAuth provider was called without being configured.
	ErrProviderDisabled = errors.New("auth.provider_disabled")
	// ErrUpstreamFailure indicates a collaborator (store or identity provider) failed.
	ErrUpstreamFailure = errors.New("auth.upstream_failure")
)

var errorStatuses = []struct {
	sentinel error
	status   int
}{
	{ErrInvalidArgument, http.StatusBadRequest},
	{ErrMissingCredentials, http.StatusUnauthorized},
	{ErrExpiredToken, http.StatusUnauthorized},
	{ErrMalformedToken, http.StatusUnauthorized},
	{ErrWrongTokenType, http.StatusUnauthorized},
	{ErrRevoked, http.StatusUnauthorized},
	{ErrUnknownIdentity, http.StatusUnauthorized},
	{ErrInvalidCredentials, http.StatusUnauthorized},
	{ErrEmailTaken, http.StatusConflict},
	{ErrProviderDisabled, http.StatusNotFound},
	{ErrUpstreamFailure, http.StatusServiceUnavailable},
}

// ErrorResponse maps an auth error to its HTTP status and the public error code.
// Unknown errors map to 500 with a generic code so internal text never leaks.
func ErrorResponse(err error) (int, string) {
	for _, candidate := range errorStatuses {
		if errors.Is(err, candidate.sentinel) {
			return candidate.status, candidate.sentinel.Error()
		}
	}
	return http.StatusInternalServerError, "internal_error"
}
