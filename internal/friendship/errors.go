package friendship

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Specific errors wrap one of these so callers can match either level.
var (
	ErrInvalidArgument = errors.New("friendship.invalid_argument")
	ErrUnauthorized    = errors.New("friendship.unauthorized")
	ErrNotFound        = errors.New("friendship.not_found")
	ErrConflict        = errors.New("friendship.conflict")
	ErrUpstreamFailure = errors.New("friendship.upstream_failure")
)

var (
	// ErrSelfRequest indicates an identity tried to befriend itself.
	ErrSelfRequest = fmt.Errorf("friendship.self_request: %w", ErrInvalidArgument)
	// ErrAlreadyFriends indicates the pair already has an accepted edge.
	ErrAlreadyFriends = fmt.Errorf("friendship.already_friends: %w", ErrConflict)
	// ErrRequestAlreadyPending indicates the pair already has a pending edge.
	ErrRequestAlreadyPending = fmt.Errorf("friendship.request_already_pending: %w", ErrConflict)
	// ErrInvalidState indicates the edge is not in the state the transition requires.
	ErrInvalidState = fmt.Errorf("friendship.invalid_state: %w", ErrConflict)
)

var publicErrors = []struct {
	sentinel error
	code     string
	status   int
}{
	{ErrSelfRequest, "friendship.self_request", http.StatusBadRequest},
	{ErrAlreadyFriends, "friendship.already_friends", http.StatusConflict},
	{ErrRequestAlreadyPending, "friendship.request_already_pending", http.StatusConflict},
	{ErrInvalidState, "friendship.invalid_state", http.StatusConflict},
	{ErrInvalidArgument, "friendship.invalid_argument", http.StatusBadRequest},
	{ErrUnauthorized, "friendship.unauthorized", http.StatusForbidden},
	{ErrNotFound, "friendship.not_found", http.StatusNotFound},
	{ErrConflict, "friendship.conflict", http.StatusConflict},
	{ErrUpstreamFailure, "friendship.upstream_failure", http.StatusServiceUnavailable},
}

// ErrorResponse maps a friendship error to its HTTP status and public error code.
func ErrorResponse(err error) (int, string) {
	for _, candidate := range publicErrors {
		if errors.Is(err, candidate.sentinel) {
			return candidate.status, candidate.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}
