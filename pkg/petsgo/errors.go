package petsgo

import (
	"github.com/eshaffer321/petsgo-go/internal/types"
)

var (
	// ErrNotAuthenticated is returned when authentication is required
	ErrNotAuthenticated = types.ErrNotAuthenticated

	// ErrUnauthorized is wrapped by APIErrors for 401 responses
	ErrUnauthorized = types.ErrUnauthorized

	// ErrTimeout is wrapped by APIErrors for requests that hit their timeout
	ErrTimeout = types.ErrTimeout

	// ErrNetwork is wrapped by APIErrors when no response was obtained
	ErrNetwork = types.ErrNetwork

	// ErrMalformedBody is wrapped by APIErrors for undecodable response bodies
	ErrMalformedBody = types.ErrMalformedBody

	// ErrRateLimited is wrapped by APIErrors for 429 responses
	ErrRateLimited = types.ErrRateLimited

	// ErrServerError is wrapped by APIErrors for 5xx responses
	ErrServerError = types.ErrServerError

	// ErrRequestFailed is wrapped by APIErrors for other non-2xx responses
	ErrRequestFailed = types.ErrRequestFailed
)

// APIError is returned by every request that does not succeed.
// Code is -1 when the backend supplied none; StatusCode is 0 when no HTTP
// response was obtained.
type APIError = types.APIError

// NoCode is the APIError code for failures without a backend code
const NoCode = types.NoCode

// IsUnauthorized checks if the error is a 401 from the backend
func IsUnauthorized(err error) bool {
	return types.IsUnauthorized(err)
}

// IsTimeout checks if the error is a local timeout
func IsTimeout(err error) bool {
	return types.IsTimeout(err)
}

// IsRetryable checks if error is retryable
func IsRetryable(err error) bool {
	return types.IsRetryable(err)
}
