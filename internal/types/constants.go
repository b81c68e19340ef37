package types

import (
	"errors"
	"time"
)

const (
	// DefaultBaseURL is the default PetsGo API base URL
	DefaultBaseURL = "https://api.ipod.vip:3303/facial"

	// DefaultTimeout is the default per-request timeout
	DefaultTimeout = 15 * time.Second

	// UserAgent is the user agent string
	UserAgent = "petsgo-go/1.0.0"

	// NoCode is the application code used when the backend did not supply one
	NoCode = -1
)

// Common errors
var (
	// ErrNotAuthenticated is returned when authentication is required
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrUnauthorized is returned when the backend rejects the token
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTimeout is returned on timeout
	ErrTimeout = errors.New("request timed out")

	// ErrNetwork is returned when no HTTP response was obtained
	ErrNetwork = errors.New("network error")

	// ErrMalformedBody is returned when a JSON response cannot be decoded
	ErrMalformedBody = errors.New("malformed response body")

	// ErrRateLimited is returned when rate limited
	ErrRateLimited = errors.New("rate limited")

	// ErrServerError is returned for server errors
	ErrServerError = errors.New("server error")

	// ErrRequestFailed is returned for any other non-2xx response
	ErrRequestFailed = errors.New("request failed")
)
