package petsgo

import (
	"context"
)

// AuthService handles session lifecycle: restoring persisted credentials,
// logging in and out, and refreshing rejected tokens
type AuthService interface {
	// Restore loads persisted credentials into the client.
	// It returns nil when nothing valid is stored.
	Restore(ctx context.Context) (*UserInfo, error)

	// Apply installs a token obtained by an external login flow and persists it
	Apply(ctx context.Context, token string, user UserInfo) error

	// Login authenticates with username and password
	Login(ctx context.Context, username, password string) (*UserInfo, error)

	// RefreshToken exchanges the current token for a new one without applying it
	RefreshToken(ctx context.Context) (*RefreshTokenResponse, error)

	// RefreshAndApply refreshes the token and installs the result
	RefreshAndApply(ctx context.Context) error

	// EnableAutoRefresh registers RefreshAndApply as the client's 401 callback
	EnableAutoRefresh()

	// DisableAutoRefresh clears the client's 401 callback
	DisableAutoRefresh()

	// Logout signs out on the server and clears local credentials
	Logout(ctx context.Context) error

	// Profile retrieves the signed-in user's profile
	Profile(ctx context.Context) (*UserProfile, error)

	// CurrentUser returns the signed-in user, or nil
	CurrentUser() *UserInfo
}
