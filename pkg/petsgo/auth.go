package petsgo

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"sync"

	"github.com/pkg/errors"
)

const (
	loginEndpoint   = "/auth/login"
	refreshEndpoint = "app/user/refreshToken"
	logoutEndpoint  = "app/user/logout"
	profileEndpoint = "app/user/profile"

	// These endpoints take the raw token and an MD5 of the user id in their
	// own headers, alongside the bearer token.
	headerToken = "token"
	headerUID   = "uid"
)

// authService implements the AuthService interface
type authService struct {
	client *Client
	store  Store

	mu   sync.RWMutex
	user *UserInfo
}

// newAuthService creates a new auth service
func newAuthService(client *Client, store Store) *authService {
	return &authService{
		client: client,
		store:  store,
	}
}

// Restore loads persisted credentials into the client
func (a *authService) Restore(ctx context.Context) (*UserInfo, error) {
	if a.store == nil {
		return nil, nil
	}

	creds, err := a.store.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to restore session")
	}
	if creds == nil {
		return nil, nil
	}

	a.client.SetAuthToken(creds.Token)
	user := creds.User
	a.setUser(&user)
	return a.CurrentUser(), nil
}

// Apply installs a token obtained by an external login flow
func (a *authService) Apply(ctx context.Context, token string, user UserInfo) error {
	if token == "" {
		return errors.New("token is required")
	}

	a.client.SetAuthToken(token)
	a.setUser(&user)

	return a.persist(ctx, token, user)
}

// Login authenticates with username and password
func (a *authService) Login(ctx context.Context, username, password string) (*UserInfo, error) {
	var res LoginResult
	err := a.client.Post(ctx, loginEndpoint, map[string]string{
		"username": username,
		"password": password,
	}, &RequestConfig{SkipAuthRefresh: true}, &res)
	if err != nil {
		return nil, err
	}
	if res.Token == "" {
		return nil, errors.New("no token in login response")
	}

	if err := a.Apply(ctx, res.Token, res.User); err != nil {
		return nil, err
	}

	if logger := a.client.options.Logger; logger != nil {
		logger.Info("Login successful", "user_id", res.User.ID)
	}
	return a.CurrentUser(), nil
}

// RefreshToken exchanges the current token for a new one
func (a *authService) RefreshToken(ctx context.Context) (*RefreshTokenResponse, error) {
	token := a.client.AuthToken()
	user := a.CurrentUser()
	if token == "" || user == nil || user.ID == "" {
		return nil, ErrNotAuthenticated
	}

	var res RefreshTokenResponse
	err := a.client.Get(ctx, refreshEndpoint, &RequestConfig{
		Headers: map[string]string{
			headerToken: token,
			headerUID:   userDigest(user.ID),
		},
		SkipAuthRefresh: true,
	}, &res)
	if err != nil {
		return nil, err
	}
	if res.Token == "" {
		return nil, errors.New("no token in refresh response")
	}
	return &res, nil
}

// RefreshAndApply refreshes the token and installs the result. Membership
// fields are kept from the current user since the profile does not carry them.
func (a *authService) RefreshAndApply(ctx context.Context) error {
	res, err := a.RefreshToken(ctx)
	if err != nil {
		return err
	}

	user := res.UserProfile.UserInfo()
	if current := a.CurrentUser(); current != nil {
		user.IsPremium = current.IsPremium
		user.PremiumExpireAt = current.PremiumExpireAt
	}

	a.client.SetAuthToken(res.Token)
	a.setUser(&user)

	// The new token is already live; a failed write only costs the next restart
	if err := a.persist(ctx, res.Token, user); err != nil {
		if logger := a.client.options.Logger; logger != nil {
			logger.Warn("Failed to persist refreshed token", "error", err)
		}
	}

	if logger := a.client.options.Logger; logger != nil {
		logger.Info("Token refreshed", "user_id", user.ID)
	}
	return nil
}

// EnableAutoRefresh registers RefreshAndApply as the 401 callback
func (a *authService) EnableAutoRefresh() {
	a.client.SetOn401(func(ctx context.Context) (bool, error) {
		if err := a.RefreshAndApply(ctx); err != nil {
			return false, err
		}
		return true, nil
	})
}

// DisableAutoRefresh clears the 401 callback
func (a *authService) DisableAutoRefresh() {
	a.client.SetOn401(nil)
}

// Logout signs out on the server, then clears local credentials even if the
// server call failed. The server error is returned after clearing.
func (a *authService) Logout(ctx context.Context) error {
	var remoteErr error
	if token := a.client.AuthToken(); token != "" {
		remoteErr = a.client.Get(ctx, logoutEndpoint, &RequestConfig{
			Headers:         map[string]string{headerToken: token},
			SkipAuthRefresh: true,
		}, nil)
		if remoteErr != nil {
			if logger := a.client.options.Logger; logger != nil {
				logger.Warn("Server logout failed", "error", remoteErr)
			}
		}
	}

	a.client.SetAuthToken("")
	a.setUser(nil)

	if a.store != nil {
		if err := a.store.Clear(ctx); err != nil {
			return errors.Wrap(err, "failed to clear session")
		}
	}
	return remoteErr
}

// Profile retrieves the signed-in user's profile
func (a *authService) Profile(ctx context.Context) (*UserProfile, error) {
	token := a.client.AuthToken()
	if token == "" {
		return nil, ErrNotAuthenticated
	}

	var profile UserProfile
	err := a.client.Get(ctx, profileEndpoint, &RequestConfig{
		Headers: map[string]string{headerToken: token},
	}, &profile)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// CurrentUser returns a copy of the signed-in user
func (a *authService) CurrentUser() *UserInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.user == nil {
		return nil
	}
	user := *a.user
	return &user
}

func (a *authService) setUser(user *UserInfo) {
	a.mu.Lock()
	a.user = user
	a.mu.Unlock()
}

func (a *authService) persist(ctx context.Context, token string, user UserInfo) error {
	if a.store == nil {
		return nil
	}
	return a.store.Save(ctx, &Credentials{Token: token, User: user})
}

// userDigest is the hex MD5 of the user id expected in the uid header
func userDigest(userID string) string {
	sum := md5.Sum([]byte(userID))
	return hex.EncodeToString(sum[:])
}
