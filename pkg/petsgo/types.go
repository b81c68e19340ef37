package petsgo

import (
	"strconv"

	"github.com/eshaffer321/petsgo-go/internal/auth"
	"github.com/eshaffer321/petsgo-go/internal/authstore"
	"github.com/eshaffer321/petsgo-go/internal/transport"
	"github.com/eshaffer321/petsgo-go/internal/types"
)

// Logger interface for logging
type Logger = types.Logger

// RetryConfig configures transport retries
type RetryConfig = types.RetryConfig

// Hooks provides lifecycle hooks for requests
type Hooks = types.Hooks

// RefreshFunc is the 401 callback. It reports whether a new token is in place.
type RefreshFunc = auth.RefreshFunc

// EnvelopeMode controls how {code, data, message} bodies are unwrapped
type EnvelopeMode = transport.EnvelopeMode

const (
	// EnvelopeAuto unwraps data when the body is a JSON object with a data key
	EnvelopeAuto = transport.EnvelopeAuto
	// EnvelopeNone always returns the whole body
	EnvelopeNone = transport.EnvelopeNone
	// EnvelopeRequired fails with ErrMalformedBody unless the body has a data key
	EnvelopeRequired = transport.EnvelopeRequired
)

// Param is one query parameter
type Param = transport.Param

// Params is an ordered list of query parameters. Nil and "" values are dropped.
type Params = transport.Params

// Store persists credentials across runs
type Store = authstore.Store

// Credentials is a token and the user it belongs to
type Credentials = authstore.Credentials

// UserInfo is the signed-in user
type UserInfo = authstore.User

// UserProfile is returned by GET app/user/profile
type UserProfile struct {
	Account   string `json:"account,omitempty"`
	Email     string `json:"email,omitempty"`
	ExtraID   int64  `json:"extraId,omitempty"`
	ExtraName string `json:"extraName,omitempty"`
	// Gender: 0 unknown, 1 male, 2 female
	Gender   int    `json:"gender,omitempty"`
	ID       *int64 `json:"id,omitempty"`
	Mobile   string `json:"mobile,omitempty"`
	Name     string `json:"name,omitempty"`
	Nickname string `json:"nickname,omitempty"`
	OpenID   string `json:"openId,omitempty"`
	// RegisterFrom: 1 phone, 2 email, 3 WeChat, 4 Alipay, 5 Google, 6 Apple, 7 Meta
	RegisterFrom int    `json:"registerFrom,omitempty"`
	TID          int64  `json:"tid,omitempty"`
	UserAvatar   string `json:"userAvatar,omitempty"`
}

// UserInfo converts a profile to the user info kept by the client
func (p *UserProfile) UserInfo() UserInfo {
	user := UserInfo{
		Name:   p.Name,
		Avatar: p.UserAvatar,
		Email:  p.Email,
	}
	if p.ID != nil {
		user.ID = strconv.FormatInt(*p.ID, 10)
	}
	if user.Name == "" {
		user.Name = p.Nickname
	}
	return user
}

// LoginResult is returned by the login endpoint
type LoginResult struct {
	Token string   `json:"token"`
	User  UserInfo `json:"user"`
}

// RefreshTokenResponse is returned by GET app/user/refreshToken
type RefreshTokenResponse struct {
	Token       string      `json:"token"`
	UserProfile UserProfile `json:"userProfile"`
}

// NewFileStore creates a credential store backed by a JSON file
func NewFileStore(path string, logger Logger) Store {
	return authstore.NewFileStore(path, logger)
}

// OpenSQLStore opens a credential store on a postgres:// or sqlite DSN.
// The returned func closes the database.
func OpenSQLStore(dsn string, logger Logger) (Store, func() error, error) {
	store, closeFn, err := authstore.OpenSQLStore(dsn, logger)
	if err != nil {
		return nil, nil, err
	}
	return store, closeFn, nil
}
