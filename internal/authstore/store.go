// Package authstore persists the bearer token and user info between runs.
package authstore

import (
	"context"
	"encoding/json"
)

const (
	// KeyToken holds the serialized bearer token
	KeyToken = "@auth/token"
	// KeyUser holds the serialized user info
	KeyUser = "@auth/user"
)

// Keys lists the entries read, written and removed as one batch.
var Keys = []string{KeyToken, KeyUser}

// User is the persisted user info. ID and Name are required for a stored
// session to be considered valid.
type User struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Avatar          string `json:"avatar,omitempty"`
	Email           string `json:"email,omitempty"`
	IsPremium       bool   `json:"isPremium,omitempty"`
	PremiumExpireAt string `json:"premiumExpireAt,omitempty"`
}

// Credentials is a token and the user it belongs to
type Credentials struct {
	Token string
	User  User
}

// Store is durable storage for credentials.
type Store interface {
	// Save writes both entries
	Save(ctx context.Context, creds *Credentials) error
	// Load returns nil, nil when nothing valid is stored
	Load(ctx context.Context) (*Credentials, error)
	// Clear removes both entries
	Clear(ctx context.Context) error
}

func encode(creds *Credentials) (map[string]string, error) {
	user, err := json.Marshal(creds.User)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		KeyToken: creds.Token,
		KeyUser:  string(user),
	}, nil
}

// decode mirrors the startup check: anything incomplete counts as logged out.
func decode(entries map[string]string) *Credentials {
	token := entries[KeyToken]
	userJSON := entries[KeyUser]
	if token == "" || userJSON == "" {
		return nil
	}
	var user User
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		return nil
	}
	if user.ID == "" || user.Name == "" {
		return nil
	}
	return &Credentials{Token: token, User: user}
}
