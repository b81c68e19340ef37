package main

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/eshaffer321/petsgo-go/pkg/petsgo"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// petsgoTools holds the PetsGo client and implements all tool handlers
type petsgoTools struct {
	client *petsgo.Client
}

// APIRequest tool - performs one request through the client
type APIRequestInput struct {
	Method string            `json:"method,omitempty" jsonschema:"HTTP method: GET, POST, PUT, PATCH or DELETE (default GET)"`
	Path   string            `json:"path" jsonschema:"Endpoint path relative to the base URL, e.g. app/user/profile"`
	Query  map[string]string `json:"query,omitempty" jsonschema:"Query parameters; empty values are dropped"`
	Body   string            `json:"body,omitempty" jsonschema:"Request body sent verbatim, usually JSON text"`
}

type APIRequestOutput struct {
	Method  string `json:"method" jsonschema:"HTTP method used"`
	Path    string `json:"path" jsonschema:"Requested path"`
	Payload any    `json:"payload,omitempty" jsonschema:"Response payload with the envelope removed"`
}

func (t *petsgoTools) APIRequest(ctx context.Context, req *mcp.CallToolRequest, input APIRequestInput) (*mcp.CallToolResult, APIRequestOutput, error) {
	if input.Path == "" {
		return nil, APIRequestOutput{}, fmt.Errorf("path is required")
	}

	method := strings.ToUpper(input.Method)
	if method == "" {
		method = http.MethodGet
	}

	// Map order is random; sort so repeated calls build the same URL
	keys := make([]string, 0, len(input.Query))
	for k := range input.Query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var params petsgo.Params
	for _, k := range keys {
		params = params.Add(k, input.Query[k])
	}

	var data interface{}
	if input.Body != "" {
		data = input.Body
	}

	var payload interface{}
	err := t.client.Request(ctx, input.Path, &petsgo.RequestConfig{
		Method: method,
		Data:   data,
		Params: params,
	}, &payload)
	if err != nil {
		return nil, APIRequestOutput{}, fmt.Errorf("request failed: %w", err)
	}

	return nil, APIRequestOutput{
		Method:  method,
		Path:    input.Path,
		Payload: payload,
	}, nil
}

// WhoAmI tool - returns the signed-in user
type WhoAmIInput struct {
	// No input parameters needed
}

type UserEntry struct {
	ID              string `json:"id" jsonschema:"User ID"`
	Name            string `json:"name" jsonschema:"Display name"`
	Avatar          string `json:"avatar,omitempty" jsonschema:"Avatar URL"`
	Email           string `json:"email,omitempty" jsonschema:"Email address"`
	IsPremium       bool   `json:"isPremium" jsonschema:"Whether the user has a membership"`
	PremiumExpireAt string `json:"premiumExpireAt,omitempty" jsonschema:"Membership expiry"`
}

type WhoAmIOutput struct {
	LoggedIn bool       `json:"loggedIn" jsonschema:"Whether a session is active"`
	User     *UserEntry `json:"user,omitempty" jsonschema:"The signed-in user"`
}

func (t *petsgoTools) WhoAmI(ctx context.Context, req *mcp.CallToolRequest, input WhoAmIInput) (*mcp.CallToolResult, WhoAmIOutput, error) {
	user := t.client.Auth.CurrentUser()
	if user == nil || t.client.AuthToken() == "" {
		return nil, WhoAmIOutput{}, nil
	}
	return nil, WhoAmIOutput{LoggedIn: true, User: toUserEntry(user)}, nil
}

// GetProfile tool - fetches the profile from the server
type GetProfileInput struct {
	// No input parameters needed
}

type GetProfileOutput struct {
	ID         int64  `json:"id" jsonschema:"User ID"`
	Name       string `json:"name,omitempty" jsonschema:"Name"`
	Nickname   string `json:"nickname,omitempty" jsonschema:"Nickname"`
	Email      string `json:"email,omitempty" jsonschema:"Email address"`
	Mobile     string `json:"mobile,omitempty" jsonschema:"Phone number"`
	UserAvatar string `json:"userAvatar,omitempty" jsonschema:"Avatar URL"`
	Gender     int    `json:"gender" jsonschema:"0 unknown, 1 male, 2 female"`
}

func (t *petsgoTools) GetProfile(ctx context.Context, req *mcp.CallToolRequest, input GetProfileInput) (*mcp.CallToolResult, GetProfileOutput, error) {
	profile, err := t.client.Auth.Profile(ctx)
	if err != nil {
		return nil, GetProfileOutput{}, fmt.Errorf("failed to fetch profile: %w", err)
	}

	out := GetProfileOutput{
		Name:       profile.Name,
		Nickname:   profile.Nickname,
		Email:      profile.Email,
		Mobile:     profile.Mobile,
		UserAvatar: profile.UserAvatar,
		Gender:     profile.Gender,
	}
	if profile.ID != nil {
		out.ID = *profile.ID
	}
	return nil, out, nil
}

// RefreshToken tool - rotates the saved token
type RefreshTokenInput struct {
	// No input parameters needed
}

type RefreshTokenOutput struct {
	User *UserEntry `json:"user" jsonschema:"The signed-in user after the refresh"`
}

func (t *petsgoTools) RefreshToken(ctx context.Context, req *mcp.CallToolRequest, input RefreshTokenInput) (*mcp.CallToolResult, RefreshTokenOutput, error) {
	if err := t.client.Auth.RefreshAndApply(ctx); err != nil {
		return nil, RefreshTokenOutput{}, fmt.Errorf("failed to refresh token: %w", err)
	}
	return nil, RefreshTokenOutput{User: toUserEntry(t.client.Auth.CurrentUser())}, nil
}

func toUserEntry(user *petsgo.UserInfo) *UserEntry {
	if user == nil {
		return nil
	}
	return &UserEntry{
		ID:              user.ID,
		Name:            user.Name,
		Avatar:          user.Avatar,
		Email:           user.Email,
		IsPremium:       user.IsPremium,
		PremiumExpireAt: user.PremiumExpireAt,
	}
}
